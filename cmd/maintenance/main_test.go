package main

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/mallhunt/treasurehunt/internal/server"
)

func TestRunRequiresAnAction(t *testing.T) {
	err := run(context.Background(), &bytes.Buffer{}, options{dbPath: ":memory:"})
	if err == nil || !strings.Contains(err.Error(), "nothing to do") {
		t.Fatalf("expected nothing-to-do error, got %v", err)
	}
}

func TestRunSeedAndRepair(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "hunt.db")

	var out bytes.Buffer
	err := run(context.Background(), &out, options{dbPath: dbPath, seedDemo: true, repairStats: true, dryRun: true})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if !strings.Contains(out.String(), "all player counters are consistent") {
		t.Errorf("unexpected output: %q", out.String())
	}
}

func TestPrintRepairs(t *testing.T) {
	var out bytes.Buffer
	printRepairs(&out, []server.StatRepair{
		{PlayerID: "p1", Name: "Siti", OldProgress: 3, NewProgress: 1, OldCompleted: true, NewCompleted: false},
	}, true)

	got := out.String()
	for _, want := range []string{"PLAYER", "3 -> 1", "true -> false", "would repair 1 players"} {
		if !strings.Contains(got, want) {
			t.Errorf("output missing %q:\n%s", want, got)
		}
	}
}
