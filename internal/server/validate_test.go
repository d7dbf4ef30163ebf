package server

import "testing"

func TestNormalizePhone(t *testing.T) {
	tests := []struct{ in, want string }{
		{"081234567890", "081234567890"},
		{"0812-3456-7890", "081234567890"},
		{" 0812 3456 7890 ", "081234567890"},
		{"+62 812", "62812"},
	}
	for _, tt := range tests {
		if got := normalizePhone(tt.in); got != tt.want {
			t.Errorf("normalizePhone(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestValidationMessage(t *testing.T) {
	tests := []struct {
		name string
		req  any
		want string
	}{
		{"missing name", RegisterRequest{Code: "ABC123", Phone: "081234567890"}, "name is required"},
		{"short name", RegisterRequest{Code: "ABC123", Name: "A", Phone: "081234567890"}, "name must have at least 2 characters"},
		{"bad code", RegisterRequest{Code: "ABC", Name: "Siti", Phone: "081234567890"}, "code must be 6 letters or digits"},
		{"bad phone", RegisterRequest{Code: "ABC123", Name: "Siti", Phone: "0712345678"}, "phone must start with 08 and have 10 to 13 digits"},
		{"scan method", ScanRequest{Code: "X", Method: "nfc"}, "method must be one of: camera manual"},
		{"too few options", AdminLocation{
			ID: "food_court", Name: "Food Court", Floor: "FF", UnlockOrder: 5,
			QuizQuestion: "Q?", QuizOptions: []string{"A"}, CorrectAnswer: "A",
		}, "quizOptions must have at least 2 items"},
		{"bad slug", AdminLocation{
			ID: "Food Court", Name: "Food Court", Floor: "FF", UnlockOrder: 5,
			QuizQuestion: "Q?", QuizOptions: []string{"A", "B"}, CorrectAnswer: "A",
		}, "id must be lowercase letters, digits, _ or -"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validate.Struct(tt.req)
			if err == nil {
				t.Fatal("expected a validation error")
			}
			if got := validationMessage(err); got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}
