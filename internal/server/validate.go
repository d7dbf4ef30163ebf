package server

import (
	"errors"
	"reflect"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
)

var (
	signupCodeRe = regexp.MustCompile(`^[A-Z0-9]{6}$`)
	phoneRe      = regexp.MustCompile(`^08[0-9]{8,11}$`)
	slugRe       = regexp.MustCompile(`^[a-z0-9][a-z0-9_-]{1,39}$`)
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	v.RegisterValidation("signup_code", func(fl validator.FieldLevel) bool {
		return signupCodeRe.MatchString(fl.Field().String())
	})
	v.RegisterValidation("id_phone", func(fl validator.FieldLevel) bool {
		return phoneRe.MatchString(fl.Field().String())
	})
	v.RegisterValidation("slug", func(fl validator.FieldLevel) bool {
		return slugRe.MatchString(fl.Field().String())
	})
	return v
}

func normalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// normalizePhone strips everything but digits.
func normalizePhone(phone string) string {
	var b strings.Builder
	for _, r := range phone {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// validationMessage turns the first failing rule into a message a player
// can act on.
func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return "invalid request"
	}
	fe := verrs[0]
	unit := " characters"
	if fe.Kind() == reflect.Slice {
		unit = " items"
	}
	switch fe.Tag() {
	case "required":
		return fe.Field() + " is required"
	case "min":
		return fe.Field() + " must have at least " + fe.Param() + unit
	case "max":
		return fe.Field() + " must have at most " + fe.Param() + unit
	case "signup_code":
		return "code must be 6 letters or digits"
	case "id_phone":
		return "phone must start with 08 and have 10 to 13 digits"
	case "slug":
		return fe.Field() + " must be lowercase letters, digits, _ or -"
	case "gt":
		return fe.Field() + " must be greater than " + fe.Param()
	case "email":
		return fe.Field() + " must be a valid email address"
	case "oneof":
		return fe.Field() + " must be one of: " + fe.Param()
	}
	return fe.Field() + " is invalid"
}
