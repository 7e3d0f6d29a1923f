package services

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	// report spreadsheet columns and json keys instead of Go field names
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		if col := f.Tag.Get("col"); col != "" {
			return col
		}
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" || name == "" {
			return f.Name
		}
		return name
	})
	return v
}

// inputError is a caller mistake that carries a ready-to-show message.
type inputError struct {
	msg string
	err error
}

func (e *inputError) Error() string { return e.msg }
func (e *inputError) Unwrap() error { return e.err }

func invalidInput(format string, args ...any) error {
	return &inputError{msg: fmt.Sprintf(format, args...)}
}

// validateInput runs struct tags and returns one inputError listing every
// failed field.
func validateInput(v any) error {
	if err := validate.Struct(v); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			return &inputError{msg: describeValidation(verrs), err: err}
		}
		return &inputError{msg: err.Error(), err: err}
	}
	return nil
}

func describeValidation(verrs validator.ValidationErrors) string {
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		parts = append(parts, describeField(fe))
	}
	return strings.Join(parts, "; ")
}

func describeField(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("missing required field %s", fe.Field())
	case "max":
		return fmt.Sprintf("%s exceeds %s characters", fe.Field(), fe.Param())
	case "gte", "min":
		return fmt.Sprintf("%s must be at least %s", fe.Field(), fe.Param())
	case "oneof":
		return fmt.Sprintf("%s must be one of %s", fe.Field(), fe.Param())
	default:
		return fmt.Sprintf("%s failed %s", fe.Field(), fe.Tag())
	}
}
