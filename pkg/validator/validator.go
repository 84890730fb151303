package validator

import (
	"context"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator"
)

var global *validator.Validate

const (
	ErrInvalidFormat      = "Invalid format"
	ErrFieldRequired      = "Field is required"
	ErrFieldExceedsMaxLen = "Field exceeds maximum length"
	ErrFieldBelowMinLen   = "Field is below minimum length"
	ErrInvalidEmail       = "Must be a valid email address"
	ErrUnknownValidation  = "Unknown validation error"

	ErrEndBeforeStart = "End date must be after start date"
	ErrEndInPast      = "End date cannot be in the past"
)

// FieldError is a single validation failure scoped to a form field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func init() {
	SetValidator(New())
}

func New() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("form"), ",", 2)[0]
		if name == "" || name == "-" {
			return fld.Name
		}
		return name
	})
	return v
}

func SetValidator(v *validator.Validate) {
	global = v
}

func Validator() *validator.Validate {
	return global
}

// Validate checks struct tags and returns one FieldError per failed
// rule. Callers are expected to surface the whole list, not just the
// first message.
func Validate(ctx context.Context, structure any) []FieldError {
	return parseValidationErrors(Validator().StructCtx(ctx, structure))
}

func parseValidationErrors(err error) []FieldError {
	if err == nil {
		return nil
	}
	vErrors, ok := err.(validator.ValidationErrors)
	if !ok || len(vErrors) == 0 {
		return nil
	}
	out := make([]FieldError, 0, len(vErrors))
	for _, ve := range vErrors {
		var msg string
		switch ve.Tag() {
		case "required":
			msg = ErrFieldRequired
		case "max":
			msg = ErrFieldExceedsMaxLen
		case "min":
			msg = ErrFieldBelowMinLen
		case "email":
			msg = ErrInvalidEmail
		default:
			msg = ErrUnknownValidation
		}
		out = append(out, FieldError{Field: ve.Field(), Message: msg})
	}
	return out
}

// CheckDateRange applies the cross-field date rules for giveaway
// forms: the end must be strictly after the start, and unless
// allowPastEnd is set (edits of already-ended giveaways) the end must
// not lie before now.
func CheckDateRange(start, end, now time.Time, allowPastEnd bool) []FieldError {
	var out []FieldError
	if !end.After(start) {
		out = append(out, FieldError{Field: "end_date", Message: ErrEndBeforeStart})
	}
	if !allowPastEnd && end.Before(now) {
		out = append(out, FieldError{Field: "end_date", Message: ErrEndInPast})
	}
	return out
}

// ParseDateTime parses a naive wall-clock value in the given layout.
func ParseDateTime(layout, value, field string) (time.Time, *FieldError) {
	t, err := time.ParseInLocation(layout, strings.TrimSpace(value), time.Local)
	if err != nil {
		return time.Time{}, &FieldError{Field: field, Message: ErrInvalidFormat}
	}
	return t, nil
}
