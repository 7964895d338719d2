package habits

import (
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strings"
	"time"

	"github.com/conorfennell/habbit/internal/domain"
	"github.com/go-playground/validator/v10"
	"github.com/go-playground/validator/v10/non-standard/validators"
)

// ValidationError lists the rejected fields, keyed by their JSON name.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	names := make([]string, 0, len(e.Fields))
	for name := range e.Fields {
		names = append(names, name)
	}
	sort.Strings(names)
	parts := make([]string, 0, len(names))
	for _, name := range names {
		parts = append(parts, name+": "+e.Fields[name])
	}
	return "invalid habit: " + strings.Join(parts, ", ")
}

func invalid(field, msg string) *ValidationError {
	return &ValidationError{Fields: map[string]string{field: msg}}
}

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	v.RegisterValidation("notblank", validators.NotBlank)
	v.RegisterValidation("date", func(fl validator.FieldLevel) bool {
		return validDate(fl.Field().String())
	})
	v.RegisterValidation("clock", func(fl validator.FieldLevel) bool {
		s := fl.Field().String()
		if s == "" {
			return true
		}
		_, err := time.Parse(domain.TimeOfDayLayout, s)
		return err == nil
	})
	v.RegisterStructValidation(inputOrder, domain.HabitInput{})
	return v
}

// validDate accepts the empty string so optional dates can be cleared.
func validDate(s string) bool {
	if s == "" {
		return true
	}
	_, err := time.Parse(domain.DateLayout, s)
	return err == nil
}

func inputOrder(sl validator.StructLevel) {
	in := sl.Current().Interface().(domain.HabitInput)
	if in.EndDate != nil && endsBeforeStart(in.StartDate, *in.EndDate) {
		sl.ReportError(in.EndDate, "endDate", "EndDate", "gtefield", "startDate")
	}
}

// endsBeforeStart compares calendar dates. YYYY-MM-DD sorts lexically.
func endsBeforeStart(start, end string) bool {
	return start != "" && end != "" && end < start
}

var messages = map[string]string{
	"required": "is required",
	"notblank": "must not be blank",
	"min":      "is too small or too short",
	"max":      "is too large or too long",
	"oneof":    "is not an allowed value",
	"date":     "must be a date in YYYY-MM-DD format",
	"clock":    "must be a time in HH:MM format",
	"gtefield": "must not be before the start date",
}

func (s *Service) check(v any) error {
	err := s.validate.Struct(v)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("failed to validate: %w", err)
	}
	out := &ValidationError{Fields: make(map[string]string, len(verrs))}
	for _, fe := range verrs {
		msg, ok := messages[fe.Tag()]
		if !ok {
			msg = "is invalid"
		}
		out.Fields[fe.Field()] = msg
	}
	return out
}
