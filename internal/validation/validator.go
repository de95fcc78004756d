// Package validation wraps a shared go-playground/validator instance and
// turns its failures into errs.ValidationError messages keyed by wire names.
package validation

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"

	"github.com/GregMSThompson/moneyloop/internal/errs"
)

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

// Get returns the singleton validator. Field names in errors come from the
// json tag, then the query tag, then the Go name.
func Get() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
		validate.RegisterTagNameFunc(func(f reflect.StructField) string {
			for _, tag := range []string{"json", "query"} {
				name := strings.SplitN(f.Tag.Get(tag), ",", 2)[0]
				if name != "" && name != "-" {
					return name
				}
			}
			return f.Name
		})
	})
	return validate
}

// Struct validates s and returns nil or an *errs.ValidationError.
func Struct(s any) error {
	err := Get().Struct(s)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return errs.NewValidationError(err.Error())
	}

	messages := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		messages = append(messages, translate(fe))
	}
	return errs.NewValidationError(strings.Join(messages, "; "))
}

var simpleMessages = map[string]string{
	"required": "%s is required",
}

var paramMessages = map[string]string{
	"min":      "%s must be at least %s",
	"max":      "%s must be at most %s",
	"gte":      "%s must be greater than or equal to %s",
	"lte":      "%s must be less than or equal to %s",
	"oneof":    "%s must be one of: %s",
	"datetime": "%s must be a date in the format %s",
}

func translate(fe validator.FieldError) string {
	field := fe.Field()
	if tmpl, ok := simpleMessages[fe.Tag()]; ok {
		return fmt.Sprintf(tmpl, field)
	}
	if tmpl, ok := paramMessages[fe.Tag()]; ok {
		param := fe.Param()
		if fe.Tag() == "datetime" && param == "2006-01-02" {
			param = "YYYY-MM-DD"
		}
		return fmt.Sprintf(tmpl, field, param)
	}
	return fmt.Sprintf("%s failed %s validation", field, fe.Tag())
}
