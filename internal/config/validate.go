package config

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

var logLevels = map[string]bool{
	"trace": true, "debug": true, "info": true, "warn": true,
	"warning": true, "error": true, "fatal": true, "panic": true,
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())

	// Report fields by their config key rather than the Go name.
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("mapstructure"), ",")
		if name == "" || name == "-" {
			return f.Name
		}
		return name
	})

	_ = v.RegisterValidation("loglevel", func(fl validator.FieldLevel) bool {
		return logLevels[strings.ToLower(fl.Field().String())]
	})
	return v
}

// fieldError turns the first validator failure into a config message.
func fieldError(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return err
	}

	fe := verrs[0]
	switch fe.Tag() {
	case "required", "required_with", "required_if":
		return fmt.Errorf("%s is required", fe.Field())
	case "min":
		if fe.Kind() == reflect.Slice {
			return fmt.Errorf("%s needs at least %s entry", fe.Field(), fe.Param())
		}
		return fmt.Errorf("%s must be at least %s", fe.Field(), fe.Param())
	case "datetime":
		return fmt.Errorf("invalid %s %q: want YYYY-MM-DD", fe.Field(), fe.Value())
	case "oneof":
		return fmt.Errorf("unknown %s %q (want one of: %s)", fe.Field(), fe.Value(), fe.Param())
	default:
		return fmt.Errorf("invalid %s: %v", fe.Field(), fe.Value())
	}
}
