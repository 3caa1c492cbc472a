package validation

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/templui/fileshare/internal/apperr"
	"github.com/templui/fileshare/internal/model"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()

	// Report fields by their JSON names
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
		if name == "-" || name == "" {
			return fld.Name
		}
		return name
	})

	_ = v.RegisterValidation("username", func(fl validator.FieldLevel) bool {
		return ValidateUsername(fl.Field().String()) == nil
	})
	_ = v.RegisterValidation("password", func(fl validator.FieldLevel) bool {
		return ValidatePassword(fl.Field().String()) == nil
	})
	_ = v.RegisterValidation("mailbox", func(fl validator.FieldLevel) bool {
		return ValidateEmail(fl.Field().String()) == nil
	})
	_ = v.RegisterValidation("visibility", func(fl validator.FieldLevel) bool {
		return model.Visibility(fl.Field().String()).Valid()
	})

	return v
}

// Struct validates v's `validate` tags and returns an apperr validation
// error listing every failing field.
func Struct(v any) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return apperr.NewInternal("validation failed", err)
	}

	fields := make([]apperr.FieldError, 0, len(verrs))
	for _, fe := range verrs {
		fields = append(fields, apperr.FieldError{
			Field:   fe.Field(),
			Message: message(fe),
		})
	}

	return apperr.NewValidation("Validation failed", fields...)
}

func message(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", fe.Field())
	case "min":
		return fmt.Sprintf("%s must be at least %s characters", fe.Field(), fe.Param())
	case "max":
		return fmt.Sprintf("%s cannot exceed %s characters", fe.Field(), fe.Param())
	case "email", "mailbox":
		return "Please provide a valid email"
	case "username":
		return "Username must be between 3 and 30 characters"
	case "password":
		return "Password must be between 6 and 72 characters"
	case "visibility":
		return "Visibility must be one of public, private, password"
	case "uuid", "uuid4":
		return fmt.Sprintf("%s must be a valid id", fe.Field())
	}
	return fmt.Sprintf("%s is invalid", fe.Field())
}
