package validation

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/fadedpez/royalcharge/internal/types"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

// Validate is the shared validator with the storefront's custom rules
var Validate = New()

// New creates a validator that understands decimal amounts
func New() *validator.Validate {
	v := validator.New()

	// Report json names in messages
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name := strings.SplitN(field.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return field.Name
		}
		return name
	})

	// Compare decimals as numbers so gt=0 and friends work
	v.RegisterCustomTypeFunc(func(field reflect.Value) interface{} {
		if d, ok := field.Interface().(decimal.Decimal); ok {
			f, _ := d.Float64()
			return f
		}
		return nil
	}, decimal.Decimal{})

	v.RegisterValidation("usd", validateUSD)

	return v
}

// validateUSD accepts amounts with at most two decimal places
func validateUSD(fl validator.FieldLevel) bool {
	// The custom type func has already turned decimals into float64
	var d decimal.Decimal
	switch v := fl.Field().Interface().(type) {
	case float64:
		d = decimal.NewFromFloat(v)
	case decimal.Decimal:
		d = v
	default:
		return false
	}
	return d.Equal(d.Round(2))
}

// Struct validates s and converts failures into a VALIDATION_FAILED StoreError
func Struct(s interface{}) error {
	return FromError(Validate.Struct(s))
}

// FromError converts a validator failure into a VALIDATION_FAILED StoreError
func FromError(err error) error {
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return types.WrapError(types.ErrValidation, "Invalid request", err)
	}

	messages := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		messages = append(messages, describe(fe))
	}
	return types.WrapError(types.ErrValidation, strings.Join(messages, "; "), err)
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", fe.Field())
	case "email":
		return fmt.Sprintf("%s must be a valid email", fe.Field())
	case "min":
		return fmt.Sprintf("%s must be at least %s characters", fe.Field(), fe.Param())
	case "max":
		return fmt.Sprintf("%s must be at most %s characters", fe.Field(), fe.Param())
	case "gt", "gte":
		return fmt.Sprintf("%s must be greater than %s", fe.Field(), fe.Param())
	case "oneof":
		return fmt.Sprintf("%s must be one of [%s]", fe.Field(), fe.Param())
	case "usd":
		return fmt.Sprintf("%s must have at most two decimal places", fe.Field())
	default:
		return fmt.Sprintf("%s is invalid", fe.Field())
	}
}
