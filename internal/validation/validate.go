// Package validation holds the product shape rules. The same rule set runs on
// freshly created products and on post-patch states.
package validation

import (
	"strings"

	"github.com/go-playground/validator/v10"
)

// ProductInput is the validatable shape of a product.
type ProductInput struct {
	Name     string `validate:"required,notblank"`
	ImageURL string `validate:"required,url"`
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	// required only rejects the zero value; a whitespace-only name needs its own rule
	_ = v.RegisterValidation("notblank", func(fl validator.FieldLevel) bool {
		return strings.TrimSpace(fl.Field().String()) != ""
	})
	return v
}

// pointers maps struct field names to the JSON pointers used in error bodies.
var pointers = map[string]string{
	"Name":     "/name",
	"ImageURL": "/imageURL",
}

var messages = map[string]string{
	"required": "is required",
	"notblank": "can't be blank",
	"url":      "must be a valid URL",
}

// Validate checks a product's shape and returns field errors keyed by JSON
// pointer, or nil when the product is valid.
func Validate(in ProductInput) map[string][]string {
	err := validate.Struct(in)
	if err == nil {
		return nil
	}
	validationErrors, ok := err.(validator.ValidationErrors)
	if !ok {
		return map[string][]string{"": {err.Error()}}
	}

	fields := make(map[string][]string)
	for _, fieldErr := range validationErrors {
		pointer, ok := pointers[fieldErr.Field()]
		if !ok {
			pointer = "/" + strings.ToLower(fieldErr.Field())
		}
		message, ok := messages[fieldErr.Tag()]
		if !ok {
			message = "failed on rule: " + fieldErr.Tag()
		}
		fields[pointer] = append(fields[pointer], message)
	}
	return fields
}
