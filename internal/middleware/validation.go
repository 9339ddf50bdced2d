package middleware

import (
	"reflect"
	"strings"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
)

// RegisterValidation configures the shared validator engine so binding
// errors report JSON field names instead of Go struct fields.
func RegisterValidation() {
	v, ok := binding.Validator.Engine().(*validator.Validate)
	if !ok {
		return
	}

	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return fld.Name
		}
		return name
	})
}

// ValidationMessage flattens a validator error into one readable line.
func ValidationMessage(err error) string {
	errs, ok := err.(validator.ValidationErrors)
	if !ok {
		return err.Error()
	}

	parts := make([]string, 0, len(errs))
	for _, e := range errs {
		switch e.Tag() {
		case "required":
			parts = append(parts, e.Field()+" is required")
		case "email":
			parts = append(parts, e.Field()+" must be a valid email")
		case "min":
			parts = append(parts, e.Field()+" is too small")
		case "max":
			parts = append(parts, e.Field()+" is too large")
		case "oneof":
			parts = append(parts, e.Field()+" must be one of: "+e.Param())
		case "gtfield":
			parts = append(parts, e.Field()+" must be after "+e.Param())
		default:
			parts = append(parts, e.Field()+" is invalid")
		}
	}
	return strings.Join(parts, "; ")
}
