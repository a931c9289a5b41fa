package model

import (
	"fmt"
	"reflect"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/rotisserie/eris"
	"github.com/shopspring/decimal"
)

// ErrInvalid is wrapped by every field validation failure.
var ErrInvalid = eris.New("validation failed")

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		tag := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if tag == "" || tag == "-" {
			return f.Name
		}
		return tag
	})
	v.RegisterCustomTypeFunc(func(field reflect.Value) any {
		if d, ok := field.Interface().(decimal.Decimal); ok {
			return d.InexactFloat64()
		}
		return nil
	}, decimal.Decimal{})
	return v
}

// Validate checks the struct tags of v and reports every failing field in
// one error.
func Validate(v any) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !eris.As(err, &fieldErrs) {
		return eris.Wrap(err, "model: validate")
	}
	msgs := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		msgs = append(msgs, fe.Field()+" "+validationMessage(fe))
	}
	sort.Strings(msgs)
	return eris.Wrapf(ErrInvalid, "model: invalid %s: %s", strings.ToLower(reflect.Indirect(reflect.ValueOf(v)).Type().Name()), strings.Join(msgs, "; "))
}

func validationMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "max":
		return fmt.Sprintf("must be at most %s", fe.Param())
	case "gte":
		return fmt.Sprintf("must be >= %s", fe.Param())
	case "lte":
		return fmt.Sprintf("must be <= %s", fe.Param())
	case "gtefield":
		return fmt.Sprintf("must not be before %s", fe.Param())
	case "email":
		return "must be a valid email"
	}
	return "is invalid"
}
