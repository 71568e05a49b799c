package releasea

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

// Validator checks a value against a contract. On success it returns the
// value callers should use from then on (possibly converted to a typed form).
type Validator interface {
	Validate(value any) (any, error)
}

// ValidatorFunc adapts a function to the Validator interface.
type ValidatorFunc func(value any) (any, error)

// Validate implements Validator.
func (f ValidatorFunc) Validate(value any) (any, error) {
	return f(value)
}

// ContractViolation lists why a value failed its contract.
type ContractViolation struct {
	Issues []string
}

func (v *ContractViolation) Error() string {
	if len(v.Issues) == 0 {
		return "contract violation"
	}
	return "contract violation: " + strings.Join(v.Issues, "; ")
}

var structValidate = validator.New()

type schema[T any] struct{}

// Schema returns a Validator that converts the value into T through its JSON
// form and then applies T's `validate` struct tags. A value that is already a
// T (or *T) is validated as is.
func Schema[T any]() Validator {
	return schema[T]{}
}

func (schema[T]) Validate(value any) (any, error) {
	var out T
	switch v := value.(type) {
	case T:
		out = v
	case *T:
		if v == nil {
			return nil, &ContractViolation{Issues: []string{"value is required"}}
		}
		out = *v
	default:
		if value == nil {
			return nil, &ContractViolation{Issues: []string{"value is required"}}
		}
		data, err := json.Marshal(value)
		if err != nil {
			return nil, &ContractViolation{Issues: []string{fmt.Sprintf("value is not encodable: %v", err)}}
		}
		dec := json.NewDecoder(bytes.NewReader(data))
		if err := dec.Decode(&out); err != nil {
			return nil, &ContractViolation{Issues: []string{fmt.Sprintf("shape mismatch: %v", err)}}
		}
	}

	if err := validateValue(out); err != nil {
		return nil, err
	}
	return out, nil
}

func validateValue(v any) error {
	rv := reflect.ValueOf(v)
	for rv.Kind() == reflect.Pointer {
		if rv.IsNil() {
			return nil
		}
		rv = rv.Elem()
	}

	var err error
	switch rv.Kind() {
	case reflect.Struct:
		err = structValidate.Struct(rv.Interface())
	case reflect.Slice, reflect.Array:
		elem := rv.Type().Elem()
		for elem.Kind() == reflect.Pointer {
			elem = elem.Elem()
		}
		if elem.Kind() == reflect.Struct {
			err = structValidate.Var(rv.Interface(), "dive")
		}
	}
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if errors.As(err, &fieldErrs) {
		issues := make([]string, 0, len(fieldErrs))
		for _, fe := range fieldErrs {
			issue := fmt.Sprintf("%s failed '%s'", fe.Namespace(), fe.Tag())
			if fe.Param() != "" {
				issue = fmt.Sprintf("%s failed '%s=%s'", fe.Namespace(), fe.Tag(), fe.Param())
			}
			issues = append(issues, issue)
		}
		return &ContractViolation{Issues: issues}
	}
	return &ContractViolation{Issues: []string{err.Error()}}
}

// checkContract runs v when present. It never panics on a bad value; a nil
// validator accepts everything unchanged.
func checkContract(v Validator, value any) (any, *ContractViolation) {
	if v == nil {
		return value, nil
	}
	out, err := v.Validate(value)
	if err == nil {
		return out, nil
	}
	var violation *ContractViolation
	if errors.As(err, &violation) {
		return nil, violation
	}
	return nil, &ContractViolation{Issues: []string{err.Error()}}
}
