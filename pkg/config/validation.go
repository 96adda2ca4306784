package config

import (
	"reflect"

	sserr "github.com/StricklySoft/contentflow/pkg/errors"
)

// Validator is implemented by config structs that need cross-field
// checks. Validate runs after the required-tag checks pass.
type Validator interface {
	Validate() error
}

func validate(cfg any, rv reflect.Value) error {
	if err := checkRequired(rv, ""); err != nil {
		return err
	}
	v, ok := cfg.(Validator)
	if !ok {
		return nil
	}
	if err := v.Validate(); err != nil {
		if _, isPlatform := sserr.AsError(err); isPlatform {
			return err
		}
		return sserr.Wrap(err, sserr.CodeValidation, "config: validation failed")
	}
	return nil
}

func checkRequired(rv reflect.Value, path string) error {
	rt := rv.Type()
	for i := 0; i < rt.NumField(); i++ {
		field, sf := rv.Field(i), rt.Field(i)
		if !field.CanSet() {
			continue
		}
		name := sf.Name
		if path != "" {
			name = path + "." + sf.Name
		}
		if field.Kind() == reflect.Struct && sf.Type != durationType {
			if err := checkRequired(field, name); err != nil {
				return err
			}
			continue
		}
		if sf.Tag.Get("required") == "true" && field.IsZero() {
			return sserr.Newf(sserr.CodeValidationRequired,
				"config: required field %q is empty", name)
		}
	}
	return nil
}
