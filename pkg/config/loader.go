// Package config loads service configuration into tagged structs from
// three layers, lowest priority first:
//
//	envDefault struct tags
//	a YAML or JSON file
//	environment variables
//
// Struct tags:
//
//   - `env:"NAME"` binds the field to NAME (prefixed, see [Loader.WithEnvPrefix]).
//     On a nested struct the tag becomes a prefix for the children.
//   - `envDefault:"value"` is applied when the field is still zero.
//   - `required:"true"` fails loading when the field is zero at the end.
//
// Supported field kinds are strings (including named string types such
// as redis.Secret), bools, signed integers, floats, time.Duration,
// []string (comma separated) and map[string]string (comma separated
// key=value pairs).
//
//	cfg := config.MustLoad[AppConfig](config.New().WithEnvPrefix("CONTENTFLOW"))
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	sserr "github.com/StricklySoft/contentflow/pkg/errors"
)

var durationType = reflect.TypeOf(time.Duration(0))

// Loader resolves configuration layers into a struct. It is not safe for
// concurrent use.
type Loader struct {
	envPrefix string
	filePath  string
}

// New returns a Loader that reads environment variables only.
func New() *Loader {
	return &Loader{}
}

// WithEnvPrefix prefixes every env tag with PREFIX_. The prefix is
// upper-cased.
func (l *Loader) WithEnvPrefix(prefix string) *Loader {
	l.envPrefix = strings.ToUpper(prefix)
	return l
}

// WithFile adds a .yaml, .yml or .json file layer. A missing file is
// skipped; an unknown extension is an error at Load time.
func (l *Loader) WithFile(path string) *Loader {
	l.filePath = path
	return l
}

// Load fills cfg, which must be a non-nil pointer to a struct, and then
// validates it. Loading failures carry CodeInternalConfiguration; missing
// required fields carry CodeValidationRequired.
func (l *Loader) Load(cfg any) error {
	rv := reflect.ValueOf(cfg)
	if rv.Kind() != reflect.Pointer || rv.IsNil() || rv.Elem().Kind() != reflect.Struct {
		return sserr.New(sserr.CodeInternalConfiguration,
			"config: Load requires a non-nil pointer to a struct")
	}
	rv = rv.Elem()

	if err := walk(rv, "", func(field reflect.Value, sf reflect.StructField, _ string) error {
		def, ok := sf.Tag.Lookup("envDefault")
		if !ok || !field.IsZero() {
			return nil
		}
		if err := setField(field, def); err != nil {
			return sserr.Wrapf(err, sserr.CodeInternalConfiguration,
				"config: bad default for field %q", sf.Name)
		}
		return nil
	}); err != nil {
		return err
	}

	if l.filePath != "" {
		if err := l.loadFile(cfg); err != nil {
			return err
		}
	}

	if err := walk(rv, l.envPrefix, func(field reflect.Value, sf reflect.StructField, prefix string) error {
		name := sf.Tag.Get("env")
		if name == "" {
			return nil
		}
		key := joinEnv(prefix, name)
		val, ok := os.LookupEnv(key)
		if !ok {
			return nil
		}
		if err := setField(field, val); err != nil {
			return sserr.Wrapf(err, sserr.CodeInternalConfiguration,
				"config: cannot apply %s to field %q", key, sf.Name)
		}
		return nil
	}); err != nil {
		return err
	}

	return validate(cfg, rv)
}

// MustLoad loads a T or panics. Intended for main.
func MustLoad[T any](loader *Loader) T {
	var cfg T
	if err := loader.Load(&cfg); err != nil {
		panic(fmt.Sprintf("config: MustLoad failed: %v", err))
	}
	return cfg
}

func (l *Loader) loadFile(cfg any) error {
	if strings.Contains(l.filePath, "..") {
		return sserr.New(sserr.CodeInternalConfiguration,
			"config: file path must not contain '..'")
	}

	data, err := os.ReadFile(l.filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return sserr.Wrapf(err, sserr.CodeInternalConfiguration,
			"config: failed to read %q", l.filePath)
	}

	switch ext := strings.ToLower(filepath.Ext(l.filePath)); ext {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, cfg)
	case ".json":
		err = json.Unmarshal(data, cfg)
	default:
		return sserr.Newf(sserr.CodeInternalConfiguration,
			"config: unsupported file extension %q", ext)
	}
	if err != nil {
		return sserr.Wrapf(err, sserr.CodeInternalConfiguration,
			"config: failed to parse %q", l.filePath)
	}
	return nil
}

// walk visits every settable leaf field. Nested structs extend the env
// prefix with their own env tag.
func walk(rv reflect.Value, prefix string, visit func(reflect.Value, reflect.StructField, string) error) error {
	rt := rv.Type()
	for i := 0; i < rt.NumField(); i++ {
		field, sf := rv.Field(i), rt.Field(i)
		if !field.CanSet() {
			continue
		}
		if field.Kind() == reflect.Struct && sf.Type != durationType {
			nested := prefix
			if tag := sf.Tag.Get("env"); tag != "" {
				nested = joinEnv(prefix, tag)
			}
			if err := walk(field, nested, visit); err != nil {
				return err
			}
			continue
		}
		if err := visit(field, sf, prefix); err != nil {
			return err
		}
	}
	return nil
}

func joinEnv(prefix, name string) string {
	if prefix == "" {
		return name
	}
	return prefix + "_" + name
}

func setField(field reflect.Value, value string) error {
	if field.Type() == durationType {
		d, err := time.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("cannot parse duration %q: %w", value, err)
		}
		field.SetInt(int64(d))
		return nil
	}

	switch field.Kind() {
	case reflect.String:
		field.SetString(value)
	case reflect.Bool:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("cannot parse bool %q: %w", value, err)
		}
		field.SetBool(b)
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		n, err := strconv.ParseInt(strings.TrimSpace(value), 10, field.Type().Bits())
		if err != nil {
			return fmt.Errorf("cannot parse integer %q: %w", value, err)
		}
		field.SetInt(n)
	case reflect.Float32, reflect.Float64:
		f, err := strconv.ParseFloat(strings.TrimSpace(value), field.Type().Bits())
		if err != nil {
			return fmt.Errorf("cannot parse float %q: %w", value, err)
		}
		field.SetFloat(f)
	case reflect.Slice:
		if field.Type().Elem().Kind() != reflect.String {
			return fmt.Errorf("unsupported slice element type %s", field.Type().Elem().Kind())
		}
		parts := splitList(value)
		slice := reflect.MakeSlice(field.Type(), len(parts), len(parts))
		for i, p := range parts {
			slice.Index(i).SetString(p)
		}
		field.Set(slice)
	case reflect.Map:
		if field.Type().Key().Kind() != reflect.String || field.Type().Elem().Kind() != reflect.String {
			return fmt.Errorf("unsupported map type %s", field.Type())
		}
		m := reflect.MakeMap(field.Type())
		for _, pair := range splitList(value) {
			k, v, ok := strings.Cut(pair, "=")
			if !ok {
				return fmt.Errorf("map entry %q is not key=value", pair)
			}
			m.SetMapIndex(
				reflect.ValueOf(strings.TrimSpace(k)).Convert(field.Type().Key()),
				reflect.ValueOf(strings.TrimSpace(v)).Convert(field.Type().Elem()),
			)
		}
		field.Set(m)
	default:
		return fmt.Errorf("unsupported field type %s", field.Kind())
	}
	return nil
}

func splitList(value string) []string {
	if strings.TrimSpace(value) == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}
