// Package config loads struct configuration from an optional YAML file overlaid
// with environment variables. Fields are described with struct tags:
//
//	env:"NAME"        environment variable to read
//	default:"value"   value applied when the field is still zero
//	required:"true"   field must be non-zero after loading (ignored when default is set)
package config

import (
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/hashicorp/go-multierror"
	"gopkg.in/yaml.v3"
)

var durationType = reflect.TypeOf(time.Duration(0))

// Validator interface allows config structs to implement custom validation logic.
// It is called after files, environment variables and defaults have been applied.
type Validator interface {
	Validate() error
}

// setFromString assigns raw to field according to the field's type.
func setFromString(field reflect.Value, raw string) error {
	if field.Type() == durationType {
		d, err := time.ParseDuration(raw)
		if err != nil {
			return fmt.Errorf("failed to convert %s to duration: %v", raw, err)
		}
		field.SetInt(int64(d))
		return nil
	}

	switch field.Kind() {
	case reflect.String:
		field.SetString(raw)
	case reflect.Int, reflect.Int32, reflect.Int64:
		v, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return fmt.Errorf("failed to convert %s to int: %v", raw, err)
		}
		field.SetInt(v)
	case reflect.Float32, reflect.Float64:
		v, err := strconv.ParseFloat(raw, field.Type().Bits())
		if err != nil {
			return fmt.Errorf("failed to convert %s to float: %v", raw, err)
		}
		field.SetFloat(v)
	case reflect.Bool:
		v, err := strconv.ParseBool(raw)
		if err != nil {
			return fmt.Errorf("failed to convert %s to bool: %v", raw, err)
		}
		field.SetBool(v)
	case reflect.Slice:
		if field.Type().Elem().Kind() != reflect.String {
			return fmt.Errorf("unsupported slice type %s", field.Type())
		}
		var values []string
		for _, v := range strings.Split(raw, ",") {
			if v = strings.TrimSpace(v); v != "" {
				values = append(values, v)
			}
		}
		slice := reflect.MakeSlice(field.Type(), len(values), len(values))
		for i, v := range values {
			slice.Index(i).SetString(v)
		}
		field.Set(slice)
	default:
		return fmt.Errorf("unsupported kind %s", field.Kind())
	}
	return nil
}

// applyEnv walks the struct and assigns values from env tags. It returns the set
// of fields that were explicitly provided so defaults don't overwrite them.
func applyEnv(val reflect.Value, set map[string]bool) error {
	typ := val.Type()
	for i := 0; i < val.NumField(); i++ {
		field := val.Field(i)
		fieldType := typ.Field(i)
		if !fieldType.IsExported() {
			continue
		}

		if field.Kind() == reflect.Struct && field.Type() != durationType {
			if err := applyEnv(field, set); err != nil {
				return err
			}
			continue
		}

		tag := fieldType.Tag.Get("env")
		if tag == "" {
			continue
		}
		raw, ok := os.LookupEnv(tag)
		if !ok || raw == "" {
			continue
		}
		if err := setFromString(field, raw); err != nil {
			return fmt.Errorf("env %s: %w", tag, err)
		}
		set[typ.Name()+"."+fieldType.Name] = true
	}
	return nil
}

func applyDefaultsAndRequired(val reflect.Value, set map[string]bool) error {
	var result error
	typ := val.Type()
	for i := 0; i < val.NumField(); i++ {
		field := val.Field(i)
		fieldType := typ.Field(i)
		if !fieldType.IsExported() {
			continue
		}

		if field.Kind() == reflect.Struct && field.Type() != durationType {
			if err := applyDefaultsAndRequired(field, set); err != nil {
				result = multierror.Append(result, err)
			}
			continue
		}

		defaultTag, hasDefault := fieldType.Tag.Lookup("default")
		required := strings.EqualFold(fieldType.Tag.Get("required"), "true") || fieldType.Tag.Get("required") == "1"

		if !field.IsZero() || set[typ.Name()+"."+fieldType.Name] {
			continue
		}
		if hasDefault && defaultTag != "" {
			if err := setFromString(field, defaultTag); err != nil {
				result = multierror.Append(result, fmt.Errorf("default for %s: %w", fieldType.Name, err))
			}
			continue
		}
		if required {
			result = multierror.Append(result, fmt.Errorf("required field env:%s / yaml:%s is missing",
				fieldType.Tag.Get("env"), fieldType.Tag.Get("yaml")))
		}
	}
	return result
}

// GetConfigFromEnvVars loads configuration from environment variables only.
//
//	var cfg MyConfig
//	err := GetConfigFromEnvVars(&cfg)
func GetConfigFromEnvVars[T any](dest *T) error {
	return finish(dest)
}

// GetConfig loads configuration from a YAML file first, then overlays environment
// variables. ${VAR} references in the file are expanded. If path is empty, only environment variables are used. If
// allowFileErrors is true, file read/parse errors fall back to env vars only.
func GetConfig[T any](dest *T, path string, allowFileErrors bool) error {
	if path == "" {
		return finish(dest)
	}
	data, err := os.ReadFile(path) //nolint:gosec // G304: operator-supplied config path
	if err != nil {
		if allowFileErrors {
			return finish(dest)
		}
		return fmt.Errorf("failed to read file: %w", err)
	}
	// ${VAR} placeholders are expanded before parsing; unset variables become empty.
	data = []byte(os.ExpandEnv(string(data)))
	if err := yaml.Unmarshal(data, dest); err != nil {
		if allowFileErrors {
			var zero T
			*dest = zero
			return finish(dest)
		}
		return fmt.Errorf("failed to unmarshal YAML: %w", err)
	}
	return finish(dest)
}

func finish[T any](dest *T) error {
	val := reflect.ValueOf(dest).Elem()
	if val.Kind() != reflect.Struct {
		return fmt.Errorf("config destination must be a struct, got %s", val.Kind())
	}

	set := make(map[string]bool)
	if err := applyEnv(val, set); err != nil {
		return err
	}
	if err := applyDefaultsAndRequired(val, set); err != nil {
		var zero T
		*dest = zero
		return err
	}

	if v, ok := any(dest).(Validator); ok {
		if err := v.Validate(); err != nil {
			return fmt.Errorf("validation failed: %w", err)
		}
	} else if v, ok := any(*dest).(Validator); ok {
		if err := v.Validate(); err != nil {
			return fmt.Errorf("validation failed: %w", err)
		}
	}
	return nil
}
