package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"time"

	"github.com/golobby/cast"
	"github.com/golobby/config/v3/pkg/feeder"
)

// ErrInvalidStructure indicates the feed target is not a pointer to a struct.
var ErrInvalidStructure = errors.New("config: feed target must be a pointer to a struct")

// Feeder populates a configuration structure from one source.
type Feeder interface {
	Feed(structure any) error
}

// YAMLFeeder reads a YAML file.
type YAMLFeeder struct {
	feeder.Yaml
}

// NewYAMLFeeder creates a feeder for the YAML file at path.
func NewYAMLFeeder(path string) YAMLFeeder {
	return YAMLFeeder{feeder.Yaml{Path: path}}
}

func (y YAMLFeeder) String() string { return "yaml:" + y.Path }

// TOMLFeeder reads a TOML file.
type TOMLFeeder struct {
	feeder.Toml
}

// NewTOMLFeeder creates a feeder for the TOML file at path.
func NewTOMLFeeder(path string) TOMLFeeder {
	return TOMLFeeder{feeder.Toml{Path: path}}
}

func (t TOMLFeeder) String() string { return "toml:" + t.Path }

// FileFeeder picks a feeder from the file extension. Unknown extensions are
// read as YAML.
func FileFeeder(path string) Feeder {
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		return NewTOMLFeeder(path)
	}
	return NewYAMLFeeder(path)
}

// EnvPrefix is the default environment variable prefix.
const EnvPrefix = "APPCTX"

// EnvFeeder reads environment variables named PREFIX_TAG, where TAG is the
// field's env tag. Nested structs extend the name with their own env tag, so
// Actuator.Address is read from APPCTX_ACTUATOR_ADDRESS. Slices are comma
// separated. Unset and empty variables leave the field untouched.
type EnvFeeder struct {
	Prefix string
}

// NewEnvFeeder creates an env feeder with the given prefix; an empty prefix
// means EnvPrefix.
func NewEnvFeeder(prefix string) EnvFeeder {
	if prefix == "" {
		prefix = EnvPrefix
	}
	return EnvFeeder{Prefix: prefix}
}

func (f EnvFeeder) String() string { return "env:" + f.Prefix }

// Feed populates structure from the environment.
func (f EnvFeeder) Feed(structure any) error {
	rv := reflect.ValueOf(structure)
	if rv.Kind() != reflect.Pointer || rv.IsNil() || rv.Elem().Kind() != reflect.Struct {
		return ErrInvalidStructure
	}
	prefix := strings.ToUpper(f.Prefix)
	if prefix == "" {
		prefix = EnvPrefix
	}
	return fillStruct(rv.Elem(), prefix)
}

func fillStruct(rv reflect.Value, prefix string) error {
	rt := rv.Type()
	for i := 0; i < rv.NumField(); i++ {
		field := rv.Field(i)
		sf := rt.Field(i)
		tag, ok := sf.Tag.Lookup("env")
		if !ok || !field.CanSet() {
			continue
		}
		name := prefix + "_" + strings.ToUpper(tag)
		if field.Kind() == reflect.Struct {
			if err := fillStruct(field, name); err != nil {
				return err
			}
			continue
		}
		raw := os.Getenv(name)
		if raw == "" {
			continue
		}
		if err := setField(field, raw); err != nil {
			return fmt.Errorf("error in field '%s' (%s): %w", sf.Name, name, err)
		}
	}
	return nil
}

var durationType = reflect.TypeFor[time.Duration]()

func setField(field reflect.Value, raw string) error {
	switch {
	case field.Type() == durationType:
		d, err := time.ParseDuration(raw)
		if err != nil {
			return fmt.Errorf("cannot parse duration: %w", err)
		}
		field.SetInt(int64(d))
	case field.Kind() == reflect.Slice:
		parts := strings.Split(raw, ",")
		out := reflect.MakeSlice(field.Type(), 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p == "" {
				continue
			}
			v, err := cast.FromType(p, field.Type().Elem())
			if err != nil {
				return fmt.Errorf("cannot convert value to type %v: %w", field.Type().Elem(), err)
			}
			out = reflect.Append(out, reflect.ValueOf(v).Convert(field.Type().Elem()))
		}
		field.Set(out)
	default:
		v, err := cast.FromType(raw, field.Type())
		if err != nil {
			return fmt.Errorf("cannot convert value to type %v: %w", field.Type(), err)
		}
		field.Set(reflect.ValueOf(v).Convert(field.Type()))
	}
	return nil
}
