package config

import (
	"fmt"
	"log/slog"
	"os"
	"reflect"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config mirrors a configuration struct as a tree of properties. Values are
// layered: user file > environment variable > default tag.
type Config struct {
	Ptr     reflect.Value
	Env     any
	File    any
	Default any

	name     string // lower case
	propsMap map[string]*Config
	props    []*Config
	tag      reflect.StructTag
}

func (config *Config) Get(key string) (v *Config) {
	if config.propsMap == nil {
		config.propsMap = make(map[string]*Config)
	}
	if v, ok := config.propsMap[key]; ok {
		return v
	}
	v = &Config{
		name: key,
	}
	config.propsMap[key] = v
	config.props = append(config.props, v)
	return v
}

func (config *Config) Has(key string) (ok bool) {
	if config.propsMap == nil {
		return false
	}
	_, ok = config.propsMap[strings.ToLower(key)]
	return ok
}

func (config *Config) GetValue() any {
	return config.Ptr.Interface()
}

// Desc returns the desc tag of the property.
func (config *Config) Desc() string {
	return config.tag.Get("desc")
}

// Parse reads default tags and environment variables. Environment variable
// names join the upper-cased prefix and field names with '_'.
func (config *Config) Parse(s any, prefix ...string) {
	var t reflect.Type
	var v reflect.Value
	if vv, ok := s.(reflect.Value); ok {
		t, v = vv.Type(), vv
	} else {
		t, v = reflect.TypeOf(s), reflect.ValueOf(s)
	}
	if t.Kind() == reflect.Pointer {
		t, v = t.Elem(), v.Elem()
	}

	config.Ptr = v
	config.Default = v.Interface()

	if l := len(prefix); l > 0 && t.Kind() != reflect.Struct {
		name := strings.ToLower(prefix[l-1])
		if tag := config.tag.Get("default"); tag != "" {
			v.Set(config.assign(name, tag))
			config.Default = v.Interface()
		}
		if envValue := os.Getenv(strings.Join(prefix, "_")); envValue != "" {
			v.Set(config.assign(name, envValue))
			config.Env = v.Interface()
		}
	}

	if t.Kind() == reflect.Struct {
		for i, j := 0, t.NumField(); i < j; i++ {
			ft, fv := t.Field(i), v.Field(i)
			if !ft.IsExported() {
				continue
			}
			name := strings.ToLower(ft.Name)
			if tag := ft.Tag.Get("yaml"); tag != "" {
				if tag == "-" {
					continue
				}
				name, _, _ = strings.Cut(tag, ",")
			}
			prop := config.Get(name)
			prop.tag = ft.Tag
			prop.Parse(fv, append(prefix, strings.ToUpper(ft.Name))...)
		}
	}
}

// ParseUserFile applies values from a user configuration file. Unknown keys
// are reported and ignored.
func (config *Config) ParseUserFile(conf map[string]any) {
	if conf == nil {
		return
	}
	config.File = conf
	for k, v := range conf {
		if !config.Has(k) {
			slog.Warn("unknown config key", "key", k)
			continue
		}
		if prop := config.Get(strings.ToLower(k)); prop.props != nil {
			if vmap, ok := v.(map[string]any); ok {
				prop.ParseUserFile(vmap)
			}
		} else {
			fv := prop.assign(k, v)
			prop.File = fv.Interface()
			prop.Ptr.Set(fv)
		}
	}
}

// GetMap returns the effective values as nested maps.
func (config *Config) GetMap() map[string]any {
	m := make(map[string]any)
	for k, v := range config.propsMap {
		if v.props != nil {
			if vv := v.GetMap(); vv != nil {
				m[k] = vv
			}
		} else if v.GetValue() != nil {
			m[k] = v.GetValue()
		}
	}
	if len(m) > 0 {
		return m
	}
	return nil
}

// assign converts v, a yaml scalar or an environment string, to the type of
// the property by round-tripping it through yaml.
func (config *Config) assign(k string, v any) reflect.Value {
	k = strings.ToLower(k)
	holder := reflect.New(reflect.StructOf([]reflect.StructField{
		{Name: strings.ToUpper(k), Type: config.Ptr.Type(), Tag: reflect.StructTag(`yaml:"` + k + `"`)},
	}))
	if v != nil {
		var out []byte
		if s, ok := v.(string); ok {
			out = []byte(fmt.Sprintf("%s: %s", k, s))
		} else {
			out, _ = yaml.Marshal(map[string]any{k: v})
		}
		if err := yaml.Unmarshal(out, holder.Interface()); err != nil {
			slog.Warn("invalid config value", "key", k, "value", v, "error", err)
		}
	}
	return holder.Elem().Field(0)
}
