package config

import (
	"reflect"
	"strings"
	"sync"
)

// EnvMapping ties an environment variable to a dotted config path.
type EnvMapping struct {
	EnvVar     string
	ConfigPath string
	Sensitive  bool
}

var (
	cachedMappings []EnvMapping
	mappingsOnce   sync.Once
)

// GenerateEnvMappings walks the `env` struct tags of Config.
func GenerateEnvMappings() []EnvMapping {
	mappingsOnce.Do(func() {
		cachedMappings = extractMappings(reflect.TypeFor[Config](), "")
	})
	return cachedMappings
}

func extractMappings(t reflect.Type, prefix string) []EnvMapping {
	var mappings []EnvMapping
	for field := range fields(t) {
		path := joinPath(prefix, field.Tag.Get("koanf"))
		if env := field.Tag.Get("env"); env != "" && env != "-" {
			mappings = append(mappings, EnvMapping{
				EnvVar:     env,
				ConfigPath: path,
				Sensitive:  isSensitiveField(field),
			})
		}
		if isSection(field.Type) {
			mappings = append(mappings, extractMappings(field.Type, path)...)
		}
	}
	return mappings
}

// GenerateEnvToConfigMap maps each environment variable to its config path.
func GenerateEnvToConfigMap() map[string]string {
	mappings := GenerateEnvMappings()
	result := make(map[string]string, len(mappings))
	for _, m := range mappings {
		result[m.EnvVar] = m.ConfigPath
	}
	return result
}

func GetEnvVarForConfigPath(configPath string) string {
	for _, m := range GenerateEnvMappings() {
		if m.ConfigPath == configPath {
			return m.EnvVar
		}
	}
	return ""
}

// IsSensitiveConfigPath reports whether the value at configPath is a secret.
func IsSensitiveConfigPath(configPath string) bool {
	t := reflect.TypeFor[Config]()
	parts := strings.Split(configPath, ".")
	for i, part := range parts {
		field, ok := fieldByKoanf(t, part)
		if !ok {
			return false
		}
		if i == len(parts)-1 {
			return isSensitiveField(field)
		}
		if !isSection(field.Type) {
			return false
		}
		t = field.Type
	}
	return false
}

func fields(t reflect.Type) func(func(reflect.StructField) bool) {
	return func(yield func(reflect.StructField) bool) {
		for i := range t.NumField() {
			field := t.Field(i)
			tag := field.Tag.Get("koanf")
			if !field.IsExported() || tag == "" || tag == "-" {
				continue
			}
			if !yield(field) {
				return
			}
		}
	}
}

func fieldByKoanf(t reflect.Type, key string) (reflect.StructField, bool) {
	for field := range fields(t) {
		if field.Tag.Get("koanf") == key {
			return field, true
		}
	}
	return reflect.StructField{}, false
}

func isSection(t reflect.Type) bool {
	return t.Kind() == reflect.Struct && t.PkgPath() != "time"
}

func isSensitiveField(field reflect.StructField) bool {
	return field.Type == reflect.TypeFor[SensitiveString]() || field.Tag.Get("sensitive") == "true"
}

func joinPath(prefix, key string) string {
	if prefix == "" {
		return key
	}
	return prefix + "." + key
}
