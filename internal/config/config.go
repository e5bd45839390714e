package config

import (
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"unicode"

	"github.com/pelletier/go-toml/v2"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// envPrefix namespaces every environment override.
const envPrefix = "ARDUCAM_"

// LoadConfig fills opts from a TOML file and environment variables.
// Precedence is CLI flags, then environment, then the file: a field
// tagged both ways takes the env value when both are set, and fields
// the operator set on the command line are never touched. The file
// path comes from the struct's Config field; a missing file is fine.
func LoadConfig(opts any, cmd *cobra.Command) error {
	v := reflect.ValueOf(opts).Elem()
	t := v.Type()

	fromCLI := changedFlags(cmd)
	tree, err := readTree(configPath(v, t))
	if err != nil {
		return err
	}

	for i := 0; i < v.NumField(); i++ {
		field := v.Field(i)
		meta := t.Field(i)

		if fromCLI[flagName(meta.Name)] {
			continue
		}

		// Environment beats the file, so it is applied second.
		if key := meta.Tag.Get("toml"); key != "" && tree != nil {
			if value := lookupPath(tree, key); value != nil {
				assign(field, value)
			}
		}
		if key := meta.Tag.Get("env"); key != "" {
			if raw := os.Getenv(envPrefix + key); raw != "" {
				assignString(field, raw)
			}
		}
	}

	return nil
}

// changedFlags reports which flags were explicitly set on the command line.
func changedFlags(cmd *cobra.Command) map[string]bool {
	set := make(map[string]bool)
	if cmd == nil {
		return set
	}
	cmd.Flags().VisitAll(func(f *pflag.Flag) {
		if f.Changed {
			set[f.Name] = true
		}
	})
	return set
}

// configPath pulls the file path out of the struct's Config field.
func configPath(v reflect.Value, t reflect.Type) string {
	for i := 0; i < v.NumField(); i++ {
		if t.Field(i).Name == "Config" {
			return v.Field(i).String()
		}
	}
	return ""
}

// readTree parses the TOML file into a nested map. A missing or
// unreadable file yields a nil tree so defaults and env vars still apply.
func readTree(path string) (map[string]any, error) {
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil
	}
	var tree map[string]any
	if err := toml.Unmarshal(data, &tree); err != nil {
		return nil, fmt.Errorf("failed to parse TOML config: %w", err)
	}
	return tree, nil
}

// flagName converts a field name to the kebab-case flag the CLI layer
// derives from it. Acronym runs stay together: "ShutterUS" becomes
// "shutter-us", not "shutter-u-s".
func flagName(field string) string {
	runes := []rune(field)
	var b strings.Builder
	for i, r := range runes {
		if i > 0 && unicode.IsUpper(r) {
			prevLower := !unicode.IsUpper(runes[i-1])
			nextLower := i+1 < len(runes) && unicode.IsLower(runes[i+1])
			if prevLower || nextLower {
				b.WriteByte('-')
			}
		}
		b.WriteRune(unicode.ToLower(r))
	}
	return b.String()
}

// lookupPath walks dot-separated keys through nested TOML tables.
func lookupPath(tree map[string]any, path string) any {
	keys := strings.Split(path, ".")
	for _, key := range keys[:len(keys)-1] {
		next, ok := tree[key].(map[string]any)
		if !ok {
			return nil
		}
		tree = next
	}
	return tree[keys[len(keys)-1]]
}

// assign stores a decoded TOML value into the field. go-toml hands
// integers back as int64, so every signed int width funnels through
// SetInt.
func assign(field reflect.Value, value any) {
	if !field.CanSet() {
		return
	}

	switch field.Kind() {
	case reflect.String:
		if s, ok := value.(string); ok {
			field.SetString(s)
		}
	case reflect.Bool:
		if b, ok := value.(bool); ok {
			field.SetBool(b)
		}
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		switch n := value.(type) {
		case int64:
			field.SetInt(n)
		case int:
			field.SetInt(int64(n))
		}
	case reflect.Float32, reflect.Float64:
		switch n := value.(type) {
		case float64:
			field.SetFloat(n)
		case int64:
			field.SetFloat(float64(n))
		}
	case reflect.Slice:
		if field.Type().Elem().Kind() != reflect.String {
			return
		}
		arr, ok := value.([]any)
		if !ok {
			return
		}
		out := make([]string, 0, len(arr))
		for _, item := range arr {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		field.Set(reflect.ValueOf(out))
	}
}

// assignString stores an environment value into the field, parsed per
// the field's kind. Slices split on commas.
func assignString(field reflect.Value, raw string) {
	if !field.CanSet() {
		return
	}

	switch field.Kind() {
	case reflect.String:
		field.SetString(raw)
	case reflect.Bool:
		if b, err := strconv.ParseBool(raw); err == nil {
			field.SetBool(b)
		}
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		if n, err := strconv.ParseInt(raw, 10, 64); err == nil {
			field.SetInt(n)
		}
	case reflect.Float32, reflect.Float64:
		if f, err := strconv.ParseFloat(raw, 64); err == nil {
			field.SetFloat(f)
		}
	case reflect.Slice:
		if field.Type().Elem().Kind() != reflect.String {
			return
		}
		parts := strings.Split(raw, ",")
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
		}
		field.Set(reflect.ValueOf(parts))
	}
}
