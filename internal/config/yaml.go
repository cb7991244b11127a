package config

import (
	"fmt"
	"io"
	"strings"

	"github.com/alecthomas/kong"
	"gopkg.in/yaml.v3"
)

// YAMLLoader is a kong.ConfigurationLoader reading flat YAML documents keyed by
// flag name, for example:
//
//	api-url: https://api.example.com
//	refresh-interval: 20m
//
// Keys may use dashes or underscores. Flags and environment variables take precedence.
func YAMLLoader(r io.Reader) (kong.Resolver, error) {
	values := map[string]any{}
	if err := yaml.NewDecoder(r).Decode(&values); err != nil && err != io.EOF {
		return nil, fmt.Errorf("failed to decode config file: %w", err)
	}

	normalised := make(map[string]any, len(values))
	for k, v := range values {
		normalised[strings.ReplaceAll(k, "_", "-")] = v
	}

	return kong.ResolverFunc(func(_ *kong.Context, _ *kong.Path, flag *kong.Flag) (any, error) {
		v, ok := normalised[flag.Name]
		if !ok {
			return nil, nil
		}
		switch v := v.(type) {
		case []any:
			parts := make([]string, 0, len(v))
			for _, item := range v {
				parts = append(parts, fmt.Sprint(item))
			}
			return strings.Join(parts, ","), nil
		default:
			return fmt.Sprint(v), nil
		}
	}), nil
}
