package main

import (
	"fmt"
	"io"
	"sort"
	"strconv"

	"github.com/BurntSushi/toml"
)

// parseTOML is an ff.ConfigFileParseFunc for TOML config files. Top-level keys
// are flag names. Arrays set a flag once per element, for repeatable flags;
// tables aren't supported.
func parseTOML(r io.Reader, set func(name, value string) error) error {
	var m map[string]any
	if _, err := toml.NewDecoder(r).Decode(&m); err != nil {
		return fmt.Errorf("decode TOML: %w", err)
	}

	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		values, err := tomlValues(m[name])
		if err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
		for _, value := range values {
			if err := set(name, value); err != nil {
				return err
			}
		}
	}

	return nil
}

func tomlValues(v any) ([]string, error) {
	switch x := v.(type) {
	case []any:
		var values []string
		for _, elem := range x {
			s, err := tomlValue(elem)
			if err != nil {
				return nil, err
			}
			values = append(values, s)
		}
		return values, nil
	default:
		s, err := tomlValue(x)
		if err != nil {
			return nil, err
		}
		return []string{s}, nil
	}
}

func tomlValue(v any) (string, error) {
	switch x := v.(type) {
	case string:
		return x, nil
	case bool:
		return strconv.FormatBool(x), nil
	case int64:
		return strconv.FormatInt(x, 10), nil
	case float64:
		return strconv.FormatFloat(x, 'g', -1, 64), nil
	case fmt.Stringer: // dates and times
		return x.String(), nil
	default:
		return "", fmt.Errorf("unsupported value type %T", v)
	}
}
