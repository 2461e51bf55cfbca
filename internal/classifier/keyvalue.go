package classifier

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ParseKeyValue turns manual input such as
// "duration: 0 protocol_type: tcp service:http" into a feature map.
// Keys are separated from values by a colon, either attached to the key or
// to the value. Values become ints, then floats, then plain strings.
func ParseKeyValue(input string) (map[string]any, error) {
	parts := strings.Fields(input)
	if len(parts) == 0 {
		return nil, errors.New("input cannot be empty")
	}

	features := make(map[string]any, len(parts))
	for i := 0; i < len(parts); i++ {
		part := parts[i]
		switch {
		case strings.HasSuffix(part, ":"):
			if i+1 >= len(parts) {
				return nil, fmt.Errorf("missing value for key: %s", part)
			}
			i++
			features[strings.TrimSuffix(part, ":")] = parseValue(parts[i])
		case strings.Contains(part, ":"):
			key, value, _ := strings.Cut(part, ":")
			if key == "" {
				return nil, fmt.Errorf("invalid key-value format: %s", part)
			}
			features[key] = parseValue(value)
		default:
			return nil, fmt.Errorf("invalid format, missing colon separator: %s", part)
		}
	}
	return features, nil
}

func parseValue(value string) any {
	if n, err := strconv.Atoi(value); err == nil {
		return n
	}
	if f, err := strconv.ParseFloat(value, 64); err == nil {
		return f
	}
	return value
}
