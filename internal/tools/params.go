package tools

import (
	"fmt"
	"strings"
)

// Argument names shared by several tools.
const (
	ArgClusterID = "clusterId"
	ArgNamespace = "namespace"
	ArgPod       = "pod"
	ArgContainer = "container"
	ArgStreamID  = "streamId"
	ArgID        = "id"
	ArgPath      = "path"
)

// RequiredString returns the non-blank string argument key.
func RequiredString(args map[string]any, key string) (string, error) {
	raw, ok := args[key]
	if !ok || raw == nil {
		return "", fmt.Errorf("%s is required", key)
	}
	s, ok := raw.(string)
	if !ok {
		return "", fmt.Errorf("%s must be a string", key)
	}
	if strings.TrimSpace(s) == "" {
		return "", fmt.Errorf("%s is required", key)
	}
	return s, nil
}

// OptionalString returns the string argument key, or "" when it is absent
// or not a string.
func OptionalString(args map[string]any, key string) string {
	s, _ := args[key].(string)
	return s
}

// StringSlice returns the array argument key. Absent means nil; every
// element must be a string.
func StringSlice(args map[string]any, key string) ([]string, error) {
	raw, ok := args[key]
	if !ok || raw == nil {
		return nil, nil
	}
	switch v := raw.(type) {
	case []string:
		return v, nil
	case []any:
		out := make([]string, 0, len(v))
		for i, item := range v {
			s, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("%s[%d] must be a string", key, i)
			}
			out = append(out, s)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("%s must be an array of strings", key)
	}
}
