// Package expand substitutes ${env.KEY} references in configuration text.
package expand

import (
	"os"
	"strings"
	"unicode"
)

const envPrefix = "${env."

// Env replaces every ${env.KEY} in value with the environment variable KEY.
// Keys are non-empty runs of letters, digits and '_'.  References to unset
// variables and malformed references are kept literally.
func Env(value string) string {
	return env(value, os.LookupEnv)
}

func env(value string, lookup func(string) (string, bool)) string {
	if !strings.Contains(value, envPrefix) {
		return value
	}
	var sb strings.Builder
	for {
		idx := strings.Index(value, envPrefix)
		if idx < 0 {
			sb.WriteString(value)
			return sb.String()
		}
		sb.WriteString(value[:idx])
		rest := value[idx+len(envPrefix):]
		end := strings.IndexByte(rest, '}')
		if end < 0 {
			sb.WriteString(value[idx:])
			return sb.String()
		}
		key := rest[:end]
		if !isKey(key) {
			sb.WriteString(envPrefix)
			value = rest
			continue
		}
		if v, ok := lookup(key); ok {
			sb.WriteString(v)
		} else {
			sb.WriteString(value[idx : idx+len(envPrefix)+end+1])
		}
		value = rest[end+1:]
	}
}

func isKey(key string) bool {
	if key == "" {
		return false
	}
	for _, r := range key {
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '_' {
			return false
		}
	}
	return true
}
