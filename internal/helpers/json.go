package helpers

import (
	"errors"
	"strings"
)

// ExtractJSON returns the first complete JSON object or array embedded in s.
// Model replies often wrap JSON in markdown fences or surround it with prose;
// both are tolerated. Braces inside string literals do not confuse the scan.
func ExtractJSON(s string) (string, error) {
	s = strings.TrimPrefix(strings.TrimSpace(s), "\ufeff")
	if inner, ok := unfence(s); ok {
		s = strings.TrimSpace(inner)
	}
	for i := 0; i < len(s); i++ {
		if s[i] == '{' || s[i] == '[' {
			if out, ok := balancedJSON(s, i); ok {
				return out, nil
			}
		}
	}
	return "", errors.New("no balanced JSON value found")
}

// unfence strips a leading markdown code fence, with or without a language
// tag, and returns the fenced body.
func unfence(s string) (string, bool) {
	for _, fence := range []string{"```", "~~~"} {
		if !strings.HasPrefix(s, fence) {
			continue
		}
		rest := s[len(fence):]
		nl := strings.IndexByte(rest, '\n')
		if nl < 0 {
			return "", false
		}
		rest = rest[nl+1:]
		if end := strings.Index(rest, fence); end >= 0 {
			return rest[:end], true
		}
		return "", false
	}
	return "", false
}

// balancedJSON extracts the JSON value opening at s[from]. Mismatched
// closers abort the scan so the caller can try the next opener.
func balancedJSON(s string, from int) (string, bool) {
	var stack []byte
	inString := false
	escaped := false
	for i := from; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{', '[':
			stack = append(stack, c)
		case '}', ']':
			open := byte('{')
			if c == ']' {
				open = '['
			}
			if len(stack) == 0 || stack[len(stack)-1] != open {
				return "", false
			}
			stack = stack[:len(stack)-1]
			if len(stack) == 0 {
				return s[from : i+1], true
			}
		}
	}
	return "", false
}
