package helpers

import (
	"errors"
	"strings"
)

// ErrNoJSON is returned by ExtractJSON when the input carries no JSON value.
var ErrNoJSON = errors.New("no balanced JSON object/array found")

// ExtractJSON returns the first complete JSON object or array in s. Model
// replies often wrap JSON in a ```json fence or surround it with prose; both
// are tolerated.
func ExtractJSON(s string) (string, error) {
	s = strings.TrimPrefix(strings.TrimSpace(s), "\uFEFF")
	if inner, ok := unwrapFence(s); ok {
		s = strings.TrimSpace(inner)
	}
	for i := 0; i < len(s); i++ {
		if s[i] != '{' && s[i] != '[' {
			continue
		}
		if end, ok := matchingClose(s, i); ok {
			return s[i : end+1], nil
		}
	}
	return "", ErrNoJSON
}

// unwrapFence returns the body of a fenced block when s starts with ``` or ~~~.
func unwrapFence(s string) (string, bool) {
	var fence string
	switch {
	case strings.HasPrefix(s, "```"):
		fence = "```"
	case strings.HasPrefix(s, "~~~"):
		fence = "~~~"
	default:
		return "", false
	}
	rest := s[len(fence):]
	nl := strings.IndexByte(rest, '\n')
	if nl == -1 {
		return "", false
	}
	rest = rest[nl+1:]
	end := strings.Index(rest, fence)
	if end == -1 {
		return "", false
	}
	return rest[:end], true
}

// matchingClose finds the index closing the value opened at s[start], skipping
// brackets inside string literals.
func matchingClose(s string, start int) (int, bool) {
	var (
		stack    = []byte{s[start]}
		inString bool
		escaped  bool
	)
	for i := start + 1; i < len(s); i++ {
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
			top := stack[len(stack)-1]
			if (top == '{' && c != '}') || (top == '[' && c != ']') {
				return 0, false
			}
			stack = stack[:len(stack)-1]
			if len(stack) == 0 {
				return i, true
			}
		}
	}
	return 0, false
}
