package ai

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strings"
	"unicode"
)

// Stage names the recovery step that produced a parsed object.
type Stage string

const (
	StageDirect  Stage = "direct"
	StageCleaned Stage = "cleaned"
	StageRescue  Stage = "rescue"
	StageText    Stage = "text"
)

// ErrUnrecoverable is returned when no structured stage yields a JSON object.
var ErrUnrecoverable = errors.New("response is not recoverable as a JSON object")

var (
	fenceRe         = regexp.MustCompile("```[A-Za-z]*")
	trailingCommaRe = regexp.MustCompile(`,\s*([}\]])`)
	unquotedKeyRe   = regexp.MustCompile(`([{,]\s*)([A-Za-z_][A-Za-z0-9_]*)\s*:`)
	bareValueRe     = regexp.MustCompile(`(:\s*)([A-Za-z][^,"{}\[\]:]*?)(\s*[,}\]])`)
	whitespaceRe    = regexp.MustCompile(`\s+`)
)

// RecoverObject runs the structured stages in order and returns the first
// object that decodes. A later stage runs only when the earlier one failed.
func RecoverObject(raw string) (map[string]any, Stage, error) {
	obj, err := decodeObject(raw)
	if err == nil {
		return obj, StageDirect, nil
	}

	cleaned := cleanResponse(raw)
	obj, err = decodeObject(cleaned)
	if err == nil {
		return obj, StageCleaned, nil
	}

	obj, err = decodeObject(rescueResponse(raw))
	if err == nil {
		return obj, StageRescue, nil
	}
	return nil, "", fmt.Errorf("%w: %v", ErrUnrecoverable, err)
}

// decodeObject accepts exactly one JSON object and nothing after it.
func decodeObject(s string) (map[string]any, error) {
	dec := json.NewDecoder(strings.NewReader(s))
	dec.UseNumber()
	var obj map[string]any
	if err := dec.Decode(&obj); err != nil {
		return nil, err
	}
	if obj == nil {
		return nil, errors.New("not an object")
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, errors.New("trailing data after object")
	}
	return obj, nil
}

// cleanResponse strips fences and comments, trims surrounding prose and drops
// trailing commas.
func cleanResponse(raw string) string {
	s := fenceRe.ReplaceAllString(raw, "")
	s = stripComments(s)
	s = strings.TrimSpace(s)
	if start := strings.Index(s, "{"); start >= 0 {
		if end := strings.LastIndex(s, "}"); end > start {
			s = s[start : end+1]
		}
	}
	return trailingCommaRe.ReplaceAllString(s, "$1")
}

// rescueResponse applies the aggressive repairs: printable-only text, single
// line, quoted keys and values, single quotes converted, truncation closed.
func rescueResponse(raw string) string {
	s := fenceRe.ReplaceAllString(raw, "")
	s = stripComments(s)
	s = strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return ' '
		}
		if !unicode.IsPrint(r) {
			return -1
		}
		return r
	}, s)
	s = whitespaceRe.ReplaceAllString(s, " ")
	if start := strings.Index(s, "{"); start >= 0 {
		s = s[start:]
	}
	s = convertSingleQuotes(s)
	s = outsideStrings(s, func(seg string) string {
		seg = unquotedKeyRe.ReplaceAllString(seg, `$1"$2":`)
		return bareValueRe.ReplaceAllStringFunc(seg, quoteBareValue)
	})
	s = closeTruncated(s)
	return trailingCommaRe.ReplaceAllString(s, "$1")
}

func quoteBareValue(m string) string {
	parts := bareValueRe.FindStringSubmatch(m)
	word := strings.TrimSpace(parts[2])
	switch word {
	case "true", "false", "null":
		return m
	}
	return parts[1] + `"` + word + `"` + parts[3]
}

// outsideStrings applies fn to each run of text between double-quoted string
// literals. Literals, including an unterminated one at the end, are copied as is.
func outsideStrings(s string, fn func(string) string) string {
	var sb strings.Builder
	start := 0
	for i := 0; i < len(s); i++ {
		if s[i] != '"' {
			continue
		}
		sb.WriteString(fn(s[start:i]))
		j := i + 1
		for escaped := false; j < len(s); j++ {
			if escaped {
				escaped = false
			} else if s[j] == '\\' {
				escaped = true
			} else if s[j] == '"' {
				break
			}
		}
		if j >= len(s) {
			sb.WriteString(s[i:])
			return sb.String()
		}
		sb.WriteString(s[i : j+1])
		i = j
		start = j + 1
	}
	sb.WriteString(fn(s[start:]))
	return sb.String()
}

// stripComments removes // and /* */ comments outside string literals.
func stripComments(s string) string {
	var sb strings.Builder
	inString, escaped := false, false
	for i := 0; i < len(s); i++ {
		c := s[i]
		if inString {
			sb.WriteByte(c)
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
		if c == '"' {
			inString = true
			sb.WriteByte(c)
			continue
		}
		if c == '/' && i+1 < len(s) {
			switch s[i+1] {
			case '/':
				for i < len(s) && s[i] != '\n' {
					i++
				}
				if i < len(s) {
					sb.WriteByte('\n')
				}
				continue
			case '*':
				end := strings.Index(s[i+2:], "*/")
				if end < 0 {
					return sb.String()
				}
				i += end + 3
				continue
			}
		}
		sb.WriteByte(c)
	}
	return sb.String()
}

// convertSingleQuotes rewrites 'text' literals outside double-quoted strings.
func convertSingleQuotes(s string) string {
	var sb strings.Builder
	inDouble, inSingle, escaped := false, false, false
	for _, r := range s {
		switch {
		case escaped:
			escaped = false
			sb.WriteRune(r)
		case r == '\\' && (inDouble || inSingle):
			escaped = true
			sb.WriteRune(r)
		case inDouble:
			if r == '"' {
				inDouble = false
			}
			sb.WriteRune(r)
		case inSingle:
			switch r {
			case '\'':
				inSingle = false
				sb.WriteByte('"')
			case '"':
				sb.WriteString(`\"`)
			default:
				sb.WriteRune(r)
			}
		case r == '"':
			inDouble = true
			sb.WriteRune(r)
		case r == '\'':
			inSingle = true
			sb.WriteByte('"')
		default:
			sb.WriteRune(r)
		}
	}
	return sb.String()
}

// closeTruncated cuts text after the outermost object closes, or closes an open
// string and every open brace and bracket when the text ends early.
func closeTruncated(s string) string {
	var stack []byte
	inString, escaped := false, false
	for i := 0; i < len(s); i++ {
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
			if len(stack) > 0 {
				stack = stack[:len(stack)-1]
			}
			if len(stack) == 0 {
				return s[:i+1]
			}
		}
	}
	if len(stack) == 0 {
		return s
	}

	out := s
	if inString {
		out += `"`
	}
	out = strings.TrimRight(out, " ")
	switch {
	case strings.HasSuffix(out, ":"):
		out += " null"
	case strings.HasSuffix(out, ","):
		out = strings.TrimSuffix(out, ",")
	}
	for i := len(stack) - 1; i >= 0; i-- {
		if stack[i] == '{' {
			out += "}"
		} else {
			out += "]"
		}
	}
	return out
}
