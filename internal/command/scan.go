package command

import "strings"

// MatchBrace returns the index of the '}' that closes the '{' at s[open].
// Braces inside double-quoted strings are ignored, and a backslash inside
// a string escapes the next byte, so `"a \" }"` does not close anything.
// ok is false when s[open] is not '{' or the object is never closed.
func MatchBrace(s string, open int) (end int, ok bool) {
	if open < 0 || open >= len(s) || s[open] != '{' {
		return -1, false
	}
	depth := 0
	inString := false
	escaped := false
	for i := open; i < len(s); i++ {
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
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return i, true
			}
		}
	}
	return -1, false
}

// payloadStart finds the '{' that opens the payload after a marker ending
// at from. Only whitespace and a Markdown code fence opener (``` or
// ```json) may sit between the marker and the brace. fenced reports
// whether a fence was skipped.
func payloadStart(s string, from int) (open int, fenced bool) {
	i := skipSpace(s, from)
	if strings.HasPrefix(s[i:], "```") {
		fenced = true
		i += 3
		for i < len(s) && isLetter(s[i]) {
			i++
		}
		i = skipSpace(s, i)
	}
	if i < len(s) && s[i] == '{' {
		return i, fenced
	}
	return -1, fenced
}

// fenceClose returns the index just past a closing ``` that follows from
// after optional whitespace, or from when there is none.
func fenceClose(s string, from int) int {
	i := skipSpace(s, from)
	if strings.HasPrefix(s[i:], "```") {
		return i + 3
	}
	return from
}

func skipSpace(s string, i int) int {
	for i < len(s) && (s[i] == ' ' || s[i] == '\t' || s[i] == '\n' || s[i] == '\r') {
		i++
	}
	return i
}

func isLetter(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}
