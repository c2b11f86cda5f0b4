package model

import (
	"encoding/json"
	"regexp"
	"strings"

	"github.com/pkg/errors"
)

var trailingComma = regexp.MustCompile(`,\s*([\]}])`)

// decodeReply decodes a model reply into v. Replies are often wrapped in a
// Markdown code fence, carry trailing commas, or contain raw newlines inside
// strings; each of those is repaired before giving up.
func decodeReply(reply string, v any) error {
	body := stripFence(reply)
	if body == "" {
		return errors.Wrap(ErrMalformedResponse, "empty reply")
	}

	err := json.Unmarshal([]byte(body), v)
	if err == nil {
		return nil
	}
	repaired := escapeControlChars(trailingComma.ReplaceAllString(body, "$1"))
	if err2 := json.Unmarshal([]byte(repaired), v); err2 == nil {
		return nil
	}
	return errors.Wrapf(ErrMalformedResponse, "%v", err)
}

// stripFence removes a ```json fence and any prose around the outermost JSON
// object.
func stripFence(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```") {
		parts := strings.SplitN(s, "```", 3)
		s = strings.TrimSpace(strings.TrimPrefix(parts[1], "json"))
	}
	start := strings.IndexAny(s, "{[")
	if start < 0 {
		return s
	}
	end := strings.LastIndexAny(s, "}]")
	if end < start {
		return s[start:]
	}
	return s[start : end+1]
}

// escapeControlChars escapes raw control characters that appear inside JSON
// string literals.
func escapeControlChars(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	inString, escaped := false, false
	for _, r := range s {
		switch {
		case escaped:
			escaped = false
		case inString && r == '\\':
			escaped = true
		case r == '"':
			inString = !inString
		case inString && r == '\n':
			b.WriteString(`\n`)
			continue
		case inString && r == '\r':
			b.WriteString(`\r`)
			continue
		case inString && r == '\t':
			b.WriteString(`\t`)
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
