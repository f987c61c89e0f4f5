// Package memo parses submission notes attached to contributions.
//
// The primary format tags the act explicitly:
//
//	ACT:<id>|<text>
//
// A multi-line variant puts ACT:<id> on the first line and the text on
// the following lines. Anything else is treated as free text and left to
// the matcher's best-match scan.
package memo

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// MaxTextBytes caps the submission text, matching the ledger's memo field.
const MaxTextBytes = 512

var (
	singleLineRe = regexp.MustCompile(`(?is)^ACT:(\d+)\|(.+)$`)
	firstLineRe  = regexp.MustCompile(`(?i)^ACT:(\d+)$`)
	letterRe     = regexp.MustCompile(`[a-zA-Z]`)
)

// Parsed is the outcome of parsing one memo. ActID is zero when the memo
// carried no explicit act tag.
type Parsed struct {
	ActID    int
	Text     string
	Explicit bool
}

// Parse extracts the act reference and submission text from a memo.
// Free-text memos come back with ActID 0 and the whole memo as text.
func Parse(raw string) Parsed {
	trimmed := strings.TrimSpace(raw)

	if m := singleLineRe.FindStringSubmatch(trimmed); m != nil {
		id, err := strconv.Atoi(m[1])
		if err == nil {
			return Parsed{ActID: id, Text: Clean(m[2]), Explicit: true}
		}
	}

	// Multi-line: ACT:<id> on the first line, text on the rest.
	if idx := strings.IndexByte(trimmed, '\n'); idx > 0 {
		first := strings.TrimSpace(trimmed[:idx])
		rest := strings.TrimSpace(trimmed[idx+1:])
		if m := firstLineRe.FindStringSubmatch(first); m != nil && rest != "" {
			id, err := strconv.Atoi(m[1])
			if err == nil {
				return Parsed{ActID: id, Text: Clean(rest), Explicit: true}
			}
		}
	}

	return Parsed{Text: Clean(trimmed)}
}

// LooksLikeSubmission is a cheap pre-filter applied before scoring:
// empty memos and obvious non-submissions are skipped without burning an
// embedding call.
func LooksLikeSubmission(raw string) bool {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return false
	}
	return letterRe.MatchString(trimmed)
}

// ValidateText checks submission text bounds before scoring.
func ValidateText(text string) error {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return fmt.Errorf("text is empty")
	}
	if len(trimmed) < 10 {
		return fmt.Errorf("text too short (minimum 10 characters)")
	}
	if len(trimmed) > MaxTextBytes {
		return fmt.Errorf("text too long (maximum %d bytes)", MaxTextBytes)
	}
	if !letterRe.MatchString(trimmed) {
		return fmt.Errorf("text must contain at least one letter")
	}
	return nil
}

// Clean collapses whitespace and enforces the byte cap.
func Clean(text string) string {
	cleaned := strings.Join(strings.Fields(text), " ")
	if len(cleaned) > MaxTextBytes {
		cleaned = cleaned[:MaxTextBytes]
	}
	return cleaned
}
