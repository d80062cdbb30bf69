// internal/feedback/tag.go
package feedback

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"discord-feedback-bot/internal/models"
)

// ErrMalformedReference is returned when the tag attached to a rendered
// candidate cannot be parsed back into a (prompt, response) pair.
var ErrMalformedReference = errors.New("malformed reference")

var tagPattern = regexp.MustCompile(`^Prompt: (\d+) \| Response: (\d+)$`)

// FormatTag renders the machine-readable reference carried by every posted
// candidate.
func FormatTag(promptID, responseID uint) string {
	return fmt.Sprintf("Prompt: %d | Response: %d", promptID, responseID)
}

func ParseTag(tag string) (promptID, responseID uint, err error) {
	m := tagPattern.FindStringSubmatch(strings.TrimSpace(tag))
	if m == nil {
		return 0, 0, fmt.Errorf("%w: %q", ErrMalformedReference, tag)
	}

	p, err := strconv.ParseUint(m[1], 10, 0)
	if err != nil || p == 0 {
		return 0, 0, fmt.Errorf("%w: bad prompt id in %q", ErrMalformedReference, tag)
	}
	r, err := strconv.ParseUint(m[2], 10, 0)
	if err != nil || r == 0 {
		return 0, 0, fmt.Errorf("%w: bad response id in %q", ErrMalformedReference, tag)
	}

	return uint(p), uint(r), nil
}

// LikeSymbols are the reactions counted as approval. Every other reaction
// is a dislike.
var LikeSymbols = map[string]bool{
	"👍":  true,
	"❤️": true,
	"❤":  true,
	"🔥":  true,
}

// SeedSymbols are added to every posted candidate as reaction affordances.
var SeedSymbols = []string{"👍", "👎", "❤️", "🤔"}

func ClassifySymbol(symbol string) models.FeedbackKind {
	if LikeSymbols[symbol] {
		return models.FeedbackLike
	}
	return models.FeedbackDislike
}
