package flow

import (
	"errors"
	"strings"
)

// Intent is the validated result of the per-turn classification call.
type Intent int

const (
	// IntentTherapy is an ordinary therapeutic message.
	IntentTherapy Intent = iota + 1
	// IntentCrisis indicates possible self-harm or harm to others.
	IntentCrisis
	// IntentOffTopic is an irrelevant or role-break attempt.
	IntentOffTopic
)

// ErrAmbiguousIntent is returned when the classifier's free-text output
// contains none of the expected category tokens.
var ErrAmbiguousIntent = errors.New("classifier output contains no category token")

// String returns the category name for logging.
func (i Intent) String() string {
	switch i {
	case IntentTherapy:
		return "therapy"
	case IntentCrisis:
		return "crisis"
	case IntentOffTopic:
		return "off-topic"
	default:
		return "unknown"
	}
}

// ParseIntent validates the classifier's raw output against the expected
// token set. Matching is by substring, with crisis checked first, so outputs
// like "2." or "Category: 3" still route correctly; the classifier is
// free-text and cannot be held to exact equality.
func ParseIntent(raw string) (Intent, error) {
	switch {
	case strings.Contains(raw, "2"):
		return IntentCrisis, nil
	case strings.Contains(raw, "3"):
		return IntentOffTopic, nil
	case strings.Contains(raw, "1"):
		return IntentTherapy, nil
	default:
		return IntentTherapy, ErrAmbiguousIntent
	}
}

// shouldEnd interprets the end-of-conversation check output, which is
// constrained to {0,1}.
func shouldEnd(raw string) bool {
	return strings.Contains(raw, "1")
}
