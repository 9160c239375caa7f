package session

import (
	"errors"
	"strings"
	"unicode/utf8"

	"github.com/kursadbilgin/attendance-notifier/internal/domain"
)

const maxDetailLength = 500

// OutcomeClassifier maps a terminal dispatch error onto the failure taxonomy
// and returns the diagnostic detail to store with it.
type OutcomeClassifier interface {
	Classify(err error) (domain.FailureReason, string)
}

// Matcher recognizes one failure reason.
type Matcher struct {
	Reason domain.FailureReason
	Match  func(err error) bool
}

// DefaultRejectionSignatures are texts the channel shows when it refuses a
// contact outright.
var DefaultRejectionSignatures = []string{
	"phone number shared via url is invalid",
	"invalid phone number",
	"not on whatsapp",
	"number is not registered",
}

// SignatureClassifier tries matchers in order; the first match wins and
// anything unmatched is a session fault.
type SignatureClassifier struct {
	matchers []Matcher
}

var _ OutcomeClassifier = (*SignatureClassifier)(nil)

func NewSignatureClassifier(matchers ...Matcher) *SignatureClassifier {
	if len(matchers) == 0 {
		matchers = DefaultMatchers(DefaultRejectionSignatures)
	}
	return &SignatureClassifier{matchers: matchers}
}

func DefaultMatchers(rejectionSignatures []string) []Matcher {
	return []Matcher{
		{Reason: domain.ReasonInvalidFormat, Match: func(err error) bool {
			return errors.Is(err, ErrInvalidFormat)
		}},
		{Reason: domain.ReasonChannelRejected, Match: func(err error) bool {
			return errors.Is(err, ErrChannelRejected) || containsAny(err, rejectionSignatures)
		}},
		{Reason: domain.ReasonNoSendAffordance, Match: func(err error) bool {
			return errors.Is(err, ErrNoSendAffordance)
		}},
		{Reason: domain.ReasonRetryExhausted, Match: func(err error) bool {
			var dispatchErr *DispatchError
			return errors.As(err, &dispatchErr) && dispatchErr.Attempts >= 2
		}},
	}
}

func (c *SignatureClassifier) Classify(err error) (domain.FailureReason, string) {
	if err == nil {
		return "", ""
	}

	detail := truncateDetail(err.Error())

	for _, m := range c.matchers {
		if m.Match != nil && m.Match(err) {
			return m.Reason, detail
		}
	}
	return domain.ReasonSessionFault, detail
}

func containsAny(err error, signatures []string) bool {
	text := strings.ToLower(err.Error())
	for _, sig := range signatures {
		if sig != "" && strings.Contains(text, strings.ToLower(sig)) {
			return true
		}
	}
	return false
}

// truncateDetail cuts s to at most maxDetailLength bytes on a rune boundary.
func truncateDetail(s string) string {
	if len(s) <= maxDetailLength {
		return s
	}
	n := maxDetailLength
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
