package sender

import "strings"

// BounceClass partitions transport failures into retryable and permanent.
type BounceClass int

const (
	// BounceSoft is a transient failure worth retrying.
	BounceSoft BounceClass = iota
	// BounceHard is a permanent failure; the attempt fails immediately and
	// counts against the campaign's bounce rate.
	BounceHard
)

func (c BounceClass) String() string {
	if c == BounceHard {
		return "hard"
	}
	return "soft"
}

var hardBouncePatterns = []string{
	"user unknown",
	"no such user",
	"invalid recipient",
	"recipient address rejected",
	"user not found",
	"domain not found",
	"no mx record",
	"domain does not exist",
}

var softBouncePatterns = []string{
	"mailbox full",
	"quota exceeded",
	"insufficient storage",
	"temporarily deferred",
	"try again later",
	"temporary failure",
	"rate limit",
	"too many emails",
	"sending quota",
}

// Classify categorizes an SMTP error string. Matching is case-insensitive
// substring; anything unrecognized is treated as soft so it gets retried.
func Classify(errMsg string) BounceClass {
	msg := strings.ToLower(errMsg)
	for _, p := range hardBouncePatterns {
		if strings.Contains(msg, p) {
			return BounceHard
		}
	}
	for _, p := range softBouncePatterns {
		if strings.Contains(msg, p) {
			return BounceSoft
		}
	}
	return BounceSoft
}
