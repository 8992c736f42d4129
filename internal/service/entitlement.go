package service

import (
	"time"

	"github.com/xxxsen/likegate/internal/model"
)

type DecisionKind int

const (
	DecisionNeedsVerification DecisionKind = iota
	DecisionExpired
	DecisionRateLimited
	DecisionAuthorized
)

func (k DecisionKind) String() string {
	switch k {
	case DecisionNeedsVerification:
		return "needs_verification"
	case DecisionExpired:
		return "expired"
	case DecisionRateLimited:
		return "rate_limited"
	case DecisionAuthorized:
		return "authorized"
	default:
		return "unknown"
	}
}

type Decision struct {
	Kind       DecisionKind
	RetryAfter time.Duration
}

// Policy decides whether a like may be sent now. Cooldown is the minimum gap
// between two successful actions of a non-privileged user; FreshnessGrace is
// how long a completed verification stays usable.
type Policy struct {
	Cooldown       time.Duration
	FreshnessGrace time.Duration
}

func NewPolicy(cooldown, freshnessGrace time.Duration) Policy {
	return Policy{Cooldown: cooldown, FreshnessGrace: freshnessGrace}
}

// Decide is pure: rec is the latest verification for the (user, target)
// pair and profile the user's profile, either may be nil.
func (p Policy) Decide(rec *model.Verification, profile *model.Profile, now time.Time) Decision {
	nowUnix := now.Unix()
	if rec == nil {
		return Decision{Kind: DecisionNeedsVerification}
	}
	if !rec.Verified {
		if rec.IsExpired(nowUnix) {
			return Decision{Kind: DecisionExpired}
		}
		return Decision{Kind: DecisionNeedsVerification}
	}
	if now.Sub(time.Unix(rec.VerifiedAt, 0)) > p.FreshnessGrace {
		return Decision{Kind: DecisionNeedsVerification}
	}
	if profile != nil && profile.Privileged {
		return Decision{Kind: DecisionAuthorized}
	}
	if profile == nil || profile.LastActionAt == 0 {
		return Decision{Kind: DecisionAuthorized}
	}
	elapsed := now.Sub(time.Unix(profile.LastActionAt, 0))
	if elapsed < p.Cooldown {
		return Decision{Kind: DecisionRateLimited, RetryAfter: p.Cooldown - elapsed}
	}
	return Decision{Kind: DecisionAuthorized}
}
