// Package metrics holds the service Prometheus collectors.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Submission outcomes.
const (
	OutcomeOK          = "ok"
	OutcomeHoneypot    = "honeypot"
	OutcomeInvalid     = "invalid"
	OutcomeChallenge   = "challenge_failed"
	OutcomeRateLimited = "rate_limited"
	OutcomeStoreError  = "store_error"
	OutcomeEmailError  = "email_error"
	OutcomeBadLink     = "invalid_link"
	OutcomeError       = "error"
)

// Rate-limit decisions.
const (
	DecisionAllow = "allow"
	DecisionDeny  = "deny"
	DecisionError = "error"
)

var (
	Submissions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "leadgate_submissions_total",
		Help: "Form submissions and token redemptions by flow and outcome",
	}, []string{"flow", "outcome"})

	RateLimitDecisions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "leadgate_ratelimit_decisions_total",
		Help: "Rate limiter decisions by backend",
	}, []string{"backend", "decision"})

	EmailsSent = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "leadgate_emails_total",
		Help: "Outbound emails by template and result",
	}, []string{"kind", "result"})
)

// Decision maps an allow flag to its label.
func Decision(allowed bool) string {
	if allowed {
		return DecisionAllow
	}
	return DecisionDeny
}
