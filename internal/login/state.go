// Package login drives the portal login and two-factor flow.
package login

import "fmt"

// State is a point in the login flow.
type State int

const (
	Start State = iota
	CredentialsEntered
	Submitted
	TwoFactorMethodSelected
	OtpEntered
	Completed
	Aborted
	ExternalError
)

var stateNames = map[State]string{
	Start:                   "Start",
	CredentialsEntered:      "CredentialsEntered",
	Submitted:               "Submitted",
	TwoFactorMethodSelected: "TwoFactorMethodSelected",
	OtpEntered:              "OtpEntered",
	Completed:               "Completed",
	Aborted:                 "Aborted",
	ExternalError:           "ExternalError",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Outcome is the terminal classification of a run.
type Outcome string

const (
	OutcomeCompleted     Outcome = "Completed"
	OutcomeAborted       Outcome = "Aborted"
	OutcomeExternalError Outcome = "ExternalError"
)

// Reason qualifies an Aborted outcome.
type Reason string

const (
	ReasonNone                Reason = ""
	ReasonNavigationFailed    Reason = "NavigationFailed"
	ReasonCredentialsNotFound Reason = "CredentialsNotFound"
	ReasonOtpTimeout          Reason = "OtpTimeout"
	ReasonOtpEntryFailed      Reason = "OtpEntryFailed"
	ReasonProviderError       Reason = "ProviderError"
	// ReasonCanceled means the caller canceled or timed out the run.
	ReasonCanceled Reason = "Canceled"
)

// Policy says what a step failure does to the run.
type Policy int

const (
	// Gating failures end the run.
	Gating Policy = iota
	// BestEffort failures are logged and the run continues.
	BestEffort
)

func (p Policy) String() string {
	if p == BestEffort {
		return "best-effort"
	}
	return "gating"
}

// Credential is supplied per run and never stored.
type Credential struct {
	Username string
	Password string
	// Mailbox is the address the OTP is delivered to.
	Mailbox string
}

// Result is the outcome of one run.
type Result struct {
	Outcome Outcome
	Reason  Reason
	// Detail carries the error text, or the provider payload for ProviderError.
	Detail    string
	Code      string
	MessageID string
	// Strategy names the OTP entry strategy that succeeded.
	Strategy string
	FinalURL string
	// Trace lists the states reached, in order.
	Trace []State
}

// Success reports whether the run completed.
func (r Result) Success() bool { return r.Outcome == OutcomeCompleted }

func (r Result) String() string {
	switch r.Outcome {
	case OutcomeCompleted:
		return "Completed"
	case OutcomeAborted:
		return fmt.Sprintf("Aborted(%s)", r.Reason)
	default:
		return fmt.Sprintf("%s(%s)", r.Outcome, r.Detail)
	}
}
