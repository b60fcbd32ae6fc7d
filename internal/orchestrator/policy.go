package orchestrator

import (
	"errors"
	"fmt"
	"strings"
)

// ErrUnknownPolicy is returned by ParsePolicy for unrecognized names.
var ErrUnknownPolicy = errors.New("unknown harm policy")

// Policy decides what happens to a task whose text trips the harm screen.
type Policy int

const (
	// PolicyRewrite redacts flagged terms and continues with the rewritten text.
	PolicyRewrite Policy = iota
	// PolicyAbort ends the task without inference or a memory record.
	PolicyAbort
)

// String returns the configuration name of the policy.
func (p Policy) String() string {
	switch p {
	case PolicyRewrite:
		return "rewrite"
	case PolicyAbort:
		return "abort"
	default:
		return fmt.Sprintf("Policy(%d)", int(p))
	}
}

// ParsePolicy parses a policy name. Matching is case-insensitive.
func ParsePolicy(s string) (Policy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "rewrite", "rewrite_and_continue", "rewrite-and-continue":
		return PolicyRewrite, nil
	case "abort":
		return PolicyAbort, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnknownPolicy, s)
	}
}

// State is the position of a task in the pipeline.
type State string

const (
	StateReceived          State = "received"
	StateScreened          State = "screened"
	StateAnswered          State = "answered"
	StateRewrittenAnswered State = "rewritten_answered"
	StateAborted           State = "aborted"
)

// Terminal reports whether no further transition can follow s.
func (s State) Terminal() bool {
	switch s {
	case StateAnswered, StateRewrittenAnswered, StateAborted:
		return true
	default:
		return false
	}
}
