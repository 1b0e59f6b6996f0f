package model

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Outcome is a market resolution outcome.
type Outcome string

const (
	OutcomeYes     Outcome = "YES"
	OutcomeNo      Outcome = "NO"
	OutcomeInvalid Outcome = "INVALID"
	OutcomeUnknown Outcome = "UNKNOWN"
)

// ParseOutcome normalizes a loosely-written outcome ("yes", " No ", "invalid")
// into its canonical form. Anything unrecognized is UNKNOWN.
func ParseOutcome(s string) Outcome {
	switch o := Outcome(cases.Upper(language.Und).String(strings.TrimSpace(s))); o {
	case OutcomeYes, OutcomeNo, OutcomeInvalid:
		return o
	default:
		return OutcomeUnknown
	}
}

// Known reports whether the outcome is a settled value.
func (o Outcome) Known() bool {
	return o != "" && o != OutcomeUnknown
}

// ExecutionMode describes how a run was executed by the oracle.
type ExecutionMode string

const (
	ModeLive   ExecutionMode = "live"
	ModeReplay ExecutionMode = "replay"
	ModeDryRun ExecutionMode = "dry_run"
)
