package pipeline

import (
	"fmt"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/resolution-cli/internal/model"
	"github.com/sells-group/resolution-cli/pkg/oracle"
)

// Sentinel errors returned before any stage runs.
var (
	ErrEmptyInput     = eris.New("pipeline: user input is required")
	ErrNoSession      = eris.New("pipeline: no access code in session")
	ErrPromptRequired = eris.New("pipeline: prompt stage has not completed")
	ErrRunInProgress  = eris.New("pipeline: a run is already in progress")
	ErrSuperseded     = eris.New("pipeline: run was reset while a stage was in flight")
)

// ErrorKind classifies a stage failure.
type ErrorKind string

const (
	// KindAuth is an invalid access code. The session is torn down.
	KindAuth ErrorKind = "auth"
	// KindTransport is a non-2xx response, network failure, timeout or
	// unusable response body.
	KindTransport ErrorKind = "transport"
	// KindGateway is a non-zero gateway code other than auth.
	KindGateway ErrorKind = "gateway"
	// KindStep is a step response reporting ok=false or errors.
	KindStep ErrorKind = "step"
)

// StageError is a classified stage failure. Errors carries the step's own
// error list when the gateway reported one.
type StageError struct {
	Stage   model.Stage
	Kind    ErrorKind
	Message string
	Errors  []string
	Err     error
}

func (e *StageError) Error() string {
	msg := fmt.Sprintf("pipeline: %s stage failed (%s): %s", e.Stage, e.Kind, e.Message)
	if len(e.Errors) > 0 {
		msg += " [" + strings.Join(e.Errors, "; ") + "]"
	}
	return msg
}

func (e *StageError) Unwrap() error {
	return e.Err
}

func (e *StageError) clone() *StageError {
	if e == nil {
		return nil
	}
	out := *e
	out.Errors = append([]string(nil), e.Errors...)
	return &out
}

// classify turns a gateway client error into a StageError.
func classify(stage model.Stage, err error) *StageError {
	se := &StageError{Stage: stage, Message: err.Error(), Err: err}
	switch {
	case oracle.IsAuth(err):
		se.Kind = KindAuth
	case oracle.IsGateway(err):
		se.Kind = KindGateway
	default:
		se.Kind = KindTransport
	}
	return se
}

// stepFailure builds the error for a step that reported a logical failure.
func stepFailure(stage model.Stage, errs []string) *StageError {
	msg := "step reported failure"
	if len(errs) > 0 {
		msg = errs[0]
	}
	return &StageError{
		Stage:   stage,
		Kind:    KindStep,
		Message: msg,
		Errors:  append([]string(nil), errs...),
	}
}

// malformed builds the error for a response that lacks a required artifact
// or cannot be decoded.
func malformed(stage model.Stage, err error, format string, args ...any) *StageError {
	msg := fmt.Sprintf(format, args...)
	if err != nil {
		err = eris.Wrap(err, msg)
	} else {
		err = eris.New(msg)
	}
	return &StageError{Stage: stage, Kind: KindTransport, Message: msg, Err: err}
}
