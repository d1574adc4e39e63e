package render

import (
	"errors"
	"fmt"
	"strings"

	apperrors "scenecast/internal/pkg/errors"
)

// Stage is a state of the render state machine. Every non-terminal stage
// can move to StageFailed, always through workspace cleanup.
type Stage string

const (
	StageCreated    Stage = "created"
	StagePreparing  Stage = "preparing"
	StageValidating Stage = "validating"
	StageExecuting  Stage = "executing"
	StageCapturing  Stage = "capturing"
	StageEncoding   Stage = "encoding"
	StageCleaning   Stage = "cleaning"
	StageComplete   Stage = "complete"
	StageFailed     Stage = "failed"
)

// ErrNoScript means no valid script was available to render. The pipeline
// never substitutes content of its own.
var ErrNoScript = errors.New("no valid script available")

// ErrNotValidated is returned by sandboxes asked to run a script that did
// not pass Validate.
var ErrNotValidated = errors.New("script has not been validated")

// ValidationError: the script lacks a required structural element and was
// never executed.
type ValidationError struct {
	Reason  string
	Missing []string
}

func (e *ValidationError) Error() string {
	if len(e.Missing) == 0 {
		return "invalid script: " + e.Reason
	}
	return fmt.Sprintf("invalid script (missing %s): %s", strings.Join(e.Missing, ", "), e.Reason)
}

// InitFrame marks a SandboxError raised while the script built its scene.
const InitFrame = -1

// SandboxError: the script threw, or an operation timed out, during setup
// or a frame advance. The sandbox is unusable afterwards.
type SandboxError struct {
	Message string
	Frame   int
	Timeout bool
	Err     error
}

func (e *SandboxError) Error() string {
	var b strings.Builder
	if e.Frame == InitFrame {
		b.WriteString("sandbox init")
	} else {
		fmt.Fprintf(&b, "sandbox frame %d", e.Frame)
	}
	if e.Timeout {
		b.WriteString(" timed out")
	} else {
		b.WriteString(" failed")
	}
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	return b.String()
}

func (e *SandboxError) Unwrap() error { return e.Err }

// CaptureError wraps a SandboxError detected mid-sequence or a failure to
// persist a frame.
type CaptureError struct {
	Frame int
	Err   error
}

func (e *CaptureError) Error() string {
	return fmt.Sprintf("capture aborted at frame %d: %v", e.Frame, e.Err)
}

func (e *CaptureError) Unwrap() error { return e.Err }

// EncodeError: the encoder failed or produced no output. Diagnostic holds
// the tail of the encoder's own output.
type EncodeError struct {
	Diagnostic string
	Err        error
}

func (e *EncodeError) Error() string {
	msg := "encode failed"
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	if e.Diagnostic != "" {
		msg += " (" + e.Diagnostic + ")"
	}
	return msg
}

func (e *EncodeError) Unwrap() error { return e.Err }

// PipelineError is what Pipeline.Render returns on failure: the stage the
// job was in and the cause.
type PipelineError struct {
	Stage Stage
	JobID string
	Err   error
}

func (e *PipelineError) Error() string {
	return fmt.Sprintf("render %s failed in %s: %v", e.JobID, e.Stage, e.Err)
}

func (e *PipelineError) Unwrap() error { return e.Err }

// Code maps a render failure onto an application error code.
func Code(err error) apperrors.Code {
	var (
		verr *ValidationError
		serr *SandboxError
		cerr *CaptureError
		eerr *EncodeError
	)
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrNoScript):
		return apperrors.CodeNoScript
	case errors.As(err, &verr):
		return apperrors.CodeScriptInvalid
	case errors.As(err, &cerr):
		return apperrors.CodeCapture
	case errors.As(err, &serr):
		return apperrors.CodeSandbox
	case errors.As(err, &eerr):
		return apperrors.CodeEncode
	default:
		return apperrors.GetCode(err)
	}
}

// StageOf returns the stage recorded on a PipelineError, or StageFailed.
func StageOf(err error) Stage {
	var perr *PipelineError
	if errors.As(err, &perr) {
		return perr.Stage
	}
	return StageFailed
}
