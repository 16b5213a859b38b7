package domain

import (
	"errors"
	"fmt"
)

// ErrorKind classifies pipeline failures
type ErrorKind string

const (
	KindDependencyResolution ErrorKind = "DependencyResolutionError"
	KindCompilation          ErrorKind = "CompilationError"
	KindPackaging            ErrorKind = "PackagingError"
	KindAuthentication       ErrorKind = "AuthenticationError"
	KindNetwork              ErrorKind = "NetworkError"
	KindConfiguration        ErrorKind = "ConfigurationError"
)

// Sentinels for errors.Is matching by kind
var (
	ErrDependencyResolution = &PipelineError{Kind: KindDependencyResolution}
	ErrCompilation          = &PipelineError{Kind: KindCompilation}
	ErrPackaging            = &PipelineError{Kind: KindPackaging}
	ErrAuthentication       = &PipelineError{Kind: KindAuthentication}
	ErrNetwork              = &PipelineError{Kind: KindNetwork}
	ErrConfiguration        = &PipelineError{Kind: KindConfiguration}
)

// PipelineError is the error type returned by every pipeline stage.
// All kinds are fatal to the invocation that produced them.
type PipelineError struct {
	Kind    ErrorKind
	Stage   Stage
	Message string
	Err     error
}

// Error implements the error interface
func (e *PipelineError) Error() string {
	msg := e.Message
	if e.Err != nil {
		if msg == "" {
			msg = e.Err.Error()
		} else {
			msg = msg + ": " + e.Err.Error()
		}
	}
	if msg == "" {
		msg = "failed"
	}
	if e.Stage != "" {
		return fmt.Sprintf("%s: %s: %s", e.Stage, e.Kind, msg)
	}
	return fmt.Sprintf("%s: %s", e.Kind, msg)
}

// Unwrap returns the underlying cause
func (e *PipelineError) Unwrap() error {
	return e.Err
}

// Is matches sentinel errors of the same kind
func (e *PipelineError) Is(target error) bool {
	t, ok := target.(*PipelineError)
	if !ok {
		return false
	}
	if t.Message != "" || t.Err != nil || t.Stage != "" {
		return e == t
	}
	return e.Kind == t.Kind
}

func newPipelineError(kind ErrorKind, message string, err error) *PipelineError {
	return &PipelineError{Kind: kind, Message: message, Err: err}
}

// NewDependencyResolutionError creates a dependency resolution error
func NewDependencyResolutionError(message string, err error) *PipelineError {
	return newPipelineError(KindDependencyResolution, message, err)
}

// NewCompilationError creates a compilation error
func NewCompilationError(message string, err error) *PipelineError {
	return newPipelineError(KindCompilation, message, err)
}

// NewPackagingError creates a packaging error
func NewPackagingError(message string, err error) *PipelineError {
	return newPipelineError(KindPackaging, message, err)
}

// NewAuthenticationError creates an authentication error
func NewAuthenticationError(message string, err error) *PipelineError {
	return newPipelineError(KindAuthentication, message, err)
}

// NewNetworkError creates a network error
func NewNetworkError(message string, err error) *PipelineError {
	return newPipelineError(KindNetwork, message, err)
}

// NewConfigurationError creates a configuration error
func NewConfigurationError(message string, err error) *PipelineError {
	return newPipelineError(KindConfiguration, message, err)
}

// WithStage attaches the failing stage to a pipeline error. Errors that are
// not pipeline errors are returned unchanged; a stage already set wins.
func WithStage(err error, stage Stage) error {
	var pe *PipelineError
	if !errors.As(err, &pe) || pe.Stage != "" {
		return err
	}
	staged := *pe
	staged.Stage = stage
	return &staged
}

// KindOf reports the kind of the first pipeline error in err's chain
func KindOf(err error) (ErrorKind, bool) {
	var pe *PipelineError
	if errors.As(err, &pe) {
		return pe.Kind, true
	}
	return "", false
}

// StageOf reports the stage recorded on the first pipeline error in err's chain
func StageOf(err error) (Stage, bool) {
	var pe *PipelineError
	if errors.As(err, &pe) && pe.Stage != "" {
		return pe.Stage, true
	}
	return "", false
}
