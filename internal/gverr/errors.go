// Package gverr defines GitVan's error taxonomy (spec §7): a small set of
// typed error kinds that preserve identity through wrapping, so the CLI
// (an external collaborator) can map them to exit codes without string
// matching.
package gverr

import (
	"errors"
	"fmt"
)

// Kind identifies an error category from the taxonomy in spec §7.
type Kind string

const (
	// Input errors
	KindManifestInvalid       Kind = "ManifestInvalid"
	KindPackIDInvalid         Kind = "PackIdInvalid"
	KindInputValidationFailed Kind = "InputValidationFailed"
	KindPathTraversal         Kind = "PathTraversal"
	KindTemplateInjection     Kind = "TemplateInjection"

	// Resolution errors
	KindPackNotFound               Kind = "PackNotFound"
	KindDependencyFailed            Kind = "DependencyFailed"
	KindCycleDetected               Kind = "CycleDetected"
	KindConflict                    Kind = "Conflict"
	KindVersionConstraintUnsatisfied Kind = "VersionConstraintUnsatisfied"

	// Fetch errors
	KindNetworkError      Kind = "NetworkError"
	KindAuthError         Kind = "AuthError"
	KindRateLimited       Kind = "RateLimited"
	KindIntegrityMismatch Kind = "IntegrityMismatch"

	// Execution errors
	KindGitError           Kind = "GitError"
	KindTemplateRenderError Kind = "TemplateRenderError"
	KindFileSystemError    Kind = "FileSystemError"
	KindJobTimeout         Kind = "JobTimeout"
	KindPoolClosed         Kind = "PoolClosed"

	// State errors
	KindAlreadyApplied     Kind = "AlreadyApplied"
	KindReceiptWriteFailed Kind = "ReceiptWriteFailed"
)

// Error is GitVan's structural error type: a kind, a human message, and an
// optional wrapped cause. Identity survives wrapping via Unwrap.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// New constructs an *Error with no cause.
func New(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap constructs an *Error carrying cause, preserving its chain.
func Wrap(kind Kind, cause error, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Cause: cause}
}

// As reports whether err (or any error in its chain) is a *Error of kind.
func As(err error, kind Kind) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}
	return e.Kind == kind
}

// KindOf extracts the Kind from err if it is (or wraps) a *Error.
func KindOf(err error) (Kind, bool) {
	var e *Error
	if !errors.As(err, &e) {
		return "", false
	}
	return e.Kind, true
}

// GitError carries the subprocess exit code and captured stderr (spec §4.1).
type GitError struct {
	Args     []string
	ExitCode int
	Stderr   string
	Cause    error
}

func (e *GitError) Error() string {
	return fmt.Sprintf("git %v: exit %d: %s", e.Args, e.ExitCode, e.Stderr)
}

func (e *GitError) Unwrap() error { return e.Cause }

// Transient reports whether kind is retried with backoff per §7's
// propagation policy (NetworkError, RateLimited); all others are not
// retried.
func Transient(kind Kind) bool {
	return kind == KindNetworkError || kind == KindRateLimited
}
