// Package cheferr defines the error taxonomy shared by every Chef
// component and the wrapping helpers used to attach a
// category to an underlying cause.
package cheferr

import (
	"errors"

	pkgerrors "github.com/pkg/errors"
)

// Sentinel categories. Every error returned across a component boundary is
// wrapped with exactly one of these via [Wrap] or [Wrapf], so callers can
// test the category with errors.Is regardless of the underlying cause.
var (
	ErrInvalidArgument     = errors.New("invalid argument")
	ErrNotFound            = errors.New("not found")
	ErrPermissionDenied    = errors.New("permission denied")
	ErrIntegrityFailure    = errors.New("integrity failure")
	ErrResourceExhausted   = errors.New("resource exhausted")
	ErrNetworkFailure      = errors.New("network failure")
	ErrInternal            = errors.New("internal error")
	ErrUnsupportedPlatform = errors.New("unsupported platform")
)

// Wrap attaches category to cause, preserving cause for errors.Is/As and
// errors.Unwrap chains. Returns nil if cause is nil, so callers can write
// `return cheferr.Wrap(ErrFoo, err)` unconditionally.
func Wrap(category error, cause error) error {
	if cause == nil {
		return nil
	}
	return &categorized{category: category, cause: pkgerrors.WithStack(cause)}
}

// Wrapf is like [Wrap] but formats an additional message around cause
// instead of wrapping an existing error value.
func Wrapf(category error, format string, args ...any) error {
	return &categorized{category: category, cause: pkgerrors.Errorf(format, args...)}
}

type categorized struct {
	category error
	cause    error
}

func (c *categorized) Error() string {
	return c.category.Error() + ": " + c.cause.Error()
}

func (c *categorized) Unwrap() []error {
	return []error{c.category, c.cause}
}

// Category returns the sentinel category err was wrapped with, or
// [ErrInternal] if err was not produced by [Wrap]/[Wrapf].
func Category(err error) error {
	var c *categorized
	if errors.As(err, &c) {
		return c.category
	}
	return ErrInternal
}
