package panel

import (
	"errors"
	"fmt"
)

var (
	// ErrNoToken is returned by Start when the landing page carries no
	// anti-forgery token.
	ErrNoToken = errors.New("panel: forgery protection token not found on landing page")

	// ErrNotStarted is returned by every operation issued before Start succeeded.
	ErrNotStarted = errors.New("panel: session not started")

	// ErrAlreadyStarted is returned by a second call to Start.
	ErrAlreadyStarted = errors.New("panel: session already started")
)

// LoginError reports a rejected login.
type LoginError struct {
	User    string
	Message string
}

func (e *LoginError) Error() string {
	return fmt.Sprintf("login as %q failed: %s", e.User, e.Message)
}

// ContextError reports that the server's current directory could not be
// moved to Dir.
type ContextError struct {
	Dir      string
	Reported string // directory the server reported, empty when it returned an error
	Message  string
}

func (e *ContextError) Error() string {
	if e.Reported != "" {
		return fmt.Sprintf("cannot change to directory %q: server is in %q", e.Dir, e.Reported)
	}
	return fmt.Sprintf("cannot change to directory %q: %s", e.Dir, e.Message)
}

// OperationError is a failure reported by the server for one operation.
type OperationError struct {
	Op      string
	Message string
}

func (e *OperationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Op, e.Message)
}

// ValidationError is a request rejected locally, before anything was sent.
type ValidationError struct {
	Op     string
	Name   string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Name == "" {
		return fmt.Sprintf("%s: %s", e.Op, e.Reason)
	}
	return fmt.Sprintf("%s: %q: %s", e.Op, e.Name, e.Reason)
}
