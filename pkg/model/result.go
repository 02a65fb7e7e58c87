package model

import (
	"encoding/json"
)

// FailureKind classifies why a relay call did not succeed
type FailureKind string

const (
	// FailureValidation means required input was missing; no call was made
	FailureValidation FailureKind = "validation"
	// FailureRemote means the memory service answered with a non-2xx status
	FailureRemote FailureKind = "remote_error"
	// FailureNetwork means the call failed in transport or the body was malformed
	FailureNetwork FailureKind = "network_error"
)

// Result is the normalized outcome of one relay call. Exactly one of
// Success and Failure is set.
type Result struct {
	RequestID RequestID
	Operation Operation
	Success   *Success
	Failure   *Failure
}

// Success carries the payload returned by the memory service
type Success struct {
	StatusCode  int
	RawPayload  json.RawMessage
	DisplayText string
}

// Failure describes a failed relay call. Detail holds the decoded error
// body of a RemoteError when it was valid JSON.
type Failure struct {
	Kind       FailureKind
	Message    string
	StatusCode int
	Detail     any
}

func (x *Failure) Error() string {
	return x.Message
}

// OK returns true if the call succeeded
func (x *Result) OK() bool {
	return x.Success != nil
}

// Err returns the failure as an error, or nil on success
func (x *Result) Err() error {
	if x.Failure == nil {
		return nil
	}
	return x.Failure
}

// Text returns the text a presentation layer should show: the display
// text on success, the failure message otherwise.
func (x *Result) Text() string {
	switch {
	case x.Success != nil:
		return x.Success.DisplayText
	case x.Failure != nil:
		return x.Failure.Message
	default:
		return ""
	}
}
