package models

import (
	"fmt"
	"strings"
)

// Kind is the logical request type: which field the target site is asked for.
type Kind string

const (
	KindLoginCode  Kind = "login_code"
	KindVerifyLink Kind = "verify_link"
)

// ParseKind validates a wire value. An empty string defaults to KindLoginCode.
func ParseKind(s string) (Kind, error) {
	switch Kind(strings.TrimSpace(s)) {
	case "", KindLoginCode:
		return KindLoginCode, nil
	case KindVerifyLink:
		return KindVerifyLink, nil
	default:
		return "", fmt.Errorf("invalid kind: %s", s)
	}
}

// FailureKind classifies why a fetch did not succeed.
type FailureKind string

const (
	FailureConfiguration FailureKind = "configuration_error"
	FailureNavigation    FailureKind = "navigation_failure"
	FailureSubmission    FailureKind = "submission_failure"
	FailureNotFound      FailureKind = "upstream_not_found"
	FailureTransient     FailureKind = "upstream_transient_error"
)

// NeedsRestart reports whether the session must be rebuilt after this failure.
// Only an explicit "no data" answer from the site leaves the session untouched.
func (k FailureKind) NeedsRestart() bool {
	return k != FailureNotFound && k != ""
}

// ParsePath records which extraction branch produced a result.
type ParsePath string

const (
	ParseStructured ParsePath = "structured"
	ParseLabeled    ParsePath = "labeled"
	ParseHeuristic  ParsePath = "heuristic"
	ParseNone       ParsePath = "none"
)

// FetchRequest is one query against the target site. Callers normalise and
// validate Identifier before building it.
type FetchRequest struct {
	Identifier string
	Kind       Kind
}

// FetchResult is produced once per fetch.
//
// When Success is false, Code, Content and VerifyLink are always empty and
// Message/Failure describe the problem.
type FetchResult struct {
	Success bool

	Code          string
	Content       string
	ReceivedAtRaw string
	ReceivedAtISO string
	VerifyLink    string
	ParsePath     ParsePath

	// ServerTime is set when ReceivedAt* were filled from ServerTimeRaw/ISO
	// because the payload carried no timestamp.
	ServerTime    bool
	ServerTimeRaw string
	ServerTimeISO string

	Message string
	Failure FailureKind
}

// Failed builds a failure result.
func Failed(kind FailureKind, message string) FetchResult {
	return FetchResult{Success: false, Failure: kind, Message: message}
}
