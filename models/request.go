package models

import (
	"regexp"
	"strings"
)

// FetchAPIRequest is the payload for POST /api/v1/fetch.
// Both JSON and form encodings are accepted.
type FetchAPIRequest struct {
	// Email is the requester's registered email. Required.
	Email string `json:"email" form:"email"`

	// TargetEmail is the account to fetch for. Defaults to Email.
	TargetEmail string `json:"target_email,omitempty" form:"target_email"`

	// Kind is "login_code" (default) or "verify_link".
	Kind string `json:"kind,omitempty" form:"kind"`

	// Password carries the requester's registered phone number.
	Password string `json:"password" form:"password"`
}

// Defaults applies default values to unset fields.
func (r *FetchAPIRequest) Defaults() {
	if strings.TrimSpace(r.Kind) == "" {
		r.Kind = string(KindLoginCode)
	}
}

// CustomerRequest is the payload for creating or updating a customer.
type CustomerRequest struct {
	Email string `json:"email" form:"email"`
	Phone string `json:"phone" form:"phone"`

	// Expiry is a YYYY-MM-DD date; empty means no expiry.
	Expiry string `json:"expiry" form:"expiry"`

	Notes string `json:"notes" form:"notes"`
}

// BulkDeleteRequest is the payload for POST /api/v1/admin/customers/bulk-delete.
type BulkDeleteRequest struct {
	IDs []int64 `json:"ids" binding:"required,min=1"`
}

var emailPattern = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)

var whitespace = regexp.MustCompile(`\s+`)

// NormalizeEmail trims and lowercases an email address.
func NormalizeEmail(v string) string {
	return strings.ToLower(strings.TrimSpace(v))
}

// ValidEmail reports whether a normalised email looks like an address.
func ValidEmail(v string) bool {
	return emailPattern.MatchString(v)
}

// NormalizePhone removes all whitespace from a phone number.
func NormalizePhone(v string) string {
	return whitespace.ReplaceAllString(strings.TrimSpace(v), "")
}
