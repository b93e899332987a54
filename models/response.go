package models

// FetchResponse is the response for POST /api/v1/fetch.
type FetchResponse struct {
	// Success indicates whether a code or link was retrieved.
	Success bool `json:"success"`

	// Message is a human-readable status; on failure it is the reason.
	Message string `json:"message,omitempty"`

	Kind string `json:"kind,omitempty"`

	Code       string `json:"code,omitempty"`
	Content    string `json:"content,omitempty"`
	VerifyLink string `json:"verify_link,omitempty"`

	// ReceivedAtRaw is the timestamp as the site printed it.
	ReceivedAtRaw string `json:"received_at_raw,omitempty"`

	// ReceivedAt is ReceivedAtRaw normalised to ISO-8601.
	ReceivedAt string `json:"received_at,omitempty"`

	// Aliases kept for older clients.
	TimestampRaw string `json:"timestamp_raw,omitempty"`
	TimestampISO string `json:"timestamp_iso,omitempty"`
	Timestamp    string `json:"timestamp,omitempty"`

	// ServerTime is true when the received_at fields came from the server clock.
	ServerTime    bool   `json:"server_time,omitempty"`
	ServerTimeRaw string `json:"server_time_raw,omitempty"`
	ServerTimeISO string `json:"server_time_iso,omitempty"`

	RequesterEmail string `json:"requester_email,omitempty"`
	TargetEmail    string `json:"target_email,omitempty"`

	// CacheStatus is "hit" or "miss" when response caching is enabled.
	CacheStatus string `json:"cache_status,omitempty"`

	// Error is populated only when Success is false.
	Error *ErrorDetail `json:"error,omitempty"`
}

// CustomerView is the admin representation of a customer record.
type CustomerView struct {
	ID              int64  `json:"id"`
	Email           string `json:"email"`
	Phone           string `json:"phone"`
	Expiry          string `json:"expiry,omitempty"`
	Status          string `json:"status"`
	DaysRemaining   *int   `json:"days_remaining,omitempty"`
	Notes           string `json:"notes,omitempty"`
	PhoneEmailCount int    `json:"phone_email_count"`
	CreatedAt       string `json:"created_at"`
	UpdatedAt       string `json:"updated_at,omitempty"`
}

// CustomerListResponse is the response for GET /api/v1/admin/customers.
type CustomerListResponse struct {
	Customers []CustomerView `json:"customers"`
	Total     int            `json:"total"`
}

// StatsResponse is the response for GET /api/v1/admin/stats.
type StatsResponse struct {
	Total       int     `json:"total"`
	Active      int     `json:"active"`
	Expiring    int     `json:"expiring"`
	Expired     int     `json:"expired"`
	RenewalRate float64 `json:"renewal_rate"`
}

// ImportResponse summarises an email import.
type ImportResponse struct {
	Added   int `json:"added"`
	Skipped int `json:"skipped"`
	Invalid int `json:"invalid"`
}

// HealthResponse is the response for GET /api/v1/health.
type HealthResponse struct {
	Status   string         `json:"status"` // "healthy" or "degraded"
	Uptime   string         `json:"uptime"`
	Session  SessionStats   `json:"session"`
	Upstream *UpstreamStats `json:"upstream,omitempty"`
	Version  string         `json:"version"`
}

// SessionStats reports the state of the automation session.
type SessionStats struct {
	State        string `json:"state"`
	LastActivity string `json:"last_activity,omitempty"`
	StartedAt    string `json:"started_at,omitempty"`
	Uses         int    `json:"uses"`
	Restarts     int    `json:"restarts"`
}

// UpstreamStats reports the last reachability probe of the target site.
type UpstreamStats struct {
	Reachable  bool   `json:"reachable"`
	StatusCode int    `json:"status_code,omitempty"`
	Title      string `json:"title,omitempty"`
	LatencyMs  int64  `json:"latency_ms"`
	Error      string `json:"error,omitempty"`
	CheckedAt  string `json:"checked_at"`
}

// ErrorResponse is the body of every non-fetch error response.
type ErrorResponse struct {
	Success bool         `json:"success"`
	Message string       `json:"message"`
	Error   *ErrorDetail `json:"error,omitempty"`
}

// NewErrorResponse builds an ErrorResponse whose message is also the detail.
func NewErrorResponse(code, message string) ErrorResponse {
	return ErrorResponse{
		Success: false,
		Message: message,
		Error:   &ErrorDetail{Code: code, Message: message},
	}
}

// BulkDeleteResponse reports how many customers were removed.
type BulkDeleteResponse struct {
	Deleted int `json:"deleted"`
}

// RestartResponse is the response for POST /api/v1/admin/session/restart.
type RestartResponse struct {
	Success bool         `json:"success"`
	Message string       `json:"message,omitempty"`
	Session SessionStats `json:"session"`
}

// FetchLogView is one entry of the fetch log.
type FetchLogView struct {
	Requester string `json:"requester"`
	Target    string `json:"target"`
	Kind      string `json:"kind"`
	Success   bool   `json:"success"`
	Failure   string `json:"failure,omitempty"`
	Code      string `json:"code,omitempty"`
	Message   string `json:"message,omitempty"`
	RequestID string `json:"request_id,omitempty"`
	CreatedAt string `json:"created_at"`
}

// FetchLogResponse is the response for GET /api/v1/admin/fetches.
type FetchLogResponse struct {
	Target  string         `json:"target"`
	Entries []FetchLogView `json:"entries"`
}
