package dto

// RateLimitDecision is the limiter's verdict for one request. It carries no
// HTTP concerns; middleware translates it into headers and status codes.
type RateLimitDecision struct {
	Allowed           bool   `json:"allowed"`
	Limit             int    `json:"limit"`
	Remaining         int    `json:"remaining"`
	RetryAfterSeconds int    `json:"retry_after_seconds,omitempty"`
	Bracket           string `json:"bracket,omitempty"`
	Message           string `json:"message,omitempty"`
}
