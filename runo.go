// Package runo defines the request/response types for runo IPC.
// Messages are JSON-encoded and sent over a Unix domain socket, one per line.
// The HTTP API uses the same types.
package runo

// Request asks the daemon for verses.
type Request struct {
	// RequestID is a per-session incrementing identifier assigned by the client.
	// The daemon echoes it back in the response for ordering.
	RequestID int `json:"request_id"`
	// SessionID identifies the client session. A new request cancels the
	// previous in-flight request of the same session.
	SessionID string `json:"session_id,omitempty"`
	// Keywords are words to weave into the verses, one per line at most.
	Keywords []string `json:"keywords,omitempty"`
	// KeywordText is free text split into keywords when Keywords is empty.
	KeywordText string `json:"keyword_text,omitempty"`
	// Prefix is the opening text of the poem. Empty means a random capital.
	Prefix string `json:"prefix,omitempty"`
	// Temperature controls randomness. Zero means the configured default.
	Temperature float64 `json:"temperature,omitempty"`
	// Lines is the number of verses to return. Zero means the configured default.
	Lines int `json:"lines,omitempty"`
}

// Response carries the selected verses.
type Response struct {
	// RequestID is echoed from the request.
	RequestID int `json:"request_id"`
	// Verses are the selected lines, each ending in a line break.
	Verses []string `json:"verses"`
	// Stats describes how much the model produced for this response.
	Stats *Stats `json:"stats,omitempty"`
	// Error is set when the daemon cannot fulfill the request.
	Error *Error `json:"error,omitempty"`
}

// TextRequest asks for raw text continuing a seed, without verse selection.
type TextRequest struct {
	// Prefix is emitted first. Empty means a random capital.
	Prefix string `json:"prefix,omitempty"`
	// Temperature controls randomness. Zero means the configured default.
	Temperature float64 `json:"temperature,omitempty"`
	// Count is the number of characters sampled after the prefix. Zero means
	// DefaultTextLength.
	Count int `json:"count,omitempty"`
}

// DefaultTextLength is the number of characters a TextRequest samples by default.
const DefaultTextLength = 200

// TextResponse carries the prefix followed by the sampled characters.
type TextResponse struct {
	Content string `json:"content"`
	Error   *Error `json:"error,omitempty"`
}

// Stats counts what a generation produced, including discarded lines.
type Stats struct {
	Runes    int `json:"runes"`
	Lines    int `json:"lines"`
	Keywords int `json:"keywords"`
}

// Error describes a daemon-side error returned to the client.
type Error struct {
	// Code is a machine-readable error identifier (e.g. "invalid_request", "model_error").
	Code string `json:"code"`
	// Message is a human-readable error description.
	Message string `json:"message"`
}

func (e *Error) Error() string { return e.Code + ": " + e.Message }

// Error codes.
const (
	CodeInvalidRequest = "invalid_request"
	CodeModelError     = "model_error"
	CodeNotConfigured  = "not_configured"
	CodeCancelled      = "cancelled"
	CodeConfigError    = "config_error"
	CodeUnknownAction  = "unknown_action"
)

// Event is one message of a streamed generation.
type Event struct {
	// Type is "verse" for a line, "done" at the end or "error".
	Type string `json:"type"`
	// Index is the position of the verse, starting at 0.
	Index int `json:"index,omitempty"`
	// Verse is set for "verse" events.
	Verse string `json:"verse,omitempty"`
	// Stats is set for "done" events.
	Stats *Stats `json:"stats,omitempty"`
	// Error is set for "error" events.
	Error *Error `json:"error,omitempty"`
}

// Event types.
const (
	EventVerse = "verse"
	EventDone  = "done"
	EventError = "error"
)

// ConfigRequest is sent from the client for configuration operations.
type ConfigRequest struct {
	// Action is the config operation: "get", "reload", "defaults", or "validate".
	Action string `json:"action"`
}

// ConfigResponse is sent from the daemon in response to a ConfigRequest.
type ConfigResponse struct {
	// Config is the current configuration (for "get", "reload", and "defaults" actions).
	Config *Config `json:"config,omitempty"`
	// Warnings contains configuration warnings (for "validate" action).
	Warnings []string `json:"warnings,omitempty"`
	// Error is set when the operation fails.
	Error *Error `json:"error,omitempty"`
}
