package models

import "time"

// Admission modes.
const (
	ModeReject = "reject"
	ModeWait   = "wait"
)

// Admission outcomes.
const (
	ResultAllowed  = "allowed"
	ResultRejected = "rejected"
	ResultAdmitted = "admitted" // let through after waiting
	ResultTimedOut = "timed_out"
)

// AdmissionEvent describes one limiter decision for a request.
// Note: no transport (json/http) concerns beyond serialization tags.
type AdmissionEvent struct {
	RequestID  string        `json:"request_id,omitempty"`
	Bucket     string        `json:"bucket"`
	Mode       string        `json:"mode"`
	Result     string        `json:"result"`
	Method     string        `json:"method"`
	Path       string        `json:"path"`
	RemoteAddr string        `json:"remote_addr"`
	Available  int64         `json:"available"`
	RetryAfter int64         `json:"retry_after_seconds"`
	Waited     time.Duration `json:"waited_ns,omitempty"`
	At         time.Time     `json:"at"`
}
