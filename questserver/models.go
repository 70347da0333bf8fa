// Copyright 2026 grindsync contributors
// SPDX-License-Identifier: Apache-2.0

package questserver

import "time"

// REST/JSON models for the sync HTTP API.

// PullResponse carries a page of records for one table, newest first.
type PullResponse struct {
	Records []map[string]any `json:"records"`
}

// UpsertResponse echoes the server-observed update timestamp.
type UpsertResponse struct {
	UpdatedAt time.Time `json:"updated_at"`
}

// ErrorResponse is the uniform error body.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

// Machine-readable error reasons.
const (
	ReasonUnregisteredTable = "unregistered_table"
	ReasonBadPayload        = "bad_payload"
	ReasonBadRequest        = "bad_request"
	ReasonInternal          = "internal"
)
