// Copyright 2026 grindsync contributors
// SPDX-License-Identifier: Apache-2.0

package questsync

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// RemoteStore is the engine's view of the shared backend: filtered reads,
// upserts, and deletes scoped by the owning user.
type RemoteStore interface {
	// PullSince returns the user's records in table updated after since,
	// newest first, at most limit. A zero since means all records.
	PullSince(ctx context.Context, table, userID string, since time.Time, limit int) ([]map[string]any, error)
	// Upsert writes a record keyed by its id; the caller has already stamped
	// user_id and updated_at on the payload.
	Upsert(ctx context.Context, table string, record map[string]any) error
	// Delete removes the user's record. An absent target is treated as
	// already-achieved deletion, not an error.
	Delete(ctx context.Context, table, id, userID string) error
}

// HTTPRemote talks to a questserver backend. The user identity travels in the
// bearer token, so the userID arguments are not repeated on the wire.
type HTTPRemote struct {
	BaseURL string
	Token   func(context.Context) (string, error)
	HTTP    *http.Client
}

// NewHTTPRemote creates a remote store client for the given base URL.
func NewHTTPRemote(baseURL string, token func(context.Context) (string, error)) *HTTPRemote {
	return &HTTPRemote{
		BaseURL: baseURL,
		Token:   token,
		HTTP:    &http.Client{Timeout: 60 * time.Second},
	}
}

type pullResponse struct {
	Records []map[string]any `json:"records"`
}

func (r *HTTPRemote) PullSince(ctx context.Context, table, userID string, since time.Time, limit int) ([]map[string]any, error) {
	endpoint := fmt.Sprintf("%s/sync/%s?limit=%d", r.BaseURL, url.PathEscape(table), limit)
	if !since.IsZero() {
		endpoint += "&after=" + url.QueryEscape(since.UTC().Format(time.RFC3339Nano))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create pull request: %w", err)
	}
	resp, err := r.do(ctx, req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, httpStatusError(resp)
	}
	var body pullResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("failed to decode pull response: %w", err)
	}
	return body.Records, nil
}

func (r *HTTPRemote) Upsert(ctx context.Context, table string, record map[string]any) error {
	id, ok := recordID(record)
	if !ok {
		return fmt.Errorf("upsert record for table %s has no usable id", table)
	}
	payload, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to marshal upsert payload: %w", err)
	}

	endpoint := fmt.Sprintf("%s/sync/%s/%s", r.BaseURL, url.PathEscape(table), url.PathEscape(id))
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, endpoint, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to create upsert request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.do(ctx, req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNoContent {
		return httpStatusError(resp)
	}
	return nil
}

func (r *HTTPRemote) Delete(ctx context.Context, table, id, userID string) error {
	endpoint := fmt.Sprintf("%s/sync/%s/%s", r.BaseURL, url.PathEscape(table), url.PathEscape(id))
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, endpoint, nil)
	if err != nil {
		return fmt.Errorf("failed to create delete request: %w", err)
	}

	resp, err := r.do(ctx, req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	// 404 means the target is already gone, which is the state we wanted.
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNoContent &&
		resp.StatusCode != http.StatusNotFound {
		return httpStatusError(resp)
	}
	return nil
}

func (r *HTTPRemote) do(ctx context.Context, req *http.Request) (*http.Response, error) {
	token, err := r.Token(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get auth token: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := r.HTTP.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send HTTP request: %w", err)
	}
	return resp, nil
}

func httpStatusError(resp *http.Response) error {
	body, _ := io.ReadAll(resp.Body)
	return fmt.Errorf("server returned status %d: %s", resp.StatusCode, string(body))
}
