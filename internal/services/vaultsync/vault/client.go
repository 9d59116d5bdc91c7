// Package vault is the HTTP client for the external character-sheet vault.
//
// The vault is a black box: an authentication endpoint returning an opaque
// session ticket, and a keyed blob store read and written under that ticket.
// Payload contents are opaque at this layer; decoding lives in the decode
// package.
package vault

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rowanvale/sheetsync/internal/platform/errors"
)

const (
	defaultBaseURL = "https://vault.dicebound.net"
	// defaultTimeout bounds each vault call so one unreachable slot cannot
	// stall an entire import batch.
	defaultTimeout = 5 * time.Second

	ticketHeader = "X-Session-Ticket"
)

// Session is the result of authenticating against the vault.
type Session struct {
	AccountID string `json:"accountId"`
	Ticket    string `json:"ticket"`
}

// Entry is one stored blob in the vault's keyed store.
type Entry struct {
	Value       string `json:"value"`
	LastUpdated int64  `json:"lastUpdated"`
}

// Config controls vault client construction.
type Config struct {
	BaseURL    string
	HTTPClient *http.Client
	Timeout    time.Duration
}

// Client calls the external vault over HTTP.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient builds a vault client, applying defaults for unset fields.
func NewClient(cfg Config) *Client {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = defaultTimeout
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	return &Client{baseURL: baseURL, httpClient: httpClient}
}

// Login authenticates with the vault and returns a fresh session ticket.
func (c *Client) Login(ctx context.Context, username string, password string) (Session, error) {
	if strings.TrimSpace(username) == "" || password == "" {
		return Session{}, errors.New(errors.CodeAuthenticationFailed, "vault username and password are required")
	}

	requestBody, err := json.Marshal(map[string]string{
		"username": username,
		"password": password,
	})
	if err != nil {
		return Session{}, fmt.Errorf("marshal login request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/login", bytes.NewReader(requestBody))
	if err != nil {
		return Session{}, fmt.Errorf("build login request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	res, err := c.httpClient.Do(req)
	if err != nil {
		return Session{}, errors.Wrap(errors.CodeVaultUnavailable, "vault login request failed", err)
	}
	defer res.Body.Close()

	if res.StatusCode == http.StatusUnauthorized || res.StatusCode == http.StatusForbidden {
		return Session{}, errors.New(errors.CodeAuthenticationFailed, "vault rejected the stored credentials")
	}
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		return Session{}, errors.New(errors.CodeVaultUnavailable, statusMessage("login", res))
	}

	var session Session
	if err := json.NewDecoder(res.Body).Decode(&session); err != nil {
		return Session{}, errors.Wrap(errors.CodeVaultUnavailable, "decode login response", err)
	}
	if strings.TrimSpace(session.Ticket) == "" {
		return Session{}, errors.New(errors.CodeVaultUnavailable, "login response is missing a ticket")
	}
	return session, nil
}

// GetUserData fetches every stored blob for the ticket's account.
func (c *Client) GetUserData(ctx context.Context, ticket string) (map[string]Entry, error) {
	if strings.TrimSpace(ticket) == "" {
		return nil, errors.New(errors.CodeAuthenticationFailed, "session ticket is required")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/userdata", nil)
	if err != nil {
		return nil, fmt.Errorf("build user data request: %w", err)
	}
	req.Header.Set(ticketHeader, ticket)

	res, err := c.httpClient.Do(req)
	if err != nil {
		return nil, errors.Wrap(errors.CodeVaultUnavailable, "vault user data request failed", err)
	}
	defer res.Body.Close()

	if res.StatusCode == http.StatusUnauthorized || res.StatusCode == http.StatusForbidden {
		return nil, errors.New(errors.CodeAuthenticationFailed, "vault rejected the session ticket")
	}
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		return nil, errors.New(errors.CodeVaultUnavailable, statusMessage("get user data", res))
	}

	var payload struct {
		Data map[string]Entry `json:"data"`
	}
	if err := json.NewDecoder(res.Body).Decode(&payload); err != nil {
		return nil, errors.Wrap(errors.CodeVaultUnavailable, "decode user data response", err)
	}
	if payload.Data == nil {
		payload.Data = map[string]Entry{}
	}
	return payload.Data, nil
}

// UpdateUserData writes one or more blobs to the ticket's account.
func (c *Client) UpdateUserData(ctx context.Context, ticket string, data map[string]any) error {
	if strings.TrimSpace(ticket) == "" {
		return errors.New(errors.CodeAuthenticationFailed, "session ticket is required")
	}
	if len(data) == 0 {
		return fmt.Errorf("update data is required")
	}

	requestBody, err := json.Marshal(map[string]any{"data": data})
	if err != nil {
		return fmt.Errorf("marshal user data update: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/userdata", bytes.NewReader(requestBody))
	if err != nil {
		return fmt.Errorf("build user data update: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(ticketHeader, ticket)

	res, err := c.httpClient.Do(req)
	if err != nil {
		return errors.Wrap(errors.CodeVaultUnavailable, "vault user data update failed", err)
	}
	defer res.Body.Close()

	if res.StatusCode == http.StatusUnauthorized || res.StatusCode == http.StatusForbidden {
		return errors.New(errors.CodeAuthenticationFailed, "vault rejected the session ticket")
	}
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		return errors.New(errors.CodeVaultUnavailable, statusMessage("update user data", res))
	}
	return nil
}

// Probe checks whether a cached ticket is still accepted by the vault. Any
// failure means the ticket should be treated as expired.
func (c *Client) Probe(ctx context.Context, ticket string) error {
	_, err := c.GetUserData(ctx, ticket)
	return err
}

// statusMessage summarizes a non-2xx vault response, bounding the body read.
func statusMessage(operation string, res *http.Response) string {
	body, err := io.ReadAll(io.LimitReader(res.Body, 4096))
	if err != nil || len(bytes.TrimSpace(body)) == 0 {
		return fmt.Sprintf("vault %s returned status %d", operation, res.StatusCode)
	}
	return fmt.Sprintf("vault %s returned status %d: %s", operation, res.StatusCode, strings.TrimSpace(string(body)))
}
