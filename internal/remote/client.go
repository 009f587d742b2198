package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// DefaultTimeout bounds every HTTP call made by Client. A timed-out call is
// reported as an *Error and the affected rows are retried on the next push.
const DefaultTimeout = 15 * time.Second

// Credentials identify a signed-in account on the hosted store.
type Credentials struct {
	OwnerID string `json:"user_id"`
	Token   string `json:"token"`
}

// Client is an Adapter talking to the reference server over HTTP with a
// bearer token. It only serves the owner the token was issued for.
type Client struct {
	baseURL string
	creds   Credentials
	http    *http.Client
}

// NewClient creates a client for baseURL (e.g. "http://localhost:8080").
// If hc is nil, a client with DefaultTimeout is used.
func NewClient(baseURL string, creds Credentials, hc *http.Client) *Client {
	if hc == nil {
		hc = &http.Client{Timeout: DefaultTimeout}
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		creds:   creds,
		http:    hc,
	}
}

// Register creates an account on the server.
func Register(ctx context.Context, hc *http.Client, baseURL, username, password string) error {
	c := NewClient(baseURL, Credentials{}, hc)
	body := map[string]string{"username": username, "password": password}
	return c.do(ctx, "register", http.MethodPost, "/register", body, nil, http.StatusCreated)
}

// Login exchanges a username and password for credentials.
func Login(ctx context.Context, hc *http.Client, baseURL, username, password string) (Credentials, error) {
	c := NewClient(baseURL, Credentials{}, hc)
	body := map[string]string{"username": username, "password": password}
	var creds Credentials
	if err := c.do(ctx, "login", http.MethodPost, "/login", body, &creds, http.StatusOK); err != nil {
		return Credentials{}, err
	}
	if creds.Token == "" || creds.OwnerID == "" {
		return Credentials{}, &Error{Op: "login", Err: errors.New("server returned empty credentials")}
	}
	return creds, nil
}

// Insert implements Adapter.
func (c *Client) Insert(ctx context.Context, ownerID string, rec Record) (string, error) {
	if err := c.authorize("insert", ownerID); err != nil {
		return "", err
	}
	rec.ID = ""
	var out Record
	if err := c.do(ctx, "insert", http.MethodPost, "/transactions", rec, &out, http.StatusCreated); err != nil {
		return "", err
	}
	return out.ID, nil
}

// Upsert implements Adapter.
func (c *Client) Upsert(ctx context.Context, ownerID string, rec Record) (string, error) {
	if rec.ID == "" {
		return c.Insert(ctx, ownerID, rec)
	}
	if err := c.authorize("upsert", ownerID); err != nil {
		return "", err
	}
	var out Record
	path := "/transactions/" + url.PathEscape(rec.ID)
	if err := c.do(ctx, "upsert", http.MethodPut, path, rec, &out, http.StatusOK); err != nil {
		return "", err
	}
	return out.ID, nil
}

// Select implements Adapter.
func (c *Client) Select(ctx context.Context, ownerID string) ([]Record, error) {
	if err := c.authorize("select", ownerID); err != nil {
		return nil, err
	}
	var out struct {
		Transactions []Record `json:"transactions"`
		Total        int      `json:"total"`
	}
	if err := c.do(ctx, "select", http.MethodGet, "/transactions", nil, &out, http.StatusOK); err != nil {
		return nil, err
	}
	if out.Transactions == nil {
		out.Transactions = []Record{}
	}
	return out.Transactions, nil
}

// UpdateByRemoteID implements Adapter.
func (c *Client) UpdateByRemoteID(ctx context.Context, ownerID, remoteID string, p Patch) error {
	if err := c.authorize("update", ownerID); err != nil {
		return err
	}
	path := "/transactions/" + url.PathEscape(remoteID)
	return c.do(ctx, "update", http.MethodPatch, path, p, nil, http.StatusNoContent)
}

func (c *Client) authorize(op, ownerID string) error {
	if c.creds.Token == "" || ownerID == "" || ownerID != c.creds.OwnerID {
		return &Error{Op: op, Err: ErrUnauthenticated}
	}
	return nil
}

// do sends a JSON request and decodes a JSON response into out (if non-nil).
func (c *Client) do(ctx context.Context, op, method, path string, in, out any, want int) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return &Error{Op: op, Err: fmt.Errorf("encode request: %w", err)}
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return &Error{Op: op, Err: err}
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.creds.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.creds.Token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return &Error{Op: op, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != want {
		return &Error{Op: op, Err: statusError(resp)}
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &Error{Op: op, Err: fmt.Errorf("decode response: %w", err)}
	}
	return nil
}

func statusError(resp *http.Response) error {
	var payload struct {
		Error string `json:"error"`
	}
	_ = json.NewDecoder(io.LimitReader(resp.Body, 64<<10)).Decode(&payload)
	msg := payload.Error
	if msg == "" {
		msg = http.StatusText(resp.StatusCode)
	}

	switch resp.StatusCode {
	case http.StatusUnauthorized, http.StatusForbidden:
		return fmt.Errorf("%s: %w", msg, ErrUnauthenticated)
	case http.StatusNotFound:
		return fmt.Errorf("%s: %w", msg, ErrNotFound)
	}
	return fmt.Errorf("status %d: %s", resp.StatusCode, msg)
}
