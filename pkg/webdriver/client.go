// Package webdriver implements a W3C WebDriver client focused on element geometry:
// session transport, frame context tracking, element handle staleness and
// location/size queries across nested frames.
package webdriver

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/devicelab-dev/geoprobe/pkg/core"
	"github.com/devicelab-dev/geoprobe/pkg/logger"
)

// W3C WebDriver element identifier key (standard constant)
const w3cElementKey = "element-6066-11e4-a52e-4f735466cecf"

// DefaultCommandTimeout bounds a single request/response exchange.
const DefaultCommandTimeout = 30 * time.Second

// Client handles HTTP communication with a WebDriver remote end.
// Exchanges are strictly sequential: the remote end only supports one
// in-flight command per session.
type Client struct {
	serverURL string
	sessionID string
	client    *http.Client
	timeout   time.Duration

	mu sync.Mutex
}

// NewClient creates a new WebDriver client.
// A zero timeout selects DefaultCommandTimeout.
func NewClient(serverURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = DefaultCommandTimeout
	}
	return &Client{
		serverURL: strings.TrimSuffix(serverURL, "/"),
		client:    &http.Client{},
		timeout:   timeout,
	}
}

// SessionID returns the active session id, empty before NewSession.
func (c *Client) SessionID() string {
	return c.sessionID
}

// NewSession creates a new session with the given capabilities and returns
// the capabilities negotiated by the remote end.
func (c *Client) NewSession(ctx context.Context, capabilities map[string]interface{}) (map[string]interface{}, error) {
	body := map[string]interface{}{
		"capabilities": map[string]interface{}{
			"alwaysMatch": capabilities,
		},
	}

	raw, err := c.Do(ctx, http.MethodPost, "/session", body)
	if err != nil {
		return nil, err
	}

	var value struct {
		SessionID    string                 `json:"sessionId"`
		Capabilities map[string]interface{} `json:"capabilities"`
	}
	if err := json.Unmarshal(raw, &value); err != nil {
		return nil, core.ErrTransport.WithMessage("invalid session response").WithCause(err)
	}
	if value.SessionID == "" {
		return nil, core.ErrTransport.WithMessage("no session ID in response")
	}

	c.sessionID = value.SessionID
	logger.Info("session %s created on %s", c.sessionID, c.serverURL)
	return value.Capabilities, nil
}

// DeleteSession closes the session.
func (c *Client) DeleteSession(ctx context.Context) error {
	if c.sessionID == "" {
		return nil
	}
	_, err := c.Do(ctx, http.MethodDelete, c.sessionPath(), nil)
	if err != nil {
		logger.Warn("failed to delete session %s: %v", c.sessionID, err)
	} else {
		logger.Info("session %s deleted", c.sessionID)
	}
	c.sessionID = ""
	return err
}

// HTTP Helpers

func (c *Client) sessionPath() string {
	return "/session/" + c.sessionID
}

func (c *Client) elementPath(elementID string) string {
	return c.sessionPath() + "/element/" + elementID
}

func (c *Client) get(ctx context.Context, path string) (json.RawMessage, error) {
	return c.Do(ctx, http.MethodGet, path, nil)
}

func (c *Client) post(ctx context.Context, path string, body interface{}) (json.RawMessage, error) {
	if body == nil {
		// W3C requires a JSON object body on every POST.
		body = map[string]interface{}{}
	}
	return c.Do(ctx, http.MethodPost, path, body)
}

// Do performs one request/response exchange and returns the "value" member of
// the response envelope. Failures to reach the remote end, timeouts and
// malformed bodies return core.ErrTransport or core.ErrTimeout; W3C error
// envelopes return the matching remote error. Nothing is retried.
func (c *Client) Do(ctx context.Context, method, path string, body interface{}) (json.RawMessage, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	details := map[string]interface{}{"command": method + " " + path}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var bodyReader io.Reader
	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return nil, core.ErrInvalidArgument.WithDetails(details).WithCause(err)
		}
		bodyReader = bytes.NewReader(jsonBody)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.serverURL+path, bodyReader)
	if err != nil {
		return nil, core.ErrInvalidArgument.WithDetails(details).WithCause(err)
	}
	req.Header.Set("Content-Type", "application/json; charset=utf-8")
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.client.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			logger.Warn("%s %s timed out after %s", method, path, c.timeout)
			return nil, core.ErrTimeout.WithDetails(details).WithCause(err)
		}
		return nil, core.ErrTransport.WithDetails(details).WithCause(err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, core.ErrTransport.WithDetails(details).WithCause(err)
	}
	logger.Debug("%s %s -> %d in %s", method, path, resp.StatusCode, time.Since(start))

	var envelope struct {
		Value json.RawMessage `json:"value"`
	}
	if err := json.Unmarshal(respBody, &envelope); err != nil {
		details["status"] = resp.StatusCode
		return nil, core.ErrTransport.WithMessage("failed to parse response").WithDetails(details).WithCause(err)
	}
	if envelope.Value == nil {
		details["status"] = resp.StatusCode
		return nil, core.ErrTransport.WithMessage("response has no value member").WithDetails(details)
	}

	// Check for WebDriver error
	if remoteErr := parseRemoteError(envelope.Value); remoteErr != nil {
		details["status"] = resp.StatusCode
		return nil, remoteErr.WithDetails(details)
	}
	if resp.StatusCode >= http.StatusBadRequest {
		details["status"] = resp.StatusCode
		return nil, core.ErrTransport.WithMessage(fmt.Sprintf("unexpected HTTP status %d", resp.StatusCode)).WithDetails(details)
	}

	return envelope.Value, nil
}

func parseRemoteError(value json.RawMessage) *core.ExecutionError {
	var errValue struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	// Non-object values (null, strings, arrays) are never errors.
	if err := json.Unmarshal(value, &errValue); err != nil || errValue.Error == "" {
		return nil
	}
	return core.RemoteErrorFor(errValue.Error, errValue.Message)
}

func extractElementID(value map[string]interface{}) string {
	// W3C format
	if id, ok := value[w3cElementKey].(string); ok {
		return id
	}
	// Legacy format
	if id, ok := value["ELEMENT"].(string); ok {
		return id
	}
	return ""
}
