// Package netgear implements the HTTP API of Netgear LTE modems
// (LB1120/LB2120/LM1200 family): session authentication, inbox listing via
// model.json and per-id SMS deletion through the config form endpoint.
package netgear

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"
)

// SMS is one raw inbox record as the modem reports it. Fields the modem
// omitted are left empty; an unusable id is reported as -1 so callers can
// skip the record without losing the rest of the listing.
type SMS struct {
	ID        int
	Sender    string
	Message   string
	Timestamp string
	Unread    bool
}

// CompatibilityError reports a model.json shape this client does not
// understand, which usually means a firmware/client version skew.
type CompatibilityError struct {
	Detail string
}

func (e *CompatibilityError) Error() string {
	return "netgear: unexpected response shape: " + e.Detail
}

// Options holds client configuration.
type Options struct {
	Host     string // "192.168.5.1" or "http://192.168.5.1"
	Password string
	// HTTPClient overrides the default client; mainly for tests.
	HTTPClient *http.Client
}

// Client communicates with one Netgear LTE modem. One instance is shared by
// every request targeting the modem, so it is safe for concurrent use.
type Client struct {
	baseURL    string
	password   string
	httpClient *http.Client

	mu       sync.Mutex // guards secToken and the login sequence
	secToken string
}

// NewClient creates a modem client. No network traffic happens until the
// first call.
func NewClient(opts Options) (*Client, error) {
	if opts.Host == "" {
		return nil, fmt.Errorf("netgear: host is required")
	}

	baseURL := opts.Host
	if !strings.HasPrefix(baseURL, "http") {
		baseURL = "http://" + baseURL
	}
	baseURL = strings.TrimSuffix(baseURL, "/")

	httpClient := opts.HTTPClient
	if httpClient == nil {
		jar, _ := cookiejar.New(nil)
		httpClient = &http.Client{Jar: jar, Timeout: 30 * time.Second}
	}

	return &Client{
		baseURL:    baseURL,
		password:   opts.Password,
		httpClient: httpClient,
	}, nil
}

// model fetches and decodes /api/model.json.
func (c *Client) model(ctx context.Context) (map[string]json.RawMessage, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", c.baseURL+"/api/model.json?internalapi=1", nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("netgear: fetch model.json: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("netgear: model.json returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	var payload map[string]json.RawMessage
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, &CompatibilityError{Detail: "model.json is not a JSON object: " + err.Error()}
	}
	return payload, nil
}

// ensureSession returns the session token, logging in first when no session
// exists yet.
func (c *Client) ensureSession(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.secToken == "" {
		if err := c.login(ctx); err != nil {
			return "", err
		}
	}
	return c.secToken, nil
}

// refreshSession discards the cached token and logs in again.
func (c *Client) refreshSession(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.login(ctx); err != nil {
		return "", err
	}
	return c.secToken, nil
}

// login refreshes the session token and authenticates against the config
// form endpoint. The caller must hold c.mu.
func (c *Client) login(ctx context.Context) error {
	payload, err := c.model(ctx)
	if err != nil {
		return err
	}

	raw, ok := payload["session"]
	if !ok {
		return &CompatibilityError{Detail: "model.json has no session object"}
	}
	var session struct {
		SecToken string `json:"secToken"`
	}
	if err := json.Unmarshal(raw, &session); err != nil || session.SecToken == "" {
		return &CompatibilityError{Detail: "session.secToken missing from model.json"}
	}
	c.secToken = session.SecToken

	form := url.Values{}
	form.Set("token", c.secToken)
	form.Set("session.password", c.password)
	form.Set("err_redirect", "/error.json")
	form.Set("ok_redirect", "/success.json")

	if err := c.postConfig(ctx, form); err != nil {
		return fmt.Errorf("netgear: login: %w", err)
	}
	return nil
}

// postConfig submits the Forms/config endpoint the modem uses for every
// state-changing operation.
func (c *Client) postConfig(ctx context.Context, form url.Values) error {
	req, err := http.NewRequestWithContext(
		ctx, "POST", c.baseURL+"/Forms/config", strings.NewReader(form.Encode()),
	)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusFound {
		return fmt.Errorf("config form returned status %d", resp.StatusCode)
	}
	// The modem signals a rejected token by bouncing to the error redirect.
	if resp.Request != nil && strings.Contains(resp.Request.URL.Path, "error") {
		return fmt.Errorf("config form rejected (redirected to %s)", resp.Request.URL.Path)
	}
	return nil
}

// SMSList returns the raw inbox. Records the modem garbled keep their place
// in the slice with ID -1.
func (c *Client) SMSList(ctx context.Context) ([]SMS, error) {
	if _, err := c.ensureSession(ctx); err != nil {
		return nil, err
	}

	payload, err := c.model(ctx)
	if err != nil {
		return nil, err
	}

	rawSMS, ok := payload["sms"]
	if !ok {
		return nil, &CompatibilityError{Detail: "model.json has no sms object"}
	}
	var inbox struct {
		Msgs []json.RawMessage `json:"msgs"`
	}
	if err := json.Unmarshal(rawSMS, &inbox); err != nil {
		return nil, &CompatibilityError{Detail: "sms.msgs has an unexpected shape: " + err.Error()}
	}

	messages := make([]SMS, 0, len(inbox.Msgs))
	for _, raw := range inbox.Msgs {
		messages = append(messages, parseRecord(raw))
	}
	return messages, nil
}

// DeleteSMS removes one message from the modem inbox. A stale session is
// refreshed once before giving up.
func (c *Client) DeleteSMS(ctx context.Context, id int) error {
	token, err := c.ensureSession(ctx)
	if err != nil {
		return err
	}

	form := url.Values{}
	form.Set("token", token)
	form.Set("sms.deleteId", strconv.Itoa(id))
	form.Set("err_redirect", "/error.json")
	form.Set("ok_redirect", "/success.json")

	err = c.postConfig(ctx, form)
	if err == nil {
		return nil
	}

	token, loginErr := c.refreshSession(ctx)
	if loginErr != nil {
		return loginErr
	}
	form.Set("token", token)
	if err := c.postConfig(ctx, form); err != nil {
		return fmt.Errorf("netgear: delete sms %d: %w", id, err)
	}
	return nil
}

// parseRecord extracts one SMS from a raw msgs entry without failing the
// whole listing on a single bad record.
func parseRecord(raw json.RawMessage) SMS {
	var rec struct {
		ID      json.Number `json:"id"`
		Sender  string      `json:"sender"`
		Text    string      `json:"text"`
		Message string      `json:"message"`
		RxTime  string      `json:"rxTime"`
		Unread  bool        `json:"unread"`
	}

	sms := SMS{ID: -1}
	if err := json.Unmarshal(raw, &rec); err != nil {
		return sms
	}

	if id, err := strconv.Atoi(rec.ID.String()); err == nil {
		sms.ID = id
	}
	sms.Sender = rec.Sender
	sms.Timestamp = rec.RxTime
	sms.Unread = rec.Unread

	text := rec.Text
	if text == "" {
		text = rec.Message
	}
	// Non-GSM payloads arrive hex-encoded UCS-2.
	sms.Message = maybeDecodeUCS2(text)

	return sms
}
