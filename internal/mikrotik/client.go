package mikrotik

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"gigawatch/internal/metrics"
)

const (
	inboxPath = "/rest/tool/sms/inbox"
	sendPath  = "/rest/tool/sms/send"
)

// Sms is one inbox entry as the RouterOS REST API reports it. The three
// timestamp fields differ in fidelity across RouterOS versions; Timestamp and
// Received are ISO-8601 when present, Time is the router-local date string.
type Sms struct {
	ID        string `json:".id"`
	Message   string `json:"message"`
	Timestamp string `json:"timestamp,omitempty"`
	Time      string `json:"time,omitempty"`
	Received  string `json:"received,omitempty"`
	From      string `json:"from,omitempty"`
}

// Options parameterise the RouterOS client.
type Options struct {
	BaseURL        string
	AuthBase64     string
	Username       string
	Password       string
	ConnectTimeout time.Duration
	RequestTimeout time.Duration
}

// Client talks to the RouterOS REST management surface.
type Client struct {
	baseURL string
	auth    string
	client  *http.Client
	logger  zerolog.Logger
}

// NewClient constructs a RouterOS client. Credentials come either from a
// pre-encoded basic-auth value or from a username/password pair.
func NewClient(opts Options, logger zerolog.Logger) (*Client, error) {
	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		return nil, errors.New("mikrotik base URL not set")
	}

	auth, err := resolveAuth(opts)
	if err != nil {
		return nil, err
	}

	connectTimeout := opts.ConnectTimeout
	if connectTimeout <= 0 {
		connectTimeout = 2 * time.Second
	}
	requestTimeout := opts.RequestTimeout
	if requestTimeout <= 0 {
		requestTimeout = 10 * time.Second
	}

	return &Client{
		baseURL: baseURL,
		auth:    auth,
		client: &http.Client{
			Timeout: requestTimeout,
			Transport: &http.Transport{
				DialContext: (&net.Dialer{Timeout: connectTimeout}).DialContext,
			},
		},
		logger: logger.With().Str("component", "mikrotik").Logger(),
	}, nil
}

func resolveAuth(opts Options) (string, error) {
	if opts.AuthBase64 != "" {
		return "Basic " + opts.AuthBase64, nil
	}
	if opts.Username != "" && opts.Password != "" {
		creds := opts.Username + ":" + opts.Password
		return "Basic " + base64.StdEncoding.EncodeToString([]byte(creds)), nil
	}
	return "", errors.New("set MIKROTIK_AUTH_BASE64 or MIKROTIK_USER and MIKROTIK_PASSWORD (or MIKROTIK_PASS)")
}

// ListInbox enumerates the SMS inbox.
func (c *Client) ListInbox(ctx context.Context) ([]Sms, error) {
	var out []Sms
	if err := c.fetch(ctx, http.MethodGet, inboxPath, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// SendSMS commands the router to send one outbound SMS.
func (c *Client) SendSMS(ctx context.Context, to, body string) error {
	c.logger.Info().Str("to", to).Msg("sending SMS")
	payload := map[string]string{
		"phone-number": to,
		"message":      body,
	}
	var discard json.RawMessage
	if err := c.fetch(ctx, http.MethodPost, sendPath, payload, &discard); err != nil {
		return err
	}
	metrics.SMSSent.Inc()
	return nil
}

func (c *Client) fetch(ctx context.Context, method, path string, payload, out any) error {
	url := c.baseURL + path
	c.logger.Debug().Str("method", method).Str("url", url).Msg("router request")

	var body io.Reader
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("marshal router payload: %w", err)
		}
		body = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return fmt.Errorf("create router request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", c.auth)
	req.Header.Set("Cache-Control", "no-store")

	resp, err := c.client.Do(req)
	if err != nil {
		c.logError(method, url, err)
		return fmt.Errorf("sending %s %s: %w", method, url, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading body from %s %s: %w", method, url, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		if www := resp.Header.Get("Www-Authenticate"); www != "" {
			c.logger.Warn().Str("www_authenticate", www).Msg("router rejected credentials")
		}
		return parseHTTPError(method, url, resp.StatusCode, raw)
	}

	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decoding JSON from %s %s: %w (body snippet: %s)", method, url, err, snippet(raw))
	}
	return nil
}

func (c *Client) logError(method, url string, err error) {
	evt := c.logger.Error().Err(err).Str("method", method).Str("url", url)
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		evt = evt.Str("hint", "request timed out; router unreachable or slow")
	} else {
		evt = evt.Str("hint", "connection failed (DNS/route/refused/TLS); check MIKROTIK_URL and reachability")
	}
	evt.Msg("router request failed")
}

type apiError struct {
	Error   int    `json:"error"`
	Message string `json:"message"`
	Detail  string `json:"detail"`
}

func parseHTTPError(method, url string, status int, payload []byte) error {
	var apiErr apiError
	if err := json.Unmarshal(payload, &apiErr); err == nil {
		if apiErr.Detail != "" {
			return fmt.Errorf("%s %s failed with status %d: %s", method, url, status, apiErr.Detail)
		}
		if apiErr.Message != "" {
			return fmt.Errorf("%s %s failed with status %d: %s", method, url, status, apiErr.Message)
		}
	}
	if len(payload) > 0 {
		return fmt.Errorf("%s %s failed with status %d: %s", method, url, status, snippet(payload))
	}
	return fmt.Errorf("%s %s failed with status %d", method, url, status)
}

func snippet(raw []byte) string {
	s := strings.TrimSpace(string(raw))
	if len(s) > 300 {
		s = s[:300]
	}
	return s
}
