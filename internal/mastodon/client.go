// Package mastodon is a small client for the Mastodon REST API covering what
// the bot needs: trends, search, reblog, profile updates, and app registration.
package mastodon

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

	"github.com/failsafe-go/failsafe-go"
	"github.com/failsafe-go/failsafe-go/timeout"
)

const (
	defaultUserAgent      = "hype"
	defaultRequestTimeout = 30 * time.Second
	maxBodyBytes          = 4 << 20
)

type Config struct {
	// Server is a hostname ("mastodon.social") or a base URL ("https://mastodon.social").
	Server      string
	AccessToken string
	UserAgent   string

	RatePerSec float64
	Burst      int

	// RequestTimeout bounds each HTTP request, including reading the body.
	RequestTimeout time.Duration

	HTTPClient *http.Client
}

// Client talks to one server. It is safe for concurrent use.
type Client struct {
	base  *url.URL
	host  string
	token string
	ua    string

	hc    *http.Client
	pace  *pacer
	exec  failsafe.Executor[*http.Response]
	limit time.Duration
}

func NewClient(cfg Config) (*Client, error) {
	base, err := baseURL(cfg.Server)
	if err != nil {
		return nil, err
	}
	ua := strings.TrimSpace(cfg.UserAgent)
	if ua == "" {
		ua = defaultUserAgent
	}
	rt := cfg.RequestTimeout
	if rt <= 0 {
		rt = defaultRequestTimeout
	}
	hc := cfg.HTTPClient
	if hc == nil {
		hc = &http.Client{}
	}
	return &Client{
		base:  base,
		host:  base.Host,
		token: strings.TrimSpace(cfg.AccessToken),
		ua:    ua,
		hc:    hc,
		pace:  newPacer(cfg.RatePerSec, cfg.Burst),
		exec:  failsafe.With[*http.Response](timeout.New[*http.Response](rt)),
		limit: rt,
	}, nil
}

// Host returns the server hostname (with port, if any).
func (c *Client) Host() string { return c.host }

func baseURL(server string) (*url.URL, error) {
	s := strings.TrimSpace(server)
	if s == "" {
		return nil, errors.New("mastodon: server is required")
	}
	if !strings.Contains(s, "://") {
		s = "https://" + s
	}
	u, err := url.Parse(s)
	if err != nil {
		return nil, fmt.Errorf("mastodon: invalid server %q: %w", server, err)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("mastodon: invalid server %q", server)
	}
	u.Path = strings.TrimSuffix(u.Path, "/")
	u.RawQuery = ""
	u.Fragment = ""
	return u, nil
}

// request describes one API call. Form bodies are sent url-encoded.
type request struct {
	method string
	path   string
	query  url.Values
	form   url.Values
	auth   bool
}

func (c *Client) do(ctx context.Context, r request, out any) error {
	if err := c.pace.Wait(ctx); err != nil {
		return &TransportError{Server: c.host, Op: r.method + " " + r.path, Err: err}
	}

	u := *c.base
	u.Path = c.base.Path + r.path
	if len(r.query) > 0 {
		u.RawQuery = r.query.Encode()
	}

	var payload []byte
	if r.form != nil {
		payload = []byte(r.form.Encode())
	}

	resp, err := c.exec.WithContext(ctx).GetWithExecution(func(exec failsafe.Execution[*http.Response]) (*http.Response, error) {
		var body io.Reader
		if payload != nil {
			body = bytes.NewReader(payload)
		}
		req, err := http.NewRequestWithContext(exec.Context(), r.method, u.String(), body)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Accept", "application/json")
		req.Header.Set("User-Agent", c.ua)
		if payload != nil {
			req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		}
		if r.auth && c.token != "" {
			req.Header.Set("Authorization", "Bearer "+c.token)
		}
		res, err := c.hc.Do(req)
		if err != nil {
			return nil, err
		}
		// Buffer the body inside the execution so the timeout covers it.
		b, err := io.ReadAll(io.LimitReader(res.Body, maxBodyBytes))
		_ = res.Body.Close()
		if err != nil {
			return nil, err
		}
		res.Body = io.NopCloser(bytes.NewReader(b))
		return res, nil
	})
	if err != nil {
		if errors.Is(err, timeout.ErrExceeded) {
			err = fmt.Errorf("request exceeded %s: %w", c.limit, err)
		}
		return &TransportError{Server: c.host, Op: r.method + " " + r.path, Err: err}
	}
	defer resp.Body.Close()

	c.pace.Observe(resp.Header)

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return parseAPIError(c.host, r.method, r.path, resp.StatusCode, body)
	}
	if out == nil || len(bytes.TrimSpace(body)) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("%s %s%s: decode response: %w", r.method, c.host, r.path, err)
	}
	return nil
}
