// Package api talks to the ExtraHop appliance management API over HTTPS.
// A Client is pinned to one appliance for the duration of a run and retries
// transient transport failures on a fresh connection.
package api

import (
	"bytes"
	"crypto/tls"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"
)

// Response is a fully materialized exchange result. The body is read once
// by the client, so callers can inspect it as often as they like.
type Response struct {
	StatusCode int
	Status     string
	Body       []byte
}

// OK reports whether the status code is in the 2xx range.
func (r *Response) OK() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// Client is an HTTPS client for one appliance. Connections are established
// lazily and dropped whenever a request fails, so the next attempt dials
// fresh.
type Client struct {
	host      string
	apiKey    string
	cfg       Config
	transport *http.Transport
	hc        *http.Client
	sleep     func(time.Duration)
}

// NewClient builds a client for the given appliance host (host or
// host:port) and API key.
func NewClient(host, apiKey string, cfg Config) *Client {
	if cfg.MaxRetries < 1 {
		cfg.MaxRetries = 1
	}
	transport := &http.Transport{
		TLSClientConfig: &tls.Config{InsecureSkipVerify: cfg.insecureSkipVerify()},
	}
	return &Client{
		host:      host,
		apiKey:    apiKey,
		cfg:       cfg,
		transport: transport,
		hc: &http.Client{
			Transport: transport,
			Timeout:   cfg.timeout(),
		},
		sleep: time.Sleep,
	}
}

// Host returns the appliance host this client is pinned to.
func (c *Client) Host() string {
	return c.host
}

// Connect probes TLS reachability of the appliance, retrying up to the
// configured bound. A false return means all attempts failed; the client
// remains usable and will dial again on the next request.
func (c *Client) Connect() bool {
	slog.Info("Setting up HTTPS connection", "host", c.host)
	addr := c.host
	if !strings.Contains(addr, ":") {
		addr = net.JoinHostPort(addr, "443")
	}
	tlsCfg := &tls.Config{InsecureSkipVerify: c.cfg.insecureSkipVerify()}
	for attempt := 1; attempt <= c.cfg.MaxRetries; attempt++ {
		dialer := &net.Dialer{Timeout: c.cfg.timeout()}
		conn, err := tls.DialWithDialer(dialer, "tcp", addr, tlsCfg)
		if err == nil {
			conn.Close()
			return true
		}
		slog.Error("Connection attempt failed",
			"host", c.host, "attempt", attempt, "max_attempts", c.cfg.MaxRetries, "error", err)
		if attempt < c.cfg.MaxRetries {
			c.sleep(c.cfg.backoff())
		}
	}
	slog.Error("Failed to connect", "host", c.host, "attempts", c.cfg.MaxRetries)
	return false
}

// Do sends one request and returns the materialized response. Transport
// failures drop the pooled connections and retry on a fresh dial up to the
// configured bound; after exhausting the bound the last error is returned.
// A non-2xx status is not an error here, callers decide what it means.
func (c *Client) Do(method, path string, body []byte) (*Response, error) {
	url := "https://" + c.host + path
	slog.Debug("Sending request", "method", method, "url", url)

	var lastErr error
	for attempt := 1; attempt <= c.cfg.MaxRetries; attempt++ {
		resp, err := c.attempt(method, url, body)
		if err == nil {
			slog.Debug("Received response",
				"method", method, "url", url, "status", resp.StatusCode)
			return resp, nil
		}
		lastErr = err
		slog.Error("Request failed",
			"method", method, "url", url,
			"attempt", attempt, "max_attempts", c.cfg.MaxRetries, "error", err)
		// Drop pooled connections so the next attempt dials fresh.
		c.transport.CloseIdleConnections()
		if attempt < c.cfg.MaxRetries {
			c.sleep(c.cfg.backoff())
		}
	}
	slog.Error("Request exhausted retries",
		"method", method, "url", url, "attempts", c.cfg.MaxRetries)
	return nil, fmt.Errorf("%s %s failed after %d attempts: %w",
		method, path, c.cfg.MaxRetries, lastErr)
}

func (c *Client) attempt(method, url string, body []byte) (*Response, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("accept", "application/json")
	req.Header.Set("Authorization", "ExtraHop apikey="+c.apiKey)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.hc.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	// Read the body here so callers never touch the wire stream.
	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response body: %w", err)
	}
	return &Response{
		StatusCode: resp.StatusCode,
		Status:     resp.Status,
		Body:       respBody,
	}, nil
}
