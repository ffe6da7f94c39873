// Package gateway is the typed client for the hosted data backend: row CRUD with
// filter predicates, exact counts, password auth and edge function calls.
package gateway

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	jsoniter "github.com/json-iterator/go"
	"github.com/zfogg/daredrop/pkg/config"
	"github.com/zfogg/daredrop/pkg/logger"
	"github.com/zfogg/daredrop/pkg/telemetry"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const userAgent = "Daredrop-CLI/0.1.0"

// TokenSource supplies the bearer token for row-level auth. An empty token falls back to the API key.
type TokenSource interface {
	AccessToken() string
}

// Options configures a Client
type Options struct {
	BaseURL   string
	APIKey    string
	Timeout   time.Duration
	Transport http.RoundTripper
	Tokens    TokenSource
}

// Client talks to the REST, auth and functions endpoints of the backend
type Client struct {
	http   *resty.Client
	apiKey string
	tokens TokenSource
}

// New creates a client from explicit options
func New(opts Options) *Client {
	httpClient := resty.New()
	httpClient.SetBaseURL(strings.TrimSuffix(opts.BaseURL, "/"))
	if opts.Timeout > 0 {
		httpClient.SetTimeout(opts.Timeout)
	}
	if opts.Transport != nil {
		httpClient.SetTransport(opts.Transport)
	}
	httpClient.JSONMarshal = json.Marshal
	httpClient.JSONUnmarshal = json.Unmarshal
	httpClient.SetHeader("User-Agent", userAgent)
	httpClient.SetHeader("apikey", opts.APIKey)

	c := &Client{http: httpClient, apiKey: opts.APIKey, tokens: opts.Tokens}

	httpClient.OnBeforeRequest(func(_ *resty.Client, req *resty.Request) error {
		if req.Header.Get("Authorization") == "" {
			req.SetHeader("Authorization", "Bearer "+c.bearer())
		}
		logger.Debug("HTTP Request", "method", req.Method, "url", req.URL)
		return nil
	})

	httpClient.OnAfterResponse(func(_ *resty.Client, resp *resty.Response) error {
		logger.Debug("HTTP Response", "status", resp.StatusCode(), "url", resp.Request.URL)
		return nil
	})

	return c
}

// NewFromConfig creates a traced client from api.* configuration
func NewFromConfig(tokens TokenSource) *Client {
	return New(Options{
		BaseURL:   config.GetString("api.base_url"),
		APIKey:    config.GetString("api.key"),
		Timeout:   time.Duration(config.GetInt("api.timeout")) * time.Second,
		Transport: telemetry.NewTransport(nil),
		Tokens:    tokens,
	})
}

// SetTokenSource replaces the bearer token source
func (c *Client) SetTokenSource(tokens TokenSource) {
	c.tokens = tokens
}

// APIKey returns the anonymous key the client was built with
func (c *Client) APIKey() string {
	return c.apiKey
}

// AccessToken returns the bearer token the next request will carry
func (c *Client) AccessToken() string {
	return c.bearer()
}

func (c *Client) bearer() string {
	if c.tokens != nil {
		if token := c.tokens.AccessToken(); token != "" {
			return token
		}
	}
	return c.apiKey
}

// R returns a new request, exposed for endpoints without a dedicated helper
func (c *Client) R() *resty.Request {
	return c.http.R()
}
