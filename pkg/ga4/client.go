package ga4

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2/expirable"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/jwt"

	"github.com/platinummonkey/sitepulse/pkg/config"
	"github.com/platinummonkey/sitepulse/pkg/observability"
)

// Scope is the read-only Analytics scope requested for the service account
const Scope = "https://www.googleapis.com/auth/analytics.readonly"

const defaultTokenURL = "https://oauth2.googleapis.com/token"

var (
	// ErrNotConfigured is returned when no property or credentials are set
	ErrNotConfigured = errors.New("ga4: not configured")
	// ErrUnavailable is returned when the required core query fails
	ErrUnavailable = errors.New("ga4: upstream unavailable")
)

// Client queries the GA4 Data API
type Client struct {
	propertyID string
	endpoint   string
	http       *http.Client
	cache      *lru.LRU[string, *reportResponse]
	logger     *observability.Logger
	metrics    *observability.Metrics
}

// serviceAccountKey is the subset of a Google credentials JSON file we need
type serviceAccountKey struct {
	Type        string `json:"type"`
	ClientEmail string `json:"client_email"`
	PrivateKey  string `json:"private_key"`
	TokenURI    string `json:"token_uri"`
}

// New creates a client that sends requests through httpClient. A nil
// httpClient leaves the client unconfigured.
func New(cfg config.GA4Config, httpClient *http.Client, logger *observability.Logger, metrics *observability.Metrics) *Client {
	if logger == nil {
		logger = observability.NopLogger()
	}
	size := cfg.CacheSize
	if size <= 0 {
		size = 256
	}
	ttl := cfg.CacheTTL
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}

	c := &Client{
		propertyID: cfg.PropertyID,
		endpoint:   strings.TrimRight(cfg.Endpoint, "/"),
		http:       httpClient,
		cache:      lru.NewLRU[string, *reportResponse](size, nil, ttl),
		logger:     logger.Named("ga4"),
		metrics:    metrics,
	}
	if c.propertyID == "" {
		c.http = nil
	}
	return c
}

// NewFromConfig builds an authorised client from cfg. Missing credentials
// yield an unconfigured client and no error.
func NewFromConfig(ctx context.Context, cfg config.GA4Config, logger *observability.Logger, metrics *observability.Metrics) (*Client, error) {
	if !cfg.Configured() {
		return New(cfg, nil, logger, metrics), nil
	}

	jwtCfg, err := jwtConfig(cfg)
	if err != nil {
		return nil, err
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	base := &http.Client{
		Transport: otelhttp.NewTransport(http.DefaultTransport),
		Timeout:   timeout,
	}
	// token fetches and API calls both go through base's instrumented transport
	authCtx := context.WithValue(context.Background(), oauth2.HTTPClient, base)
	httpClient := jwtCfg.Client(authCtx)
	httpClient.Timeout = timeout

	return New(cfg, httpClient, logger, metrics), nil
}

func jwtConfig(cfg config.GA4Config) (*jwt.Config, error) {
	email, key, tokenURL := cfg.ClientEmail, cfg.PrivateKey, cfg.TokenURL

	if cfg.CredentialsFile != "" {
		raw, err := os.ReadFile(cfg.CredentialsFile)
		if err != nil {
			return nil, fmt.Errorf("read GA4 credentials file: %w", err)
		}
		var sa serviceAccountKey
		if err := json.Unmarshal(raw, &sa); err != nil {
			return nil, fmt.Errorf("parse GA4 credentials file: %w", err)
		}
		if sa.Type != "" && sa.Type != "service_account" {
			return nil, fmt.Errorf("GA4 credentials file has type %q, want service_account", sa.Type)
		}
		email, key = sa.ClientEmail, sa.PrivateKey
		if sa.TokenURI != "" && cfg.TokenURL == "" {
			tokenURL = sa.TokenURI
		}
	}

	if email == "" || key == "" {
		return nil, fmt.Errorf("GA4 credentials are missing client_email or private_key")
	}
	if tokenURL == "" {
		tokenURL = defaultTokenURL
	}

	return &jwt.Config{
		Email:      email,
		PrivateKey: []byte(key),
		Scopes:     []string{Scope},
		TokenURL:   tokenURL,
	}, nil
}

// Configured reports whether requests can be made
func (c *Client) Configured() bool {
	return c != nil && c.http != nil && c.propertyID != "" && c.endpoint != ""
}

// runReport executes one report query, serving it from cache when possible
func (c *Client) runReport(ctx context.Context, kind, rangeKey string, req reportRequest) (*reportResponse, error) {
	key := kind + "|" + rangeKey
	if resp, ok := c.cache.Get(key); ok {
		c.metrics.RecordCache(kind, true)
		return resp, nil
	}
	c.metrics.RecordCache(kind, false)

	start := time.Now()
	resp, err := c.post(ctx, req)
	c.metrics.RecordUpstream(kind, time.Since(start), err)
	if err != nil {
		return nil, fmt.Errorf("%s report: %w", kind, err)
	}

	c.cache.Add(key, resp)
	return resp, nil
}

func (c *Client) post(ctx context.Context, req reportRequest) (*reportResponse, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}

	url := fmt.Sprintf("%s/properties/%s:runReport", c.endpoint, c.propertyID)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	httpResp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(httpResp.Body, 512))
		return nil, fmt.Errorf("status %d: %s", httpResp.StatusCode, strings.TrimSpace(string(snippet)))
	}

	var resp reportResponse
	if err := json.NewDecoder(httpResp.Body).Decode(&resp); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &resp, nil
}

// Purge drops every cached response
func (c *Client) Purge() {
	c.cache.Purge()
}
