// Package dataverse is a client for the Microsoft Dataverse Web API,
// the REST interface of Dynamics 365 CRM environments.
package dataverse

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// DefaultAPIVersion is the Web API version used when none is configured.
const DefaultAPIVersion = "v9.2"

// defaultTimeout is the HTTP client timeout for Web API requests.
const defaultTimeout = 30 * time.Second

// TokenProvider supplies access tokens for Web API requests.
// Implementations are expected to cache tokens and refresh them on expiry.
type TokenProvider interface {
	GetToken(ctx context.Context) (string, error)
}

// Client issues authenticated requests against a Dataverse environment.
type Client struct {
	baseURL       string
	apiVersion    string
	tokenProvider TokenProvider
	httpClient    *http.Client
	rateLimiter   *RateLimiter
}

// Option configures a Client.
type Option func(*Client)

// WithAPIVersion overrides the Web API version (e.g. "v9.0").
func WithAPIVersion(version string) Option {
	return func(c *Client) {
		if version != "" {
			c.apiVersion = version
		}
	}
}

// WithHTTPClient overrides the HTTP client used for requests.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithRateLimit overrides the default service protection rate limits.
func WithRateLimit(cfg RateLimitConfig) Option {
	return func(c *Client) {
		c.rateLimiter = NewRateLimiterWithConfig(cfg)
	}
}

// New creates a client for the given environment URL
// (e.g. "https://contoso.crm.dynamics.com"). A trailing slash is tolerated.
func New(environmentURL string, tokenProvider TokenProvider, opts ...Option) (*Client, error) {
	base := strings.TrimSuffix(strings.TrimSpace(environmentURL), "/")
	if base == "" {
		return nil, fmt.Errorf("dataverse: environment URL is required")
	}
	if tokenProvider == nil {
		return nil, fmt.Errorf("dataverse: token provider is required")
	}

	c := &Client{
		baseURL:       base,
		apiVersion:    DefaultAPIVersion,
		tokenProvider: tokenProvider,
		httpClient:    &http.Client{Timeout: defaultTimeout},
		rateLimiter:   NewRateLimiter(),
	}
	for _, opt := range opts {
		opt(c)
	}

	return c, nil
}

// EnvironmentURL returns the normalised environment URL.
func (c *Client) EnvironmentURL() string {
	return c.baseURL
}

// apiURL builds the absolute URL for a Web API resource path.
func (c *Client) apiURL(resource string) string {
	return fmt.Sprintf("%s/api/data/%s/%s", c.baseURL, c.apiVersion, resource)
}

// Get retrieves a single record by id, e.g. Get(ctx, "leads", id, nil).
func (c *Client) Get(ctx context.Context, entitySet, id string, opts *QueryOptions) (Record, error) {
	if err := validateEntitySet(entitySet); err != nil {
		return nil, err
	}
	if err := validateRecordID(id); err != nil {
		return nil, err
	}

	requestURL := c.apiURL(fmt.Sprintf("%s(%s)", entitySet, id))
	if query := opts.encode(); query != "" {
		requestURL += "?" + query
	}

	body, _, err := c.doRequest(ctx, http.MethodGet, requestURL, nil, nil)
	if err != nil {
		return nil, err
	}

	var record Record
	if err := json.Unmarshal(body, &record); err != nil {
		return nil, fmt.Errorf("decode record: %w", err)
	}

	return record, nil
}

// List retrieves a single page of records from an entity set.
// Use Collection.NextLink with ListNext, or ListAll, for further pages.
func (c *Client) List(ctx context.Context, entitySet string, opts *QueryOptions) (*Collection, error) {
	if err := validateEntitySet(entitySet); err != nil {
		return nil, err
	}

	requestURL := c.apiURL(entitySet)
	if query := opts.encode(); query != "" {
		requestURL += "?" + query
	}

	return c.fetchCollection(ctx, requestURL, opts.preferHeader())
}

// ListNext retrieves the page at a previously returned @odata.nextLink.
// Pass the same opts as the original List call; the page size preference
// is a header, not part of the link, so it must be re-sent per request.
func (c *Client) ListNext(ctx context.Context, nextLink string, opts *QueryOptions) (*Collection, error) {
	if nextLink == "" {
		return nil, fmt.Errorf("dataverse: next link is empty")
	}
	return c.fetchCollection(ctx, nextLink, opts.preferHeader())
}

// ListAll retrieves every record from an entity set, following
// @odata.nextLink until exhausted. Each page fetch is rate-limited
// individually. Prefer a Filter or Top on large entity sets.
func (c *Client) ListAll(ctx context.Context, entitySet string, opts *QueryOptions) ([]Record, error) {
	page, err := c.List(ctx, entitySet, opts)
	if err != nil {
		return nil, err
	}

	records := page.Value
	for page.HasMore() {
		page, err = c.ListNext(ctx, page.NextLink, opts)
		if err != nil {
			return nil, err
		}
		records = append(records, page.Value...)
	}

	return records, nil
}

// Create inserts a new record and returns its id.
func (c *Client) Create(ctx context.Context, entitySet string, payload any) (string, error) {
	if err := validateEntitySet(entitySet); err != nil {
		return "", err
	}

	_, header, err := c.doRequest(ctx, http.MethodPost, c.apiURL(entitySet), payload, nil)
	if err != nil {
		return "", err
	}

	id, err := parseEntityID(header.Get("OData-EntityId"))
	if err != nil {
		return "", fmt.Errorf("parse created record id: %w", err)
	}

	return id, nil
}

// CreateAndReturn inserts a new record and returns the stored representation,
// using Prefer: return=representation. opts may narrow the returned attributes.
func (c *Client) CreateAndReturn(ctx context.Context, entitySet string, payload any, opts *QueryOptions) (Record, error) {
	if err := validateEntitySet(entitySet); err != nil {
		return nil, err
	}

	requestURL := c.apiURL(entitySet)
	if query := opts.encode(); query != "" {
		requestURL += "?" + query
	}

	headers := http.Header{}
	headers.Set("Prefer", "return=representation")

	body, _, err := c.doRequest(ctx, http.MethodPost, requestURL, payload, headers)
	if err != nil {
		return nil, err
	}

	var record Record
	if err := json.Unmarshal(body, &record); err != nil {
		return nil, fmt.Errorf("decode created record: %w", err)
	}

	return record, nil
}

// Update applies a partial update to an existing record.
// Sends If-Match: * so a missing record fails with ErrNotFound instead of
// the Web API's default upsert behaviour creating one.
func (c *Client) Update(ctx context.Context, entitySet, id string, payload any) error {
	if err := validateEntitySet(entitySet); err != nil {
		return err
	}
	if err := validateRecordID(id); err != nil {
		return err
	}

	headers := http.Header{}
	headers.Set("If-Match", "*")

	requestURL := c.apiURL(fmt.Sprintf("%s(%s)", entitySet, id))
	_, _, err := c.doRequest(ctx, http.MethodPatch, requestURL, payload, headers)
	return err
}

// Delete removes a record.
func (c *Client) Delete(ctx context.Context, entitySet, id string) error {
	if err := validateEntitySet(entitySet); err != nil {
		return err
	}
	if err := validateRecordID(id); err != nil {
		return err
	}

	requestURL := c.apiURL(fmt.Sprintf("%s(%s)", entitySet, id))
	_, _, err := c.doRequest(ctx, http.MethodDelete, requestURL, nil, nil)
	return err
}

// WhoAmI calls the WhoAmI unbound function. It is the cheapest way to
// verify that the environment URL and credentials are valid.
func (c *Client) WhoAmI(ctx context.Context) (*WhoAmIResponse, error) {
	body, _, err := c.doRequest(ctx, http.MethodGet, c.apiURL("WhoAmI"), nil, nil)
	if err != nil {
		return nil, err
	}

	var who WhoAmIResponse
	if err := json.Unmarshal(body, &who); err != nil {
		return nil, fmt.Errorf("decode WhoAmI response: %w", err)
	}

	return &who, nil
}

// fetchCollection fetches and decodes an entity set page.
func (c *Client) fetchCollection(ctx context.Context, requestURL, prefer string) (*Collection, error) {
	var headers http.Header
	if prefer != "" {
		headers = http.Header{}
		headers.Set("Prefer", prefer)
	}

	body, _, err := c.doRequest(ctx, http.MethodGet, requestURL, nil, headers)
	if err != nil {
		return nil, err
	}

	var collection Collection
	if err := json.Unmarshal(body, &collection); err != nil {
		return nil, fmt.Errorf("decode collection: %w", err)
	}

	return &collection, nil
}

// doRequest performs an authenticated Web API request and returns the
// response body and headers. Non-2xx responses are returned as *APIError.
func (c *Client) doRequest(
	ctx context.Context, method, requestURL string, payload any, extra http.Header,
) ([]byte, http.Header, error) {
	if err := c.rateLimiter.Wait(ctx); err != nil {
		return nil, nil, err
	}

	token, err := c.tokenProvider.GetToken(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("get access token: %w", err)
	}

	var reqBody io.Reader = http.NoBody
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, nil, fmt.Errorf("marshal payload: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, requestURL, reqBody)
	if err != nil {
		return nil, nil, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("OData-MaxVersion", "4.0")
	req.Header.Set("OData-Version", "4.0")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json; charset=utf-8")
	}
	for key, values := range extra {
		for _, v := range values {
			req.Header.Add(key, v)
		}
	}

	slog.Debug("dataverse request", "method", method, "url", requestURL)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, nil, fmt.Errorf("%s %s: %w", method, requestURL, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := newAPIError(resp.StatusCode, body)
		if resp.StatusCode == http.StatusTooManyRequests {
			apiErr.RetryAfter = parseRetryAfter(resp.Header.Get("Retry-After"))
			c.rateLimiter.RecordRateLimitError(apiErr.RetryAfter)
		}
		slog.Debug("dataverse request failed",
			"method", method, "url", requestURL, "status", resp.StatusCode)
		return nil, nil, apiErr
	}

	return body, resp.Header, nil
}

// validateEntitySet rejects empty entity set names before a request is built.
func validateEntitySet(entitySet string) error {
	if strings.TrimSpace(entitySet) == "" {
		return fmt.Errorf("dataverse: entity set name is required")
	}
	return nil
}

// validateRecordID ensures the record id is a GUID.
func validateRecordID(id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return fmt.Errorf("dataverse: invalid record id %q: %w", id, err)
	}
	return nil
}

// parseEntityID extracts the record GUID from an OData-EntityId header,
// e.g. "https://contoso.crm.dynamics.com/api/data/v9.2/leads(<guid>)".
func parseEntityID(header string) (string, error) {
	open := strings.LastIndex(header, "(")
	end := strings.LastIndex(header, ")")
	if open < 0 || end < open {
		return "", fmt.Errorf("malformed OData-EntityId header %q", header)
	}

	id := header[open+1 : end]
	if _, err := uuid.Parse(id); err != nil {
		return "", fmt.Errorf("malformed record id in OData-EntityId header %q", header)
	}

	return id, nil
}

// parseRetryAfter parses a Retry-After header value in seconds.
func parseRetryAfter(value string) int {
	if value == "" {
		return 0
	}
	seconds, err := strconv.Atoi(value)
	if err != nil {
		return 0
	}
	return seconds
}
