// Package reporting talks to the reporting server's HTTP management interface.
package reporting

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/ObjectivityLtd/PSCI/internal/foundation/errors"
)

// Client provides common HTTP operations against the management API.
// Catalog operations in this package are built on top of it.
type Client struct {
	httpClient *http.Client
	apiURL     string
	token      string

	authHeaderPrefix string
	customHeaders    map[string]string
}

// NewClient creates a management API client. Token auth uses a Bearer header
// by default; SetAuthHeaderPrefix overrides it for servers with other schemes.
func NewClient(httpClient *http.Client, apiURL, token string) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &Client{
		httpClient:       httpClient,
		apiURL:           apiURL,
		token:            token,
		authHeaderPrefix: "Bearer ",
		customHeaders:    make(map[string]string),
	}
}

// SetAuthHeaderPrefix customizes the authorization header format.
func (c *Client) SetAuthHeaderPrefix(prefix string) {
	c.authHeaderPrefix = prefix
}

// SetCustomHeader sets server-specific headers.
func (c *Client) SetCustomHeader(key, value string) {
	c.customHeaders[key] = value
}

// NewRequest creates an HTTP request against the management API.
// Endpoint should be a relative path like "/folders"; query strings in the
// endpoint are preserved.
func (c *Client) NewRequest(ctx context.Context, method, endpoint string, body any) (*http.Request, error) {
	cleanEndpoint := strings.TrimPrefix(endpoint, "/")

	var rawQuery string
	if idx := strings.Index(cleanEndpoint, "?"); idx != -1 {
		rawQuery = cleanEndpoint[idx+1:]
		cleanEndpoint = cleanEndpoint[:idx]
	}

	u, err := url.Parse(c.apiURL)
	if err != nil {
		return nil, errors.ReportingError("failed to parse API URL").
			WithCause(err).
			WithContext("api_url", c.apiURL).
			Build()
	}

	basePath := strings.TrimSuffix(u.Path, "/")
	u.Path = path.Join(basePath, cleanEndpoint)
	if rawQuery != "" {
		u.RawQuery = rawQuery
	}

	var req *http.Request
	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return nil, errors.ReportingError("failed to marshal request body").
				WithCause(err).
				Build()
		}
		req, err = http.NewRequestWithContext(ctx, method, u.String(), bytes.NewReader(jsonBody))
		if err != nil {
			return nil, errors.ReportingError("failed to create request").
				WithCause(err).
				WithContext("method", method).
				WithContext("url", u.String()).
				Build()
		}
		req.Header.Set("Content-Type", "application/json")
	} else {
		req, err = http.NewRequestWithContext(ctx, method, u.String(), http.NoBody)
		if err != nil {
			return nil, errors.ReportingError("failed to create request").
				WithCause(err).
				WithContext("method", method).
				WithContext("url", u.String()).
				Build()
		}
	}

	if c.token != "" {
		req.Header.Set("Authorization", c.authHeaderPrefix+c.token)
	}
	req.Header.Set("User-Agent", "PSCI/1.0")

	for key, value := range c.customHeaders {
		req.Header.Set(key, value)
	}

	return req, nil
}

// DoRequest executes an HTTP request and decodes the JSON response into result.
// Status codes >= 400 become classified errors; 409 maps to already_exists so
// callers can branch on overwrite semantics.
func (c *Client) DoRequest(req *http.Request, result any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return errors.NetworkError("failed to execute management request").
			WithCause(err).
			WithContext("method", req.Method).
			WithContext("url", req.URL.String()).
			Build()
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 400 {
		limitedBody, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		bodyStr := strings.ReplaceAll(string(limitedBody), "\n", " ")

		category := errors.CategoryReporting
		switch resp.StatusCode {
		case http.StatusUnauthorized, http.StatusForbidden:
			category = errors.CategoryAuth
		case http.StatusNotFound:
			category = errors.CategoryNotFound
		case http.StatusConflict:
			category = errors.CategoryAlreadyExists
		}

		builder := errors.NewError(category, fmt.Sprintf("management API error: %s", resp.Status)).
			WithContext("status", resp.Status).
			WithContext("code", resp.StatusCode).
			WithContext("url", req.URL.String()).
			WithContext("response", bodyStr)
		// Server-side failures are transient; deploy retry keys on this.
		if resp.StatusCode >= http.StatusInternalServerError {
			builder = builder.Retryable()
		}
		return builder.Build()
	}

	if result != nil {
		if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
			return errors.ReportingError("failed to decode response").
				WithCause(err).
				Build()
		}
	}

	return nil
}

// IsAlreadyExists reports whether an error is the already-exists conflict.
func IsAlreadyExists(err error) bool {
	return errors.HasCategory(err, errors.CategoryAlreadyExists)
}

// IsNotFound reports whether an error is a not-found response.
func IsNotFound(err error) bool {
	return errors.HasCategory(err, errors.CategoryNotFound)
}
