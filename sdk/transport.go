package resilios

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/vango-go/resilios/pkg/core"
)

const defaultRequestTimeout = 2 * time.Minute

// doJSON sends payload (if any) as JSON and decodes a 2xx body into out.
func (c *Client) doJSON(ctx context.Context, method, path string, query url.Values, payload, out any) error {
	ctx, cancel := withDefaultTimeout(ctx)
	defer cancel()

	resp, endpoint, err := c.send(ctx, method, path, query, payload)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return decodeErrorResponse(resp, endpoint, method)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &core.Error{
			Type:      core.ErrAPI,
			Message:   "failed to decode gateway response",
			RequestID: requestIDFromHeader(resp.Header),
		}
	}
	return nil
}

// send issues the request. The caller owns the response body.
func (c *Client) send(ctx context.Context, method, path string, query url.Values, payload any) (*http.Response, string, error) {
	endpoint, err := c.endpoint(path, query)
	if err != nil {
		return nil, "", err
	}

	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return nil, endpoint, core.NewInvalidRequestError("failed to marshal request body")
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return nil, endpoint, &TransportError{Op: method, URL: endpoint, Err: err}
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	if token := c.Token(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, endpoint, &TransportError{Op: method, URL: endpoint, Err: err}
	}
	c.logger.Debug("gateway request",
		"method", method,
		"path", path,
		"status", resp.StatusCode,
		"request_id", requestIDFromHeader(resp.Header),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return resp, endpoint, nil
}

func (c *Client) endpoint(path string, query url.Values) (string, error) {
	rawBaseURL := strings.TrimSpace(c.baseURL)
	if rawBaseURL == "" {
		return "", core.NewInvalidRequestError("gateway base URL is not set")
	}

	base, err := url.Parse(rawBaseURL)
	if err != nil || strings.TrimSpace(base.Scheme) == "" || strings.TrimSpace(base.Host) == "" {
		return "", core.NewInvalidRequestError("invalid gateway base URL")
	}
	if base.User != nil {
		return "", core.NewInvalidRequestError("gateway base URL must not include credentials")
	}

	base.RawQuery = ""
	base.Fragment = ""

	cleanPath := "/" + strings.TrimLeft(path, "/")
	basePath := strings.TrimSuffix(base.Path, "/")
	if basePath == "" || basePath == "/" {
		base.Path = cleanPath
	} else {
		base.Path = basePath + cleanPath
	}
	base.RawPath = ""
	if len(query) > 0 {
		base.RawQuery = query.Encode()
	}

	return base.String(), nil
}

func decodeErrorResponse(resp *http.Response, endpoint, method string) error {
	defer resp.Body.Close()

	requestID := requestIDFromHeader(resp.Header)
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return &TransportError{Op: method, URL: endpoint, Err: err}
	}

	var env struct {
		Error *core.Error `json:"error"`
	}
	if err := json.Unmarshal(body, &env); err == nil && env.Error != nil {
		if env.Error.RequestID == "" {
			env.Error.RequestID = requestID
		}
		if env.Error.RetryAfter == nil {
			env.Error.RetryAfter = parseRetryAfterHeader(resp.Header.Get("Retry-After"))
		}
		if env.Error.Type == "" {
			env.Error.Type = inferErrorType(resp.StatusCode)
		}
		if env.Error.Message == "" {
			env.Error.Message = http.StatusText(resp.StatusCode)
		}
		return env.Error
	}

	msg := "gateway request failed"
	if resp.StatusCode > 0 {
		msg = fmt.Sprintf("gateway request failed with status %d", resp.StatusCode)
	}
	return &core.Error{
		Type:       inferErrorType(resp.StatusCode),
		Message:    msg,
		RequestID:  requestID,
		RetryAfter: parseRetryAfterHeader(resp.Header.Get("Retry-After")),
	}
}

func inferErrorType(statusCode int) core.ErrorType {
	switch statusCode {
	case http.StatusBadRequest, http.StatusRequestEntityTooLarge:
		return core.ErrInvalidRequest
	case http.StatusUnauthorized:
		return core.ErrAuthentication
	case http.StatusPaymentRequired:
		return core.ErrPaymentRequired
	case http.StatusForbidden:
		return core.ErrPermission
	case http.StatusNotFound:
		return core.ErrNotFound
	case http.StatusConflict:
		return core.ErrConflict
	case http.StatusTooManyRequests:
		return core.ErrRateLimit
	case http.StatusNotImplemented:
		return core.ErrNotConfigured
	case http.StatusBadGateway:
		return core.ErrProvider
	default:
		return core.ErrAPI
	}
}

func requestIDFromHeader(h http.Header) string {
	if h == nil {
		return ""
	}
	return strings.TrimSpace(h.Get("X-Request-ID"))
}

func parseRetryAfterHeader(raw string) *int {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	seconds, err := strconv.Atoi(raw)
	if err != nil {
		return nil
	}
	return &seconds
}

func withDefaultTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if ctx == nil {
		return context.WithTimeout(context.Background(), defaultRequestTimeout)
	}
	if _, hasDeadline := ctx.Deadline(); hasDeadline {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, defaultRequestTimeout)
}
