package delhivery

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/sony/gobreaker"

	"github.com/shopkart/fulfillment/pkg/carrier"
)

const (
	warehouseCreatePath = "/api/backend/clientwarehouse/create/"
	warehouseEditPath   = "/api/backend/clientwarehouse/edit/"
	warehouseListPath   = "/api/backend/clientwarehouse/list/"
	manifestPath        = "/api/cmu/create.json"
	trackingPath        = "/api/v1/packages/json/"
	waybillPath         = "/waybill/api/bulk/json/"
	pickupPath          = "/fm/request/new/"
)

// HTTPAPIClient is the production implementation of APIClient using HTTP.
type HTTPAPIClient struct {
	baseURL           string
	stagingURL        string
	apiToken          string
	allowDemoFallback bool
	requestTimeout    time.Duration
	httpClient        *http.Client
	breaker           *gobreaker.CircuitBreaker
}

// HTTPAPIClientConfig holds configuration for the HTTP client.
type HTTPAPIClientConfig struct {
	BaseURL    string // production host, e.g. https://track.delhivery.com
	StagingURL string // staging host used when AllowDemoFallback is set
	APIToken   string

	// AllowDemoFallback widens the endpoint priority list with the staging
	// host instead of introducing a separate code path.
	AllowDemoFallback bool

	// Timeout bounds each individual endpoint attempt.
	Timeout time.Duration
}

// NewHTTPAPIClient creates a new HTTP-based API client for production use.
func NewHTTPAPIClient(cfg HTTPAPIClientConfig) *HTTPAPIClient {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 20 * time.Second
	}

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "delhivery",
		Timeout: 30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	})

	return &HTTPAPIClient{
		baseURL:           strings.TrimRight(cfg.BaseURL, "/"),
		stagingURL:        strings.TrimRight(cfg.StagingURL, "/"),
		apiToken:          cfg.APIToken,
		allowDemoFallback: cfg.AllowDemoFallback,
		requestTimeout:    timeout,
		httpClient: &http.Client{
			// The per-attempt context deadline governs; this is a safety net.
			Timeout: timeout + 5*time.Second,
		},
		breaker: breaker,
	}
}

// endpoint is one method+URL combination in a priority list.
type endpoint struct {
	method string
	host   string
	path   string
}

func (e endpoint) String() string {
	return e.method + " " + e.host + e.path
}

// warehouseCreateEndpoints returns the prioritized endpoint list for
// warehouse registration. The edit endpoint doubles as a fallback because
// Delhivery answers it for both new and existing names on some accounts.
func (c *HTTPAPIClient) warehouseCreateEndpoints() []endpoint {
	eps := []endpoint{
		{http.MethodPost, c.baseURL, warehouseCreatePath},
		{http.MethodPut, c.baseURL, warehouseEditPath},
	}
	if c.allowDemoFallback && c.stagingURL != "" {
		eps = append(eps,
			endpoint{http.MethodPost, c.stagingURL, warehouseCreatePath},
			endpoint{http.MethodPut, c.stagingURL, warehouseEditPath},
		)
	}
	return eps
}

func (c *HTTPAPIClient) warehouseEditEndpoints() []endpoint {
	eps := []endpoint{
		{http.MethodPut, c.baseURL, warehouseEditPath},
		{http.MethodPost, c.baseURL, warehouseEditPath},
	}
	if c.allowDemoFallback && c.stagingURL != "" {
		eps = append(eps, endpoint{http.MethodPut, c.stagingURL, warehouseEditPath})
	}
	return eps
}

// CreateWarehouse registers a warehouse, walking the endpoint priority list.
func (c *HTTPAPIClient) CreateWarehouse(ctx context.Context, req *WarehousePayload) (*WarehouseResponse, error) {
	return c.tryWarehouseEndpoints(ctx, c.warehouseCreateEndpoints(), req)
}

// EditWarehouse updates a registered warehouse with the same discipline.
func (c *HTTPAPIClient) EditWarehouse(ctx context.Context, req *WarehousePayload) (*WarehouseResponse, error) {
	return c.tryWarehouseEndpoints(ctx, c.warehouseEditEndpoints(), req)
}

// tryWarehouseEndpoints walks the endpoint list in order, stopping at the
// first 200/201. Auth (401/403), conflict (409) and validation (422) failures
// are fatal and short-circuit the remaining endpoints; everything else is
// retriable until the list is exhausted.
func (c *HTTPAPIClient) tryWarehouseEndpoints(ctx context.Context, endpoints []endpoint, req *WarehousePayload) (*WarehouseResponse, error) {
	if err := c.checkCredentials(); err != nil {
		return nil, err
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshaling warehouse payload: %w", err)
	}

	var lastErr error
	for _, ep := range endpoints {
		// Fresh reader per attempt; a prior attempt consumes the body.
		status, respBody, err := c.do(ctx, ep, bytes.NewReader(body), "application/json")
		if err != nil {
			lastErr = err
			if !carrier.IsRetryable(err) {
				return nil, err
			}
			continue
		}

		switch {
		case status == http.StatusOK || status == http.StatusCreated:
			return decodeWarehouseResponse(respBody), nil
		default:
			apiErr := classifyError(status, respBody)
			if !apiErr.Retryable {
				return nil, apiErr
			}
			lastErr = apiErr
		}
	}

	return nil, exhausted(lastErr)
}

// ListWarehouses fetches all client warehouses.
func (c *HTTPAPIClient) ListWarehouses(ctx context.Context) (*WarehouseListResponse, error) {
	if err := c.checkCredentials(); err != nil {
		return nil, err
	}

	hosts := []string{c.baseURL}
	if c.allowDemoFallback && c.stagingURL != "" {
		hosts = append(hosts, c.stagingURL)
	}

	var lastErr error
	for _, host := range hosts {
		ep := endpoint{http.MethodGet, host, warehouseListPath}
		status, body, err := c.do(ctx, ep, nil, "")
		if err != nil {
			lastErr = err
			if !carrier.IsRetryable(err) {
				return nil, err
			}
			continue
		}

		if status != http.StatusOK {
			apiErr := classifyError(status, body)
			if !apiErr.Retryable {
				return nil, apiErr
			}
			lastErr = apiErr
			continue
		}

		var resp WarehouseListResponse
		if err := json.Unmarshal(body, &resp); err == nil && resp.Data != nil {
			return &resp, nil
		}

		// Some deployments return a bare array.
		var data []WarehouseData
		if err := json.Unmarshal(body, &data); err == nil {
			return &WarehouseListResponse{Success: true, Data: data}, nil
		}

		lastErr = carrier.NewError(carrierName, carrier.CodeAPIError,
			"unparseable warehouse list response").WithRetryable(true)
	}

	return nil, exhausted(lastErr)
}

// Ping issues a lightweight authenticated probe against the list endpoint
// and returns the status code.
func (c *HTTPAPIClient) Ping(ctx context.Context) (int, error) {
	if err := c.checkCredentials(); err != nil {
		return 0, err
	}

	ep := endpoint{http.MethodGet, c.baseURL, warehouseListPath}
	status, _, err := c.do(ctx, ep, nil, "")
	if err != nil {
		return 0, err
	}
	return status, nil
}

// CreateShipment submits a manifest. Delhivery's manifest endpoint expects
// the JSON payload wrapped in a form body: `format=json&data=<json>`.
func (c *HTTPAPIClient) CreateShipment(ctx context.Context, req *ManifestPayload) (*ManifestResponse, error) {
	if err := c.checkCredentials(); err != nil {
		return nil, err
	}

	data, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshaling manifest payload: %w", err)
	}

	form := url.Values{}
	form.Set("format", "json")
	form.Set("data", string(data))

	ep := endpoint{http.MethodPost, c.baseURL, manifestPath}
	status, body, err := c.do(ctx, ep, strings.NewReader(form.Encode()), "application/x-www-form-urlencoded")
	if err != nil {
		return nil, err
	}

	if status != http.StatusOK && status != http.StatusCreated {
		return nil, classifyError(status, body)
	}

	var resp ManifestResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, carrier.NewError(carrierName, carrier.CodeAPIError,
			"unparseable manifest response: "+extractMessage(body))
	}
	return &resp, nil
}

// GetTracking retrieves tracking information for a waybill.
func (c *HTTPAPIClient) GetTracking(ctx context.Context, waybill string) (*TrackingResponse, error) {
	if err := c.checkCredentials(); err != nil {
		return nil, err
	}

	ep := endpoint{http.MethodGet, c.baseURL, trackingPath + "?waybill=" + url.QueryEscape(waybill)}
	status, body, err := c.do(ctx, ep, nil, "")
	if err != nil {
		return nil, err
	}

	if status != http.StatusOK {
		return nil, classifyError(status, body)
	}

	var resp TrackingResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, carrier.NewError(carrierName, carrier.CodeAPIError,
			"unparseable tracking response: "+extractMessage(body))
	}
	if resp.Error != "" {
		return nil, carrier.NewError(carrierName, carrier.CodeNotFound, resp.Error).
			WithCause(carrier.ErrWarehouseNotFound)
	}
	return &resp, nil
}

// RequestPickup schedules a pickup visit at a registered warehouse.
func (c *HTTPAPIClient) RequestPickup(ctx context.Context, req *PickupPayload) (*PickupResponse, error) {
	if err := c.checkCredentials(); err != nil {
		return nil, err
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshaling pickup payload: %w", err)
	}

	ep := endpoint{http.MethodPost, c.baseURL, pickupPath}
	status, respBody, err := c.do(ctx, ep, bytes.NewReader(body), "application/json")
	if err != nil {
		return nil, err
	}

	if status != http.StatusOK && status != http.StatusCreated {
		return nil, classifyError(status, respBody)
	}

	var resp PickupResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return nil, carrier.NewError(carrierName, carrier.CodeAPIError,
			"unparseable pickup response: "+extractMessage(respBody))
	}
	if resp.Error != "" {
		return nil, carrier.NewError(carrierName, carrier.CodeAPIError, resp.Error)
	}
	return &resp, nil
}

// FetchWaybills reserves a batch of waybill numbers.
func (c *HTTPAPIClient) FetchWaybills(ctx context.Context, count int) ([]string, error) {
	if err := c.checkCredentials(); err != nil {
		return nil, err
	}

	ep := endpoint{http.MethodGet, c.baseURL, waybillPath + "?count=" + strconv.Itoa(count)}
	status, body, err := c.do(ctx, ep, nil, "")
	if err != nil {
		return nil, err
	}

	if status != http.StatusOK {
		return nil, classifyError(status, body)
	}
	return parseWaybills(body), nil
}

// checkCredentials fails fast on missing configuration so an unset token
// surfaces as a config error, not a per-request 401.
func (c *HTTPAPIClient) checkCredentials() error {
	if c.apiToken == "" || c.baseURL == "" {
		return carrier.NewError(carrierName, carrier.CodeMissingCredentials,
			"Delhivery token or base URL not configured").
			WithCause(carrier.ErrMissingCredentials)
	}
	return nil
}

// doResult carries a response through the circuit breaker.
type doResult struct {
	status int
	body   []byte
}

// do performs one bounded HTTP attempt through the circuit breaker.
// Transport errors come back as retriable carrier errors; a timeout is
// distinguishable from a connection failure in the message.
func (c *HTTPAPIClient) do(ctx context.Context, ep endpoint, body io.Reader, contentType string) (int, []byte, error) {
	result, err := c.breaker.Execute(func() (interface{}, error) {
		attemptCtx, cancel := context.WithTimeout(ctx, c.requestTimeout)
		defer cancel()

		req, err := http.NewRequestWithContext(attemptCtx, ep.method, ep.host+ep.path, body)
		if err != nil {
			return nil, fmt.Errorf("creating request: %w", err)
		}

		if contentType != "" {
			req.Header.Set("Content-Type", contentType)
		}
		req.Header.Set("Accept", "application/json")
		req.Header.Set("Authorization", "Token "+c.apiToken)
		req.Header.Set("User-Agent", "shopkart-fulfillment/1.0")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()

		respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		if err != nil {
			return nil, fmt.Errorf("reading response body: %w", err)
		}
		return doResult{status: resp.StatusCode, body: respBody}, nil
	})

	if err != nil {
		return 0, nil, c.transportError(ep, err)
	}

	res := result.(doResult)
	return res.status, res.body, nil
}

// transportError classifies breaker and network failures as retriable.
func (c *HTTPAPIClient) transportError(ep endpoint, err error) error {
	switch {
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		return carrier.NewError(carrierName, carrier.CodeUnavailable,
			"circuit breaker open for "+ep.String()).
			WithRetryable(true).WithCause(carrier.ErrCarrierUnavailable)
	case errors.Is(err, context.DeadlineExceeded):
		return carrier.NewError(carrierName, carrier.CodeTimeout, timeoutMessage(ep.String(), err)).
			WithRetryable(true).WithCause(err)
	default:
		return carrier.NewError(carrierName, carrier.CodeUnavailable,
			fmt.Sprintf("request to %s failed: %v", ep.String(), err)).
			WithRetryable(true).WithCause(err)
	}
}

// exhausted wraps the last per-endpoint error once every attempt has failed.
func exhausted(lastErr error) error {
	if lastErr == nil {
		lastErr = carrier.ErrCarrierUnavailable
	}
	var carrierErr *carrier.Error
	if errors.As(lastErr, &carrierErr) {
		return carrier.NewError(carrierName, carrier.CodeUnavailable,
			"all endpoints exhausted: "+carrierErr.Message).
			WithStatusCode(carrierErr.StatusCode).
			WithRetryable(true).
			WithCause(carrier.ErrCarrierUnavailable)
	}
	return carrier.NewError(carrierName, carrier.CodeUnavailable,
		"all endpoints exhausted").
		WithRetryable(true).WithCause(lastErr)
}

// Ensure HTTPAPIClient implements APIClient interface
var _ APIClient = (*HTTPAPIClient)(nil)
