package delhivery

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/shopkart/fulfillment/pkg/carrier"
)

// Delhivery's error bodies are not documented consistently: the same endpoint
// can answer with {"error": "..."}, {"message": "..."}, an HTML page or plain
// text. Everything below collapses that zoo into carrier.Result / carrier.Error
// without ever letting a parse failure escape.

// errorRule maps a known body substring to an error classification. Rules are
// evaluated in order; the first match wins. Extend the list here instead of
// touching call sites.
type errorRule struct {
	substring string
	code      string
	retryable bool
}

var errorRules = []errorRule{
	{"invalid token", carrier.CodeAuthFailed, false},
	{"unauthorized", carrier.CodeAuthFailed, false},
	{"authentication", carrier.CodeAuthFailed, false},
	{"already exists", carrier.CodeDuplicate, false},
	{"duplicate", carrier.CodeDuplicate, false},
	{"timed out", carrier.CodeTimeout, true},
	{"timeout", carrier.CodeTimeout, true},
	{"too many requests", carrier.CodeUnavailable, true},
	{"rate limit", carrier.CodeUnavailable, true},
	{"service unavailable", carrier.CodeUnavailable, true},
}

// extractMessage pulls a human-readable message out of an error body.
// It tries the known JSON shapes first and falls back to the raw text.
func extractMessage(body []byte) string {
	var envelope struct {
		Message string `json:"message"`
		Error   string `json:"error"`
		Detail  string `json:"detail"`
	}
	if err := json.Unmarshal(body, &envelope); err == nil {
		switch {
		case envelope.Message != "":
			return envelope.Message
		case envelope.Error != "":
			return envelope.Error
		case envelope.Detail != "":
			return envelope.Detail
		}
	}

	// Some endpoints wrap the error one level down: {"data": {"message": ...}}
	var nested struct {
		Data struct {
			Message string `json:"message"`
			Error   string `json:"error"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &nested); err == nil {
		if nested.Data.Message != "" {
			return nested.Data.Message
		}
		if nested.Data.Error != "" {
			return nested.Data.Error
		}
	}

	text := strings.TrimSpace(string(body))
	if len(text) > 512 {
		text = text[:512]
	}
	return text
}

// classifyError turns a non-2xx response into a carrier.Error. Status codes
// take precedence; otherwise the body is matched against errorRules.
func classifyError(statusCode int, body []byte) *carrier.Error {
	message := extractMessage(body)
	if message == "" {
		message = http.StatusText(statusCode)
	}

	switch statusCode {
	case http.StatusUnauthorized, http.StatusForbidden:
		return carrier.NewError(carrierName, carrier.CodeAuthFailed, message).
			WithStatusCode(statusCode).WithCause(carrier.ErrAuthenticationFailed)
	case http.StatusConflict:
		return carrier.NewError(carrierName, carrier.CodeDuplicate, message).
			WithStatusCode(statusCode).WithCause(carrier.ErrDuplicateWarehouse)
	case http.StatusUnprocessableEntity:
		return carrier.NewError(carrierName, carrier.CodeValidation, message).
			WithStatusCode(statusCode).WithCause(carrier.ErrValidationFailed)
	}

	lower := strings.ToLower(message)
	for _, rule := range errorRules {
		if strings.Contains(lower, rule.substring) {
			err := carrier.NewError(carrierName, rule.code, message).
				WithStatusCode(statusCode).WithRetryable(rule.retryable)
			switch rule.code {
			case carrier.CodeAuthFailed:
				err.Cause = carrier.ErrAuthenticationFailed
			case carrier.CodeDuplicate:
				err.Cause = carrier.ErrDuplicateWarehouse
			}
			return err
		}
	}

	// 5xx and 429 without a recognizable body are transient.
	retryable := statusCode >= 500 || statusCode == http.StatusTooManyRequests
	return carrier.NewError(carrierName, carrier.CodeAPIError, message).
		WithStatusCode(statusCode).WithRetryable(retryable)
}

// decodeWarehouseResponse parses a 2xx warehouse create/edit body. A body
// that is not valid JSON still yields a successful response with the raw
// text preserved.
func decodeWarehouseResponse(body []byte) *WarehouseResponse {
	var resp WarehouseResponse
	if err := json.Unmarshal(body, &resp); err == nil {
		// Some endpoints answer 200 with success omitted; a parseable body
		// without an explicit error field counts as success.
		if !resp.Success && resp.Error == "" && resp.Message == "" {
			resp.Success = true
		}
		return &resp
	}
	return &WarehouseResponse{Success: true, RawBody: string(body)}
}

// resultFromWarehouseResponse collapses a wire response into carrier.Result.
func resultFromWarehouseResponse(resp *WarehouseResponse) *carrier.Result {
	result := &carrier.Result{
		Success: resp.Success,
		Message: resp.Message,
	}
	if result.Message == "" {
		result.Message = resp.Error
	}
	if resp.Data != nil {
		result.Data = resp.Data
		result.WarehouseName = resp.Data.Name
	} else if resp.RawBody != "" {
		result.Data = resp.RawBody
	}
	return result
}

// parseWaybills handles the bulk-waybill response, which is a JSON array for
// larger counts but a bare (sometimes quoted) comma-separated string for
// small ones.
func parseWaybills(body []byte) []string {
	var list []string
	if err := json.Unmarshal(body, &list); err == nil {
		return list
	}

	var single string
	if err := json.Unmarshal(body, &single); err == nil {
		return splitWaybills(single)
	}

	return splitWaybills(string(body))
}

func splitWaybills(s string) []string {
	parts := strings.Split(strings.TrimSpace(s), ",")
	waybills := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			waybills = append(waybills, p)
		}
	}
	return waybills
}

// timeoutMessage distinguishes a deadline from a generic connection error so
// operators can tell a slow carrier from an unreachable one.
func timeoutMessage(endpoint string, err error) string {
	return fmt.Sprintf("request to %s timed out: %v", endpoint, err)
}
