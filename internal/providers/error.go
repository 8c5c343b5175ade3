package providers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-resty/resty/v2"
	apierrors "github.com/zfogg/beacon/internal/errors"
)

// Error is a normalized failure of a third-party API call.
type Error struct {
	Provider  string
	Operation string
	Status    int    // HTTP status, 0 for transport failures
	Code      string // provider error code when the body carried one
	Message   string
}

func (e *Error) Error() string {
	if e.Status > 0 {
		return fmt.Sprintf("%s %s: [%d] %s", e.Provider, e.Operation, e.Status, e.Message)
	}
	return fmt.Sprintf("%s %s: %s", e.Provider, e.Operation, e.Message)
}

// AsAPIError maps the failure onto the API error codes.
func (e *Error) AsAPIError() *apierrors.APIError {
	switch {
	case e.Status == http.StatusUnauthorized:
		return apierrors.NotConnected(e.Provider).WithDetails(e.Message)
	case e.Status == http.StatusTooManyRequests:
		return apierrors.RateLimited(fmt.Sprintf("%s rate limit reached", e.Provider))
	case e.Code == CodeCircuitOpen:
		return apierrors.ServiceUnavailable(e.Provider)
	default:
		return apierrors.Upstream(e.Provider, e.Message)
	}
}

// clientError reports a 4xx response. Those do not count against the breaker.
func (e *Error) clientError() bool {
	return e.Status >= 400 && e.Status < 500 && e.Status != http.StatusTooManyRequests
}

const (
	CodeCircuitOpen = "circuit_open"
	CodeTransport   = "transport"
)

// IsUnauthorized reports whether err is a provider 401.
func IsUnauthorized(err error) bool {
	var pe *Error
	return errors.As(err, &pe) && pe.Status == http.StatusUnauthorized
}

// errorBody covers the shapes used by Google, Graph, LinkedIn and Webflow.
//
//	google:   {"error":{"code":403,"message":"...","status":"PERMISSION_DENIED"}}
//	graph:    {"error":{"message":"...","type":"OAuthException","code":190}}
//	oauth:    {"error":"invalid_grant","error_description":"..."}
//	linkedin: {"message":"...","serviceErrorCode":100,"status":403}
//	webflow:  {"code":"resource_not_found","message":"..."}
type errorBody struct {
	Error            json.RawMessage `json:"error"`
	ErrorDescription string          `json:"error_description"`
	Message          string          `json:"message"`
	Code             any             `json:"code"`
	ServiceErrorCode int             `json:"serviceErrorCode"`
}

type nestedError struct {
	Message string `json:"message"`
	Status  string `json:"status"`
	Type    string `json:"type"`
	Code    any    `json:"code"`
}

// parseError builds an Error from a non-2xx response.
func parseError(provider, operation string, resp *resty.Response) *Error {
	e := &Error{
		Provider:  provider,
		Operation: operation,
		Status:    resp.StatusCode(),
	}

	var body errorBody
	if err := json.Unmarshal(resp.Body(), &body); err == nil {
		if len(body.Error) > 0 {
			var nested nestedError
			var flat string
			switch {
			case json.Unmarshal(body.Error, &nested) == nil:
				e.Message = nested.Message
				e.Code = firstNonEmpty(nested.Status, nested.Type, codeString(nested.Code))
			case json.Unmarshal(body.Error, &flat) == nil:
				e.Code = flat
				e.Message = firstNonEmpty(body.ErrorDescription, flat)
			}
		}
		if e.Message == "" {
			e.Message = body.Message
		}
		if e.Code == "" {
			e.Code = codeString(body.Code)
		}
		if e.Code == "" && body.ServiceErrorCode != 0 {
			e.Code = strconv.Itoa(body.ServiceErrorCode)
		}
	}

	if e.Message == "" {
		e.Message = strings.TrimSpace(string(resp.Body()))
		if len(e.Message) > 200 {
			e.Message = e.Message[:200]
		}
	}
	if e.Message == "" {
		e.Message = http.StatusText(e.Status)
	}
	return e
}

func codeString(v any) string {
	switch c := v.(type) {
	case string:
		return c
	case float64:
		return strconv.FormatFloat(c, 'f', -1, 64)
	default:
		return ""
	}
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
