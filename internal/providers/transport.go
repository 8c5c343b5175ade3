// Package providers holds the REST clients for the third-party platforms an
// organization can connect, and the transport they share.
package providers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	gobreaker "github.com/sony/gobreaker/v2"
	"github.com/zfogg/beacon/internal/logger"
	"github.com/zfogg/beacon/internal/metrics"
	"github.com/zfogg/beacon/internal/telemetry"
	"go.uber.org/zap"
)

const userAgent = "Beacon/1.0"

// Options configures a provider Client.
type Options struct {
	Provider string
	BaseURL  string
	Timeout  time.Duration

	// FailureThreshold is the number of consecutive failures that opens the
	// circuit. OpenTimeout is how long it stays open.
	FailureThreshold uint32
	OpenTimeout      time.Duration
}

// Client is a resty client with tracing, metrics and a circuit breaker.
type Client struct {
	provider string
	rc       *resty.Client
	breaker  *gobreaker.CircuitBreaker[*resty.Response]
}

// NewClient creates the shared transport for one provider.
func NewClient(opts Options) *Client {
	if opts.FailureThreshold == 0 {
		opts.FailureThreshold = 5
	}
	if opts.OpenTimeout == 0 {
		opts.OpenTimeout = 30 * time.Second
	}

	rc := resty.NewWithClient(telemetry.NewInstrumentedHTTPClient(opts.Timeout))
	if opts.BaseURL != "" {
		rc.SetBaseURL(opts.BaseURL)
	}
	rc.SetHeader("User-Agent", userAgent)
	rc.SetHeader("Accept", "application/json")

	rc.OnBeforeRequest(func(_ *resty.Client, req *resty.Request) error {
		logger.Log.Debug("Provider request",
			logger.WithProvider(opts.Provider),
			zap.String("method", req.Method),
			zap.String("url", req.URL),
		)
		return nil
	})

	threshold := opts.FailureThreshold
	breaker := gobreaker.NewCircuitBreaker[*resty.Response](gobreaker.Settings{
		Name:        opts.Provider,
		MaxRequests: 1,
		Timeout:     opts.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		IsSuccessful: func(err error) bool {
			var pe *Error
			return err == nil || (errors.As(err, &pe) && pe.clientError())
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Log.Warn("Provider circuit breaker state changed",
				logger.WithProvider(name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
			if to == gobreaker.StateOpen {
				metrics.Get().ProviderCircuitOpenTotal.WithLabelValues(name).Inc()
			}
		},
	})

	return &Client{provider: opts.Provider, rc: rc, breaker: breaker}
}

// Provider returns the provider name used in errors and metrics.
func (c *Client) Provider() string {
	return c.provider
}

// R starts a request bound to ctx.
func (c *Client) R(ctx context.Context) *resty.Request {
	return c.rc.R().SetContext(ctx)
}

// Do executes req through the circuit breaker. A 2xx JSON body is decoded into
// out when out is non-nil. Every other outcome is returned as *Error.
func (c *Client) Do(req *resty.Request, operation, method, url string, out any) (*resty.Response, error) {
	ctx, span := telemetry.TraceExternalCall(req.Context(), telemetry.ExternalCallAttrs{
		Provider:  c.provider,
		Operation: operation,
	})
	defer span.End()
	req.SetContext(ctx)

	m := metrics.Get()
	start := time.Now()

	resp, err := c.breaker.Execute(func() (*resty.Response, error) {
		resp, err := req.Execute(method, url)
		if err != nil {
			return nil, &Error{Provider: c.provider, Operation: operation, Code: CodeTransport, Message: err.Error()}
		}
		if resp.IsError() {
			return resp, parseError(c.provider, operation, resp)
		}
		return resp, nil
	})
	m.ProviderCallDuration.WithLabelValues(c.provider, operation).Observe(time.Since(start).Seconds())

	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		m.ProviderCallsTotal.WithLabelValues(c.provider, operation, "rejected").Inc()
		err = &Error{Provider: c.provider, Operation: operation, Code: CodeCircuitOpen, Message: "circuit breaker open"}
		telemetry.RecordExternalCallError(span, err, 0)
		return nil, err
	}
	if err != nil {
		m.ProviderCallsTotal.WithLabelValues(c.provider, operation, "error").Inc()
		status := 0
		if resp != nil {
			status = resp.StatusCode()
		}
		telemetry.RecordExternalCallError(span, err, status)
		logger.Log.Warn("Provider call failed",
			logger.WithProvider(c.provider),
			zap.String("operation", operation),
			zap.Error(err),
		)
		return resp, err
	}

	m.ProviderCallsTotal.WithLabelValues(c.provider, operation, "success").Inc()
	telemetry.RecordExternalCallSuccess(span, resp.StatusCode())

	if out != nil && len(resp.Body()) > 0 {
		if err := json.Unmarshal(resp.Body(), out); err != nil {
			return resp, &Error{
				Provider:  c.provider,
				Operation: operation,
				Status:    resp.StatusCode(),
				Message:   fmt.Sprintf("decode response: %v", err),
			}
		}
	}
	return resp, nil
}

// Get is Do with GET.
func (c *Client) Get(req *resty.Request, operation, url string, out any) (*resty.Response, error) {
	return c.Do(req, operation, resty.MethodGet, url, out)
}

// Post is Do with POST.
func (c *Client) Post(req *resty.Request, operation, url string, out any) (*resty.Response, error) {
	return c.Do(req, operation, resty.MethodPost, url, out)
}
