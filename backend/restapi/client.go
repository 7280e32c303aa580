// Package restapi is the auth backend that talks to the Dentalization REST
// API over HTTP.
//
// Validation contract: the client sends registrations as given and relays
// the server's 400/422 responses as validation errors.
//
// Login answers 401 for both a wrong password and an unknown email, so both
// surface as invalid credentials. Only an API that answers 404 yields the
// email not registered message.
package restapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	autherrors "github.com/jrsteele09/dentalization-auth/internal/errors"
	"github.com/jrsteele09/dentalization-auth/internal/metrics"
	"github.com/rs/zerolog/log"
	"github.com/sony/gobreaker/v2"
)

// breakerName labels the circuit breaker in logs and metrics.
const breakerName = "rest-api"

// Timeouts bounds each kind of request.
type Timeouts struct {
	Default time.Duration
	Login   time.Duration
	Upload  time.Duration
}

// DefaultTimeouts are used when no Timeouts option is given.
var DefaultTimeouts = Timeouts{
	Default: 10 * time.Second,
	Login:   15 * time.Second,
	Upload:  30 * time.Second,
}

// BreakerSettings tunes the circuit breaker that guards the API.
type BreakerSettings struct {
	// ConsecutiveFailures trips the breaker open.
	ConsecutiveFailures uint32
	// OpenTimeout is how long the breaker stays open before a trial request.
	OpenTimeout time.Duration
}

// client is the HTTP plumbing shared by every operation.
type client struct {
	baseURL  string
	http     *http.Client
	breaker  *gobreaker.CircuitBreaker[*http.Response]
	timeouts Timeouts
	metrics  *metrics.Metrics
	language string
}

// envelope is the response wrapper the API uses for every auth endpoint.
type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data,omitempty"`
	Message string          `json:"message,omitempty"`
	Errors  json.RawMessage `json:"errors,omitempty"`
}

// serverError is a 5xx response. It counts as a breaker failure.
type serverError struct {
	status int
	body   []byte
}

func (e *serverError) Error() string {
	return fmt.Sprintf("server error %d", e.status)
}

func newBreaker(settings BreakerSettings, m *metrics.Metrics) *gobreaker.CircuitBreaker[*http.Response] {
	failures := settings.ConsecutiveFailures
	if failures == 0 {
		failures = 5
	}
	m.BreakerState(breakerName, 0)
	return gobreaker.NewCircuitBreaker[*http.Response](gobreaker.Settings{
		Name:        breakerName,
		MaxRequests: 1,
		Timeout:     settings.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= failures
		},
		IsSuccessful: func(err error) bool {
			// A caller giving up says nothing about the API.
			return err == nil || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).Msg("circuit breaker state change")
			m.BreakerState(name, stateToFloat(to))
		},
	})
}

// stateToFloat maps gobreaker states to prometheus gauge values.
func stateToFloat(state gobreaker.State) float64 {
	switch state {
	case gobreaker.StateClosed:
		return 0
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return -1
	}
}

// postJSON sends body to path and decodes the envelope's data into out when
// out is non-nil.
func (c *client) postJSON(ctx context.Context, op, path string, timeout time.Duration, bearer string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return autherrors.Wrap(autherrors.KindInternal, op, err)
	}
	return c.do(ctx, op, http.MethodPost, path, timeout, func(req *http.Request) {
		req.Header.Set("Content-Type", "application/json")
		if bearer != "" {
			req.Header.Set("Authorization", "Bearer "+bearer)
		}
	}, payload, out)
}

func (c *client) do(ctx context.Context, op, method, path string, timeout time.Duration, prepare func(*http.Request), payload []byte, out any) error {
	reqCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	resp, err := c.breaker.Execute(func() (*http.Response, error) {
		var body io.Reader = http.NoBody
		if payload != nil {
			body = bytes.NewReader(payload)
		}
		req, err := http.NewRequestWithContext(reqCtx, method, c.baseURL+path, body)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Accept", "application/json")
		if c.language != "" {
			req.Header.Set("Accept-Language", c.language)
		}
		if prepare != nil {
			prepare(req)
		}

		resp, err := c.http.Do(req)
		if err != nil {
			return nil, err
		}
		if resp.StatusCode >= http.StatusInternalServerError {
			b, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
			_ = resp.Body.Close()
			return nil, &serverError{status: resp.StatusCode, body: b}
		}
		return resp, nil
	})
	if err != nil {
		return classify(ctx, op, err)
	}
	defer resp.Body.Close()

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		if resp.StatusCode >= http.StatusBadRequest {
			return statusError(op, resp.StatusCode, "")
		}
		return autherrors.Wrap(autherrors.KindInternal, op, err)
	}
	if resp.StatusCode >= http.StatusBadRequest || !env.Success {
		return statusError(op, resp.StatusCode, env.Message)
	}
	if out != nil && len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, out); err != nil {
			return autherrors.Wrap(autherrors.KindInternal, op, err)
		}
	}
	return nil
}

// classify maps a transport failure to an error kind. A cancelled caller
// context is returned as is so the facade stops trying other backends.
func classify(ctx context.Context, op string, err error) error {
	if ctx.Err() != nil && errors.Is(ctx.Err(), context.Canceled) {
		return ctx.Err()
	}

	var se *serverError
	var netErr net.Error
	switch {
	case errors.As(err, &se):
		return statusError(op, se.status, messageFromBody(se.body))
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		return autherrors.New(autherrors.KindUnavailable, op, "API temporarily unavailable")
	case errors.Is(err, context.DeadlineExceeded), errors.As(err, &netErr) && netErr.Timeout():
		return autherrors.WithOp(autherrors.ErrRequestTimeout, op)
	}
	return &autherrors.Error{Kind: autherrors.KindNetwork, Op: op, Message: "network error", Err: err}
}

func statusError(op string, status int, message string) error {
	if message == "" {
		message = http.StatusText(status)
	}
	return autherrors.New(kindForStatus(status), op, message)
}

func kindForStatus(status int) autherrors.Kind {
	switch {
	case status == http.StatusBadRequest, status == http.StatusUnprocessableEntity:
		return autherrors.KindValidation
	case status == http.StatusUnauthorized:
		return autherrors.KindInvalidCredentials
	case status == http.StatusForbidden:
		return autherrors.KindForbidden
	case status == http.StatusNotFound:
		return autherrors.KindUserNotFound
	case status == http.StatusConflict:
		return autherrors.KindAlreadyExists
	case status == http.StatusRequestTimeout, status == http.StatusGatewayTimeout:
		return autherrors.KindTimeout
	case status >= http.StatusInternalServerError:
		return autherrors.KindUnavailable
	}
	return autherrors.KindInternal
}

func messageFromBody(body []byte) string {
	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return ""
	}
	return strings.TrimSpace(env.Message)
}
