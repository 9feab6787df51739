// Package client talks to the cashier backend over HTTP. It implements the
// catalog, promotion, identity and transaction collaborators of a session.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/sony/gobreaker/v2"

	"kasirinaja/cashier/internal/domain"
)

const maxResponseBytes = 4 << 20

var ErrUnavailable = errors.New("backend unavailable")

// APIError is a non-2xx answer from the backend.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("backend returned %d", e.Status)
	}
	return fmt.Sprintf("backend returned %d: %s", e.Status, e.Message)
}

type Options struct {
	Timeout    time.Duration
	HTTPClient *http.Client
	Logger     *slog.Logger
	// MaxFailures consecutive transport or 5xx failures open the breaker.
	MaxFailures uint32
	// OpenTimeout is how long the breaker stays open before probing.
	OpenTimeout time.Duration
}

type Client struct {
	baseURL *url.URL
	http    *http.Client
	breaker *gobreaker.CircuitBreaker[rawResponse]
	log     *slog.Logger

	mu    sync.RWMutex
	token string
}

type rawResponse struct {
	status int
	body   []byte
}

type envelope[T any] struct {
	Data  T      `json:"data"`
	Error string `json:"error"`
}

func New(baseURL string, opts Options) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(strings.TrimSpace(baseURL), "/"))
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("base url must be http or https, got %q", baseURL)
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{Timeout: opts.Timeout}
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.MaxFailures == 0 {
		opts.MaxFailures = 5
	}
	if opts.OpenTimeout <= 0 {
		opts.OpenTimeout = 15 * time.Second
	}

	logger := opts.Logger
	breaker := gobreaker.NewCircuitBreaker[rawResponse](gobreaker.Settings{
		Name:        "cashier-backend",
		MaxRequests: 1,
		Timeout:     opts.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= opts.MaxFailures
		},
		IsSuccessful: func(err error) bool {
			// Cancellation says nothing about backend health.
			return err == nil || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.Warn("circuit breaker state changed", "breaker", name, "from", from.String(), "to", to.String())
		},
	})

	return &Client{baseURL: u, http: opts.HTTPClient, breaker: breaker, log: logger}, nil
}

func (c *Client) SetToken(token string) {
	c.mu.Lock()
	c.token = token
	c.mu.Unlock()
}

func (c *Client) Token() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

// Login exchanges credentials for a bearer token used by every later call.
func (c *Client) Login(ctx context.Context, username, password string) (domain.LoginResponse, error) {
	resp, err := call[domain.LoginResponse](ctx, c, http.MethodPost, "/api/v1/auth/login", domain.LoginRequest{
		Username: username,
		Password: password,
	})
	if err != nil {
		return domain.LoginResponse{}, err
	}
	c.SetToken(resp.AccessToken)
	return resp, nil
}

func (c *Client) FetchProducts(ctx context.Context) ([]domain.Product, error) {
	return call[[]domain.Product](ctx, c, http.MethodGet, "/api/v1/products", nil)
}

func (c *Client) FetchPromotions(ctx context.Context) ([]domain.PromotionRule, error) {
	return call[[]domain.PromotionRule](ctx, c, http.MethodGet, "/api/v1/promotions", nil)
}

func (c *Client) FetchCurrentUser(ctx context.Context) (*domain.User, error) {
	user, err := call[domain.User](ctx, c, http.MethodGet, "/api/v1/me", nil)
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (c *Client) SubmitTransaction(ctx context.Context, payload domain.TransactionPayload) (domain.TransactionReceipt, error) {
	return call[domain.TransactionReceipt](ctx, c, http.MethodPost, "/api/v1/transactions", payload)
}

func (c *Client) FetchReceipt(ctx context.Context, transactionID string) (domain.HardwareReceipt, error) {
	path := "/api/v1/transactions/" + url.PathEscape(transactionID) + "/receipt"
	return call[domain.HardwareReceipt](ctx, c, http.MethodGet, path, nil)
}

// call sends one request through the breaker and decodes the envelope into T.
func call[T any](ctx context.Context, c *Client, method, path string, body any) (T, error) {
	var zero T

	var payload []byte
	if body != nil {
		var err error
		if payload, err = json.Marshal(body); err != nil {
			return zero, fmt.Errorf("encode request: %w", err)
		}
	}

	raw, err := c.breaker.Execute(func() (rawResponse, error) {
		return c.roundTrip(ctx, method, path, payload)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return zero, fmt.Errorf("%w: %w", ErrUnavailable, err)
		}
		return zero, err
	}

	var env envelope[T]
	if len(raw.body) > 0 {
		if err := json.Unmarshal(raw.body, &env); err != nil {
			if raw.status >= 300 {
				return zero, &APIError{Status: raw.status}
			}
			return zero, fmt.Errorf("decode %s %s: %w", method, path, err)
		}
	}
	if raw.status >= 300 {
		return zero, &APIError{Status: raw.status, Message: env.Error}
	}
	return env.Data, nil
}

// roundTrip fails only on transport errors and 5xx answers so client
// mistakes never trip the breaker.
func (c *Client) roundTrip(ctx context.Context, method, path string, payload []byte) (rawResponse, error) {
	target := c.baseURL.JoinPath(path)
	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, target.String(), reader)
	if err != nil {
		return rawResponse{}, err
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token := c.Token(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return rawResponse{}, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return rawResponse{}, fmt.Errorf("read response: %w", err)
	}
	raw := rawResponse{status: resp.StatusCode, body: data}
	if resp.StatusCode >= 500 {
		return raw, &APIError{Status: resp.StatusCode, Message: errorMessage(data)}
	}
	return raw, nil
}

func errorMessage(body []byte) string {
	var env envelope[json.RawMessage]
	if err := json.Unmarshal(body, &env); err != nil {
		return ""
	}
	return env.Error
}
