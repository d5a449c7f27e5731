// Package profileapi is the HTTP client for the external profile service
// that supplies participant profiles with declared and inferred needs.
package profileapi

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"

	"github.com/sells-group/network-cli/internal/model"
	"github.com/sells-group/network-cli/internal/resilience"
)

// Client fetches participant profiles from the upstream service.
type Client interface {
	// FetchProfile returns one participant's profile. A participant the
	// service does not know yields a resilience.UnavailableError.
	FetchProfile(ctx context.Context, participantID string) (*model.Profile, error)

	// FetchParticipants lists all participant IDs known to the service.
	FetchParticipants(ctx context.Context) ([]string, error)
}

// Option configures the client.
type Option func(*client)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *client) {
		c.httpClient = hc
	}
}

// WithRateLimit sets the requests-per-second limit.
func WithRateLimit(rps float64) Option {
	return func(c *client) {
		burst := int(rps)
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

// WithRetry overrides the retry settings.
func WithRetry(cfg resilience.RetryConfig) Option {
	return func(c *client) {
		cfg.ShouldRetry = retryTransientOnly
		c.retry = cfg
	}
}

// WithBreaker overrides the circuit breaker settings.
func WithBreaker(cfg resilience.BreakerConfig) Option {
	return func(c *client) {
		c.breaker = resilience.NewBreaker(cfg)
	}
}

type client struct {
	baseURL    string
	key        string
	httpClient *http.Client
	limiter    *rate.Limiter
	retry      resilience.RetryConfig
	breaker    *resilience.Breaker
}

// An unknown participant is a definitive answer, not an outage; only
// transient failures are worth retrying.
func retryTransientOnly(err error) bool {
	return resilience.IsTransient(err)
}

// New creates a profile service client.
func New(baseURL, key string, opts ...Option) Client {
	retry := resilience.DefaultRetryConfig()
	retry.ShouldRetry = retryTransientOnly
	retry.OnRetry = resilience.RetryLogger("profileapi", "fetch")

	c := &client{
		baseURL:    baseURL,
		key:        key,
		httpClient: &http.Client{Timeout: 15 * time.Second},
		limiter:    rate.NewLimiter(10, 10),
		retry:      retry,
		breaker:    resilience.NewBreaker(resilience.BreakerConfig{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *client) FetchProfile(ctx context.Context, participantID string) (*model.Profile, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, eris.Wrap(err, "profileapi: rate limiter")
	}
	return resilience.DoVal(ctx, c.retry, func(ctx context.Context) (*model.Profile, error) {
		return resilience.BreakerVal(ctx, c.breaker, func(ctx context.Context) (*model.Profile, error) {
			return c.fetchProfile(ctx, participantID)
		})
	})
}

func (c *client) fetchProfile(ctx context.Context, participantID string) (*model.Profile, error) {
	url := fmt.Sprintf("%s/v1/profiles/%s", c.baseURL, participantID)
	body, status, err := c.get(ctx, url)
	if err != nil {
		return nil, err
	}
	switch {
	case status == http.StatusNotFound:
		return nil, resilience.NewUnavailableError(participantID, eris.New("profileapi: profile not found"))
	case resilience.IsTransientHTTPStatus(status):
		return nil, resilience.NewTransientError(eris.Errorf("profileapi: status %d", status), status)
	case status != http.StatusOK:
		return nil, eris.Errorf("profileapi: unexpected status %d", status)
	}

	var p model.Profile
	if err := json.Unmarshal(body, &p); err != nil {
		return nil, eris.Wrap(err, "profileapi: decode profile")
	}
	if err := p.Validate(); err != nil {
		return nil, eris.Wrap(err, "profileapi: invalid profile from service")
	}
	return &p, nil
}

func (c *client) FetchParticipants(ctx context.Context) ([]string, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, eris.Wrap(err, "profileapi: rate limiter")
	}
	return resilience.DoVal(ctx, c.retry, func(ctx context.Context) ([]string, error) {
		return resilience.BreakerVal(ctx, c.breaker, func(ctx context.Context) ([]string, error) {
			body, status, err := c.get(ctx, c.baseURL+"/v1/participants")
			if err != nil {
				return nil, err
			}
			switch {
			case resilience.IsTransientHTTPStatus(status):
				return nil, resilience.NewTransientError(eris.Errorf("profileapi: status %d", status), status)
			case status != http.StatusOK:
				return nil, eris.Errorf("profileapi: unexpected status %d", status)
			}

			var out struct {
				Participants []string `json:"participants"`
			}
			if err := json.Unmarshal(body, &out); err != nil {
				return nil, eris.Wrap(err, "profileapi: decode participants")
			}
			return out.Participants, nil
		})
	})
}

func (c *client) get(ctx context.Context, url string) ([]byte, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, 0, eris.Wrap(err, "profileapi: create request")
	}
	req.Header.Set("Accept", "application/json")
	if c.key != "" {
		req.Header.Set("Authorization", "Bearer "+c.key)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		// network errors are transient from the caller's perspective
		return nil, 0, resilience.NewTransientError(eris.Wrap(err, "profileapi: request"), 0)
	}
	defer resp.Body.Close() //nolint:errcheck

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, 0, resilience.NewTransientError(eris.Wrap(err, "profileapi: read body"), 0)
	}
	return body, resp.StatusCode, nil
}
