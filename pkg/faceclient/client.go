package faceclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sony/gobreaker"

	"github.com/noah-isme/visitor-attendance-api/pkg/config"
	"github.com/noah-isme/visitor-attendance-api/pkg/middleware/requestid"
)

// ErrUnavailable is returned while the circuit to the face service is open.
var ErrUnavailable = errors.New("face service unavailable")

// CompareResult contains the face comparison verdict.
type CompareResult struct {
	Similarity float64 `json:"similarity"`
	Match      bool    `json:"match"`
	Threshold  float64 `json:"threshold"`
}

// Client calls the face matching microservice.
type Client struct {
	BaseURL string
	HTTP    *http.Client
	Skip    bool

	cb *gobreaker.CircuitBreaker
}

// New creates a client guarded by a circuit breaker.
func New(cfg config.FaceServiceConfig) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	threshold := cfg.FailureThreshold
	if threshold == 0 {
		threshold = 5
	}

	settings := gobreaker.Settings{
		Name:        "face-service",
		MaxRequests: 1,
		Interval:    60 * time.Second,
		Timeout:     cfg.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
	}

	return &Client{
		BaseURL: cfg.URL,
		Skip:    cfg.Skip,
		HTTP:    &http.Client{Timeout: timeout},
		cb:      gobreaker.NewCircuitBreaker(settings),
	}
}

// State reports the breaker state, e.g. "closed" or "open".
func (c *Client) State() string {
	if c.cb == nil {
		return gobreaker.StateClosed.String()
	}
	return c.cb.State().String()
}

// Compare matches a reference image against a freshly captured image.
func (c *Client) Compare(ctx context.Context, referenceURL, captureURL string) (*CompareResult, error) {
	if c.Skip {
		return &CompareResult{Similarity: 0.85, Match: true, Threshold: 0.5}, nil
	}
	if referenceURL == "" || captureURL == "" {
		return nil, fmt.Errorf("image urls required")
	}

	out, err := c.execute(func() (interface{}, error) {
		return c.compare(ctx, referenceURL, captureURL)
	})
	if err != nil {
		return nil, err
	}
	return out.(*CompareResult), nil
}

func (c *Client) compare(ctx context.Context, referenceURL, captureURL string) (*CompareResult, error) {
	body, _ := json.Marshal(map[string]string{
		"image_url_1": referenceURL,
		"image_url_2": captureURL,
	})

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/compare", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if id := requestid.FromContext(ctx); id != "" {
		req.Header.Set(requestid.Header, id)
	}

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return nil, fmt.Errorf("face service request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		bodyBytes, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("face service error %s: %s", resp.Status, string(bodyBytes))
	}

	var out CompareResult
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	return &out, nil
}

// Health checks if the face service is available.
func (c *Client) Health(ctx context.Context) error {
	if c.Skip {
		return nil
	}

	_, err := c.execute(func() (interface{}, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+"/health", nil)
		if err != nil {
			return nil, err
		}
		resp, err := c.HTTP.Do(req)
		if err != nil {
			return nil, fmt.Errorf("face service unavailable: %w", err)
		}
		defer resp.Body.Close()
		if resp.StatusCode >= 300 {
			return nil, fmt.Errorf("face service unhealthy: %s", resp.Status)
		}
		return nil, nil
	})
	return err
}

func (c *Client) execute(fn func() (interface{}, error)) (interface{}, error) {
	if c.cb == nil {
		return fn()
	}
	out, err := c.cb.Execute(fn)
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return out, err
}
