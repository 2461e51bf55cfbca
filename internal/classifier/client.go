package classifier

import (
	"NetSpectraIDS/internal/config"
	"NetSpectraIDS/internal/metrics"
	"NetSpectraIDS/internal/model"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

// ErrEmptyURL is returned by New when no classifier endpoint is configured.
var ErrEmptyURL = errors.New("classifier server URL must not be empty")

var errInterrupted = errors.New("classification interrupted")

// Client talks to the external classification service. It holds no
// per-call state and is safe for concurrent use by the worker pool.
type Client struct {
	url         string
	timeout     time.Duration
	maxRetries  int
	backoffBase time.Duration
	httpClient  *http.Client
	metrics     *metrics.Metrics
}

// New creates a client for cfg. m may be nil.
func New(cfg config.ClassifierConfig, m *metrics.Metrics) (*Client, error) {
	if strings.TrimSpace(cfg.ServerURL) == "" {
		return nil, ErrEmptyURL
	}
	c := &Client{
		url:         cfg.ServerURL,
		timeout:     cfg.Timeout,
		maxRetries:  cfg.MaxRetries,
		backoffBase: cfg.BackoffBase,
		httpClient:  &http.Client{},
		metrics:     m,
	}
	if c.maxRetries <= 0 {
		c.maxRetries = 1
	}
	if c.timeout <= 0 {
		c.timeout = 10 * time.Second
	}
	return c, nil
}

// URL returns the configured predict endpoint.
func (c *Client) URL() string { return c.url }

// HealthURL derives the health endpoint from the predict endpoint.
func (c *Client) HealthURL() string {
	base := strings.TrimSuffix(c.url, "/predict")
	base = strings.TrimSuffix(base, "/")
	return base + "/health"
}

// Classify sends one feature record to the classifier. It never fails;
// every failure mode is carried in the returned prediction.
func (c *Client) Classify(ctx context.Context, record *model.NetworkFeatureRecord) model.Prediction {
	if record == nil {
		return model.PredictionError("no feature record to classify")
	}
	return c.classify(ctx, record)
}

// ClassifyFeatures sends an arbitrary feature map, as built by ParseKeyValue.
func (c *Client) ClassifyFeatures(ctx context.Context, features map[string]any) model.Prediction {
	return c.classify(ctx, features)
}

func (c *Client) classify(ctx context.Context, features any) model.Prediction {
	start := time.Now()

	body, err := EncodeRequest(features)
	if err != nil {
		return model.PredictionError(fmt.Sprintf("Error encoding request: %v", err))
	}

	status, respBody, err := c.do(ctx, func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		return req, nil
	})

	var p model.Prediction
	switch {
	case errors.Is(err, errInterrupted):
		p = model.PredictionError("Classification interrupted")
		p.Interrupted = true
		return p
	case err != nil:
		p = model.PredictionError(err.Error())
	case status < 200 || status > 299:
		p = model.PredictionError(fmt.Sprintf("Server error: %d - %s", status, respBody))
	default:
		p = decodePrediction(respBody)
	}

	c.metrics.ObserveClassification(p.IsAttack(), p.Succeeded(), time.Since(start).Seconds())
	return p
}

// Health queries the classifier's readiness. Failures yield an error-status value.
func (c *Client) Health(ctx context.Context) model.ServerHealth {
	status, respBody, err := c.do(ctx, func(ctx context.Context) (*http.Request, error) {
		return http.NewRequestWithContext(ctx, http.MethodGet, c.HealthURL(), nil)
	})
	switch {
	case err != nil:
		return model.HealthError(err.Error())
	case status < 200 || status > 299:
		return model.HealthError(fmt.Sprintf("Server error: %d - %s", status, respBody))
	}
	return decodeHealth(respBody)
}

// do runs one logical request with the retry policy: up to maxRetries
// attempts, sleeping backoffBase*2^attempt between transport failures.
// Any HTTP response, whatever its status, ends the loop.
func (c *Client) do(ctx context.Context, newRequest func(context.Context) (*http.Request, error)) (int, []byte, error) {
	var lastErr error
	for attempt := 0; attempt < c.maxRetries; attempt++ {
		if ctx.Err() != nil {
			return 0, nil, errInterrupted
		}
		c.metrics.IncAttempts()

		status, body, err := c.attempt(ctx, newRequest)
		if err == nil {
			return status, body, nil
		}
		if ctx.Err() != nil {
			return 0, nil, errInterrupted
		}
		lastErr = err
		log.Debug().Err(err).Int("attempt", attempt+1).Int("max_retries", c.maxRetries).Msg("Classifier request failed")

		if attempt == c.maxRetries-1 {
			break
		}
		timer := time.NewTimer(c.backoffBase * time.Duration(1<<attempt))
		select {
		case <-ctx.Done():
			timer.Stop()
			return 0, nil, errInterrupted
		case <-timer.C:
		}
	}
	return 0, nil, fmt.Errorf("timeout error: classifier did not respond after %d attempts: %w", c.maxRetries, lastErr)
}

func (c *Client) attempt(ctx context.Context, newRequest func(context.Context) (*http.Request, error)) (int, []byte, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := newRequest(attemptCtx)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to build request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to read response body: %w", err)
	}
	return resp.StatusCode, body, nil
}

// EncodeRequest builds the {"features": ...} request body.
func EncodeRequest(features any) ([]byte, error) {
	return json.Marshal(struct {
		Features any `json:"features"`
	}{Features: features})
}
