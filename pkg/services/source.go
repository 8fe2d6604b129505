package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/sony/gobreaker"

	"github.com/metricbridge/core/internal/config"
	"github.com/metricbridge/core/pkg/logger"
)

// providerResponse is the envelope both provider APIs wrap their payloads in.
type providerResponse struct {
	IsSuccess bool            `json:"success"`
	Message   string          `json:"message"`
	Data      json.RawMessage `json:"data"`
}

// providerError carries the HTTP status of a failed provider call.
type providerError struct {
	statusCode int
}

func (e *providerError) Error() string {
	return fmt.Sprintf("provider returned status %d", e.statusCode)
}

func newProviderBreaker(name string) *gobreaker.CircuitBreaker {
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: 3,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	})
}

// SourceClient talks to the source analytics provider: profile lookups and
// report extraction. Calls are guarded by a circuit breaker so a failing
// provider does not pile up scheduler executions.
type SourceClient struct {
	baseURL string
	apiKey  string
	client  *http.Client
	breaker *gobreaker.CircuitBreaker
	logger  *logger.Logger
}

func NewSourceClient(cfg *config.Config) *SourceClient {
	return &SourceClient{
		baseURL: cfg.Source.BaseURL,
		apiKey:  cfg.Source.APIKey,
		client: &http.Client{
			Timeout: time.Duration(cfg.Source.Timeout) * time.Second,
		},
		breaker: newProviderBreaker("source-provider"),
		logger:  logger.New("source-client"),
	}
}

// ExtractReport pulls report data for the given profile. The report config is
// opaque to this service and forwarded as-is; includePrevious asks the
// provider to include data that predates the job's creation.
func (c *SourceClient) ExtractReport(ctx context.Context, profileID string, reportConfig json.RawMessage, includePrevious bool) (json.RawMessage, error) {
	url := fmt.Sprintf("%s/v1/profiles/%s/reports", c.baseURL, profileID)

	body, err := json.Marshal(map[string]interface{}{
		"config":                reportConfig,
		"include_previous_data": includePrevious,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode report request: %w", err)
	}

	result, err := c.breaker.Execute(func() (interface{}, error) {
		return doProviderRequest(ctx, c.client, c.logger, http.MethodPost, url, c.apiKey, body)
	})
	if err != nil {
		return nil, err
	}
	return result.(json.RawMessage), nil
}

// ProfileExists reports whether the profile id resolves.
func (c *SourceClient) ProfileExists(ctx context.Context, profileID string) (bool, error) {
	url := fmt.Sprintf("%s/v1/profiles/%s", c.baseURL, profileID)

	_, err := c.breaker.Execute(func() (interface{}, error) {
		return doProviderRequest(ctx, c.client, c.logger, http.MethodGet, url, c.apiKey, nil)
	})
	if err != nil {
		var apiErr *providerError
		if errors.As(err, &apiErr) && apiErr.statusCode == http.StatusNotFound {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// doProviderRequest issues one provider API call and unwraps the response
// envelope. Non-200 statuses surface as *providerError.
func doProviderRequest(ctx context.Context, client *http.Client, log *logger.Logger, method, url, apiKey string, body []byte) (json.RawMessage, error) {
	req, err := http.NewRequestWithContext(ctx, method, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+apiKey)

	start := time.Now()
	resp, err := client.Do(req)
	if err != nil {
		log.LogAPICall(method, url, 0, time.Since(start), err)
		return nil, fmt.Errorf("failed to make request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		apiErr := &providerError{statusCode: resp.StatusCode}
		log.LogAPICall(method, url, resp.StatusCode, time.Since(start), apiErr)
		return nil, apiErr
	}
	log.LogAPICall(method, url, resp.StatusCode, time.Since(start), nil)

	var result providerResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	if !result.IsSuccess {
		return nil, fmt.Errorf("provider request failed: %s", result.Message)
	}
	return result.Data, nil
}
