package services

import (
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

// DestinationClient talks to the destination analytics provider: profile
// lookups and dataset uploads.
type DestinationClient struct {
	baseURL string
	apiKey  string
	client  *http.Client
	breaker *gobreaker.CircuitBreaker
	logger  *logger.Logger
}

func NewDestinationClient(cfg *config.Config) *DestinationClient {
	return &DestinationClient{
		baseURL: cfg.Dest.BaseURL,
		apiKey:  cfg.Dest.APIKey,
		client: &http.Client{
			Timeout: time.Duration(cfg.Dest.Timeout) * time.Second,
		},
		breaker: newProviderBreaker("destination-provider"),
		logger:  logger.New("destination-client"),
	}
}

// UploadDataset pushes extracted report data into the destination profile.
// datasetName identifies the dataset on the destination side; repeated
// uploads under the same name replace the dataset.
func (c *DestinationClient) UploadDataset(ctx context.Context, profileID, datasetName string, data json.RawMessage) error {
	url := fmt.Sprintf("%s/v1/profiles/%s/datasets/%s", c.baseURL, profileID, datasetName)

	body, err := json.Marshal(map[string]interface{}{
		"data": data,
	})
	if err != nil {
		return fmt.Errorf("failed to encode dataset upload: %w", err)
	}

	_, err = c.breaker.Execute(func() (interface{}, error) {
		return doProviderRequest(ctx, c.client, c.logger, http.MethodPut, url, c.apiKey, body)
	})
	return err
}

// ProfileExists reports whether the profile id resolves.
func (c *DestinationClient) ProfileExists(ctx context.Context, profileID string) (bool, error) {
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
