package homeassistant

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"
)

const (
	MaxRetries         = 3
	InitialRetryDelay  = time.Second
	RetryBackoffFactor = 2.0
)

// Entity mirrors the state object returned by the Home Assistant REST API.
type Entity struct {
	EntityID    string         `json:"entity_id"`
	State       string         `json:"state"`
	Attributes  map[string]any `json:"attributes"`
	LastChanged string         `json:"last_changed"`
	LastUpdated string         `json:"last_updated"`
}

type Client struct {
	baseURL string
	token   string
	http    *http.Client
}

func NewClient(baseURL, token string, timeout time.Duration) *Client {
	return &Client{
		baseURL: baseURL,
		token:   token,
		http:    &http.Client{Timeout: timeout},
	}
}

// GetState fetches the current state of one entity. A 404 is returned as a
// nil entity with no error: the optimizer treats missing entities the same
// as unavailable ones.
func (c *Client) GetState(ctx context.Context, entityID string) (*Entity, error) {
	url := fmt.Sprintf("%s/api/states/%s", c.baseURL, entityID)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	c.setHeaders(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to get state for %s: %w", entityID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, nil
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("state request for %s returned status %d", entityID, resp.StatusCode)
	}

	var entity Entity
	if err := json.NewDecoder(resp.Body).Decode(&entity); err != nil {
		return nil, fmt.Errorf("failed to decode state for %s: %w", entityID, err)
	}
	return &entity, nil
}

// CallService performs a single service call against the host.
func (c *Client) CallService(ctx context.Context, domain, service string, data map[string]any) error {
	url := fmt.Sprintf("%s/api/services/%s/%s", c.baseURL, domain, service)

	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to marshal service data: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(payload))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	c.setHeaders(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("failed to call %s.%s: %w", domain, service, err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%s.%s returned status %d", domain, service, resp.StatusCode)
	}
	return nil
}

// CallServiceWithRetry wraps CallService with fixed-count exponential backoff.
// Returns nil if any attempt succeeded.
func (c *Client) CallServiceWithRetry(ctx context.Context, domain, service string, data map[string]any, entityName string) error {
	var lastErr error
	delay := InitialRetryDelay

	for attempt := 1; attempt <= MaxRetries; attempt++ {
		lastErr = c.CallService(ctx, domain, service, data)
		if lastErr == nil {
			if attempt > 1 {
				log.Info().
					Str("service", domain+"."+service).
					Str("entity", entityName).
					Int("attempt", attempt).
					Msg("Service call succeeded after retry")
			}
			return nil
		}

		if attempt < MaxRetries {
			log.Warn().
				Err(lastErr).
				Str("service", domain+"."+service).
				Str("entity", entityName).
				Int("attempt", attempt).
				Int("max_attempts", MaxRetries).
				Dur("retry_in", delay).
				Msg("Service call failed, retrying")

			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return ctx.Err()
			}
			delay = time.Duration(float64(delay) * RetryBackoffFactor)
		}
	}

	log.Error().
		Err(lastErr).
		Str("service", domain+"."+service).
		Str("entity", entityName).
		Int("attempts", MaxRetries).
		Msg("Service call failed after all retries")

	return fmt.Errorf("service call %s.%s failed after %d attempts: %w", domain, service, MaxRetries, lastErr)
}

func (c *Client) setHeaders(req *http.Request) {
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	req.Header.Set("Content-Type", "application/json")
}
