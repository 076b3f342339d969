package inference

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"blueprint-room-pipeline/internal/backoff"
	"blueprint-room-pipeline/internal/config"
	"blueprint-room-pipeline/internal/domain"
	"blueprint-room-pipeline/internal/domain/model"
	"blueprint-room-pipeline/internal/domain/ports/adapter"
)

// Compile-time assurance this adapter satisfies the port
var _ adapter.InferenceAdapter = (*HTTPAdapter)(nil)

// HTTPAdapter talks to the room-detection model endpoints over HTTP. One
// adapter serves all three stages; endpoints are looked up by ID.
type HTTPAdapter struct {
	endpoints map[string]config.EndpointConfig
	policy    backoff.Policy
	client    *http.Client
	log       *zerolog.Logger
}

func NewHTTPAdapter(cfg *config.InferenceConfig, policy backoff.Policy, log *zerolog.Logger) *HTTPAdapter {
	endpoints := map[string]config.EndpointConfig{}
	for _, ep := range []config.EndpointConfig{cfg.Preview, cfg.Intermediate, cfg.Final} {
		if ep.ID != "" {
			endpoints[ep.ID] = ep
		}
	}
	return &HTTPAdapter{
		endpoints: endpoints,
		policy:    policy,
		client:    &http.Client{Timeout: 60 * time.Second},
		log:       log,
	}
}

type invokeResponse struct {
	Detections []model.RawDetection `json:"detections"`
	TextBlocks []model.TextBlock    `json:"text_blocks"`
	Error      string               `json:"error,omitempty"`
}

func (a *HTTPAdapter) Invoke(ctx context.Context, endpointID string, input *adapter.ModelInput, modelVersion string) (*adapter.InferenceResult, error) {
	ep, ok := a.endpoints[endpointID]
	if !ok {
		return nil, fmt.Errorf("%w: unknown endpoint %q", domain.ErrInvalidArgument, endpointID)
	}
	if modelVersion == "" {
		modelVersion = ep.ModelVersion
	}

	body, err := json.Marshal(input)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidInput, err)
	}

	var result *adapter.InferenceResult
	err = backoff.Do(ctx, a.policy, domain.Retryable, func(ctx context.Context) error {
		var callErr error
		result, callErr = a.invokeOnce(ctx, ep, body, modelVersion)
		if callErr != nil && domain.Retryable(callErr) {
			a.log.Warn().Str("endpoint", ep.ID).Err(callErr).Msg("inference call failed, will retry")
		}
		return callErr
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (a *HTTPAdapter) invokeOnce(ctx context.Context, ep config.EndpointConfig, body []byte, modelVersion string) (*adapter.InferenceResult, error) {
	ctx, cancel := context.WithTimeout(ctx, ep.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, ep.URL, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Model-Version", modelVersion)
	if ep.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+ep.APIKey)
	}

	resp, err := a.client.Do(req)
	if err != nil {
		// Timeouts and connection failures count as transient.
		return nil, fmt.Errorf("%w: %v", domain.ErrServiceUnavailable, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return nil, fmt.Errorf("%w: endpoint %s http %d", domain.ErrServiceUnavailable, ep.ID, resp.StatusCode)
	case resp.StatusCode == http.StatusBadRequest || resp.StatusCode == http.StatusUnprocessableEntity:
		return nil, fmt.Errorf("%w: endpoint %s http %d", domain.ErrInvalidInput, ep.ID, resp.StatusCode)
	default:
		return nil, fmt.Errorf("%w: endpoint %s http %d", domain.ErrModelError, ep.ID, resp.StatusCode)
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrServiceUnavailable, err)
	}
	var payload invokeResponse
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, fmt.Errorf("%w: malformed response from %s", domain.ErrModelError, ep.ID)
	}
	if payload.Error != "" {
		return nil, fmt.Errorf("%w: %s", domain.ErrModelError, payload.Error)
	}
	return &adapter.InferenceResult{
		Detections: payload.Detections,
		TextBlocks: payload.TextBlocks,
	}, nil
}
