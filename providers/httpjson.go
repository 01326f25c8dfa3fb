package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// GetJSON performs an authenticated GET against a provider API and decodes
// the JSON body. Identity follow-up calls all share this shape.
func GetJSON(ctx context.Context, doer HTTPDoer, endpoint string, accessToken string) (map[string]any, error) {
	if doer == nil {
		doer = &http.Client{Timeout: defaultTokenRequestTimeout}
	}
	if ctx == nil {
		ctx = context.Background()
	}
	endpoint = strings.TrimSpace(endpoint)
	if endpoint == "" {
		return nil, fmt.Errorf("providers: identity endpoint is required")
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Accept", "application/json")
	if accessToken = strings.TrimSpace(accessToken); accessToken != "" {
		httpReq.Header.Set("Authorization", "Bearer "+accessToken)
	}

	response, err := doer.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("providers: identity request failed: %w", err)
	}
	defer response.Body.Close()

	body, readErr := io.ReadAll(io.LimitReader(response.Body, maxResponseBodyBytes+1))
	if readErr != nil {
		return nil, fmt.Errorf("providers: read identity response: %w", readErr)
	}
	if int64(len(body)) > maxResponseBodyBytes {
		return nil, fmt.Errorf("providers: identity response exceeds %d bytes", maxResponseBodyBytes)
	}
	if response.StatusCode < http.StatusOK || response.StatusCode >= http.StatusMultipleChoices {
		return nil, fmt.Errorf("providers: identity endpoint error (%d)", response.StatusCode)
	}

	var decoded map[string]any
	if err := json.Unmarshal(body, &decoded); err != nil {
		return nil, fmt.Errorf("providers: decode identity response: %w", err)
	}
	return decoded, nil
}
