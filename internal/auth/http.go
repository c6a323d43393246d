package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"
)

// ErrInvalidToken means the verifier rejected the token. Any other error is
// a transport or upstream failure.
var ErrInvalidToken = errors.New("invalid token")

// HTTPVerifier asks an external identity endpoint to resolve tokens. The
// endpoint receives the token as a bearer header and answers with the
// UserInfo JSON on 200.
type HTTPVerifier struct {
	Endpoint string
	Client   *http.Client
}

// NewHTTPVerifier builds a verifier against the configured endpoint.
func NewHTTPVerifier(endpoint string, timeout time.Duration) *HTTPVerifier {
	return &HTTPVerifier{
		Endpoint: endpoint,
		Client:   &http.Client{Timeout: timeout},
	}
}

func (v *HTTPVerifier) Verify(ctx context.Context, token string) (*UserInfo, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, v.Endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("build verify request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := v.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("verify token: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, ErrInvalidToken
	default:
		return nil, fmt.Errorf("verify token: unexpected status %d", resp.StatusCode)
	}

	var info UserInfo
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return nil, fmt.Errorf("decode verify response: %w", err)
	}
	if info.Sub == "" {
		return nil, fmt.Errorf("verify response missing sub")
	}
	return &info, nil
}
