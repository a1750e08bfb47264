package rtassist

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Credential is the short-lived secret used for the transport handshake.
// It is single-use: every connection attempt acquires a fresh one.
type Credential struct {
	Secret    string
	ExpiresAt time.Time
}

// Broker acquires ephemeral credentials from the backend sessions endpoint.
// It never retries; retry is the transport manager's decision.
type Broker struct {
	endpoint   string
	apiKey     string
	httpClient *http.Client
}

func NewBroker(endpoint, apiKey string, httpClient *http.Client) *Broker {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Broker{endpoint: endpoint, apiKey: apiKey, httpClient: httpClient}
}

type credentialResponse struct {
	ID           string `json:"id"`
	Model        string `json:"model"`
	ExpiresAt    int64  `json:"expires_at"`
	ClientSecret struct {
		Value     string `json:"value"`
		ExpiresAt int64  `json:"expires_at"`
	} `json:"client_secret"`
}

// Acquire performs a single round-trip to the sessions endpoint. Any
// non-success status or malformed body maps to FailureCredentialFetch.
func (b *Broker) Acquire(ctx context.Context, model, voice string) (*Credential, error) {
	body := map[string]any{"model": model}
	if voice != "" {
		body["voice"] = voice
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, sessionErr(FailureCredentialFetch, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, sessionErr(FailureCredentialFetch, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if b.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+b.apiKey)
	}

	resp, err := b.httpClient.Do(req)
	if err != nil {
		return nil, sessionErr(FailureCredentialFetch, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, sessionErrf(FailureCredentialFetch, "sessions endpoint returned %d: %s", resp.StatusCode, msg)
	}

	var cr credentialResponse
	if err := json.NewDecoder(resp.Body).Decode(&cr); err != nil {
		return nil, sessionErr(FailureCredentialFetch, fmt.Errorf("malformed sessions response: %w", err))
	}
	if cr.ClientSecret.Value == "" {
		return nil, sessionErrf(FailureCredentialFetch, "sessions response has no client secret")
	}

	return &Credential{
		Secret:    cr.ClientSecret.Value,
		ExpiresAt: time.Unix(cr.ClientSecret.ExpiresAt, 0),
	}, nil
}
