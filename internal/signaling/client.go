package signaling

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
)

// Client exchanges SDP offers for answers against the realtime signaling
// endpoint. One exchange per connection attempt; the ephemeral credential
// authorizes the request.
type Client struct {
	BaseURL    string
	HTTPClient *http.Client
	Logger     *slog.Logger
}

func (c *Client) httpClient() *http.Client {
	if c.HTTPClient == nil {
		return http.DefaultClient
	}
	return c.HTTPClient
}

func (c *Client) logger() *slog.Logger {
	if c.Logger == nil {
		return slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return c.Logger
}

// PostOffer posts offerSDP and returns the remote answer SDP. A non-2xx
// status or a body that does not look like SDP is an error.
func (c *Client) PostOffer(ctx context.Context, secret, model, offerSDP string) (string, error) {
	endpoint := fmt.Sprintf("%s?model=%s", c.BaseURL, url.QueryEscape(model))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(offerSDP))
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+secret)
	req.Header.Set("Content-Type", "application/sdp")

	resp, err := c.httpClient().Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("signaling endpoint returned %d: %s", resp.StatusCode, msg)
	}

	answer, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	if !strings.HasPrefix(string(answer), "v=") {
		return "", fmt.Errorf("signaling endpoint returned malformed SDP answer")
	}

	c.logger().Debug("received SDP answer", slog.Int("len", len(answer)))

	return string(answer), nil
}
