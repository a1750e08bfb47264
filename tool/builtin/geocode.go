package builtin

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/codewandler/rtassist-go/tool"
)

// Place is a reverse-geocoded location.
type Place struct {
	City    string `json:"city"`
	Region  string `json:"region"`
	Country string `json:"country"`
}

func (p *Place) Label() string {
	switch {
	case p.City != "" && p.Country != "":
		return fmt.Sprintf("%s, %s", p.City, p.Country)
	case p.City != "":
		return p.City
	default:
		return p.Country
	}
}

// GeocodeClient resolves coordinates to a place.
type GeocodeClient interface {
	Reverse(ctx context.Context, latitude, longitude float64) (*Place, error)
}

// HTTPGeocodeClient reaches the reverse-geocoding proxy endpoint.
type HTTPGeocodeClient struct {
	BaseURL    string
	HTTPClient *http.Client
}

func (c *HTTPGeocodeClient) httpClient() *http.Client {
	if c.HTTPClient == nil {
		return http.DefaultClient
	}
	return c.HTTPClient
}

func (c *HTTPGeocodeClient) Reverse(ctx context.Context, latitude, longitude float64) (*Place, error) {
	endpoint := fmt.Sprintf("%s?latitude=%s&longitude=%s",
		c.BaseURL,
		url.QueryEscape(fmt.Sprintf("%g", latitude)),
		url.QueryEscape(fmt.Sprintf("%g", longitude)),
	)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.httpClient().Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("geocoding proxy returned %d: %s", resp.StatusCode, msg)
	}

	var p Place
	if err := json.NewDecoder(resp.Body).Decode(&p); err != nil {
		return nil, fmt.Errorf("malformed geocoding response: %w", err)
	}
	return &p, nil
}

// GeocodeCapability exposes get_location. When a state sink is present the
// resolved place is recorded as the user's location.
func GeocodeCapability(client GeocodeClient, sink StateSink) tool.Capability {
	return tool.Capability{
		Tool: tool.Func(
			"get_location",
			"Resolve a geographic coordinate to a human-readable place.",
			tool.Properties{
				"latitude":  {Type: "number", Description: "Latitude in decimal degrees"},
				"longitude": {Type: "number", Description: "Longitude in decimal degrees"},
			},
			"latitude", "longitude",
		),
		Executor: tool.ExecutorFunc(func(ctx context.Context, args map[string]any) (map[string]any, error) {
			lat, err := floatArg(args, "latitude")
			if err != nil {
				return nil, err
			}
			lng, err := floatArg(args, "longitude")
			if err != nil {
				return nil, err
			}

			p, err := client.Reverse(ctx, lat, lng)
			if err != nil {
				return nil, err
			}

			if sink != nil {
				sink.SetUserLocation(lat, lng, p.Label())
			}

			return map[string]any{
				"city":    p.City,
				"region":  p.Region,
				"country": p.Country,
				"label":   p.Label(),
			}, nil
		}),
	}
}
