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

// Weather is the current-conditions payload returned by the weather
// collaborator.
type Weather struct {
	TemperatureC float64 `json:"temperature_c"`
	WindSpeedKmh float64 `json:"wind_speed_kmh"`
	Conditions   string  `json:"conditions"`
}

// WeatherClient looks up current weather by coordinates.
type WeatherClient interface {
	Current(ctx context.Context, latitude, longitude float64) (*Weather, error)
}

// HTTPWeatherClient reaches the weather proxy endpoint.
type HTTPWeatherClient struct {
	BaseURL    string
	HTTPClient *http.Client
}

func (c *HTTPWeatherClient) httpClient() *http.Client {
	if c.HTTPClient == nil {
		return http.DefaultClient
	}
	return c.HTTPClient
}

func (c *HTTPWeatherClient) Current(ctx context.Context, latitude, longitude float64) (*Weather, error) {
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
		return nil, fmt.Errorf("weather proxy returned %d: %s", resp.StatusCode, msg)
	}

	var w Weather
	if err := json.NewDecoder(resp.Body).Decode(&w); err != nil {
		return nil, fmt.Errorf("malformed weather response: %w", err)
	}
	return &w, nil
}

// WeatherCapability exposes get_weather. When a state sink is present the
// fetched payload is also pushed into the application state.
func WeatherCapability(client WeatherClient, sink StateSink) tool.Capability {
	return tool.Capability{
		Tool: tool.Func(
			"get_weather",
			"Get the current weather for a geographic coordinate.",
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

			w, err := client.Current(ctx, lat, lng)
			if err != nil {
				return nil, err
			}

			if sink != nil {
				sink.SetWeather(*w)
			}

			return map[string]any{
				"temperature_c":  w.TemperatureC,
				"wind_speed_kmh": w.WindSpeedKmh,
				"conditions":     w.Conditions,
			}, nil
		}),
	}
}
