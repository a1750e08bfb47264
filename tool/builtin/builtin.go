// Package builtin provides the capabilities the assistant widget exposes to
// the model: weather and location lookup, document search, user creation,
// and UI mutation through an injected state sink.
package builtin

import (
	"fmt"

	"github.com/codewandler/rtassist-go/tool"
)

func floatArg(args map[string]any, key string) (float64, error) {
	v, ok := args[key]
	if !ok {
		return 0, fmt.Errorf("missing argument %q", key)
	}
	f, ok := v.(float64)
	if !ok {
		return 0, fmt.Errorf("argument %q must be a number", key)
	}
	return f, nil
}

func stringArg(args map[string]any, key string) (string, error) {
	v, ok := args[key]
	if !ok {
		return "", fmt.Errorf("missing argument %q", key)
	}
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("argument %q must be a string", key)
	}
	return s, nil
}

func optionalStringArg(args map[string]any, key string) string {
	s, _ := args[key].(string)
	return s
}

// Config wires the collaborators consumed by the builtin capabilities.
// Nil fields leave the corresponding capabilities unregistered.
type Config struct {
	Weather   WeatherClient
	Geocoder  GeocodeClient
	Documents DocumentSearcher
	Users     UserCreator
	State     StateSink
}

// Registry assembles the capability registry for the given collaborators.
func Registry(cfg Config) (*tool.Registry, error) {
	var caps []tool.Capability
	if cfg.Weather != nil {
		caps = append(caps, WeatherCapability(cfg.Weather, cfg.State))
	}
	if cfg.Geocoder != nil {
		caps = append(caps, GeocodeCapability(cfg.Geocoder, cfg.State))
	}
	if cfg.Documents != nil {
		caps = append(caps, DocumentSearchCapability(cfg.Documents))
	}
	if cfg.Users != nil {
		caps = append(caps, UserCreateCapability(cfg.Users))
	}
	if cfg.State != nil {
		caps = append(caps, StateCapabilities(cfg.State)...)
	}
	return tool.NewRegistry(caps...)
}
