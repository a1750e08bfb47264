package builtin

import (
	"context"

	"github.com/codewandler/rtassist-go/tool"
)

// StateSink is the set of application state setters the model may drive.
// Injecting it keeps the capabilities testable without a UI tree; none of
// them reach ambient globals.
type StateSink interface {
	SetHeaderEmoji(emoji string)
	SetTheme(theme string)
	SetHomeContent(markdown string)
	SetUserLocation(latitude, longitude float64, label string)
	SetWeather(w Weather)
}

// StateCapabilities exposes the UI mutation functions backed by sink.
func StateCapabilities(sink StateSink) []tool.Capability {
	return []tool.Capability{
		{
			Tool: tool.Func(
				"set_header_emoji",
				"Change the emoji shown in the page header.",
				tool.Properties{
					"emoji": {Type: "string", Description: "A single emoji character"},
				},
				"emoji",
			),
			Executor: tool.ExecutorFunc(func(_ context.Context, args map[string]any) (map[string]any, error) {
				emoji, err := stringArg(args, "emoji")
				if err != nil {
					return nil, err
				}
				sink.SetHeaderEmoji(emoji)
				return map[string]any{"emoji": emoji}, nil
			}),
		},
		{
			Tool: tool.Func(
				"set_theme",
				"Switch the application color theme.",
				tool.Properties{
					"theme": {Type: "string", Description: "Theme name", Enum: []any{"light", "dark"}},
				},
				"theme",
			),
			Executor: tool.ExecutorFunc(func(_ context.Context, args map[string]any) (map[string]any, error) {
				theme, err := stringArg(args, "theme")
				if err != nil {
					return nil, err
				}
				sink.SetTheme(theme)
				return map[string]any{"theme": theme}, nil
			}),
		},
		{
			Tool: tool.Func(
				"set_home_content",
				"Replace the home page content with the given markdown.",
				tool.Properties{
					"markdown": {Type: "string", Description: "Markdown content"},
				},
				"markdown",
			),
			Executor: tool.ExecutorFunc(func(_ context.Context, args map[string]any) (map[string]any, error) {
				markdown, err := stringArg(args, "markdown")
				if err != nil {
					return nil, err
				}
				sink.SetHomeContent(markdown)
				return map[string]any{"updated": true}, nil
			}),
		},
	}
}
