package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/codewandler/rtassist-go/tool/builtin"
	gonanoid "github.com/matoous/go-nanoid/v2"
)

// consoleWidget prints state mutations instead of rendering them. It stands
// in for the page the assistant would otherwise be driving.
type consoleWidget struct{}

func (w *consoleWidget) SetHeaderEmoji(emoji string) {
	fmt.Println("\n[widget] header emoji:", emoji)
}

func (w *consoleWidget) SetTheme(theme string) {
	fmt.Println("\n[widget] theme:", theme)
}

func (w *consoleWidget) SetHomeContent(markdown string) {
	fmt.Println("\n[widget] home content:\n" + markdown)
}

func (w *consoleWidget) SetUserLocation(latitude, longitude float64, label string) {
	fmt.Printf("\n[widget] location: %s (%.4f, %.4f)\n", label, latitude, longitude)
}

func (w *consoleWidget) SetWeather(weather builtin.Weather) {
	fmt.Printf("\n[widget] weather: %.1f°C, %s\n", weather.TemperatureC, weather.Conditions)
}

// docStore is an in-memory document base; plenty for a console demo.
type docStore struct {
	docs []builtin.Document
}

func newDocStore() *docStore {
	return &docStore{docs: []builtin.Document{
		{ID: "doc_1", Title: "Getting started", Snippet: "Install the widget and add your site key."},
		{ID: "doc_2", Title: "Theming", Snippet: "The widget follows the page theme, light or dark."},
		{ID: "doc_3", Title: "Troubleshooting audio", Snippet: "Check microphone permissions in the browser."},
	}}
}

func (s *docStore) Search(_ context.Context, query string) ([]builtin.Document, error) {
	q := strings.ToLower(query)
	var hits []builtin.Document
	for _, d := range s.docs {
		if strings.Contains(strings.ToLower(d.Title), q) || strings.Contains(strings.ToLower(d.Snippet), q) {
			hits = append(hits, d)
		}
	}
	return hits, nil
}

type userStore struct {
	users []builtin.User
}

func newUserStore() *userStore {
	return &userStore{}
}

func (s *userStore) Create(_ context.Context, user builtin.NewUser) (*builtin.User, error) {
	created := builtin.User{
		ID:    "usr_" + gonanoid.Must(8),
		Name:  user.Name,
		Email: user.Email,
		Role:  user.Role,
	}
	s.users = append(s.users, created)
	fmt.Println("\n[widget] created user:", created.Email)
	return &created, nil
}
