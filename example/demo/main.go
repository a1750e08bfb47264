package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/codewandler/rtassist-go"
	"github.com/codewandler/rtassist-go/events"
	"github.com/codewandler/rtassist-go/tool/builtin"
)

func must(err error) {
	if err != nil {
		panic(err)
	}
}

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var (
		debug       = false
		useWS       = false
		weatherURL  = "https://api.example.com/weather"
		geocodeURL  = "https://api.example.com/geocode"
		instruction = "You are the site assistant. You can change the page via your functions."
	)

	flag.StringVar(&instruction, "instruction", instruction, "instruction to send to the assistant.")
	flag.StringVar(&weatherURL, "weather-url", weatherURL, "weather proxy endpoint")
	flag.StringVar(&geocodeURL, "geocode-url", geocodeURL, "reverse-geocoding proxy endpoint")
	flag.BoolVar(&useWS, "ws", false, "use the websocket transport instead of webrtc")
	flag.BoolVar(&debug, "debug", false, "enable debug logs")
	flag.Parse()

	slog.SetLogLoggerLevel(slog.LevelError)
	if debug {
		slog.SetLogLoggerLevel(slog.LevelDebug)
	}

	registry, err := builtin.Registry(builtin.Config{
		Weather:   &builtin.HTTPWeatherClient{BaseURL: weatherURL},
		Geocoder:  &builtin.HTTPGeocodeClient{BaseURL: geocodeURL},
		Documents: newDocStore(),
		Users:     newUserStore(),
		State:     &consoleWidget{},
	})
	must(err)

	opts := []rtassist.SessionOption{
		rtassist.WithDefaultLogger(),
		rtassist.WithInstruction(instruction),
		rtassist.WithMode(rtassist.ModeText),
		rtassist.WithCapabilities(registry),
	}
	if useWS {
		opts = append(opts, rtassist.WithTransport(rtassist.TransportWebSocket))
	}

	session := rtassist.New(opts...)

	session.OnEvent(func(e events.ServerEvent) {
		switch x := e.(type) {
		case *events.ResponseTextDeltaEvent:
			fmt.Print(x.Delta)
		case *events.ResponseTextDoneEvent:
			fmt.Println()
		}
	})
	session.OnError(func(e *events.ErrorEvent) {
		slog.Error("server error", slog.Any("error", e))
	})
	session.OnFailure(func(e *rtassist.SessionError) {
		fmt.Println("connection lost:", e)
		fmt.Println("press enter to reconnect")
	})
	session.OnRefreshRequired(func() {
		fmt.Println("session expired, reconnecting with a fresh credential")
		must(session.Reconnect(ctx))
	})

	must(session.Connect(ctx))
	defer session.Close()

	fmt.Println("connected, session", session.SessionID())
	fmt.Println("type a message and press enter. /quit exits.")

	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			if session.State() == rtassist.StateError {
				must(session.Reconnect(ctx))
				fmt.Println("reconnected, session", session.SessionID())
			}
			continue
		}
		if line == "/quit" {
			return
		}

		fmt.Print("assistant> ")
		if err := session.SendUserMessage(line, true); err != nil {
			slog.Error("send failed", slog.Any("err", err))
		}
	}
}
