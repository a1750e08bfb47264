package rtassist

import (
	"context"
	"encoding/base64"
	"log/slog"

	"github.com/codewandler/rtassist-go/events"
	"github.com/codewandler/rtassist-go/tool"
)

// isExpiryCode reports whether a server error code means the ephemeral
// session is gone and the whole widget must be rebuilt.
func isExpiryCode(code string) bool {
	switch code {
	case "session_expired", "token_expired", "invalid_session":
		return true
	}
	return false
}

// handleEvent routes one typed inbound event. The switch is exhaustive over
// the closed event set; a new server event type shows up as *UnknownEvent
// and is logged, never dropped silently.
func (s *Session) handleEvent(evt events.ServerEvent) {
	switch e := evt.(type) {
	case *events.SessionCreatedEvent:
		s.mu.Lock()
		s.sessionID = e.Session.ID
		configure := !s.configured
		s.configured = true
		s.mu.Unlock()
		// The capability list is declared exactly once, right here.
		if configure {
			if err := s.sendSessionUpdate(); err != nil {
				s.logger.Error("failed to send session update", slog.Any("err", err))
			}
		}

	case *events.SessionUpdatedEvent:
		s.logger.Debug("session updated", slog.String("id", e.Session.ID))

	case *events.ConversationCreatedEvent:
		s.conv.setID(e.Conversation.ID)

	case *events.ConversationItemCreatedEvent:
		s.conv.addServerItem(e.Item)

	case *events.ConversationItemTruncatedEvent:
		// Acknowledged only; the local log is append-only for audit.
		s.logger.Debug("conversation item truncated", slog.String("item_id", e.ItemID))

	case *events.ConversationItemDeletedEvent:
		s.logger.Debug("conversation item deleted", slog.String("item_id", e.ItemID))

	case *events.InputTranscriptionCompletedEvent:
		s.conv.setTranscript(e.ItemID, e.Transcript)

	case *events.InputTranscriptionFailedEvent:
		s.logger.Warn("input transcription failed",
			slog.String("item_id", e.ItemID),
			slog.String("code", e.ErrorDetail.Code),
		)

	case *events.InputAudioBufferCommittedEvent:
		s.logger.Debug("input audio buffer committed", slog.String("item_id", e.ItemID))

	case *events.InputAudioBufferClearedEvent:
		s.logger.Debug("input audio buffer cleared")

	case *events.SpeechStartedEvent:
		// The user started talking over the assistant; drop queued audio.
		s.sink.Clear()

	case *events.SpeechStoppedEvent:
		s.logger.Debug("speech stopped", slog.String("item_id", e.ItemID))

	case *events.ResponseCreatedEvent:
		s.mu.Lock()
		s.responseInProgress = true
		s.mu.Unlock()

	case *events.ResponseDoneEvent:
		s.mu.Lock()
		s.responseInProgress = false
		cb := s.onResponseDone
		s.mu.Unlock()
		if cb != nil {
			cb(e)
		}

	case *events.ResponseCancelledEvent:
		s.mu.Lock()
		s.responseInProgress = false
		s.mu.Unlock()

	case *events.ResponseTextDeltaEvent:
		s.conv.appendDelta(e.ItemID, e.Delta)

	case *events.ResponseTextDoneEvent:
		s.conv.finalize(e.ItemID, e.Text)

	case *events.ResponseAudioTranscriptDeltaEvent:
		s.conv.appendDelta(e.ItemID, e.Delta)

	case *events.ResponseAudioTranscriptDoneEvent:
		s.conv.finalize(e.ItemID, e.Transcript)

	case *events.ResponseAudioDeltaEvent:
		pcm, err := base64.StdEncoding.DecodeString(e.Delta)
		if err != nil {
			s.logger.Warn("failed to decode audio delta", slog.Any("err", err))
			break
		}
		if err := s.sink.WritePCM(pcm); err != nil {
			s.logger.Error("failed to write to audio sink", slog.Any("err", err))
		}

	case *events.ResponseAudioDoneEvent:
		s.logger.Debug("audio done", slog.String("item_id", e.ItemID))

	case *events.FunctionCallArgumentsDeltaEvent:
		s.bridge.appendArgs(e.CallID, e.Delta)

	case *events.FunctionCallArgumentsDoneEvent:
		s.bridge.complete(context.Background(), e.CallID, e.Name, e.Arguments)

	case *events.ResponseOutputItemAddedEvent:
		if e.Item.Type == string(ItemFunctionCall) {
			if err := s.bridge.begin(e.Item.CallID, e.Item.Name, e.Item.ID); err != nil {
				// Protocol violation: a call id must not have two argument
				// streams in flight.
				s.logger.Error("function call protocol violation", slog.Any("err", err))
			}
		}
		s.conv.addServerItem(e.Item)

	case *events.ResponseOutputItemDoneEvent:
		s.conv.finalize(e.Item.ID, "")

	case *events.ResponseContentPartAddedEvent:
		s.logger.Debug("content part added", slog.String("item_id", e.ItemID), slog.String("type", e.Part.Type))

	case *events.ResponseContentPartDoneEvent:
		s.logger.Debug("content part done", slog.String("item_id", e.ItemID))

	case *events.RateLimitsUpdatedEvent:
		s.mu.Lock()
		s.rateLimits = e.RateLimits
		s.mu.Unlock()

	case *events.ErrorEvent:
		if isExpiryCode(e.ErrorDetail.Code) {
			s.mu.Lock()
			s.lastErr = sessionErr(FailureSessionExpired, &e.ErrorDetail)
			cb := s.onRefresh
			s.mu.Unlock()
			if cb != nil {
				cb()
			}
			break
		}
		s.mu.Lock()
		cb := s.onError
		s.mu.Unlock()
		if cb != nil {
			cb(e)
		}

	case *events.UnknownEvent:
		s.logger.Warn("unhandled event type", slog.String("type", e.EventType))
	}

	s.mu.Lock()
	tap := s.onEvent
	s.mu.Unlock()
	if tap != nil {
		tap(evt)
	}
}

// sendSessionUpdate declares modalities, the capability list, and tool
// choice. Called once per session, immediately after session.created.
func (s *Session) sendSessionUpdate() error {
	toolChoice := tool.ChoiceNone
	if s.config.registry.Len() > 0 {
		toolChoice = tool.ChoiceAuto
	}

	update := events.SessionUpdate{
		Modalities:   s.config.modalities(),
		Instructions: s.config.instruction,
		Voice:        s.config.voice,
		Temperature:  s.config.temperature,
		Speed:        s.config.speed,
		Tools:        s.config.registry.Tools(),
		ToolChoice:   toolChoice,
	}
	if s.config.mode == ModeTextAudio {
		update.InputAudioFormat = events.AudioFormatPCM16
		update.OutputAudioFormat = events.AudioFormatPCM16
		update.TurnDetection = &events.TurnDetection{
			Type:              "server_vad",
			CreateResponse:    true,
			InterruptResponse: true,
		}
	}

	return s.Send(events.SessionUpdateEvent{
		BaseEvent: events.NewBaseEvent(events.TypeSessionUpdate),
		Session:   update,
	})
}
