package events

import (
	"encoding/json"
	"fmt"
)

// Server event type values. This set is closed: anything else coming off the
// data channel parses into *UnknownEvent.
const (
	TypeError = "error"

	TypeSessionCreated = "session.created"
	TypeSessionUpdated = "session.updated"

	TypeConversationCreated         = "conversation.created"
	TypeConversationItemCreated     = "conversation.item.created"
	TypeConversationItemTruncated   = "conversation.item.truncated"
	TypeConversationItemDeleted     = "conversation.item.deleted"
	TypeInputTranscriptionCompleted = "conversation.item.input_audio_transcription.completed"
	TypeInputTranscriptionFailed    = "conversation.item.input_audio_transcription.failed"

	TypeInputAudioBufferCommitted = "input_audio_buffer.committed"
	TypeInputAudioBufferCleared   = "input_audio_buffer.cleared"
	TypeSpeechStarted             = "input_audio_buffer.speech_started"
	TypeSpeechStopped             = "input_audio_buffer.speech_stopped"

	TypeResponseCreated              = "response.created"
	TypeResponseDone                 = "response.done"
	TypeResponseCancelled            = "response.cancelled"
	TypeResponseTextDelta            = "response.text.delta"
	TypeResponseTextDone             = "response.text.done"
	TypeResponseAudioTranscriptDelta = "response.audio_transcript.delta"
	TypeResponseAudioTranscriptDone  = "response.audio_transcript.done"
	TypeResponseAudioDelta           = "response.audio.delta"
	TypeResponseAudioDone            = "response.audio.done"
	TypeFunctionCallArgumentsDelta   = "response.function_call_arguments.delta"
	TypeFunctionCallArgumentsDone    = "response.function_call_arguments.done"
	TypeResponseOutputItemAdded      = "response.output_item.added"
	TypeResponseOutputItemDone       = "response.output_item.done"
	TypeResponseContentPartAdded     = "response.content_part.added"
	TypeResponseContentPartDone      = "response.content_part.done"

	TypeRateLimitsUpdated = "rate_limits.updated"
)

// ServerEvent is implemented by every inbound event shape, including
// *UnknownEvent for types outside the known set.
type ServerEvent interface {
	serverEvent()
}

type ErrorEvent struct {
	BaseEvent
	ErrorDetail ErrorDetail `json:"error"`
}

func (e *ErrorEvent) Error() string {
	return e.ErrorDetail.Error()
}

// ErrorDetail holds the details of the error.
type ErrorDetail struct {
	Type    string `json:"type"`
	Code    string `json:"code"`
	Message string `json:"message"`
	Param   string `json:"param"`
	EventID string `json:"event_id"`
}

func (e *ErrorDetail) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

type SessionCreatedEvent struct {
	BaseEvent
	Session Session `json:"session"`
}

type SessionUpdatedEvent struct {
	BaseEvent
	Session Session `json:"session"`
}

type Conversation struct {
	ID     string `json:"id"`
	Object string `json:"object,omitempty"`
}

type ConversationCreatedEvent struct {
	BaseEvent
	Conversation Conversation `json:"conversation"`
}

type ConversationItemCreatedEvent struct {
	BaseEvent
	Item ConversationItem `json:"item"`
}

type ConversationItemTruncatedEvent struct {
	BaseEvent
	ItemID       string `json:"item_id"`
	ContentIndex int    `json:"content_index"`
	AudioEndMs   int    `json:"audio_end_ms"`
}

type ConversationItemDeletedEvent struct {
	BaseEvent
	ItemID string `json:"item_id"`
}

type InputTranscriptionCompletedEvent struct {
	BaseEvent
	ItemID       string `json:"item_id"`
	ContentIndex int    `json:"content_index"`
	Transcript   string `json:"transcript"`
}

type InputTranscriptionFailedEvent struct {
	BaseEvent
	ItemID       string      `json:"item_id"`
	ContentIndex int         `json:"content_index"`
	ErrorDetail  ErrorDetail `json:"error"`
}

type InputAudioBufferCommittedEvent struct {
	BaseEvent
	ItemID string `json:"item_id"`
}

type InputAudioBufferClearedEvent struct {
	BaseEvent
}

type SpeechStartedEvent struct {
	BaseEvent
	AudioStartMs int    `json:"audio_start_ms"`
	ItemID       string `json:"item_id"`
}

type SpeechStoppedEvent struct {
	BaseEvent
	AudioEndMs int    `json:"audio_end_ms"`
	ItemID     string `json:"item_id"`
}

// ResponsePayload is the "response" object carried by response lifecycle
// events.
type ResponsePayload struct {
	ID     string             `json:"id,omitempty"`
	Object string             `json:"object,omitempty"`
	Status string             `json:"status,omitempty"`
	Output []ConversationItem `json:"output,omitempty"`
	Usage  *Usage             `json:"usage,omitempty"`
}

type Usage struct {
	TotalTokens  int `json:"total_tokens"`
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

type ResponseCreatedEvent struct {
	BaseEvent
	Response ResponsePayload `json:"response"`
}

type ResponseDoneEvent struct {
	BaseEvent
	Response ResponsePayload `json:"response"`
}

type ResponseCancelledEvent struct {
	BaseEvent
	Response ResponsePayload `json:"response"`
}

type ResponseTextDeltaEvent struct {
	BaseEvent
	ResponseID   string `json:"response_id"`
	ItemID       string `json:"item_id"`
	OutputIndex  int    `json:"output_index"`
	ContentIndex int    `json:"content_index"`
	Delta        string `json:"delta"`
}

type ResponseTextDoneEvent struct {
	BaseEvent
	ResponseID   string `json:"response_id"`
	ItemID       string `json:"item_id"`
	OutputIndex  int    `json:"output_index"`
	ContentIndex int    `json:"content_index"`
	Text         string `json:"text"`
}

type ResponseAudioTranscriptDeltaEvent struct {
	BaseEvent
	ResponseID   string `json:"response_id"`
	ItemID       string `json:"item_id"`
	OutputIndex  int    `json:"output_index"`
	ContentIndex int    `json:"content_index"`
	Delta        string `json:"delta"`
}

type ResponseAudioTranscriptDoneEvent struct {
	BaseEvent
	ResponseID   string `json:"response_id"`
	ItemID       string `json:"item_id"`
	OutputIndex  int    `json:"output_index"`
	ContentIndex int    `json:"content_index"`
	Transcript   string `json:"transcript"`
}

// ResponseAudioDeltaEvent carries a base64-encoded PCM chunk in Delta.
type ResponseAudioDeltaEvent struct {
	BaseEvent
	ResponseID   string `json:"response_id"`
	ItemID       string `json:"item_id"`
	OutputIndex  int    `json:"output_index"`
	ContentIndex int    `json:"content_index"`
	Delta        string `json:"delta"`
}

type ResponseAudioDoneEvent struct {
	BaseEvent
	ResponseID   string `json:"response_id"`
	ItemID       string `json:"item_id"`
	OutputIndex  int    `json:"output_index"`
	ContentIndex int    `json:"content_index"`
}

type FunctionCallArgumentsDeltaEvent struct {
	BaseEvent
	ResponseID  string `json:"response_id"`
	ItemID      string `json:"item_id"`
	OutputIndex int    `json:"output_index"`
	CallID      string `json:"call_id"`
	Delta       string `json:"delta"`
}

type FunctionCallArgumentsDoneEvent struct {
	BaseEvent
	ResponseID  string `json:"response_id"`
	ItemID      string `json:"item_id"`
	OutputIndex int    `json:"output_index"`
	CallID      string `json:"call_id"`
	Name        string `json:"name"`
	Arguments   string `json:"arguments"`
}

type ResponseOutputItemAddedEvent struct {
	BaseEvent
	ResponseID  string           `json:"response_id"`
	OutputIndex int              `json:"output_index"`
	Item        ConversationItem `json:"item"`
}

type ResponseOutputItemDoneEvent struct {
	BaseEvent
	ResponseID  string           `json:"response_id"`
	OutputIndex int              `json:"output_index"`
	Item        ConversationItem `json:"item"`
}

type ContentPart struct {
	Type       string `json:"type"`
	Text       string `json:"text,omitempty"`
	Transcript string `json:"transcript,omitempty"`
}

type ResponseContentPartAddedEvent struct {
	BaseEvent
	ResponseID   string      `json:"response_id"`
	ItemID       string      `json:"item_id"`
	OutputIndex  int         `json:"output_index"`
	ContentIndex int         `json:"content_index"`
	Part         ContentPart `json:"part"`
}

type ResponseContentPartDoneEvent struct {
	BaseEvent
	ResponseID   string      `json:"response_id"`
	ItemID       string      `json:"item_id"`
	OutputIndex  int         `json:"output_index"`
	ContentIndex int         `json:"content_index"`
	Part         ContentPart `json:"part"`
}

type RateLimit struct {
	Name         string  `json:"name"`
	Limit        int     `json:"limit"`
	Remaining    int     `json:"remaining"`
	ResetSeconds float64 `json:"reset_seconds"`
}

type RateLimitsUpdatedEvent struct {
	BaseEvent
	RateLimits []RateLimit `json:"rate_limits"`
}

// UnknownEvent carries a frame whose type is outside the known set. It is
// routed, logged and otherwise ignored, never dropped silently.
type UnknownEvent struct {
	EventType string
	Raw       json.RawMessage
}

func (*ErrorEvent) serverEvent() {}
func (*SessionCreatedEvent) serverEvent() {}
func (*SessionUpdatedEvent) serverEvent() {}
func (*ConversationCreatedEvent) serverEvent() {}
func (*ConversationItemCreatedEvent) serverEvent() {}
func (*ConversationItemTruncatedEvent) serverEvent() {}
func (*ConversationItemDeletedEvent) serverEvent() {}
func (*InputTranscriptionCompletedEvent) serverEvent() {}
func (*InputTranscriptionFailedEvent) serverEvent() {}
func (*InputAudioBufferCommittedEvent) serverEvent() {}
func (*InputAudioBufferClearedEvent) serverEvent() {}
func (*SpeechStartedEvent) serverEvent() {}
func (*SpeechStoppedEvent) serverEvent() {}
func (*ResponseCreatedEvent) serverEvent() {}
func (*ResponseDoneEvent) serverEvent() {}
func (*ResponseCancelledEvent) serverEvent() {}
func (*ResponseTextDeltaEvent) serverEvent() {}
func (*ResponseTextDoneEvent) serverEvent() {}
func (*ResponseAudioTranscriptDeltaEvent) serverEvent() {}
func (*ResponseAudioTranscriptDoneEvent) serverEvent() {}
func (*ResponseAudioDeltaEvent) serverEvent() {}
func (*ResponseAudioDoneEvent) serverEvent() {}
func (*FunctionCallArgumentsDeltaEvent) serverEvent() {}
func (*FunctionCallArgumentsDoneEvent) serverEvent() {}
func (*ResponseOutputItemAddedEvent) serverEvent() {}
func (*ResponseOutputItemDoneEvent) serverEvent() {}
func (*ResponseContentPartAddedEvent) serverEvent() {}
func (*ResponseContentPartDoneEvent) serverEvent() {}
func (*RateLimitsUpdatedEvent) serverEvent() {}
func (*UnknownEvent) serverEvent() {}

func parseAs[T any, PT interface {
	*T
	ServerEvent
}](data []byte) (ServerEvent, error) {
	evt, err := Parse[T](data)
	if err != nil {
		return nil, err
	}
	return PT(evt), nil
}

// ParseServer decodes a raw data channel frame into its typed server event.
// A frame that is not valid JSON is an error; a valid frame with a type
// outside the known set yields *UnknownEvent.
func ParseServer(data []byte) (ServerEvent, error) {
	var head struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return nil, fmt.Errorf("malformed event frame: %w", err)
	}

	switch head.Type {
	case TypeError:
		return parseAs[ErrorEvent, *ErrorEvent](data)
	case TypeSessionCreated:
		return parseAs[SessionCreatedEvent, *SessionCreatedEvent](data)
	case TypeSessionUpdated:
		return parseAs[SessionUpdatedEvent, *SessionUpdatedEvent](data)
	case TypeConversationCreated:
		return parseAs[ConversationCreatedEvent, *ConversationCreatedEvent](data)
	case TypeConversationItemCreated:
		return parseAs[ConversationItemCreatedEvent, *ConversationItemCreatedEvent](data)
	case TypeConversationItemTruncated:
		return parseAs[ConversationItemTruncatedEvent, *ConversationItemTruncatedEvent](data)
	case TypeConversationItemDeleted:
		return parseAs[ConversationItemDeletedEvent, *ConversationItemDeletedEvent](data)
	case TypeInputTranscriptionCompleted:
		return parseAs[InputTranscriptionCompletedEvent, *InputTranscriptionCompletedEvent](data)
	case TypeInputTranscriptionFailed:
		return parseAs[InputTranscriptionFailedEvent, *InputTranscriptionFailedEvent](data)
	case TypeInputAudioBufferCommitted:
		return parseAs[InputAudioBufferCommittedEvent, *InputAudioBufferCommittedEvent](data)
	case TypeInputAudioBufferCleared:
		return parseAs[InputAudioBufferClearedEvent, *InputAudioBufferClearedEvent](data)
	case TypeSpeechStarted:
		return parseAs[SpeechStartedEvent, *SpeechStartedEvent](data)
	case TypeSpeechStopped:
		return parseAs[SpeechStoppedEvent, *SpeechStoppedEvent](data)
	case TypeResponseCreated:
		return parseAs[ResponseCreatedEvent, *ResponseCreatedEvent](data)
	case TypeResponseDone:
		return parseAs[ResponseDoneEvent, *ResponseDoneEvent](data)
	case TypeResponseCancelled:
		return parseAs[ResponseCancelledEvent, *ResponseCancelledEvent](data)
	case TypeResponseTextDelta:
		return parseAs[ResponseTextDeltaEvent, *ResponseTextDeltaEvent](data)
	case TypeResponseTextDone:
		return parseAs[ResponseTextDoneEvent, *ResponseTextDoneEvent](data)
	case TypeResponseAudioTranscriptDelta:
		return parseAs[ResponseAudioTranscriptDeltaEvent, *ResponseAudioTranscriptDeltaEvent](data)
	case TypeResponseAudioTranscriptDone:
		return parseAs[ResponseAudioTranscriptDoneEvent, *ResponseAudioTranscriptDoneEvent](data)
	case TypeResponseAudioDelta:
		return parseAs[ResponseAudioDeltaEvent, *ResponseAudioDeltaEvent](data)
	case TypeResponseAudioDone:
		return parseAs[ResponseAudioDoneEvent, *ResponseAudioDoneEvent](data)
	case TypeFunctionCallArgumentsDelta:
		return parseAs[FunctionCallArgumentsDeltaEvent, *FunctionCallArgumentsDeltaEvent](data)
	case TypeFunctionCallArgumentsDone:
		return parseAs[FunctionCallArgumentsDoneEvent, *FunctionCallArgumentsDoneEvent](data)
	case TypeResponseOutputItemAdded:
		return parseAs[ResponseOutputItemAddedEvent, *ResponseOutputItemAddedEvent](data)
	case TypeResponseOutputItemDone:
		return parseAs[ResponseOutputItemDoneEvent, *ResponseOutputItemDoneEvent](data)
	case TypeResponseContentPartAdded:
		return parseAs[ResponseContentPartAddedEvent, *ResponseContentPartAddedEvent](data)
	case TypeResponseContentPartDone:
		return parseAs[ResponseContentPartDoneEvent, *ResponseContentPartDoneEvent](data)
	case TypeRateLimitsUpdated:
		return parseAs[RateLimitsUpdatedEvent, *RateLimitsUpdatedEvent](data)
	default:
		return &UnknownEvent{EventType: head.Type, Raw: append(json.RawMessage(nil), data...)}, nil
	}
}
