package rtassist

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/codewandler/rtassist-go/events"
	"github.com/codewandler/rtassist-go/tool"
)

type callState int

const (
	callArgsStreaming callState = iota
	callArgsComplete
	callExecuting
	callResolved
)

type pendingCall struct {
	callID string
	name   string
	itemID string
	args   strings.Builder
	state  callState
}

// bridge turns model-issued function calls into local capability executions
// and answers each with a correlated function-call-output item followed by a
// response continuation. The output/continue pair is emitted for every
// terminal outcome: success, executor failure, argument parse failure, and
// unknown capability names alike.
type bridge struct {
	mu       sync.Mutex
	pending  map[string]*pendingCall
	registry *tool.Registry
	send     func(evt any) error
	logger   *slog.Logger
}

func newBridge(registry *tool.Registry, send func(evt any) error, logger *slog.Logger) *bridge {
	return &bridge{
		pending:  make(map[string]*pendingCall),
		registry: registry,
		send:     send,
		logger:   logger,
	}
}

// begin opens an argument accumulation for callID. A second in-flight stream
// with the same call id is a protocol violation and is rejected.
func (b *bridge) begin(callID, name, itemID string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, exists := b.pending[callID]; exists {
		return fmt.Errorf("function call %q already has an argument stream in flight", callID)
	}
	b.pending[callID] = &pendingCall{
		callID: callID,
		name:   name,
		itemID: itemID,
		state:  callArgsStreaming,
	}
	return nil
}

// appendArgs concatenates one argument text fragment. A delta arriving
// before the call was announced starts the accumulation; the done event
// carries the name.
func (b *bridge) appendArgs(callID, delta string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	call, ok := b.pending[callID]
	if !ok {
		call = &pendingCall{callID: callID, state: callArgsStreaming}
		b.pending[callID] = call
	}
	call.args.WriteString(delta)
}

// reset discards every unresolved accumulation. Called on session teardown
// so call ids from a dead connection never collide with the next one.
func (b *bridge) reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	clear(b.pending)
}

// inFlight reports the number of unresolved calls.
func (b *bridge) inFlight() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.pending)
}

// complete consumes the accumulation for callID and executes the call
// asynchronously. name and fullArgs from the terminal event take precedence
// over accumulated state when present.
func (b *bridge) complete(ctx context.Context, callID, name, fullArgs string) {
	b.mu.Lock()
	call, ok := b.pending[callID]
	if !ok {
		call = &pendingCall{callID: callID}
	}
	delete(b.pending, callID)
	b.mu.Unlock()

	call.state = callArgsComplete
	if name != "" {
		call.name = name
	}
	raw := fullArgs
	if raw == "" {
		raw = call.args.String()
	}

	var args map[string]any
	if err := json.Unmarshal([]byte(raw), &args); err != nil {
		// Parse failure short-circuits execution but still resolves the call.
		b.logger.Warn("function call arguments failed to parse",
			slog.String("call_id", callID),
			slog.String("name", call.name),
			slog.Any("err", err),
		)
		b.resolve(callID, map[string]any{
			"success": false,
			"error":   fmt.Sprintf("invalid function arguments: %s", err),
		})
		return
	}

	capability, ok := b.registry.Lookup(call.name)
	if !ok {
		b.logger.Warn("unknown function capability", slog.String("name", call.name))
		b.resolve(callID, map[string]any{
			"success": false,
			"error":   fmt.Sprintf("unsupported function: %s", call.name),
		})
		return
	}

	call.state = callExecuting
	go func() {
		b.resolve(callID, b.execute(ctx, capability, call.name, args))
		call.state = callResolved
	}()
}

func (b *bridge) execute(ctx context.Context, capability tool.Capability, name string, args map[string]any) (payload map[string]any) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("capability panicked", slog.String("name", name), slog.Any("panic", r))
			payload = map[string]any{
				"success": false,
				"error":   fmt.Sprintf("capability %s panicked: %v", name, r),
			}
		}
	}()

	result, err := capability.Executor.Execute(ctx, args)
	if err != nil {
		b.logger.Warn("capability failed", slog.String("name", name), slog.Any("err", err))
		return map[string]any{
			"success": false,
			"error":   err.Error(),
		}
	}

	payload = make(map[string]any, len(result)+1)
	for k, v := range result {
		payload[k] = v
	}
	payload["success"] = true
	return payload
}

// resolve emits the mandatory output/continue pair for callID. The two sends
// happen back to back on the same goroutine so the pair's internal order is
// preserved even when pairs from concurrent calls interleave.
func (b *bridge) resolve(callID string, payload map[string]any) {
	output, err := json.Marshal(payload)
	if err != nil {
		output = []byte(`{"success":false,"error":"unserializable function output"}`)
	}

	if err := b.send(events.ConversationItemCreateEvent{
		BaseEvent: events.NewBaseEvent(events.TypeConversationItemCreate),
		Item: events.ConversationItem{
			Type:   string(ItemFunctionCallOutput),
			CallID: callID,
			Output: string(output),
		},
	}); err != nil {
		b.logger.Error("failed to send function call output", slog.String("call_id", callID), slog.Any("err", err))
	}

	if err := b.send(events.ResponseCreateEvent{
		BaseEvent: events.NewBaseEvent(events.TypeResponseCreate),
		Response:  events.ResponseCreatePayload{},
	}); err != nil {
		b.logger.Error("failed to send response continuation", slog.String("call_id", callID), slog.Any("err", err))
	}
}
