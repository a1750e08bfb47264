package rtassist

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/codewandler/rtassist-go/events"
	"github.com/codewandler/rtassist-go/tool"
	"github.com/stretchr/testify/require"
)

type eventCapture struct {
	ch chan any
}

func newEventCapture() *eventCapture {
	return &eventCapture{ch: make(chan any, 16)}
}

func (c *eventCapture) send(evt any) error {
	c.ch <- evt
	return nil
}

func (c *eventCapture) next(t *testing.T) any {
	t.Helper()
	select {
	case evt := <-c.ch:
		return evt
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for outbound event")
		return nil
	}
}

func outputPayload(t *testing.T, evt any) (string, map[string]any) {
	t.Helper()
	item, ok := evt.(events.ConversationItemCreateEvent)
	require.True(t, ok, "expected conversation.item.create, got %T", evt)
	require.Equal(t, "function_call_output", item.Item.Type)

	var payload map[string]any
	require.NoError(t, json.Unmarshal([]byte(item.Item.Output), &payload))
	return item.Item.CallID, payload
}

func requirePair(t *testing.T, capture *eventCapture, wantCallID string) map[string]any {
	t.Helper()
	callID, payload := outputPayload(t, capture.next(t))
	require.Equal(t, wantCallID, callID)
	_, ok := capture.next(t).(events.ResponseCreateEvent)
	require.True(t, ok, "function call output must be followed by response.create")
	return payload
}

func testRegistry(t *testing.T, caps ...tool.Capability) *tool.Registry {
	t.Helper()
	r, err := tool.NewRegistry(caps...)
	require.NoError(t, err)
	return r
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestBridge_SuccessfulCall(t *testing.T) {
	capture := newEventCapture()
	registry := testRegistry(t, tool.Capability{
		Tool: tool.Func("greet", "", nil),
		Executor: tool.ExecutorFunc(func(_ context.Context, args map[string]any) (map[string]any, error) {
			return map[string]any{"greeting": "hello " + args["name"].(string)}, nil
		}),
	})
	b := newBridge(registry, capture.send, discardLogger())

	require.NoError(t, b.begin("call_1", "greet", "item_1"))
	b.appendArgs("call_1", `{"name":`)
	b.appendArgs("call_1", `"ada"}`)
	b.complete(context.Background(), "call_1", "greet", "")

	payload := requirePair(t, capture, "call_1")
	require.Equal(t, true, payload["success"])
	require.Equal(t, "hello ada", payload["greeting"])
	require.Equal(t, 0, b.inFlight())
}

func TestBridge_ArgumentParseFailure(t *testing.T) {
	var invoked atomic.Int32
	capture := newEventCapture()
	registry := testRegistry(t, tool.Capability{
		Tool: tool.Func("greet", "", nil),
		Executor: tool.ExecutorFunc(func(_ context.Context, _ map[string]any) (map[string]any, error) {
			invoked.Add(1)
			return nil, nil
		}),
	})
	b := newBridge(registry, capture.send, discardLogger())

	require.NoError(t, b.begin("call_1", "greet", "item_1"))
	b.appendArgs("call_1", `{invalid`)
	b.complete(context.Background(), "call_1", "greet", "")

	payload := requirePair(t, capture, "call_1")
	require.Equal(t, false, payload["success"])
	require.Contains(t, payload["error"], "invalid function arguments")
	require.Equal(t, int32(0), invoked.Load(), "executor must not run on parse failure")
}

func TestBridge_ExecutorError(t *testing.T) {
	capture := newEventCapture()
	registry := testRegistry(t, tool.Capability{
		Tool: tool.Func("boom", "", nil),
		Executor: tool.ExecutorFunc(func(_ context.Context, _ map[string]any) (map[string]any, error) {
			return nil, fmt.Errorf("collaborator unavailable")
		}),
	})
	b := newBridge(registry, capture.send, discardLogger())

	require.NoError(t, b.begin("call_1", "boom", "item_1"))
	b.complete(context.Background(), "call_1", "boom", `{}`)

	payload := requirePair(t, capture, "call_1")
	require.Equal(t, false, payload["success"])
	require.Equal(t, "collaborator unavailable", payload["error"])
}

func TestBridge_ExecutorPanic(t *testing.T) {
	capture := newEventCapture()
	registry := testRegistry(t, tool.Capability{
		Tool: tool.Func("boom", "", nil),
		Executor: tool.ExecutorFunc(func(_ context.Context, _ map[string]any) (map[string]any, error) {
			panic("unexpected")
		}),
	})
	b := newBridge(registry, capture.send, discardLogger())

	require.NoError(t, b.begin("call_1", "boom", "item_1"))
	b.complete(context.Background(), "call_1", "boom", `{}`)

	payload := requirePair(t, capture, "call_1")
	require.Equal(t, false, payload["success"])
	require.Contains(t, payload["error"], "panicked")
}

func TestBridge_UnknownCapability(t *testing.T) {
	capture := newEventCapture()
	b := newBridge(testRegistry(t), capture.send, discardLogger())

	b.complete(context.Background(), "call_1", "does_not_exist", `{}`)

	payload := requirePair(t, capture, "call_1")
	require.Equal(t, false, payload["success"])
	require.Contains(t, payload["error"], "unsupported function: does_not_exist")
}

func TestBridge_DuplicateCallID(t *testing.T) {
	b := newBridge(testRegistry(t), newEventCapture().send, discardLogger())

	require.NoError(t, b.begin("call_1", "greet", "item_1"))
	require.Error(t, b.begin("call_1", "greet", "item_2"))
}

func TestBridge_DoneArgumentsTakePrecedence(t *testing.T) {
	capture := newEventCapture()
	registry := testRegistry(t, tool.Capability{
		Tool: tool.Func("echo", "", nil),
		Executor: tool.ExecutorFunc(func(_ context.Context, args map[string]any) (map[string]any, error) {
			return map[string]any{"value": args["value"]}, nil
		}),
	})
	b := newBridge(registry, capture.send, discardLogger())

	require.NoError(t, b.begin("call_1", "echo", "item_1"))
	b.appendArgs("call_1", `{"value":"partial`)
	b.complete(context.Background(), "call_1", "echo", `{"value":"full"}`)

	payload := requirePair(t, capture, "call_1")
	require.Equal(t, "full", payload["value"])
}

func TestBridge_ConcurrentCalls(t *testing.T) {
	capture := newEventCapture()
	registry := testRegistry(t, tool.Capability{
		Tool: tool.Func("slow", "", nil),
		Executor: tool.ExecutorFunc(func(_ context.Context, args map[string]any) (map[string]any, error) {
			time.Sleep(10 * time.Millisecond)
			return map[string]any{"id": args["id"]}, nil
		}),
	})
	b := newBridge(registry, capture.send, discardLogger())

	require.NoError(t, b.begin("call_1", "slow", "item_1"))
	require.NoError(t, b.begin("call_2", "slow", "item_2"))
	b.complete(context.Background(), "call_1", "slow", `{"id":1}`)
	b.complete(context.Background(), "call_2", "slow", `{"id":2}`)

	var outputs, continues int
	seen := map[string]bool{}
	for i := 0; i < 4; i++ {
		switch evt := capture.next(t).(type) {
		case events.ConversationItemCreateEvent:
			outputs++
			seen[evt.Item.CallID] = true
		case events.ResponseCreateEvent:
			continues++
		}
	}
	require.Equal(t, 2, outputs)
	require.Equal(t, 2, continues)
	require.True(t, seen["call_1"])
	require.True(t, seen["call_2"])
	require.Equal(t, 0, b.inFlight())
}
