package rtassist

import (
	"sync"

	"github.com/codewandler/rtassist-go/events"
)

// ItemKind is the conversation item discriminator.
type ItemKind string

const (
	ItemMessage            ItemKind = "message"
	ItemFunctionCall       ItemKind = "function_call"
	ItemFunctionCallOutput ItemKind = "function_call_output"
)

// Item is one turn in the conversation log. Text is mutable while the item
// streams and frozen once its terminal done event arrives.
type Item struct {
	ID        string
	Kind      ItemKind
	Role      string
	Text      string
	CallID    string
	Arguments string
	Done      bool
}

// Conversation is the session's append-only turn log. Items are only ever
// appended; truncation and deletion events are acknowledged but never remove
// entries. The single sanctioned in-place mutation is delta accumulation on
// the current in-progress assistant item.
type Conversation struct {
	mu      sync.Mutex
	id      string
	items   []*Item
	index   map[string]*Item
	current *Item
}

func newConversation() *Conversation {
	return &Conversation{index: make(map[string]*Item)}
}

func (c *Conversation) setID(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.id = id
}

// ID returns the server-assigned conversation identifier.
func (c *Conversation) ID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.id
}

func (c *Conversation) appendLocked(item *Item) {
	c.items = append(c.items, item)
	if item.ID != "" {
		c.index[item.ID] = item
	}
}

// addServerItem records an item announced by the server. Re-announcements of
// a known item are ignored so the log stays append-only.
func (c *Conversation) addServerItem(si events.ConversationItem) *Item {
	c.mu.Lock()
	defer c.mu.Unlock()

	if existing, ok := c.index[si.ID]; ok && si.ID != "" {
		return existing
	}

	item := &Item{
		ID:        si.ID,
		Kind:      ItemKind(si.Type),
		Role:      si.Role,
		CallID:    si.CallID,
		Arguments: si.Arguments,
	}
	for _, content := range si.Content {
		if content.Text != "" {
			item.Text += content.Text
		} else if content.Transcript != "" {
			item.Text += content.Transcript
		}
	}
	c.appendLocked(item)
	return item
}

// appendDelta accumulates a streamed text fragment onto the in-progress
// assistant item, starting one if none is accumulating yet.
func (c *Conversation) appendDelta(itemID, delta string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	item := c.index[itemID]
	if item == nil {
		if c.current != nil && !c.current.Done {
			item = c.current
		} else {
			item = &Item{ID: itemID, Kind: ItemMessage, Role: "assistant"}
			c.appendLocked(item)
		}
	}
	item.Text += delta
	c.current = item
}

// finalize freezes an item's content. A non-empty full text replaces the
// accumulated content, matching the terminal done event's authoritative copy.
func (c *Conversation) finalize(itemID, full string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	item := c.index[itemID]
	if item == nil {
		item = c.current
	}
	if item == nil {
		return
	}
	if full != "" {
		item.Text = full
	}
	item.Done = true
	if c.current == item {
		c.current = nil
	}
}

// setTranscript records the completed transcription of a user audio item.
func (c *Conversation) setTranscript(itemID, transcript string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	item := c.index[itemID]
	if item == nil {
		item = &Item{ID: itemID, Kind: ItemMessage, Role: "user"}
		c.appendLocked(item)
	}
	item.Text = transcript
	item.Done = true
}

// Items returns a snapshot of the log.
func (c *Conversation) Items() []Item {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]Item, len(c.items))
	for i, item := range c.items {
		out[i] = *item
	}
	return out
}
