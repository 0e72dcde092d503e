// Package stream assembles the typed content fragments streamed for an
// agent session into stable, renderable blocks. Consecutive fragments of the
// same kind are merged into one block, so a session's output is always a
// sequence of maximal same-kind runs.
//
// The aggregator is a pure in-memory transform: no network, no timers. All
// methods are safe for concurrent use; feeds for different sessions are
// independent.
package stream

import (
	"sync"

	"github.com/shnupta/porter/event"
	"github.com/shnupta/porter/pubsub"
)

// BlockKind classifies a run of streamed content.
type BlockKind string

// Block kinds
const (
	BlockText     BlockKind = "text"
	BlockThinking BlockKind = "thinking"
	BlockToolCall BlockKind = "tool-call"
)

// KindFromContentType maps a wire content_type value to a block kind.
// Unknown content types are rejected so a new server-side type never
// silently merges into an existing block.
func KindFromContentType(contentType string) (BlockKind, bool) {
	switch contentType {
	case "text":
		return BlockText, true
	case "thinking":
		return BlockThinking, true
	case "tool_use":
		return BlockToolCall, true
	default:
		return "", false
	}
}

// Block is a contiguous accumulated run of same-kind content for one
// session. Blocks are values; the aggregator never hands out a reference a
// later Feed could mutate.
type Block struct {
	Kind    BlockKind
	Content string
}

// Aggregator maintains the ordered block list for each session it has seen.
type Aggregator struct {
	mu       sync.Mutex
	sessions map[string][]Block
}

// NewAggregator creates an empty aggregator.
func NewAggregator() *Aggregator {
	return &Aggregator{sessions: make(map[string][]Block)}
}

// Feed appends a content fragment to the session's block list. If the last
// block has the same kind the fragment is concatenated onto it; otherwise a
// new block starts. Empty fragments still start a block on a kind change so
// run boundaries stay faithful to arrival order.
func (a *Aggregator) Feed(sessionID, content string, kind BlockKind) {
	a.mu.Lock()
	defer a.mu.Unlock()

	blocks := a.sessions[sessionID]
	if n := len(blocks); n > 0 && blocks[n-1].Kind == kind {
		blocks[n-1] = Block{Kind: kind, Content: blocks[n-1].Content + content}
	} else {
		blocks = append(blocks, Block{Kind: kind, Content: content})
	}
	a.sessions[sessionID] = blocks
}

// Snapshot returns a copy of the session's current blocks, in order. An
// unknown session yields an empty slice.
func (a *Aggregator) Snapshot(sessionID string) []Block {
	a.mu.Lock()
	defer a.mu.Unlock()

	blocks := a.sessions[sessionID]
	out := make([]Block, len(blocks))
	copy(out, blocks)
	return out
}

// Reset clears the session's block list. Callers use this when the session
// leaves the running status or when its durable message history has just
// been reloaded, so streamed content is never rendered twice. Resetting an
// unknown session is a no-op.
func (a *Aggregator) Reset(sessionID string) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if _, ok := a.sessions[sessionID]; ok {
		a.sessions[sessionID] = nil
	}
}

// Evict drops all state for the session. Called when no consumer observes
// the session anymore, to bound memory.
func (a *Aggregator) Evict(sessionID string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.sessions, sessionID)
}

// Sessions returns the ids the aggregator currently holds state for.
func (a *Aggregator) Sessions() []string {
	a.mu.Lock()
	defer a.mu.Unlock()

	ids := make([]string, 0, len(a.sessions))
	for id := range a.sessions {
		ids = append(ids, id)
	}
	return ids
}

// Listener returns a subscriber that drives the aggregator from the event
// stream: AgentOutput fragments are fed into their session's block list, and
// a session leaving the running status is reset (its final content will be
// reconciled from durable storage instead). Fragments with a missing session
// id or an unknown content type are dropped.
func (a *Aggregator) Listener() pubsub.Handler {
	return func(env *event.Envelope) {
		switch env.Type {
		case event.KindAgentOutput:
			var data event.AgentOutputData
			if err := env.DecodeData(&data); err != nil {
				return
			}
			if data.SessionID == "" {
				return
			}
			kind, ok := KindFromContentType(data.ContentType)
			if !ok {
				return
			}
			a.Feed(data.SessionID, data.Content, kind)

		case event.KindAgentStatusChanged:
			sid, ok := env.SessionID()
			if !ok {
				return
			}
			status, ok := env.SessionStatus()
			if !ok {
				return
			}
			if status != event.AgentRunning {
				a.Reset(sid)
			}
		}
	}
}
