package fsexec

import (
	"context"
	"fmt"
	"sync"

	"github.com/aipp-workbench/engine/internal/engineerr"
	"github.com/aipp-workbench/engine/internal/events"
	"github.com/google/uuid"
)

// AllowRule is a pre-granted permission for a conversation, matched against
// the path/command a tool call is about to touch.
type AllowRule struct {
	Kind   string // "read_file" | "write_file" | "edit_file" | "list_directory" | "execute_bash"
	Target string // exact path or command, matched verbatim (no prefix matching)
}

// Gate implements the permission-request/oneshot-reply pattern: a
// tool call either matches a pre-granted allow-rule, or suspends on an event
// published to the conversation's channel until the user grants or denies it.
type Gate struct {
	bus *events.Bus

	mu      sync.Mutex
	allowed map[string][]AllowRule          // conversationID -> rules
	pending map[string]chan bool            // requestID -> oneshot reply channel
}

// NewGate builds a Gate over bus.
func NewGate(bus *events.Bus) *Gate {
	return &Gate{
		bus:     bus,
		allowed: make(map[string][]AllowRule),
		pending: make(map[string]chan bool),
	}
}

// Grant pre-authorizes kind/target for conversationID, skipping future
// permission prompts for matching calls.
func (g *Gate) Grant(conversationID string, rule AllowRule) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.allowed[conversationID] = append(g.allowed[conversationID], rule)
}

func (g *Gate) isPreGranted(conversationID, kind, target string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, r := range g.allowed[conversationID] {
		if r.Kind == kind && r.Target == target {
			return true
		}
	}
	return false
}

// Check blocks until the call is allowed, denied, the context is canceled,
// or the pending requests are closed (via CancelAll). It returns nil if allowed.
func (g *Gate) Check(ctx context.Context, conversationID, kind, target string) error {
	if g.isPreGranted(conversationID, kind, target) {
		return nil
	}

	requestID := uuid.NewString()
	reply := make(chan bool, 1)
	g.mu.Lock()
	g.pending[requestID] = reply
	g.mu.Unlock()
	defer func() {
		g.mu.Lock()
		delete(g.pending, requestID)
		g.mu.Unlock()
	}()

	g.bus.Publish(conversationID, events.Event{
		Kind: events.KindToolPermissionReq,
		Data: events.ToolPermissionRequest{RequestID: requestID, Kind: kind, Target: target},
	})

	select {
	case granted, ok := <-reply:
		if !ok {
			return engineerr.New(engineerr.KindPermissionDenied, "permission request channel closed before a reply arrived")
		}
		if !granted {
			return engineerr.New(engineerr.KindPermissionDenied, fmt.Sprintf("permission denied for %s %q", kind, target))
		}
		return nil
	case <-ctx.Done():
		return engineerr.Wrap(engineerr.KindTimeout, "permission request canceled", ctx.Err())
	}
}

// Resolve delivers a user's grant/deny decision for a pending request.
func (g *Gate) Resolve(requestID string, granted bool) {
	g.mu.Lock()
	reply, ok := g.pending[requestID]
	g.mu.Unlock()
	if !ok {
		return
	}
	reply <- granted
}

// CancelAll closes every pending request channel so in-flight Check calls
// observe closure rather than blocking forever, used when a conversation is
// deleted mid-prompt.
func (g *Gate) CancelAll() {
	g.mu.Lock()
	defer g.mu.Unlock()
	for id, ch := range g.pending {
		close(ch)
		delete(g.pending, id)
	}
}
