// Package orchestrator is the glue that drives one user turn through
// request building, the provider stream, and the tool-call loop until no
// further tool call is auto-executed or the loop bound is hit.
package orchestrator

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/aipp-workbench/engine/internal/agent"
	"github.com/aipp-workbench/engine/internal/branch"
	"github.com/aipp-workbench/engine/internal/dispatcher"
	"github.com/aipp-workbench/engine/internal/engineerr"
	"github.com/aipp-workbench/engine/internal/events"
	"github.com/aipp-workbench/engine/internal/metrics"
	"github.com/aipp-workbench/engine/internal/store"
)

// maxLoopIterations bounds the tool-call loop. Dispatch releases its
// per-conversation recursion depth before returning, so successive
// iterations never reach the dispatcher's limit of 3; this constant is the
// only bound on how many provider turns one RunTurn call chains.
const maxLoopIterations = 8

// Provider resolves the LLMProvider for a turn; callers that only ever use
// one provider can supply a constant function.
type Provider func(modelID string) (agent.LLMProvider, error)

// Orchestrator drives the per-conversation turn loop.
type Orchestrator struct {
	store      store.Store
	bus        *events.Bus
	dispatcher *dispatcher.Dispatcher
	provider   Provider
	strategy   branch.Strategy

	mu      sync.Mutex
	cancels map[string]context.CancelFunc // keyed by message_id
}

// New builds an Orchestrator.
func New(st store.Store, bus *events.Bus, disp *dispatcher.Dispatcher, provider Provider, strategy branch.Strategy) *Orchestrator {
	return &Orchestrator{
		store:      st,
		bus:        bus,
		dispatcher: disp,
		provider:   provider,
		strategy:   strategy,
		cancels:    make(map[string]context.CancelFunc),
	}
}

// Cancel flips the cancellation token registered for messageID, if any. It
// reports whether a live stream was found and cancelled.
func (o *Orchestrator) Cancel(messageID string) bool {
	o.mu.Lock()
	cancel, ok := o.cancels[messageID]
	o.mu.Unlock()
	if !ok {
		return false
	}
	cancel()
	return true
}

func (o *Orchestrator) registerCancel(messageID string, cancel context.CancelFunc) {
	o.mu.Lock()
	o.cancels[messageID] = cancel
	o.mu.Unlock()
}

func (o *Orchestrator) releaseCancel(messageID string) {
	o.mu.Lock()
	delete(o.cancels, messageID)
	o.mu.Unlock()
}

// TurnOptions configures one call to RunTurn.
type TurnOptions struct {
	// ModelID selects the provider/model; resolved through Provider.
	ModelID string
	// There is no system-prompt option: request building reads the system
	// prompt only from history, where the caller stores it as a system
	// Message before RunTurn is invoked.

	// TruncateAt, when non-empty, is the parent_group_id being regenerated;
	// it is forwarded to branch.FilterForRegeneration for the first request
	// built in this turn only.
	TruncateAt string
	MaxTokens  int
}

// RunTurn drives one user turn: build request, stream the
// provider, persist the assistant turn, scan for a tool call, execute it if
// auto-run, and repeat until no call is found, the call is left pending for
// user confirmation, or the loop bound is hit.
//
// The caller is responsible for having already appended the user's turn (or
// the scheduler's synthetic turn) to the store before calling RunTurn.
func (o *Orchestrator) RunTurn(ctx context.Context, conversationID string, opts TurnOptions) error {
	llm, err := o.provider(opts.ModelID)
	if err != nil {
		return engineerr.Wrap(engineerr.KindProvider, "resolve provider", err)
	}

	truncateAt := opts.TruncateAt
	parentGroup := opts.TruncateAt // only the first produced turn records the regeneration link
	for iteration := 0; iteration < maxLoopIterations; iteration++ {
		rows, err := o.store.Messages().ListByConversation(ctx, conversationID)
		if err != nil {
			return engineerr.Wrap(engineerr.KindDatabase, "list messages", err)
		}
		msgs := make([]store.Message, len(rows))
		attachments := map[string][]store.MessageAttachment{}
		for i, m := range rows {
			msgs[i] = *m
			if m.MessageType != store.MessageUser {
				continue
			}
			atts, attErr := o.store.Messages().ListAttachments(ctx, m.ID)
			if attErr != nil {
				return engineerr.Wrap(engineerr.KindDatabase, "list attachments", attErr)
			}
			for _, att := range atts {
				attachments[m.ID] = append(attachments[m.ID], *att)
			}
		}

		chatMessages, err := branch.BuildChatMessages(msgs, branch.BuildOptions{
			Strategy:    o.strategy,
			TruncateAt:  truncateAt,
			Attachments: attachments,
		})
		if err != nil {
			return engineerr.Wrap(engineerr.KindInternal, "build chat request", err)
		}
		truncateAt = "" // only the first request of a regeneration truncates

		respMsg, err := o.streamTurn(ctx, conversationID, llm, chatMessages, opts, parentGroup)
		if err != nil {
			return err
		}
		parentGroup = "" // subsequent tool-loop turns are plain continuations, not regenerations

		outcome, err := o.dispatcher.Dispatch(ctx, conversationID, respMsg.ID, respMsg.Content)
		if err != nil {
			return engineerr.Wrap(engineerr.KindInternal, "dispatch tool call", err)
		}
		if outcome == nil || !outcome.Executed {
			// No call found, or left pending for user confirmation: the
			// turn is done until the user acts or the model is re-prompted.
			return nil
		}
		// A call was auto-executed and its result persisted: loop so the
		// model sees the tool_result on its next turn.
	}
	return engineerr.New(engineerr.KindInternal, "tool-call loop exceeded max iterations")
}

// streamTurn issues one provider request, streams it onto the conversation's
// event channel, and persists the resulting reasoning/response messages.
func (o *Orchestrator) streamTurn(ctx context.Context, conversationID string, llm agent.LLMProvider, chatMessages []agent.CompletionMessage, opts TurnOptions, parentGroup string) (*store.Message, error) {
	req := &agent.CompletionRequest{
		Model:     opts.ModelID,
		Messages:  chatMessages,
		MaxTokens: opts.MaxTokens,
	}

	msgID := uuid.NewString()
	turnCtx, cancel := context.WithCancel(ctx)
	o.registerCancel(msgID, cancel)
	defer o.releaseCancel(msgID)
	defer cancel()

	chunks, err := llm.Complete(turnCtx, req)
	if err != nil {
		return nil, engineerr.Wrap(engineerr.KindProvider, "start completion", err)
	}

	start := time.Now()
	var content strings.Builder
	var reasoning strings.Builder
	var streamErr error

	for chunk := range chunks {
		if chunk.Error != nil {
			streamErr = chunk.Error
			break
		}
		if chunk.Thinking != "" {
			reasoning.WriteString(chunk.Thinking)
		}
		if chunk.Text != "" {
			content.WriteString(chunk.Text)
			o.bus.Publish(conversationID, events.Event{
				Kind: events.KindMessageUpdate,
				Data: events.MessageUpdate{
					MessageID:   msgID,
					MessageType: string(store.MessageResponse),
					Content:     content.String(),
					IsDone:      false,
				},
			})
		}
	}

	o.bus.Publish(conversationID, events.Event{
		Kind: events.KindMessageUpdate,
		Data: events.MessageUpdate{
			MessageID:   msgID,
			MessageType: string(store.MessageResponse),
			Content:     content.String(),
			IsDone:      true,
		},
	})
	duration := time.Since(start)
	o.bus.Publish(conversationID, events.Event{
		Kind: events.KindMessageTypeEnd,
		Data: events.MessageTypeEnd{
			MessageID:   msgID,
			MessageType: string(store.MessageResponse),
			DurationMs:  duration.Milliseconds(),
			EndTimeUnix: time.Now().Unix(),
		},
	})

	llmStatus := "success"
	if streamErr != nil {
		llmStatus = "error"
	}
	metrics.LLMRequestDuration.WithLabelValues(llm.Name(), opts.ModelID, llmStatus).Observe(duration.Seconds())

	// A cancelled stream still persists whatever partial content was
	// accumulated; a genuine provider error aborts the turn instead.
	if streamErr != nil && turnCtx.Err() == nil {
		return nil, engineerr.Wrap(engineerr.KindProvider, "stream completion", streamErr)
	}

	groupID := uuid.NewString()
	now := time.Now()
	persistCtx := context.WithoutCancel(ctx) // a cancelled caller context must not block persisting the partial turn

	if reasoning.Len() > 0 {
		reasoningMsg := &store.Message{
			ID:                uuid.NewString(),
			ConversationID:    conversationID,
			MessageType:       store.MessageReasoning,
			Content:           reasoning.String(),
			CreatedTime:       now,
			GenerationGroupID: groupID,
		}
		if err := o.store.Messages().Append(persistCtx, reasoningMsg); err != nil {
			return nil, engineerr.Wrap(engineerr.KindDatabase, "persist reasoning message", err)
		}
	}

	respMsg := &store.Message{
		ID:                msgID,
		ConversationID:    conversationID,
		MessageType:       store.MessageResponse,
		Content:           content.String(),
		LLMModelID:        opts.ModelID,
		CreatedTime:       now.Add(time.Nanosecond), // strictly after any reasoning message
		StartTime:         &start,
		FinishTime:        &now,
		GenerationGroupID: groupID,
		ParentGroupID:     parentGroup,
	}
	if err := o.store.Messages().Append(persistCtx, respMsg); err != nil {
		return nil, engineerr.Wrap(engineerr.KindDatabase, "persist response message", err)
	}
	return respMsg, nil
}

// PersistUserTurn appends a user message to the conversation; a convenience
// wrapper so callers (CLI, scheduler) share one code path for turn setup.
func (o *Orchestrator) PersistUserTurn(ctx context.Context, conversationID, content string) (*store.Message, error) {
	msg := &store.Message{
		ID:             uuid.NewString(),
		ConversationID: conversationID,
		MessageType:    store.MessageUser,
		Content:        content,
		CreatedTime:    time.Now(),
	}
	if err := o.store.Messages().Append(ctx, msg); err != nil {
		return nil, engineerr.Wrap(engineerr.KindDatabase, fmt.Sprintf("persist user message for %s", conversationID), err)
	}
	return msg, nil
}
