// Package scheduler polls for due ScheduledTask rows,
// driving a synthetic user turn through the conversation orchestrator for
// each one, and recording per-run logs and the next fire time.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/aipp-workbench/engine/internal/agent"
	"github.com/aipp-workbench/engine/internal/engineerr"
	"github.com/aipp-workbench/engine/internal/metrics"
	"github.com/aipp-workbench/engine/internal/orchestrator"
	"github.com/aipp-workbench/engine/internal/store"
)

// defaultTickInterval keeps task wake-up latency well under the one-
// minute granularity of start_time schedules.
const defaultTickInterval = 15 * time.Second

// TurnRunner drives one conversation turn to completion; satisfied by
// *orchestrator.Orchestrator.
type TurnRunner interface {
	PersistUserTurn(ctx context.Context, conversationID, content string) (*store.Message, error)
	RunTurn(ctx context.Context, conversationID string, opts orchestrator.TurnOptions) error
}

// Scheduler runs the recurring-task tick loop.
type Scheduler struct {
	store    store.Store
	runner   TurnRunner
	provider orchestrator.Provider
	logger   *slog.Logger
	now      func() time.Time
	tick     time.Duration

	mu      sync.Mutex
	started bool
	wg      sync.WaitGroup
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithLogger overrides the scheduler's logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Scheduler) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithNow overrides the scheduler's clock for tests.
func WithNow(now func() time.Time) Option {
	return func(s *Scheduler) {
		if now != nil {
			s.now = now
		}
	}
}

// WithTickInterval overrides the polling interval.
func WithTickInterval(d time.Duration) Option {
	return func(s *Scheduler) {
		if d > 0 {
			s.tick = d
		}
	}
}

// New builds a Scheduler. provider resolves the LLM used to summarize a
// finished run via notify_prompt; it is the same provider resolver given
// to the orchestrator.
func New(st store.Store, runner TurnRunner, provider orchestrator.Provider, opts ...Option) *Scheduler {
	s := &Scheduler{
		store:    st,
		runner:   runner,
		provider: provider,
		logger:   slog.Default().With("component", "scheduler"),
		now:      time.Now,
		tick:     defaultTickInterval,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start begins polling for due tasks until ctx is cancelled.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return
	}
	s.started = true
	s.mu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(s.tick)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.RunDue(ctx)
			}
		}
	}()
}

// Stop waits for the poll loop to exit.
func (s *Scheduler) Stop(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// RunDue lists and fires every due task once; exposed for tests and for a
// manual "run now" trigger.
func (s *Scheduler) RunDue(ctx context.Context) int {
	now := s.now()
	due, err := s.store.ScheduledTasks().ListDue(ctx, now)
	if err != nil {
		s.logger.Warn("list due tasks failed", "error", err)
		return 0
	}
	for _, task := range due {
		if err := s.runTask(ctx, task, now); err != nil {
			s.logger.Warn("scheduled task run failed", "task_id", task.ID, "error", err)
		}
	}
	return len(due)
}

// conversationIDForTask derives a stable conversation id so repeated runs of
// the same task share history, the way a user revisiting a pinned
// conversation would.
func conversationIDForTask(taskID string) string {
	return "scheduled-task:" + taskID
}

func (s *Scheduler) runTask(ctx context.Context, task *store.ScheduledTask, startedAt time.Time) error {
	conversationID := conversationIDForTask(task.ID)
	if _, err := s.store.Conversations().Get(ctx, conversationID); err != nil {
		if engineerr.KindOf(err) != engineerr.KindNotFound {
			return engineerr.Wrap(engineerr.KindDatabase, "get task conversation", err)
		}
		conv := &store.Conversation{
			ID:          conversationID,
			Name:        task.Name,
			AssistantID: task.AssistantID,
			CreatedTime: startedAt,
		}
		if err := s.store.Conversations().Create(ctx, conv); err != nil {
			return engineerr.Wrap(engineerr.KindDatabase, "create task conversation", err)
		}
	}

	run := &store.ScheduledTaskRun{
		ID:          uuid.NewString(),
		TaskID:      task.ID,
		RunID:       uuid.NewString(),
		Status:      store.RunRunning,
		StartedTime: startedAt,
	}
	if err := s.store.ScheduledTasks().CreateRun(ctx, run); err != nil {
		return engineerr.Wrap(engineerr.KindDatabase, "create task run", err)
	}

	runErr := s.drive(ctx, task, run, conversationID)

	finished := s.now()
	run.FinishedTime = &finished
	if runErr != nil {
		run.Status = store.RunFailed
		run.Error = runErr.Error()
		metrics.ScheduledRunAttempts.WithLabelValues("failed").Inc()
	} else {
		run.Status = store.RunSuccess
		metrics.ScheduledRunAttempts.WithLabelValues("success").Inc()
	}
	if err := s.store.ScheduledTasks().UpdateRun(ctx, run); err != nil {
		s.logger.Warn("update task run failed", "task_id", task.ID, "run_id", run.RunID, "error", err)
	}

	task.LastRunAt = &startedAt
	next, enabled := computeNextRun(task, startedAt)
	if enabled {
		task.NextRunAt = &next
		task.IsEnabled = true
	} else {
		task.NextRunAt = nil
		task.IsEnabled = false
	}
	task.UpdatedTime = s.now()
	if err := s.store.ScheduledTasks().Update(ctx, task); err != nil {
		return engineerr.Wrap(engineerr.KindDatabase, "update task schedule", err)
	}
	return runErr
}

// drive synthesizes the user turn, runs it through the orchestrator,
// records every message produced as a task log, and generates the
// notify_prompt summary.
func (s *Scheduler) drive(ctx context.Context, task *store.ScheduledTask, run *store.ScheduledTaskRun, conversationID string) error {
	before, err := s.store.Messages().ListByConversation(ctx, conversationID)
	if err != nil {
		return engineerr.Wrap(engineerr.KindDatabase, "list messages before run", err)
	}
	seen := make(map[string]bool, len(before))
	for _, m := range before {
		seen[m.ID] = true
	}

	userMsg, err := s.runner.PersistUserTurn(ctx, conversationID, task.TaskPrompt)
	if err != nil {
		return err
	}
	s.appendLog(ctx, task.ID, run.RunID, userMsg)

	runErr := s.runner.RunTurn(ctx, conversationID, orchestrator.TurnOptions{ModelID: task.AssistantID})

	after, listErr := s.store.Messages().ListByConversation(ctx, conversationID)
	if listErr == nil {
		var transcript strings.Builder
		for _, m := range after {
			if seen[m.ID] || m.ID == userMsg.ID {
				continue
			}
			s.appendLog(ctx, task.ID, run.RunID, m)
			if m.MessageType == store.MessageResponse {
				transcript.WriteString(m.Content)
				transcript.WriteString("\n")
			}
		}
		if runErr == nil {
			if summary, sumErr := s.summarize(ctx, task, run.RunID, transcript.String()); sumErr == nil {
				run.Summary = summary
			} else {
				s.logger.Warn("notify summary failed", "task_id", task.ID, "error", sumErr)
			}
		}
	}
	return runErr
}

func (s *Scheduler) appendLog(ctx context.Context, taskID, runID string, m *store.Message) {
	log := &store.ScheduledTaskLog{
		ID:          uuid.NewString(),
		TaskID:      taskID,
		RunID:       runID,
		MessageType: m.MessageType,
		Content:     m.Content,
		CreatedTime: m.CreatedTime,
	}
	if err := s.store.ScheduledTasks().AppendLog(ctx, log); err != nil {
		s.logger.Warn("append task log failed", "task_id", taskID, "run_id", runID, "error", err)
	}
}

// summarize generates the ScheduledTaskRun.summary using notify_prompt as
// the system prompt over the run's transcript.
func (s *Scheduler) summarize(ctx context.Context, task *store.ScheduledTask, runID, transcript string) (string, error) {
	if strings.TrimSpace(task.NotifyPrompt) == "" || strings.TrimSpace(transcript) == "" {
		return "", nil
	}
	system, err := renderNotifyPrompt(task.NotifyPrompt, notifyVars{
		TaskName:   task.Name,
		TaskID:     task.ID,
		RunID:      runID,
		Transcript: transcript,
	})
	if err != nil {
		return "", err
	}
	llm, err := s.provider(task.AssistantID)
	if err != nil {
		return "", fmt.Errorf("resolve summarizer provider: %w", err)
	}
	req := &agent.CompletionRequest{
		Model:  task.AssistantID,
		System: system,
		Messages: []agent.CompletionMessage{
			{Role: "user", Content: transcript},
		},
		MaxTokens: 512,
	}
	chunks, err := llm.Complete(ctx, req)
	if err != nil {
		return "", err
	}
	var out strings.Builder
	for chunk := range chunks {
		if chunk.Error != nil {
			return "", chunk.Error
		}
		out.WriteString(chunk.Text)
	}
	return out.String(), nil
}
