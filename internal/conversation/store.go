// Package conversation owns one chat session: the append-only message log, the
// single-flight request state, and the transitions a submit drives through them.
package conversation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/qmuntal/stateless"

	"github.com/comigor/chatwidget-go/internal/config"
	"github.com/comigor/chatwidget-go/internal/history"
	"github.com/comigor/chatwidget-go/internal/llm"
	"github.com/comigor/chatwidget-go/internal/logger"
)

// Request lifecycle states.
const (
	StateIdle    = "Idle"
	StatePending = "Pending"
)

// Request lifecycle triggers.
const (
	TriggerDispatch = "Dispatch"
	TriggerSettle   = "Settle"
)

// Outcome tells the caller what a submit did.
type Outcome int

const (
	OutcomeReplied Outcome = iota
	OutcomeFailed
	OutcomeEmptyInput
	OutcomeAlreadyPending
)

func (o Outcome) String() string {
	switch o {
	case OutcomeReplied:
		return "replied"
	case OutcomeFailed:
		return "failed"
	case OutcomeEmptyInput:
		return "empty_input"
	case OutcomeAlreadyPending:
		return "already_pending"
	}
	return fmt.Sprintf("Outcome(%d)", int(o))
}

// Result is returned by Submit.
type Result struct {
	Outcome Outcome
	// Reply is set for OutcomeReplied.
	Reply *history.Message
	// Error is the human readable failure for OutcomeFailed.
	Error string
}

// RequestState is a read-only view of the single-flight flag and the last error.
type RequestState struct {
	Pending   bool   `json:"pending"`
	LastError string `json:"last_error"`
}

// Snapshot is everything a renderer needs, copied at one instant.
type Snapshot struct {
	ConversationID string            `json:"conversation_id"`
	Messages       []history.Message `json:"messages"`
	RequestState
}

// Options tune a Store. The zero value sends the full history with no timeout.
type Options struct {
	// SingleTurn sends only the new user message instead of the whole log.
	SingleTurn bool
	// RequestTimeout bounds one model call. Zero disables it.
	RequestTimeout time.Duration
	Logger         *slog.Logger
}

// OptionsFromConfig maps the conversation section of the config onto Options.
func OptionsFromConfig(cfg config.ConversationConfig, log *slog.Logger) Options {
	return Options{
		SingleTurn:     cfg.History == config.HistorySingle,
		RequestTimeout: cfg.RequestTimeout,
		Logger:         log,
	}
}

// Store is the conversation store. All methods are safe for concurrent use; at
// most one model request is in flight at any time.
type Store struct {
	mu        sync.Mutex
	client    llm.Client
	log       *history.Log
	fsm       *stateless.StateMachine
	lastError string
	opts      Options
	logger    *slog.Logger
}

// New creates an empty conversation backed by client.
func New(client llm.Client, opts Options) *Store {
	log := opts.Logger
	if log == nil {
		log = logger.L
	}
	s := &Store{
		client: client,
		log:    history.NewLog(),
		opts:   opts,
	}
	s.logger = log.With("conversation_id", s.log.ConversationID())

	fsm := stateless.NewStateMachine(StateIdle)
	fsm.Configure(StateIdle).
		Permit(TriggerDispatch, StatePending)
	fsm.Configure(StatePending).
		OnEntry(func(_ context.Context, _ ...any) error {
			s.logger.Debug("request dispatched")
			return nil
		}).
		OnExit(func(_ context.Context, _ ...any) error {
			s.logger.Debug("request settled")
			return nil
		}).
		Permit(TriggerSettle, StateIdle)
	s.fsm = fsm

	return s
}

// ConversationID returns the id of this conversation.
func (s *Store) ConversationID() string {
	return s.log.ConversationID()
}

// Submit appends text as a user message and asks the model for a reply.
//
// Blank input and submits made while another request is pending are no-ops.
// Model failures never escape: they are recorded as the last error and the log
// keeps the user message without a reply. The caller's context supplies values
// only; cancelling it does not abort the request.
func (s *Store) Submit(ctx context.Context, text string) Result {
	if strings.TrimSpace(text) == "" {
		return Result{Outcome: OutcomeEmptyInput}
	}

	s.mu.Lock()
	if ok, _ := s.fsm.CanFire(TriggerDispatch); !ok {
		s.mu.Unlock()
		s.logger.Debug("submit ignored, request already pending")
		return Result{Outcome: OutcomeAlreadyPending}
	}
	userMsg := s.log.Append(history.RoleUser, text)
	s.lastError = ""
	if err := s.fsm.Fire(TriggerDispatch); err != nil {
		// Unreachable while CanFire and Fire share the lock.
		s.mu.Unlock()
		s.logger.Error("dispatch transition failed", "error", err)
		return Result{Outcome: OutcomeFailed, Error: err.Error()}
	}
	prompt := s.promptFor(userMsg)
	s.mu.Unlock()

	s.logger.Info("submitting to model", "message_id", userMsg.ID, "turns", len(prompt))
	reply, err := s.generate(ctx, prompt)

	s.mu.Lock()
	defer s.mu.Unlock()
	defer s.settle()

	if err != nil {
		s.lastError = describeFailure(err)
		s.logger.Error("model request failed", "message_id", userMsg.ID, "error", err)
		return Result{Outcome: OutcomeFailed, Error: s.lastError}
	}
	replyMsg := s.log.Append(history.RoleAssistant, reply)
	s.logger.Info("model replied", "message_id", replyMsg.ID, "reply_chars", len(reply))
	return Result{Outcome: OutcomeReplied, Reply: &replyMsg}
}

// promptFor picks what the model sees. Called with s.mu held, after userMsg was
// appended.
func (s *Store) promptFor(userMsg history.Message) []history.Message {
	if s.opts.SingleTurn {
		return []history.Message{userMsg}
	}
	return s.log.List()
}

// generate runs the model call detached from caller cancellation, bounded by the
// configured timeout, and turns a panic into an error.
func (s *Store) generate(ctx context.Context, prompt []history.Message) (reply string, err error) {
	ctx = context.WithoutCancel(ctx)
	if s.opts.RequestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.opts.RequestTimeout)
		defer cancel()
	}

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("model client panicked: %v", r)
		}
	}()
	return s.client.Generate(ctx, prompt)
}

// settle returns the state machine to idle. Called with s.mu held.
func (s *Store) settle() {
	if err := s.fsm.Fire(TriggerSettle); err != nil {
		s.logger.Error("settle transition failed", "error", err)
	}
}

func (s *Store) pendingLocked() bool {
	return s.fsm.MustState() == StatePending
}

// State returns the current request state.
func (s *Store) State() RequestState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return RequestState{Pending: s.pendingLocked(), LastError: s.lastError}
}

// Messages returns a copy of the log in display order.
func (s *Store) Messages() []history.Message {
	return s.log.List()
}

// Len returns how many messages the log holds. Renderers watch it to decide
// when to scroll.
func (s *Store) Len() int {
	return s.log.Len()
}

// Snapshot returns messages and request state captured together.
func (s *Store) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Snapshot{
		ConversationID: s.log.ConversationID(),
		Messages:       s.log.List(),
		RequestState:   RequestState{Pending: s.pendingLocked(), LastError: s.lastError},
	}
}

// describeFailure converts a model client error into the message shown to users.
func describeFailure(err error) string {
	var statusErr *llm.HTTPStatusError
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return "The model took too long to respond. Please try again."
	case errors.As(err, &statusErr):
		return fmt.Sprintf("Failed to fetch the response from the model (status %d).", statusErr.Code)
	case errors.Is(err, llm.ErrMalformedResponse):
		return "The model returned a response that could not be read."
	case errors.Is(err, llm.ErrMissingAPIKey):
		return "The model is not configured: missing API key."
	case errors.Is(err, llm.ErrNetwork):
		return "Could not reach the model service."
	default:
		return "Failed to get a response from the model."
	}
}
