// Package chain answers one user turn: it gathers context and history,
// streams the model's reply and commits the exchange to history.
package chain

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/bull/ragchat/internal/history"
	"github.com/bull/ragchat/internal/llm"
	"github.com/bull/ragchat/internal/retrieval"
	"github.com/bull/ragchat/internal/storage"
)

// DefaultGenerationTimeout bounds a single streamed reply.
const DefaultGenerationTimeout = 2 * time.Minute

var (
	// ErrEmptyInput is returned for blank user input.
	ErrEmptyInput = errors.New("empty input")

	// ErrGeneration marks a failed or timed out model call. Nothing is
	// written to history when it occurs.
	ErrGeneration = errors.New("generation failed")
)

// State is a step of answering one turn.
type State int

const (
	AwaitingInput State = iota
	ContextAssembly
	PromptBuilt
	Generating
	Streamed
	HistoryAppended
	Failed
)

func (s State) String() string {
	switch s {
	case AwaitingInput:
		return "awaiting_input"
	case ContextAssembly:
		return "context_assembly"
	case PromptBuilt:
		return "prompt_built"
	case Generating:
		return "generating"
	case Streamed:
		return "streamed"
	case HistoryAppended:
		return "history_appended"
	case Failed:
		return "failed"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Retriever finds context records for a query.
type Retriever interface {
	Retrieve(ctx context.Context, query string) ([]storage.ScoredRecord, error)
}

// Sink receives each streamed segment. Returning an error aborts the turn.
type Sink func(segment string) error

// Result describes how far a turn got.
type Result struct {
	State    State
	Answer   string                 // Accumulated reply, possibly partial when State is Failed
	Segments int                    // Segments delivered to the sink
	Context  []storage.ScoredRecord // Records interpolated into the prompt
	FailedIn State                  // State in which the turn failed, when State is Failed
}

// Options configures a Chain. Zero values use the defaults.
type Options struct {
	Template          string
	GenerationTimeout time.Duration
	Logger            *slog.Logger
	Now               func() time.Time
}

// Chain is safe for concurrent use across sessions.
type Chain struct {
	retriever Retriever
	history   history.Store
	model     llm.Model
	template  string
	timeout   time.Duration
	logger    *slog.Logger
	now       func() time.Time
}

// New wires a Chain from its collaborators.
func New(retriever Retriever, store history.Store, model llm.Model, opts Options) *Chain {
	if opts.Template == "" {
		opts.Template = DefaultSystemTemplate
	}
	if opts.GenerationTimeout <= 0 {
		opts.GenerationTimeout = DefaultGenerationTimeout
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Now == nil {
		opts.Now = func() time.Time { return time.Now().UTC() }
	}
	return &Chain{
		retriever: retriever,
		history:   store,
		model:     model,
		template:  opts.Template,
		timeout:   opts.GenerationTimeout,
		logger:    opts.Logger,
		now:       opts.Now,
	}
}

// History returns the stored turns of session.
func (c *Chain) History(ctx context.Context, session string) ([]history.Turn, error) {
	return c.history.Load(ctx, session)
}

// Ask answers input within session, passing each segment to sink as it
// arrives. The user turn and the full reply are appended to history
// together, and only after the model finished without error.
func (c *Chain) Ask(ctx context.Context, session, input string, sink Sink) (*Result, error) {
	res := &Result{State: AwaitingInput}
	fail := func(err error) (*Result, error) {
		res.FailedIn = res.State
		res.State = Failed
		c.logger.Warn("Turn failed", "session", session, "state", res.FailedIn.String(), "error", err)
		return res, err
	}

	if strings.TrimSpace(input) == "" {
		return fail(ErrEmptyInput)
	}
	if sink == nil {
		sink = func(string) error { return nil }
	}

	res.State = ContextAssembly
	var (
		records []storage.ScoredRecord
		turns   []history.Turn
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		records, err = c.retriever.Retrieve(gctx, input)
		if err != nil {
			return fmt.Errorf("retrieve context: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		turns, err = c.history.Load(gctx, session)
		if err != nil {
			return fmt.Errorf("load history: %w", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return fail(err)
	}
	res.Context = records

	res.State = PromptBuilt
	messages := BuildMessages(c.template, retrieval.JoinTexts(records), turns, input)
	c.logger.Debug("Prompt built", "session", session, "context_records", len(records), "history_turns", len(turns))

	res.State = Generating
	answer, err := c.generate(ctx, messages, sink, res)
	res.Answer = answer
	if err != nil {
		return fail(err)
	}
	res.State = Streamed

	now := c.now()
	if err := c.history.Append(ctx, session,
		history.UserTurn(input, now),
		history.AssistantTurn(answer, now),
	); err != nil {
		return fail(fmt.Errorf("append history: %w", err))
	}
	res.State = HistoryAppended

	c.logger.Debug("Turn complete", "session", session, "segments", res.Segments, "answer_bytes", len(answer))
	return res, nil
}

// generate streams the model reply into sink under the generation timeout.
// It returns whatever was received, even on error.
func (c *Chain) generate(ctx context.Context, messages []llm.Message, sink Sink, res *Result) (string, error) {
	genCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var answer strings.Builder
	for segment, err := range c.model.Stream(genCtx, messages) {
		if err != nil {
			if errors.Is(genCtx.Err(), context.DeadlineExceeded) {
				return answer.String(), fmt.Errorf("%w: timed out after %s: %w", ErrGeneration, c.timeout, err)
			}
			return answer.String(), fmt.Errorf("%w: %w", ErrGeneration, err)
		}
		answer.WriteString(segment)
		if err := sink(segment); err != nil {
			return answer.String(), fmt.Errorf("deliver segment: %w", err)
		}
		res.Segments++
	}
	if err := genCtx.Err(); err != nil {
		return answer.String(), fmt.Errorf("%w: %w", ErrGeneration, err)
	}
	return answer.String(), nil
}
