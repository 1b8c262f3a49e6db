package tool

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/soyeahso/dealflow/internal/domain"
	"github.com/soyeahso/dealflow/internal/logging"
)

// Messages for results the executor produces itself.
const (
	MsgTimeout     = "timeout"
	msgUnknownTool = "Unknown tool: "
)

// ExecutorOptions tunes execution.
type ExecutorOptions struct {
	Timeout        time.Duration // per call; 0 disables
	Parallel       bool
	MaxConcurrency int // parallel mode only; <=0 means unbounded
}

// Executor dispatches tool calls by name. It never returns an error: every
// failure mode becomes a ToolResult with Success false and a message.
type Executor struct {
	registry *Registry
	opts     ExecutorOptions
	log      *logging.Logger
}

// NewExecutor creates an executor over registry.
func NewExecutor(registry *Registry, log *logging.Logger, opts ExecutorOptions) *Executor {
	return &Executor{
		registry: registry,
		opts:     opts,
		log:      log.Sub("tools"),
	}
}

// Definitions exposes the registry's tool definitions.
func (e *Executor) Definitions() []domain.ToolDefinition {
	return e.registry.Definitions()
}

// Has reports whether a tool is registered.
func (e *Executor) Has(name string) bool {
	_, ok := e.registry.Get(name)
	return ok
}

// Execute runs one call.
func (e *Executor) Execute(ctx context.Context, call domain.ToolCall) domain.ToolResult {
	t, ok := e.registry.Get(call.ToolName)
	if !ok {
		e.log.Warn().Str("tool", call.ToolName).Msg("unknown tool requested")
		return domain.Failed(msgUnknownTool + call.ToolName)
	}

	start := time.Now()
	res := e.run(ctx, t, call)
	if !res.Success && res.Message == "" {
		res.Message = call.ToolName + " failed"
		if res.Error == "" {
			res.Error = res.Message
		}
	}

	e.log.Debug().
		Str("tool", call.ToolName).
		Bool("success", res.Success).
		Dur("elapsed", time.Since(start)).
		Msg("tool executed")
	return res
}

func (e *Executor) run(ctx context.Context, t Tool, call domain.ToolCall) domain.ToolResult {
	if e.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.opts.Timeout)
		defer cancel()
	}

	args := call.Arguments
	if args == nil {
		args = map[string]any{}
	}

	done := make(chan domain.ToolResult, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				e.log.Error().Str("tool", call.ToolName).Interface("panic", r).Msg("tool panicked")
				done <- domain.Failed(fmt.Sprintf("tool panicked: %v", r))
			}
		}()
		res, err := t.Execute(ctx, args)
		if err != nil {
			if errors.Is(err, context.DeadlineExceeded) {
				res = domain.Failed(MsgTimeout)
			} else {
				res = domain.Failed(err.Error())
			}
		}
		done <- res
	}()

	select {
	case res := <-done:
		return res
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return domain.Failed(MsgTimeout)
		}
		return domain.Failed(ctx.Err().Error())
	}
}

// ExecuteAll runs calls and returns results indexed by call position.
// In parallel mode calls run concurrently but the index order is kept.
func (e *Executor) ExecuteAll(ctx context.Context, calls []domain.ToolCall) []domain.ToolResult {
	results := make([]domain.ToolResult, len(calls))
	if !e.opts.Parallel || len(calls) < 2 {
		for i, c := range calls {
			results[i] = e.Execute(ctx, c)
		}
		return results
	}

	var g errgroup.Group
	if e.opts.MaxConcurrency > 0 {
		g.SetLimit(e.opts.MaxConcurrency)
	}
	for i, c := range calls {
		g.Go(func() error {
			results[i] = e.Execute(ctx, c)
			return nil
		})
	}
	_ = g.Wait()
	return results
}
