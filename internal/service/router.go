package service

import (
	"context"
	"errors"
	"fmt"
	"io"

	"go.uber.org/zap"

	"notechat/internal/agent"
	"notechat/internal/chat"
	"notechat/internal/domain"
	"notechat/internal/generation"
)

// ErrUnknownAgent is returned by Dispatch for an ID missing from the registry.
var ErrUnknownAgent = errors.New("unknown agent")

// transcript is the part of *chat.Aggregator a dispatch writes through.
type transcript interface {
	Send(text string) (chat.Handle, error)
	Snapshot() []domain.ChatMessage
	ApplySources(h chat.Handle, sources []domain.Source) error
	ApplyFragment(h chat.Handle, f domain.Fragment) error
	Complete(h chat.Handle) error
	Fail(h chat.Handle, cause error) error
}

// Router is the only writer of a transcript during an answer: it opens the
// reply, runs the agent's pipeline and applies what the pipeline produces.
type Router struct {
	registry agent.Registry
	logger   *zap.Logger
}

func NewRouter(registry agent.Registry, logger *zap.Logger) *Router {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Router{registry: registry, logger: logger.Named("router")}
}

// Dispatch answers query with agent id into agg. It blocks until the reply is
// closed. A configuration error is returned after the reply is failed; any
// other pipeline or stream failure only fails the reply and is logged.
func (r *Router) Dispatch(ctx context.Context, id agent.ID, query string, agg *chat.Aggregator) error {
	return r.dispatch(ctx, id, query, agg)
}

func (r *Router) dispatch(ctx context.Context, id agent.ID, query string, agg transcript) error {
	p, ok := r.registry.Lookup(id)
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownAgent, id)
	}
	h, err := agg.Send(query)
	if err != nil {
		return err
	}
	log := r.logger.With(zap.String("agent", string(id)), zap.String("message_id", h.MessageID()))

	snap := agg.Snapshot()
	in := agent.Input{History: snap[:len(snap)-2]}

	run, err := p.Run(ctx, query, in)
	if err != nil {
		r.fail(log, agg, h, err)
		if generation.IsConfigError(err) {
			return err
		}
		return nil
	}
	defer run.Stream.Close()

	if len(run.Sources) > 0 {
		if err := agg.ApplySources(h, run.Sources); err != nil {
			r.fail(log, agg, h, err)
			return err
		}
	}
	fragments := 0
	for {
		if err := ctx.Err(); err != nil {
			r.fail(log, agg, h, err)
			return nil
		}
		f, err := run.Stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				err = ctxErr
			}
			r.fail(log, agg, h, err)
			return nil
		}
		if err := agg.ApplyFragment(h, f); err != nil {
			r.fail(log, agg, h, err)
			return err
		}
		fragments++
	}
	if err := agg.Complete(h); err != nil {
		return err
	}
	log.Debug("reply complete", zap.Int("fragments", fragments), zap.Int("sources", len(run.Sources)))
	return nil
}

func (r *Router) fail(log *zap.Logger, agg transcript, h chat.Handle, cause error) {
	log.Error("reply failed", zap.Error(cause))
	if err := agg.Fail(h, cause); err != nil {
		log.Error("cannot close failed reply", zap.Error(err))
	}
}
