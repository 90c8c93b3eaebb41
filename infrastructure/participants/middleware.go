package participants

import (
	"context"
	"errors"
	"time"

	"github.com/ahrav/go-acj/internal/domain"
	"github.com/ahrav/go-acj/internal/ports"
)

// Middleware wraps a Responder to add cross-cutting behaviour.
type Middleware func(ports.Responder) ports.Responder

// Chain wraps r with mws. The first middleware is the outermost.
func Chain(r ports.Responder, mws ...Middleware) ports.Responder {
	for i := len(mws) - 1; i >= 0; i-- {
		r = mws[i](r)
	}
	return r
}

// timeoutResponder turns a slow answer into a missed trial.
type timeoutResponder struct {
	next    ports.Responder
	timeout time.Duration
}

// TimeoutMiddleware bounds each trial to timeout. A responder that runs out
// of time yields a missed trial rather than an error; cancellation of the
// caller's context is still reported as an error. A zero or negative
// timeout disables the middleware.
func TimeoutMiddleware(timeout time.Duration) Middleware {
	return func(next ports.Responder) ports.Responder {
		if timeout <= 0 {
			return next
		}
		return &timeoutResponder{next: next, timeout: timeout}
	}
}

// Respond implements ports.Responder.
func (t *timeoutResponder) Respond(ctx context.Context, trialNum int, pair domain.Pair) (ports.Choice, error) {
	tctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	choice, err := t.next.Respond(tctx, trialNum, pair)
	if err != nil && errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
		return ports.Choice{Winner: domain.NoWinner}, nil
	}
	return choice, err
}
