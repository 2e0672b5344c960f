// Package prompt drives the native credential dialog. It subscribes to the
// event broker and, for every new challenge, raises a hidden-input dialog on
// the user's desktop and forwards the entered credential to the gate. The
// dialog is one verdict path among several; the CLI and API can answer the
// same challenge, and the gate deadline fires regardless.
package prompt

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/applockd/applockd/internal/events"
	"github.com/applockd/applockd/internal/gate"
	"github.com/applockd/applockd/pkg/types"
)

// Submitter is the gate's verdict surface.
type Submitter interface {
	Submit(ctx context.Context, pid int, credential, actor string) (types.Challenge, error)
}

type Prompter struct {
	gate   Submitter
	broker *events.Broker
	logger *slog.Logger
	mode   string

	wg sync.WaitGroup
}

func New(g Submitter, broker *events.Broker, mode string, logger *slog.Logger) *Prompter {
	return &Prompter{gate: g, broker: broker, logger: logger, mode: mode}
}

// Run consumes challenge_created events until ctx is cancelled. It returns
// immediately when dialogs are disabled or no backend exists, so headless
// installs pay nothing.
func (p *Prompter) Run(ctx context.Context) {
	if !Enabled(p.mode) {
		p.logger.Debug("credential dialog disabled", "mode", p.mode)
		return
	}
	if !CanPrompt() {
		p.logger.Info("no dialog backend available, relying on cli/api verdicts")
		return
	}

	sub := p.broker.Subscribe(64)
	defer p.broker.Unsubscribe(sub)

	for {
		select {
		case <-ctx.Done():
			p.wg.Wait()
			return
		case ev, ok := <-sub:
			if !ok {
				p.wg.Wait()
				return
			}
			if ev.Type != types.EventChallengeCreated {
				continue
			}
			p.wg.Add(1)
			go func(ev types.Event) {
				defer p.wg.Done()
				p.handle(ctx, ev)
			}(ev)
		}
	}
}

// handle runs one dialog conversation for one challenge. Wrong entries
// reprompt until the gate reports a terminal state or the challenge is gone.
func (p *Prompter) handle(ctx context.Context, ev types.Event) {
	name := ev.Identity
	if dn, ok := ev.Fields["display_name"].(string); ok && dn != "" {
		name = dn
	}

	deadline := time.Time{}
	if s, ok := ev.Fields["deadline"].(string); ok {
		deadline, _ = time.Parse(time.RFC3339Nano, s)
	}

	for {
		timeout := time.Duration(0)
		if !deadline.IsZero() {
			timeout = time.Until(deadline)
			if timeout <= 0 {
				return
			}
		}

		resp, err := Ask(ctx, Request{
			Title:   "Application Locked",
			Message: fmt.Sprintf("%s is locked.\nEnter the password to allow it to run.", name),
			Timeout: timeout,
		})
		if err != nil {
			p.logger.Warn("credential dialog failed", "pid", ev.PID, "error", err)
			return
		}
		if resp.Cancelled || resp.TimedOut {
			// The gate deadline will resolve the challenge.
			return
		}

		ch, err := p.gate.Submit(ctx, ev.PID, resp.Credential, "dialog")
		if errors.Is(err, gate.ErrNoChallenge) {
			return
		}
		if err != nil {
			p.logger.Warn("dialog verdict not applied", "pid", ev.PID, "error", err)
			return
		}
		if ch.State.Terminal() {
			return
		}
	}
}
