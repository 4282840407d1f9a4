// internal/poller/runner.go
package poller

import (
	"context"
	"fmt"

	"github.com/tamzrod/modbus-transport/internal/manager"
	"github.com/tamzrod/modbus-transport/internal/transaction"
)

// Run registers the read blocks and emits a PollResult per completed read until ctx is done.
// Polls are unregistered before Run returns.
func (p *Poller) Run(ctx context.Context, out chan<- PollResult) error {
	emit := func(r PollResult) {
		select {
		case out <- r:
		case <-ctx.Done():
		}
	}

	var tasks []*manager.PollTask
	unregisterAll := func() {
		for _, t := range tasks {
			p.reg.UnregisterPoll(t)
		}
	}

	for _, rb := range p.cfg.Reads {
		rb := rb
		task := &manager.PollTask{
			Endpoint: p.cfg.Source,
			Request:  p.blueprint(rb),
			MaxTries: p.cfg.MaxTries,
			Callback: manager.ReadCallbackFuncs{
				Data: func(_ transaction.ReadBlueprint, res transaction.ReadResult) {
					emit(p.okResult(rb, res))
				},
				Error: func(req transaction.ReadBlueprint, err error) {
					p.logger.Warn().Err(err).Str("request", req.String()).Msg("poll failed")
					emit(p.errResult(err))
				},
			},
		}

		if err := p.reg.RegisterPoll(task, p.cfg.Interval, p.cfg.InitialDelay); err != nil {
			unregisterAll()
			return fmt.Errorf("poller: unit %s fc=%d addr=%d: %w", p.cfg.UnitID, rb.FC, rb.Address, err)
		}
		tasks = append(tasks, task)
	}

	p.logger.Info().
		Str("source", p.cfg.Source.String()).
		Int("blocks", len(tasks)).
		Dur("interval", p.cfg.Interval).
		Msg("polling")

	<-ctx.Done()
	unregisterAll()
	return nil
}
