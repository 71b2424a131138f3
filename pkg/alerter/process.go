// Package alerter implements the alert evaluation and dispatch core: one
// shared sweep driver parameterized by an evaluation strategy per alert
// family. Each process runs in its own goroutine under a fixed-window
// rate limit and is fault isolated from its siblings.
package alerter

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/time/rate"

	"github.com/raykavin/alertnrun/pkg/core"
	"github.com/raykavin/alertnrun/pkg/logger"
)

// errorBackoff is the pause after an uncaught sweep failure before the
// loop resumes.
const errorBackoff = 15 * time.Second

// Satisfaction is the outcome of evaluating one alert against current
// market data.
type Satisfaction struct {
	// Met reports whether the alert condition is satisfied.
	Met bool
	// Value is the observed value the condition was checked against.
	Value float64
	// Post is the formatted alert text queued for dispatch.
	Post string
}

// Evaluator is the variant-specific strategy invoked by the shared
// sweep driver.
type Evaluator interface {
	// Wants reports whether this evaluator handles the alert's family.
	Wants(alert *core.Alert) bool
	// Evaluate applies the alert's predicate. An error wrapping
	// core.ErrUpstreamUnavailable means skip-this-alert-this-cycle; any
	// other error aborts the sweep and is handled by the run loop.
	Evaluate(ctx context.Context, pair string, alert *core.Alert) (Satisfaction, error)
}

// Process drives the poll-evaluate-dispatch sweep for one alert family.
type Process struct {
	name      string
	header    string
	storage   core.AlertStorage
	evaluator Evaluator
	notifier  core.Notifier
	mail      core.MailSender // optional
	limiter   *rate.Limiter
	log       logger.Logger
	polling   bool
}

// NewProcess creates a sweep driver. The header prefixes every Telegram
// post of this family; period paces consecutive full sweeps. The mail
// sender may be nil when email alerts are disabled process-wide.
func NewProcess(
	name, header string,
	storage core.AlertStorage,
	evaluator Evaluator,
	notifier core.Notifier,
	mail core.MailSender,
	period time.Duration,
	log logger.Logger,
) *Process {
	return &Process{
		name:      name,
		header:    header,
		storage:   storage,
		evaluator: evaluator,
		notifier:  notifier,
		mail:      mail,
		limiter:   rate.NewLimiter(rate.Every(period), 1),
		log:       log.WithField("process", name),
	}
}

// Run sweeps until the context is cancelled. An uncaught sweep error is
// logged as critical, reported to admins and retried after a fixed
// backoff; the loop never terminates on a recoverable error.
func (p *Process) Run(ctx context.Context) {
	p.log.Warnf("%s alert process started", p.name)

	for ctx.Err() == nil {
		if err := p.PollAll(ctx); err != nil {
			if ctx.Err() != nil {
				return
			}

			p.log.WithError(err).Errorf("an error has occurred in the %s alert process, trying again in %s", p.name, errorBackoff)
			p.notifier.AlertAdmins(fmt.Sprintf(
				"A critical error has occurred in the %s alert process (restarting in %s) - %v",
				p.name, errorBackoff, err))
			sleepCtx(ctx, errorBackoff)
		}
	}
}

// PollAll sweeps every whitelisted user once, blocking first on the
// fixed-window limiter. A user with missing or corrupt data is logged
// and skipped; any other evaluation error aborts the sweep.
func (p *Process) PollAll(ctx context.Context) error {
	if err := p.limiter.Wait(ctx); err != nil {
		return nil // context cancelled while pacing
	}

	users, err := p.storage.Whitelist()
	if err != nil {
		return fmt.Errorf("failed to load whitelist: %w", err)
	}

	for _, user := range users {
		// A sweep in progress finishes its current user before the
		// process exits; cancellation is only observed between users.
		if ctx.Err() != nil {
			return nil
		}

		if err := p.PollUser(ctx, user); err != nil {
			if errors.Is(err, core.ErrUserConfig) {
				p.log.WithError(err).Errorf("skipping user %d for the rest of this pass", user)
				continue
			}
			return err
		}
	}
	return nil
}

// PollUser evaluates one user's alerts:
//
//  1. alerts satisfied on a previous cycle are removed before anything
//     is re-evaluated; a pair whose list empties loses its key
//  2. pending alerts of this family are evaluated in insertion order
//  3. satisfied single-shot alerts are marked alerted; cooldown alerts
//     record their trigger time and re-arm instead
//  4. the book is saved once when anything changed, then queued posts
//     are dispatched to the user's channels and optional emails
func (p *Process) PollUser(ctx context.Context, userID int64) error {
	unlock := p.storage.LockUser(userID)
	defer unlock()

	alerts, err := p.storage.LoadAlerts(userID)
	if err != nil {
		return err
	}
	config, err := p.storage.LoadConfig(userID)
	if err != nil {
		return err
	}

	doUpdate := false
	var postQueue []string
	now := time.Now().Unix()

	for _, pair := range alerts.Pairs() {
		list, _ := alerts.Get(pair)
		kept := make([]core.Alert, 0, len(list))

		for _, alert := range list {
			if alert.Alerted && !alert.Trigger.Enabled() {
				doUpdate = true
				continue // fired on a previous cycle, remove now
			}

			if !p.evaluator.Wants(&alert) || alert.Trigger.Suppressed(now) {
				kept = append(kept, alert)
				continue
			}

			satisfaction, err := p.evaluator.Evaluate(ctx, pair, &alert)
			if err != nil {
				if errors.Is(err, core.ErrUpstreamUnavailable) {
					p.log.WithError(err).Warnf("skipping %s alert this cycle", pair)
					kept = append(kept, alert)
					continue
				}
				return err
			}

			if satisfaction.Met {
				postQueue = append(postQueue, satisfaction.Post)
				if alert.Trigger.Enabled() {
					alert.Trigger.LastTriggered = now
				} else {
					alert.Alerted = true
				}
				doUpdate = true
			}
			kept = append(kept, alert)
		}

		alerts = alerts.Set(pair, kept)
	}

	if doUpdate {
		if err := p.storage.SaveAlerts(userID, alerts); err != nil {
			return fmt.Errorf("failed to save alerts for user %d: %w", userID, err)
		}
	}

	if len(postQueue) > 0 {
		p.polling = false
		p.dispatch(postQueue, config)
	}

	if !p.polling {
		p.polling = true
		p.log.Info("bot polling for next alert...")
	}
	return nil
}

// dispatch sends every queued post to all of the user's channels and,
// when enabled, to their email recipients. Per-channel failures are
// collected and reported; they never block sibling deliveries or the
// cycle.
func (p *Process) dispatch(posts []string, config *core.UserConfig) {
	for _, post := range posts {
		p.log.Info(post)

		_, failed := p.notifier.AlertChannels(p.header+post, config.Channels)
		if len(failed) > 0 {
			p.log.Warnf("failed to send telegram alert (%s) to the following ids: %v", post, failed)
		}

		if p.mail != nil && config.Settings.SendEmailAlerts && len(config.Emails) > 0 {
			if err := p.mail.SendAlert(post, config.Emails); err != nil {
				p.log.WithError(err).Warnf("could not send alert email to recipients: %v", config.Emails)
			}
		}
	}
}

func sleepCtx(ctx context.Context, d time.Duration) {
	select {
	case <-time.After(d):
	case <-ctx.Done():
	}
}
