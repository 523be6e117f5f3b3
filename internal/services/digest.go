package services

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"
)

const (
	digestSubject = "New requests pending"
	digestBody    = "You have pending connection requests. Log in to accept or reject them."
)

// RecipientFinder lists users that received interested requests in a window
type RecipientFinder interface {
	ListPendingRecipients(ctx context.Context, from, to time.Time) ([]string, error)
}

// DigestScheduler periodically reminds users about requests received the previous day
type DigestScheduler struct {
	finder   RecipientFinder
	notifier Notifier
	cron     *cron.Cron
	now      func() time.Time
}

// NewDigestScheduler creates a scheduler that runs on a standard 5-field cron spec
func NewDigestScheduler(finder RecipientFinder, notifier Notifier, spec string) (*DigestScheduler, error) {
	d := &DigestScheduler{
		finder:   finder,
		notifier: notifier,
		cron:     cron.New(cron.WithLocation(time.UTC)),
		now:      func() time.Time { return time.Now().UTC() },
	}
	if _, err := d.cron.AddFunc(spec, d.run); err != nil {
		return nil, fmt.Errorf("invalid digest schedule %q: %w", spec, err)
	}
	return d, nil
}

// Start runs the scheduler until ctx is done
func (d *DigestScheduler) Start(ctx context.Context) error {
	d.cron.Start()
	log.Info().Msg("Pending request digest scheduled")

	<-ctx.Done()
	stopped := d.cron.Stop()
	<-stopped.Done()
	return nil
}

func (d *DigestScheduler) run() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	sent, err := d.RunOnce(ctx)
	if err != nil {
		log.Error().Err(err).Msg("Pending request digest failed")
		return
	}
	log.Info().Int("recipients", sent).Msg("Pending request digest sent")
}

// RunOnce notifies everyone who received an interested request during the
// previous UTC day and returns the number of successful notifications.
func (d *DigestScheduler) RunOnce(ctx context.Context) (int, error) {
	today := d.now().Truncate(24 * time.Hour)
	yesterday := today.Add(-24 * time.Hour)

	recipients, err := d.finder.ListPendingRecipients(ctx, yesterday, today)
	if err != nil {
		return 0, fmt.Errorf("failed to list pending recipients: %w", err)
	}

	sent := 0
	for _, id := range recipients {
		if err := d.notifier.Notify(ctx, id, digestSubject, digestBody); err != nil {
			log.Warn().Err(err).Str("user_id", id).Msg("Failed to send digest")
			continue
		}
		sent++
	}
	return sent, nil
}
