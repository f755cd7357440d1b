package services

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"realtyportal/internal/domain"
)

// Notifier sends the emails triggered by LOI transitions and new leads.
type Notifier interface {
	NotifyLOI(ctx context.Context, event domain.NotificationEvent, loi *domain.LetterOfIntent, investor *domain.Investor, prospectus *domain.Prospectus) error
	NotifyLead(ctx context.Context, lead *domain.Lead) error
}

// Dispatcher runs notification sends in the background. A send never fails
// the write that triggered it; failures are logged.
type Dispatcher struct {
	notifier Notifier
	timeout  time.Duration
	wg       sync.WaitGroup
	log      *logrus.Entry
}

// NewDispatcher creates a dispatcher. Each send gets its own timeout,
// independent of the request that triggered it.
func NewDispatcher(notifier Notifier, timeout time.Duration) *Dispatcher {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Dispatcher{
		notifier: notifier,
		timeout:  timeout,
		log:      logrus.WithField("component", "notify"),
	}
}

func (d *Dispatcher) goSend(fields logrus.Fields, send func(ctx context.Context) error) {
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
		defer cancel()
		if err := send(ctx); err != nil {
			d.log.WithError(err).WithFields(fields).Warn("Failed to send notification")
		}
	}()
}

// LOI queues the email for an LOI event. loi must have Investor and
// Prospectus loaded.
func (d *Dispatcher) LOI(event domain.NotificationEvent, loi *domain.LetterOfIntent) {
	if event == domain.EventNone {
		return
	}
	if loi.Investor == nil || loi.Prospectus == nil {
		d.log.WithFields(logrus.Fields{"event": event, "loi_id": loi.ID}).Error("Notification skipped, LOI parties not loaded")
		return
	}
	d.goSend(logrus.Fields{"event": event, "loi_id": loi.ID}, func(ctx context.Context) error {
		return d.notifier.NotifyLOI(ctx, event, loi, loi.Investor, loi.Prospectus)
	})
}

// Lead queues the admin alert for a new lead.
func (d *Dispatcher) Lead(lead *domain.Lead) {
	d.goSend(logrus.Fields{"event": "lead", "lead_id": lead.ID}, func(ctx context.Context) error {
		return d.notifier.NotifyLead(ctx, lead)
	})
}

// Wait blocks until every queued send finished.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

// Drain waits for queued sends until ctx is done.
func (d *Dispatcher) Drain(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
