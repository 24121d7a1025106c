// Package notify implements the three-channel notification dispatcher:
// a durable message record for the UI, a real-time push event, and an
// external email.  Dispatch is best-effort relative to the mutation
// that triggered it; individual send failures are aggregated into a
// summary and logged, never propagated back to the mutating caller.
package notify

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/planora/event-scheduler/internal/model"
	"github.com/planora/event-scheduler/internal/queue"
)

// Channel names used in dispatch results.
const (
	ChannelMessage = "message"
	ChannelPush    = "push"
	ChannelEmail   = "email"
)

// Outcome of one channel attempt for one recipient.
type Outcome string

const (
	OutcomeSent     Outcome = "sent"
	OutcomeFailed   Outcome = "failed"
	OutcomeTimedOut Outcome = "timed-out"
	OutcomeSkipped  Outcome = "skipped"
)

// Recipient identifies one notification target.  SubjectID is the
// dedupe identity; Email may be empty for guests without an address, in
// which case the email leg is skipped.
type Recipient struct {
	SubjectID string
	Email     string
	Name      string
}

// Result is the per-attempt record used for logging and the summary.
type Result struct {
	Channel   string
	Recipient string
	Outcome   Outcome
	Err       string
	At        time.Time
}

// Summary aggregates one Dispatch call.  Success reports whether the
// durable message leg covered every recipient (created now or already
// present from an earlier identical dispatch); push and email failures
// never flip it, matching their best-effort contract.
type Summary struct {
	MessagesCreated int
	PushesSent      int
	EmailsSent      int
	Results         []Result
	Success         bool
}

// MessageStore persists the durable message leg.  FindByDedupeKey
// returns (nil, nil) when no record exists.  Create must fail on a
// duplicate (EventID, ChangeKind, Recipient) triple; the dispatcher
// treats that as already-created, so convergence under concurrent
// dispatches needs no locking.
type MessageStore interface {
	FindByDedupeKey(ctx context.Context, eventID uint64, kind string, recipient string) (*model.NotificationMessage, error)
	Create(ctx context.Context, msg *model.NotificationMessage) error
}

// PushPublisher emits the real-time leg.
type PushPublisher interface {
	Publish(ctx context.Context, event queue.NotificationPushed) error
}

// Mailer sends the email leg.  Implementations should respect the
// context deadline; the dispatcher additionally races every send
// against its timeout budget so a stuck provider cannot hold a
// dispatch open.
type Mailer interface {
	Send(ctx context.Context, to, subject, body string) error
}

// Dispatcher fans one logical change out to all three channels for a
// set of recipients.
type Dispatcher struct {
	messages      MessageStore
	push          PushPublisher
	mailer        Mailer
	emailTimeout  time.Duration
	maxConcurrent int
	now           func() time.Time
}

// NewDispatcher wires a Dispatcher.  push and mailer may be nil, in
// which case those legs are skipped (the durable message leg is
// mandatory).  emailTimeout defaults to 10s, maxConcurrent to 8.
func NewDispatcher(messages MessageStore, push PushPublisher, mailer Mailer, emailTimeout time.Duration, maxConcurrent int) *Dispatcher {
	if emailTimeout <= 0 {
		emailTimeout = 10 * time.Second
	}
	if maxConcurrent <= 0 {
		maxConcurrent = 8
	}
	return &Dispatcher{
		messages:      messages,
		push:          push,
		mailer:        mailer,
		emailTimeout:  emailTimeout,
		maxConcurrent: maxConcurrent,
		now:           time.Now,
	}
}

// Dispatch delivers payload to every recipient concurrently and
// independently: one recipient's failure never cancels another's
// delivery.  Channel order per recipient is fixed: the durable message
// record first (idempotent on the (event, kind, recipient) triple),
// then the push event referencing the created message, then email.  If
// the message record cannot be created the push is skipped but email is
// still attempted.
func (d *Dispatcher) Dispatch(ctx context.Context, ev *model.Event, payload Payload, recipients []Recipient, actorID uint64) Summary {
	summary := Summary{Success: true}
	if err := payload.Validate(); err != nil {
		log.Printf("dispatch: invalid payload for event %d: %v", ev.ID, err)
		summary.Success = false
		return summary
	}
	if len(recipients) == 0 {
		return summary
	}

	var (
		mu  sync.Mutex
		wg  sync.WaitGroup
		sem = make(chan struct{}, d.maxConcurrent)
	)
	record := func(r Result, created, pushed, mailed bool) {
		mu.Lock()
		defer mu.Unlock()
		summary.Results = append(summary.Results, r)
		if created {
			summary.MessagesCreated++
		}
		if pushed {
			summary.PushesSent++
		}
		if mailed {
			summary.EmailsSent++
		}
		if r.Channel == ChannelMessage && r.Outcome == OutcomeFailed {
			summary.Success = false
		}
	}

	for _, rcpt := range recipients {
		wg.Add(1)
		sem <- struct{}{}
		go func(rcpt Recipient) {
			defer wg.Done()
			defer func() { <-sem }()
			d.dispatchOne(ctx, ev, payload, rcpt, actorID, record)
		}(rcpt)
	}
	wg.Wait()
	return summary
}

func (d *Dispatcher) dispatchOne(ctx context.Context, ev *model.Event, payload Payload, rcpt Recipient, actorID uint64, record func(Result, bool, bool, bool)) {
	msg, created, err := d.ensureMessage(ctx, ev, payload, rcpt, actorID)
	switch {
	case err != nil:
		log.Printf("dispatch: message record for %s failed: %v", rcpt.SubjectID, err)
		record(Result{Channel: ChannelMessage, Recipient: rcpt.SubjectID, Outcome: OutcomeFailed, Err: err.Error(), At: d.now().UTC()}, false, false, false)
	case created:
		record(Result{Channel: ChannelMessage, Recipient: rcpt.SubjectID, Outcome: OutcomeSent, At: d.now().UTC()}, true, false, false)
	default:
		// Already created by an earlier identical dispatch.
		record(Result{Channel: ChannelMessage, Recipient: rcpt.SubjectID, Outcome: OutcomeSkipped, At: d.now().UTC()}, false, false, false)
	}

	// Push references the message record; without one it is skipped.
	if msg == nil {
		record(Result{Channel: ChannelPush, Recipient: rcpt.SubjectID, Outcome: OutcomeSkipped, At: d.now().UTC()}, false, false, false)
	} else if d.push != nil {
		pushEv := queue.NotificationPushed{
			MessageID:  msg.ID,
			EventID:    ev.ID,
			ChangeKind: string(payload.Kind()),
			Recipient:  rcpt.SubjectID,
			Title:      payload.Subject(),
			Body:       payload.Body(),
			ActorID:    actorID,
			EmittedAt:  d.now().UTC().Format(time.RFC3339),
		}
		if err := d.push.Publish(ctx, pushEv); err != nil {
			record(Result{Channel: ChannelPush, Recipient: rcpt.SubjectID, Outcome: OutcomeFailed, Err: err.Error(), At: d.now().UTC()}, false, false, false)
		} else {
			record(Result{Channel: ChannelPush, Recipient: rcpt.SubjectID, Outcome: OutcomeSent, At: d.now().UTC()}, false, true, false)
		}
	}

	if d.mailer == nil || rcpt.Email == "" {
		return
	}
	outcome, errStr := d.sendEmail(ctx, rcpt.Email, payload)
	record(Result{Channel: ChannelEmail, Recipient: rcpt.SubjectID, Outcome: outcome, Err: errStr, At: d.now().UTC()}, false, false, outcome == OutcomeSent)
}

// ensureMessage returns the durable message record for the dedupe
// triple, creating it when absent.  created reports whether this call
// inserted it.
func (d *Dispatcher) ensureMessage(ctx context.Context, ev *model.Event, payload Payload, rcpt Recipient, actorID uint64) (*model.NotificationMessage, bool, error) {
	existing, err := d.messages.FindByDedupeKey(ctx, ev.ID, string(payload.Kind()), rcpt.SubjectID)
	if err != nil {
		return nil, false, fmt.Errorf("dedupe lookup: %w", err)
	}
	if existing != nil {
		return existing, false, nil
	}
	msg := &model.NotificationMessage{
		EventID:    ev.ID,
		ChangeKind: string(payload.Kind()),
		Recipient:  rcpt.SubjectID,
		Title:      payload.Subject(),
		Body:       payload.Body(),
		ActorID:    actorID,
		CreatedAt:  d.now().UTC(),
	}
	if err := d.messages.Create(ctx, msg); err != nil {
		// A concurrent dispatch may have inserted the row between the
		// lookup and our insert; converging on its record is fine.
		if racing, ferr := d.messages.FindByDedupeKey(ctx, ev.ID, string(payload.Kind()), rcpt.SubjectID); ferr == nil && racing != nil {
			return racing, false, nil
		}
		return nil, false, fmt.Errorf("create message: %w", err)
	}
	return msg, true, nil
}

// sendEmail races the mailer against the per-send timeout budget.  A
// timeout fails only this recipient's email leg, never the batch.
func (d *Dispatcher) sendEmail(ctx context.Context, to string, payload Payload) (Outcome, string) {
	sendCtx, cancel := context.WithTimeout(ctx, d.emailTimeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- d.mailer.Send(sendCtx, to, payload.Subject(), payload.Body())
	}()

	select {
	case err := <-done:
		if err != nil {
			log.Printf("dispatch: email to %s failed: %v", to, err)
			return OutcomeFailed, err.Error()
		}
		return OutcomeSent, ""
	case <-sendCtx.Done():
		log.Printf("dispatch: email to %s timed out after %s", to, d.emailTimeout)
		return OutcomeTimedOut, sendCtx.Err().Error()
	}
}
