package notify

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/planora/event-scheduler/internal/model"
	"github.com/planora/event-scheduler/internal/queue"
)

type memMessages struct {
	mu     sync.Mutex
	rows   []*model.NotificationMessage
	nextID uint64
	failOn map[string]bool // recipient -> fail Create
}

func newMemMessages() *memMessages {
	return &memMessages{nextID: 1, failOn: map[string]bool{}}
}

func (m *memMessages) FindByDedupeKey(_ context.Context, eventID uint64, kind, recipient string) (*model.NotificationMessage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.rows {
		if r.EventID == eventID && r.ChangeKind == kind && r.Recipient == recipient {
			cp := *r
			return &cp, nil
		}
	}
	return nil, nil
}

func (m *memMessages) Create(_ context.Context, msg *model.NotificationMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failOn[msg.Recipient] {
		return errors.New("store down")
	}
	for _, r := range m.rows {
		if r.EventID == msg.EventID && r.ChangeKind == msg.ChangeKind && r.Recipient == msg.Recipient {
			return errors.New("duplicate message")
		}
	}
	msg.ID = m.nextID
	m.nextID++
	cp := *msg
	m.rows = append(m.rows, &cp)
	return nil
}

func (m *memMessages) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.rows)
}

type fakePush struct {
	mu     sync.Mutex
	events []queue.NotificationPushed
	err    error
}

func (p *fakePush) Publish(_ context.Context, ev queue.NotificationPushed) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.events = append(p.events, ev)
	return nil
}

type fakeMailer struct {
	mu    sync.Mutex
	sent  []string
	errTo map[string]error
	delay time.Duration
}

func (f *fakeMailer) Send(ctx context.Context, to, _, _ string) error {
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			// keep blocking past the deadline like a stuck provider
			time.Sleep(f.delay)
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.errTo[to]; err != nil {
		return err
	}
	f.sent = append(f.sent, to)
	return nil
}

func testEvent() *model.Event {
	return &model.Event{ID: 1, Title: "Town Hall", StartsAt: time.Now().UTC().Add(time.Hour)}
}

func updatePayload() EventUpdatedPayload {
	return EventUpdatedPayload{EventTitle: "Town Hall", ChangedFields: []string{"starts_at"}}
}

func TestDispatchTrioHappyPath(t *testing.T) {
	msgs := newMemMessages()
	push := &fakePush{}
	mail := &fakeMailer{}
	d := NewDispatcher(msgs, push, mail, time.Second, 4)

	recipients := []Recipient{
		{SubjectID: "user:1", Email: "a@example.com"},
		{SubjectID: "user:2", Email: "b@example.com"},
	}
	sum := d.Dispatch(context.Background(), testEvent(), updatePayload(), recipients, 9)

	assert.True(t, sum.Success)
	assert.Equal(t, 2, sum.MessagesCreated)
	assert.Equal(t, 2, sum.PushesSent)
	assert.Equal(t, 2, sum.EmailsSent)
	assert.Equal(t, 2, msgs.count())
	require.Len(t, push.events, 2)
	assert.NotZero(t, push.events[0].MessageID, "push must reference the durable record")
}

func TestDispatchIsIdempotentPerRecipient(t *testing.T) {
	msgs := newMemMessages()
	d := NewDispatcher(msgs, &fakePush{}, &fakeMailer{}, time.Second, 4)

	recipients := []Recipient{{SubjectID: "user:1", Email: "a@example.com"}}
	first := d.Dispatch(context.Background(), testEvent(), updatePayload(), recipients, 9)
	second := d.Dispatch(context.Background(), testEvent(), updatePayload(), recipients, 9)

	assert.Equal(t, 1, first.MessagesCreated)
	assert.Equal(t, 0, second.MessagesCreated)
	assert.True(t, second.Success)
	assert.Equal(t, 1, msgs.count(), "same logical change must not duplicate the record")
}

func TestDispatchDifferentKindsAreSeparate(t *testing.T) {
	msgs := newMemMessages()
	d := NewDispatcher(msgs, nil, nil, time.Second, 4)

	recipients := []Recipient{{SubjectID: "user:1"}}
	d.Dispatch(context.Background(), testEvent(), updatePayload(), recipients, 9)
	d.Dispatch(context.Background(), testEvent(), EventCancelledPayload{EventTitle: "Town Hall"}, recipients, 9)

	assert.Equal(t, 2, msgs.count())
}

func TestDispatchMessageFailureSkipsPushKeepsEmail(t *testing.T) {
	msgs := newMemMessages()
	msgs.failOn["user:1"] = true
	push := &fakePush{}
	mail := &fakeMailer{}
	d := NewDispatcher(msgs, push, mail, time.Second, 4)

	sum := d.Dispatch(context.Background(), testEvent(), updatePayload(),
		[]Recipient{{SubjectID: "user:1", Email: "a@example.com"}}, 9)

	assert.False(t, sum.Success, "durable leg failed for a recipient")
	assert.Equal(t, 0, sum.PushesSent)
	assert.Equal(t, 1, sum.EmailsSent, "email is still attempted without a message record")
	assert.Empty(t, push.events)

	var pushOutcome Outcome
	for _, r := range sum.Results {
		if r.Channel == ChannelPush {
			pushOutcome = r.Outcome
		}
	}
	assert.Equal(t, OutcomeSkipped, pushOutcome)
}

func TestDispatchRecipientFailuresAreIsolated(t *testing.T) {
	msgs := newMemMessages()
	mail := &fakeMailer{errTo: map[string]error{"bad@example.com": errors.New("mailbox gone")}}
	d := NewDispatcher(msgs, &fakePush{}, mail, time.Second, 4)

	recipients := []Recipient{
		{SubjectID: "user:1", Email: "bad@example.com"},
		{SubjectID: "user:2", Email: "good@example.com"},
	}
	sum := d.Dispatch(context.Background(), testEvent(), updatePayload(), recipients, 9)

	assert.True(t, sum.Success, "email failures never fail the dispatch")
	assert.Equal(t, 1, sum.EmailsSent)
	assert.Equal(t, 2, sum.MessagesCreated)

	failed := 0
	for _, r := range sum.Results {
		if r.Channel == ChannelEmail && r.Outcome == OutcomeFailed {
			failed++
		}
	}
	assert.Equal(t, 1, failed)
}

func TestDispatchEmailTimeout(t *testing.T) {
	msgs := newMemMessages()
	mail := &fakeMailer{delay: 200 * time.Millisecond}
	d := NewDispatcher(msgs, nil, mail, 30*time.Millisecond, 4)

	sum := d.Dispatch(context.Background(), testEvent(), updatePayload(),
		[]Recipient{{SubjectID: "user:1", Email: "slow@example.com"}}, 9)

	assert.True(t, sum.Success)
	assert.Equal(t, 0, sum.EmailsSent)
	var sawTimeout bool
	for _, r := range sum.Results {
		if r.Channel == ChannelEmail && r.Outcome == OutcomeTimedOut {
			sawTimeout = true
		}
	}
	assert.True(t, sawTimeout)
}

func TestDispatchPushFailureDoesNotFailSummary(t *testing.T) {
	msgs := newMemMessages()
	push := &fakePush{err: errors.New("broker down")}
	d := NewDispatcher(msgs, push, nil, time.Second, 4)

	sum := d.Dispatch(context.Background(), testEvent(), updatePayload(),
		[]Recipient{{SubjectID: "user:1"}}, 9)

	assert.True(t, sum.Success)
	assert.Equal(t, 0, sum.PushesSent)
	assert.Equal(t, 1, sum.MessagesCreated)
}

func TestDispatchRejectsInvalidPayload(t *testing.T) {
	msgs := newMemMessages()
	d := NewDispatcher(msgs, nil, nil, time.Second, 4)

	sum := d.Dispatch(context.Background(), testEvent(), EventUpdatedPayload{}, // missing everything
		[]Recipient{{SubjectID: "user:1"}}, 9)

	assert.False(t, sum.Success)
	assert.Equal(t, 0, msgs.count())
}

func TestDispatchNoRecipients(t *testing.T) {
	d := NewDispatcher(newMemMessages(), nil, nil, time.Second, 4)
	sum := d.Dispatch(context.Background(), testEvent(), updatePayload(), nil, 9)
	assert.True(t, sum.Success)
	assert.Empty(t, sum.Results)
}
