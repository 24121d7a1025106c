package registration

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/planora/event-scheduler/internal/lock"
	"github.com/planora/event-scheduler/internal/model"
	"github.com/planora/event-scheduler/internal/notify"
)

// Store is the persistence contract the service runs against.  The
// composite mutations (create+increment, cancel+decrement, move+adjust)
// must be atomic: either the registration row and the role counter both
// change, or neither does.  The MySQL implementation wraps each in a
// transaction.
//
// FindActive returns (nil, nil) when no active registration exists.
// GetEvent must return ErrEventNotFound for unknown IDs and include the
// event's roles.
type Store interface {
	GetEvent(ctx context.Context, eventID uint64) (*model.Event, error)
	FindActive(ctx context.Context, eventID, roleID uint64, subjectID string) (*model.Registration, error)
	CountActiveBySubject(ctx context.Context, eventID uint64, subjectID string) (int, error)
	CreateAndIncrement(ctx context.Context, reg *model.Registration) error
	CancelAndDecrement(ctx context.Context, regID uint64) error
	MoveAndAdjust(ctx context.Context, regID, fromRoleID, toRoleID uint64, roleName, roleDesc string) error
	IsUserActive(ctx context.Context, userID uint64) (bool, error)
}

// CacheInvalidator drops read-side caches after a committed occupancy
// change.  Every mutation here changes remaining capacity, which the
// listing and detail reads both render.
type CacheInvalidator interface {
	BumpListingVersion(ctx context.Context)
	InvalidateAnalytics(ctx context.Context)
	InvalidateEvent(ctx context.Context, eventID uint64)
}

// RecipientSource resolves user IDs to notification recipients.
type RecipientSource interface {
	UserRecipients(ctx context.Context, userIDs []uint64) ([]notify.Recipient, error)
}

// Notifier delivers the notification trio for one change.
type Notifier interface {
	Dispatch(ctx context.Context, ev *model.Event, payload notify.Payload, recipients []notify.Recipient, actorID uint64) notify.Summary
}

// Service validates and mutates role occupancy under per-role locks.
type Service struct {
	store      Store
	locks      lock.Locker
	maxRoles   int
	cache      CacheInvalidator
	recipients RecipientSource
	notifier   Notifier
	now        func() time.Time
}

// NewService returns a Service.  maxRoles caps the number of active
// registrations one subject may hold across all roles of one event; a
// non-positive value disables the cap.  cache, recipients and notifier
// may be nil; the corresponding stages are then skipped.
func NewService(store Store, locks lock.Locker, maxRoles int, cache CacheInvalidator, recipients RecipientSource, notifier Notifier) *Service {
	return &Service{
		store:      store,
		locks:      locks,
		maxRoles:   maxRoles,
		cache:      cache,
		recipients: recipients,
		notifier:   notifier,
		now:        time.Now,
	}
}

// SignUp registers subjectID for the given role.  The whole
// check-then-act sequence (read count, compare to capacity, insert and
// increment) runs under the event:role lock; the lock is released on
// every exit path.
func (s *Service) SignUp(ctx context.Context, eventID, roleID uint64, subjectID string) (*model.Registration, error) {
	release, err := s.locks.Acquire(ctx, lock.RoleKey(eventID, roleID))
	if err != nil {
		return nil, fmt.Errorf("acquire role lock: %w", err)
	}
	defer release()

	ev, role, err := s.loadRole(ctx, eventID, roleID)
	if err != nil {
		return nil, err
	}
	if ev.StatusAt(s.now().UTC()) != model.StatusUpcoming {
		return nil, ErrEventNotOpen
	}
	return s.register(ctx, ev, role, subjectID, 0, true)
}

// AssignUser is the privileged path: it skips the self-service rules
// (event-open status, per-event role cap) but still enforces capacity
// and uniqueness, and additionally requires the target user be active.
func (s *Service) AssignUser(ctx context.Context, eventID, roleID, targetUserID, actorID uint64) (*model.Registration, error) {
	active, err := s.store.IsUserActive(ctx, targetUserID)
	if err != nil {
		return nil, fmt.Errorf("check target user: %w", err)
	}
	if !active {
		return nil, ErrSubjectInactive
	}

	release, err := s.locks.Acquire(ctx, lock.RoleKey(eventID, roleID))
	if err != nil {
		return nil, fmt.Errorf("acquire role lock: %w", err)
	}
	defer release()

	ev, role, err := s.loadRole(ctx, eventID, roleID)
	if err != nil {
		return nil, err
	}
	reg, err := s.register(ctx, ev, role, SubjectForUser(targetUserID), actorID, false)
	if err != nil {
		return nil, err
	}
	s.notifyRoleChange(ctx, ev, role.Name, "assigned", reg.SubjectID, actorID)
	return reg, nil
}

// Cancel flips the subject's active registration for the role to
// CANCELLED and decrements the role counter.  The registration row is
// kept for the audit trail.
func (s *Service) Cancel(ctx context.Context, eventID, roleID uint64, subjectID string) error {
	release, err := s.locks.Acquire(ctx, lock.RoleKey(eventID, roleID))
	if err != nil {
		return fmt.Errorf("acquire role lock: %w", err)
	}
	defer release()

	reg, err := s.store.FindActive(ctx, eventID, roleID, subjectID)
	if err != nil {
		return fmt.Errorf("find registration: %w", err)
	}
	if reg == nil {
		return ErrNotRegistered
	}
	if err := s.store.CancelAndDecrement(ctx, reg.ID); err != nil {
		return fmt.Errorf("cancel registration: %w", err)
	}
	s.invalidateAfterWrite(ctx, eventID)
	return nil
}

// MoveBetweenRoles moves the subject's active registration from one
// role of the event to another, updating the single registration row in
// place.  Both role locks are acquired in ascending roleID order so two
// concurrent moves in opposite directions cannot deadlock.
func (s *Service) MoveBetweenRoles(ctx context.Context, eventID uint64, subjectID string, fromRoleID, toRoleID uint64) (*model.Registration, error) {
	if fromRoleID == toRoleID {
		return nil, ErrAlreadyRegistered
	}
	first, second := fromRoleID, toRoleID
	if second < first {
		first, second = second, first
	}
	releaseFirst, err := s.locks.Acquire(ctx, lock.RoleKey(eventID, first))
	if err != nil {
		return nil, fmt.Errorf("acquire role lock: %w", err)
	}
	defer releaseFirst()
	releaseSecond, err := s.locks.Acquire(ctx, lock.RoleKey(eventID, second))
	if err != nil {
		return nil, fmt.Errorf("acquire role lock: %w", err)
	}
	defer releaseSecond()

	ev, err := s.store.GetEvent(ctx, eventID)
	if err != nil {
		return nil, err
	}
	from := ev.RoleByID(fromRoleID)
	to := ev.RoleByID(toRoleID)
	if from == nil || to == nil {
		return nil, ErrRoleNotFound
	}
	reg, err := s.store.FindActive(ctx, eventID, fromRoleID, subjectID)
	if err != nil {
		return nil, fmt.Errorf("find registration: %w", err)
	}
	if reg == nil {
		return nil, ErrNotRegistered
	}
	if existing, err := s.store.FindActive(ctx, eventID, toRoleID, subjectID); err != nil {
		return nil, fmt.Errorf("find registration: %w", err)
	} else if existing != nil {
		return nil, ErrAlreadyRegistered
	}
	if to.CurrentCount >= to.Capacity {
		return nil, ErrRoleFull
	}
	if err := s.store.MoveAndAdjust(ctx, reg.ID, fromRoleID, toRoleID, to.Name, to.Description); err != nil {
		return nil, fmt.Errorf("move registration: %w", err)
	}
	reg.RoleID = toRoleID
	reg.RoleName = to.Name
	reg.RoleDescription = to.Description
	s.invalidateAfterWrite(ctx, eventID)
	s.notifyRoleChange(ctx, ev, to.Name, "moved", subjectID, 0)
	return reg, nil
}

// register performs the locked duplicate/cap/capacity checks and the
// atomic insert.  Callers must hold the role lock.
func (s *Service) register(ctx context.Context, ev *model.Event, role *model.Role, subjectID string, actorID uint64, enforceCap bool) (*model.Registration, error) {
	existing, err := s.store.FindActive(ctx, ev.ID, role.ID, subjectID)
	if err != nil {
		return nil, fmt.Errorf("find registration: %w", err)
	}
	if existing != nil {
		return nil, ErrAlreadyRegistered
	}
	if enforceCap && s.maxRoles > 0 {
		n, err := s.store.CountActiveBySubject(ctx, ev.ID, subjectID)
		if err != nil {
			return nil, fmt.Errorf("count registrations: %w", err)
		}
		if n >= s.maxRoles {
			return nil, ErrMaxRolesPerEvent
		}
	}
	if role.CurrentCount >= role.Capacity {
		return nil, ErrRoleFull
	}
	reg := &model.Registration{
		EventID:         ev.ID,
		RoleID:          role.ID,
		SubjectID:       subjectID,
		Status:          model.RegistrationActive,
		RoleName:        role.Name,
		RoleDescription: role.Description,
		AssignedBy:      actorID,
		CreatedAt:       s.now().UTC(),
	}
	if err := s.store.CreateAndIncrement(ctx, reg); err != nil {
		return nil, fmt.Errorf("create registration: %w", err)
	}
	s.invalidateAfterWrite(ctx, ev.ID)
	return reg, nil
}

// invalidateAfterWrite drops the caches that render remaining capacity.
// It runs synchronously after the commit; failures inside the
// invalidator are logged and swallowed there.
func (s *Service) invalidateAfterWrite(ctx context.Context, eventID uint64) {
	if s.cache == nil {
		return
	}
	s.cache.BumpListingVersion(ctx)
	s.cache.InvalidateAnalytics(ctx)
	s.cache.InvalidateEvent(ctx, eventID)
}

// notifyRoleChange dispatches the trio to the affected subject.
// Authenticated users are resolved through the recipient source so the
// email leg gets an address; guests get a message-only recipient.
// Delivery problems never fail the mutation.
func (s *Service) notifyRoleChange(ctx context.Context, ev *model.Event, roleName, action, subjectID string, actorID uint64) {
	if s.notifier == nil {
		return
	}
	rcpt := notify.Recipient{SubjectID: subjectID}
	if uid, ok := userIDFromSubject(subjectID); ok && s.recipients != nil {
		if resolved, err := s.recipients.UserRecipients(ctx, []uint64{uid}); err == nil && len(resolved) == 1 {
			rcpt = resolved[0]
		}
	}
	payload := notify.RoleChangedPayload{EventTitle: ev.Title, RoleName: roleName, Action: action}
	s.notifier.Dispatch(ctx, ev, payload, []notify.Recipient{rcpt}, actorID)
}

// userIDFromSubject parses a "user:<id>" subject; guest subjects report
// false.
func userIDFromSubject(subjectID string) (uint64, bool) {
	raw, ok := strings.CutPrefix(subjectID, "user:")
	if !ok {
		return 0, false
	}
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, false
	}
	return id, true
}

func (s *Service) loadRole(ctx context.Context, eventID, roleID uint64) (*model.Event, *model.Role, error) {
	ev, err := s.store.GetEvent(ctx, eventID)
	if err != nil {
		return nil, nil, err
	}
	role := ev.RoleByID(roleID)
	if role == nil {
		return nil, nil, ErrRoleNotFound
	}
	return ev, role, nil
}

// SubjectForUser renders a user ID as a subject identifier, the form
// stored on registrations for authenticated users.
func SubjectForUser(userID uint64) string {
	return fmt.Sprintf("user:%d", userID)
}

// SubjectForGuest renders an opaque guest token as a subject identifier.
// Guests sign up without an account; the token is whatever the client
// minted and presented.
func SubjectForGuest(token string) string {
	return fmt.Sprintf("guest:%s", token)
}
