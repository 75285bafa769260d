package auth

import (
	"context"
	"database/sql"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// extendAttempts bounds the compare and set loop in Extend
const extendAttempts = 3

// Sessions is the bun backed SessionStore. Every state transition is a
// single conditional UPDATE so row atomicity in the database is the only
// synchronization needed between concurrent requests.
type Sessions struct {
	db     bun.IDB
	now    func() time.Time
	logger Logger
}

var _ SessionStore = (*Sessions)(nil)

// NewSessionsRepository returns a session store bound to db
func NewSessionsRepository(db bun.IDB) *Sessions {
	return &Sessions{
		db:     db,
		now:    time.Now,
		logger: defLogger{},
	}
}

func (s *Sessions) WithLogger(l Logger) *Sessions {
	s.logger = normalizeLogger(l)
	return s
}

// WithClock replaces the time source used for timestamps
func (s *Sessions) WithClock(now func() time.Time) *Sessions {
	if now != nil {
		s.now = now
	}
	return s
}

// timestamps are stored in UTC at microsecond precision so values read
// back compare equal to the values written
func (s *Sessions) clock() time.Time {
	return s.now().UTC().Truncate(time.Microsecond)
}

// Create inserts a new active session for ownerID that expires after ttl
func (s *Sessions) Create(ctx context.Context, ownerID string, deviceInfo DeviceInfo, originAddress string, ttl time.Duration) (*Session, error) {
	if ttl <= 0 {
		return nil, goerrors.New("session ttl must be positive", goerrors.CategoryBadInput).
			WithCode(goerrors.CodeBadRequest)
	}

	owner, err := uuid.Parse(ownerID)
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryBadInput, "invalid session owner id").
			WithCode(goerrors.CodeBadRequest)
	}

	now := s.clock()
	record := &Session{
		ID:             uuid.New(),
		OwnerID:        owner,
		DeviceInfo:     deviceInfo,
		OriginAddress:  originAddress,
		CreatedAt:      now,
		LastActivityAt: now,
		ExpiresAt:      now.Add(ttl),
		Active:         true,
	}

	if _, err := s.db.NewInsert().Model(record).Exec(ctx); err != nil {
		s.logger.Error("Sessions create failed", "owner_id", ownerID, "error", err)
		return nil, storageError(err, "create")
	}

	return record, nil
}

// Get returns the session with the given id or ErrSessionNotFound
func (s *Sessions) Get(ctx context.Context, id string) (*Session, error) {
	sid, err := uuid.Parse(id)
	if err != nil {
		return nil, ErrSessionNotFound
	}

	record := &Session{}
	err = s.db.NewSelect().
		Model(record).
		Where("?TableAlias.id = ?", sid).
		Limit(1).
		Scan(ctx)

	if err != nil {
		if isRecordNotFound(err) {
			return nil, ErrSessionNotFound
		}
		return nil, storageError(err, "get")
	}

	return record, nil
}

// ListActiveByOwner returns the owner's active sessions, most recently used first
func (s *Sessions) ListActiveByOwner(ctx context.Context, ownerID string) ([]*Session, error) {
	owner, err := uuid.Parse(ownerID)
	if err != nil {
		return []*Session{}, nil
	}

	records := []*Session{}
	err = s.db.NewSelect().
		Model(&records).
		Where("?TableAlias.owner_id = ?", owner).
		Where("?TableAlias.active = ?", true).
		OrderExpr("?TableAlias.last_activity_at DESC").
		Scan(ctx)

	if err != nil && err != sql.ErrNoRows {
		return nil, storageError(err, "list_active")
	}

	return records, nil
}

// TouchActivity moves last_activity_at forward. It never revives a
// terminated session and never moves the timestamp backwards.
func (s *Sessions) TouchActivity(ctx context.Context, id string) error {
	sid, err := uuid.Parse(id)
	if err != nil {
		return ErrSessionNotFound
	}

	now := s.clock()
	res, err := s.db.NewUpdate().
		Model((*Session)(nil)).
		Set("last_activity_at = ?", now).
		Where("id = ?", sid).
		Where("active = ?", true).
		Where("last_activity_at <= ?", now).
		Exec(ctx)

	if err != nil {
		return storageError(err, "touch")
	}

	if affected(res) > 0 {
		return nil
	}

	return s.exists(ctx, sid)
}

// Terminate marks the session inactive. Terminating a session that is
// already inactive succeeds and keeps the first reason.
func (s *Sessions) Terminate(ctx context.Context, id string, reason TerminationReason) error {
	if !reason.IsValid() {
		return goerrors.New("invalid termination reason", goerrors.CategoryBadInput).
			WithCode(goerrors.CodeBadRequest).
			WithMetadata(map[string]any{"reason": string(reason)})
	}

	sid, err := uuid.Parse(id)
	if err != nil {
		return ErrSessionNotFound
	}

	now := s.clock()
	res, err := s.db.NewUpdate().
		Model((*Session)(nil)).
		Set("active = ?", false).
		Set("terminated_reason = ?", reason).
		Set("terminated_at = ?", now).
		Where("id = ?", sid).
		Where("active = ?", true).
		Exec(ctx)

	if err != nil {
		return storageError(err, "terminate")
	}

	if affected(res) > 0 {
		return nil
	}

	return s.exists(ctx, sid)
}

// TerminateAllForOwner terminates every active session of the owner
func (s *Sessions) TerminateAllForOwner(ctx context.Context, ownerID string, reason TerminationReason) (int, error) {
	if !reason.IsValid() {
		return 0, goerrors.New("invalid termination reason", goerrors.CategoryBadInput).
			WithCode(goerrors.CodeBadRequest).
			WithMetadata(map[string]any{"reason": string(reason)})
	}

	owner, err := uuid.Parse(ownerID)
	if err != nil {
		return 0, nil
	}

	now := s.clock()
	res, err := s.db.NewUpdate().
		Model((*Session)(nil)).
		Set("active = ?", false).
		Set("terminated_reason = ?", reason).
		Set("terminated_at = ?", now).
		Where("owner_id = ?", owner).
		Where("active = ?", true).
		Exec(ctx)

	if err != nil {
		return 0, storageError(err, "terminate_all")
	}

	return int(affected(res)), nil
}

// Extend pushes expires_at forward by the given duration. The update is a
// compare and set on the previous expiry so concurrent extensions add up.
func (s *Sessions) Extend(ctx context.Context, id string, by time.Duration) (time.Time, error) {
	if by <= 0 {
		return time.Time{}, goerrors.New("extension must be positive", goerrors.CategoryBadInput).
			WithCode(goerrors.CodeBadRequest)
	}

	for attempt := 0; attempt < extendAttempts; attempt++ {
		record, err := s.Get(ctx, id)
		if err != nil {
			return time.Time{}, err
		}

		if err := record.liveness(s.clock()); err != nil {
			return time.Time{}, err
		}

		expiresAt := record.ExpiresAt.UTC().Add(by)
		res, err := s.db.NewUpdate().
			Model((*Session)(nil)).
			Set("expires_at = ?", expiresAt).
			Where("id = ?", record.ID).
			Where("active = ?", true).
			Where("expires_at = ?", record.ExpiresAt.UTC()).
			Exec(ctx)

		if err != nil {
			return time.Time{}, storageError(err, "extend")
		}

		if affected(res) > 0 {
			return expiresAt, nil
		}

		s.logger.Debug("Sessions extend lost a race, retrying", "session_id", id, "attempt", attempt+1)
	}

	return time.Time{}, goerrors.New("session changed concurrently", goerrors.CategoryConflict).
		WithCode(goerrors.CodeConflict).
		WithMetadata(map[string]any{"session_id": id})
}

// SweepExpired terminates every active session whose expiry is at or
// before now. Running it twice is the same as running it once.
func (s *Sessions) SweepExpired(ctx context.Context, now time.Time) (int, error) {
	cutoff := now.UTC().Truncate(time.Microsecond)
	res, err := s.db.NewUpdate().
		Model((*Session)(nil)).
		Set("active = ?", false).
		Set("terminated_reason = ?", TerminationTimeout).
		Set("terminated_at = ?", cutoff).
		Where("active = ?", true).
		Where("expires_at <= ?", cutoff).
		Exec(ctx)

	if err != nil {
		return 0, storageError(err, "sweep")
	}

	return int(affected(res)), nil
}

// PurgeTerminated deletes inactive sessions terminated before the cutoff
func (s *Sessions) PurgeTerminated(ctx context.Context, before time.Time) (int, error) {
	res, err := s.db.NewDelete().
		Model((*Session)(nil)).
		Where("active = ?", false).
		Where("terminated_at < ?", before.UTC().Truncate(time.Microsecond)).
		Exec(ctx)

	if err != nil {
		return 0, storageError(err, "purge")
	}

	return int(affected(res)), nil
}

func (s *Sessions) exists(ctx context.Context, id uuid.UUID) error {
	ok, err := s.db.NewSelect().
		Model((*Session)(nil)).
		Where("?TableAlias.id = ?", id).
		Exists(ctx)

	if err != nil {
		return storageError(err, "exists")
	}

	if !ok {
		return ErrSessionNotFound
	}

	return nil
}

func affected(res sql.Result) int64 {
	if res == nil {
		return 0
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0
	}
	return n
}
