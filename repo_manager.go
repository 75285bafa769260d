package auth

import (
	"context"
	"database/sql"
	"errors"
	"log"

	"github.com/goliatone/go-repository-bun"
	"github.com/uptrace/bun"
)

// RepositoryManager hands out the repositories backed by one database and
// runs transactions across them
type RepositoryManager interface {
	repository.Validator
	repository.TransactionManager
	Users() Users
	Sessions() *Sessions
	// SessionsTx returns a session store bound to tx, sharing the logger and
	// clock of Sessions
	SessionsTx(tx bun.IDB) *Sessions
}

type repositories struct {
	db       *bun.DB
	users    Users
	sessions *Sessions
}

var _ RepositoryManager = (*repositories)(nil)

// NewRepositoryManager builds the user and session repositories over db
func NewRepositoryManager(db *bun.DB, logger ...Logger) RepositoryManager {
	var l Logger
	if len(logger) > 0 {
		l = logger[0]
	}

	r := &repositories{db: db}
	if db != nil {
		r.users = NewUsersRepository(db)
		r.sessions = NewSessionsRepository(db).WithLogger(normalizeLogger(l))
	}
	return r
}

// Validate reports every missing dependency at once
func (r *repositories) Validate() error {
	var errs []error
	if r.db == nil {
		errs = append(errs, errors.New("repositories: database is nil"))
	}
	if r.users == nil {
		errs = append(errs, errors.New("repositories: users repository is not initialized"))
	}
	if r.sessions == nil {
		errs = append(errs, errors.New("repositories: sessions repository is not initialized"))
	}
	return errors.Join(errs...)
}

func (r *repositories) MustValidate() {
	if err := r.Validate(); err != nil {
		log.Panic(err)
	}
}

func (r *repositories) RunInTx(ctx context.Context, opts *sql.TxOptions, f func(ctx context.Context, tx bun.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return r.db.RunInTx(ctx, opts, f)
}

func (r *repositories) Users() Users { return r.users }

func (r *repositories) Sessions() *Sessions { return r.sessions }

func (r *repositories) SessionsTx(tx bun.IDB) *Sessions {
	return NewSessionsRepository(tx).
		WithLogger(r.sessions.logger).
		WithClock(r.sessions.now)
}
