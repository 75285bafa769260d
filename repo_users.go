package auth

import (
	"context"
	"database/sql"
	"errors"
	"net/mail"
	"strings"

	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// Users is the bun backed user repository. The session core only needs the
// read side (UserRepository); Create exists for seeding and tooling.
type Users interface {
	repository.Repository[*User]
	UserRepository

	FindByIdentifierTx(ctx context.Context, tx bun.IDB, identifier string) (*User, error)
	Create(ctx context.Context, record *User, criteria ...repository.InsertCriteria) (*User, error)
	CreateTx(ctx context.Context, tx bun.IDB, record *User, criteria ...repository.InsertCriteria) (*User, error)
}

type users struct {
	repository.Repository[*User]
	db *bun.DB
}

var _ Users = (*users)(nil)

// NewUsersRepository returns a user repository bound to db
func NewUsersRepository(db *bun.DB) Users {
	handlers := repository.ModelHandlers[*User]{
		NewRecord: func() *User { return &User{} },
		GetID: func(u *User) uuid.UUID {
			if u == nil {
				return uuid.Nil
			}
			return u.ID
		},
		SetID: func(u *User, id uuid.UUID) {
			if u != nil {
				u.ID = id
			}
		},
		GetIdentifier: func() string { return "username" },
	}

	return &users{
		Repository: repository.NewRepository[*User](db, handlers),
		db:         db,
	}
}

// FindActiveByID loads a user that is active and not soft deleted. A
// malformed id is reported as not found.
func (u *users) FindActiveByID(ctx context.Context, id string) (*User, error) {
	uid, err := uuid.Parse(strings.TrimSpace(id))
	if err != nil {
		return nil, userNotFound("id", id)
	}

	return u.findOne(ctx, u.db, "id", id, func(q *bun.SelectQuery) *bun.SelectQuery {
		return q.Where("?TableAlias.id = ?", uid).Where("?TableAlias.is_active = ?", true)
	})
}

// FindByIdentifier matches a username, or an email address ignoring case.
// Inactive users are returned, the caller decides what to do with them.
func (u *users) FindByIdentifier(ctx context.Context, identifier string) (*User, error) {
	return u.FindByIdentifierTx(ctx, u.db, identifier)
}

func (u *users) FindByIdentifierTx(ctx context.Context, tx bun.IDB, identifier string) (*User, error) {
	identifier = strings.TrimSpace(identifier)
	if identifier == "" {
		return nil, userNotFound("identifier", identifier)
	}

	if looksLikeEmail(identifier) {
		user, err := u.findOne(ctx, tx, "identifier", identifier, func(q *bun.SelectQuery) *bun.SelectQuery {
			return q.Where("lower(?TableAlias.email) = ?", strings.ToLower(identifier))
		})
		if err == nil || !isRecordNotFound(err) {
			return user, err
		}
	}

	// usernames may contain @, so an address that matched no email still
	// gets a username lookup
	return u.findOne(ctx, tx, "identifier", identifier, func(q *bun.SelectQuery) *bun.SelectQuery {
		return q.Where("?TableAlias.username = ?", identifier)
	})
}

func (u *users) Create(ctx context.Context, record *User, criteria ...repository.InsertCriteria) (*User, error) {
	return u.CreateTx(ctx, u.db, record, criteria...)
}

// CreateTx inserts record, defaulting the id and the store role
func (u *users) CreateTx(ctx context.Context, tx bun.IDB, record *User, criteria ...repository.InsertCriteria) (*User, error) {
	if record != nil {
		if record.ID == uuid.Nil {
			record.ID = uuid.New()
		}
		if record.Role == "" {
			record.Role = RoleStore
		}
	}
	return u.Repository.CreateTx(ctx, tx, record, criteria...)
}

func (u *users) findOne(ctx context.Context, tx bun.IDB, key, value string, where func(*bun.SelectQuery) *bun.SelectQuery) (*User, error) {
	record := &User{}
	err := where(tx.NewSelect().Model(record)).Limit(1).Scan(ctx)
	if err != nil {
		if isRecordNotFound(err) {
			return nil, userNotFound(key, value)
		}
		return nil, err
	}
	return record, nil
}

func userNotFound(key, value string) error {
	return repository.NewRecordNotFound().WithMetadata(map[string]any{key: value})
}

func looksLikeEmail(s string) bool {
	addr, err := mail.ParseAddress(s)
	return err == nil && addr.Address == s
}

func isRecordNotFound(err error) bool {
	return errors.Is(err, sql.ErrNoRows) || repository.IsRecordNotFound(err)
}
