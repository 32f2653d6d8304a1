package userstore

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"aimawatch-backend/lib/timezone"
	"aimawatch-backend/services/userstore/db"
)

// User is one registered chat. Credentials are stored encrypted, the
// ciphertexts here are opaque strings only lib/vault can open.
type User struct {
	ChatID             int64
	EmailCiphertext    string
	PasswordCiphertext string
	// LastStatus is empty and LastCheckedAt is the zero time until the
	// first successful check has been persisted.
	LastStatus      string
	LastCheckedAt   time.Time
	PeriodicEnabled bool
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// NeverChecked reports whether no successful check has been persisted
// for this user yet.
func (u User) NeverChecked() bool {
	return u.LastCheckedAt.IsZero()
}

type Service struct {
	db  *sql.DB
	qry *db.Queries
}

func NewService(database *sql.DB) Service {
	return Service{
		db:  database,
		qry: db.New(database),
	}
}

func fromRow(row db.User) User {
	u := User{
		ChatID:             row.ChatID,
		EmailCiphertext:    row.EmailCiphertext,
		PasswordCiphertext: row.PasswordCiphertext,
		PeriodicEnabled:    row.PeriodicEnabled,
		CreatedAt:          time.Unix(row.CreatedAt, 0).In(timezone.Location),
		UpdatedAt:          time.Unix(row.UpdatedAt, 0).In(timezone.Location),
	}
	if row.LastStatus.Valid {
		u.LastStatus = row.LastStatus.String
	}
	if row.LastCheckedAt.Valid {
		u.LastCheckedAt = time.Unix(row.LastCheckedAt.Int64, 0).In(timezone.Location)
	}
	return u
}

func fromRows(rows []db.User) []User {
	out := make([]User, len(rows))
	for i, row := range rows {
		out[i] = fromRow(row)
	}
	return out
}

func (s Service) Create(ctx context.Context, chatID int64, emailCipher, passwordCipher string) error {
	now := timezone.Now().Unix()
	return s.qry.CreateUser(ctx, db.CreateUserParams{
		ChatID:             chatID,
		EmailCiphertext:    emailCipher,
		PasswordCiphertext: passwordCipher,
		CreatedAt:          now,
		UpdatedAt:          now,
	})
}

func (s Service) Get(ctx context.Context, chatID int64) (User, bool, error) {
	row, err := s.qry.GetUser(ctx, chatID)
	if errors.Is(err, sql.ErrNoRows) {
		return User{}, false, nil
	}
	if err != nil {
		return User{}, false, err
	}
	return fromRow(row), true, nil
}

func (s Service) UpdateCredentials(ctx context.Context, chatID int64, emailCipher, passwordCipher string) error {
	return s.qry.UpdateCredentials(ctx, db.UpdateCredentialsParams{
		EmailCiphertext:    emailCipher,
		PasswordCiphertext: passwordCipher,
		UpdatedAt:          timezone.Now().Unix(),
		ChatID:             chatID,
	})
}

// CreateOrUpdate registers a chat, replacing any credentials it already
// stored. Re-running /start must not fail on the unique chat_id.
func (s Service) CreateOrUpdate(ctx context.Context, chatID int64, emailCipher, passwordCipher string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	txqry := s.qry.WithTx(tx)

	now := timezone.Now().Unix()
	_, err = txqry.GetUser(ctx, chatID)
	if errors.Is(err, sql.ErrNoRows) {
		err = txqry.CreateUser(ctx, db.CreateUserParams{
			ChatID:             chatID,
			EmailCiphertext:    emailCipher,
			PasswordCiphertext: passwordCipher,
			CreatedAt:          now,
			UpdatedAt:          now,
		})
		if err != nil {
			return err
		}
		return tx.Commit()
	}
	if err != nil {
		return err
	}

	err = txqry.UpdateCredentials(ctx, db.UpdateCredentialsParams{
		EmailCiphertext:    emailCipher,
		PasswordCiphertext: passwordCipher,
		UpdatedAt:          now,
		ChatID:             chatID,
	})
	if err != nil {
		return err
	}
	return tx.Commit()
}

func (s Service) UpdateLastStatus(ctx context.Context, chatID int64, status string, checkedAt time.Time) error {
	return s.qry.UpdateLastStatus(ctx, db.UpdateLastStatusParams{
		LastStatus:    sql.NullString{String: status, Valid: true},
		LastCheckedAt: sql.NullInt64{Int64: checkedAt.Unix(), Valid: true},
		UpdatedAt:     timezone.Now().Unix(),
		ChatID:        chatID,
	})
}

func (s Service) SetPeriodic(ctx context.Context, chatID int64, enabled bool) error {
	return s.qry.SetPeriodic(ctx, db.SetPeriodicParams{
		PeriodicEnabled: enabled,
		UpdatedAt:       timezone.Now().Unix(),
		ChatID:          chatID,
	})
}

func (s Service) ListPeriodicEnabled(ctx context.Context) ([]User, error) {
	rows, err := s.qry.ListPeriodicEnabled(ctx)
	if err != nil {
		return nil, err
	}
	return fromRows(rows), nil
}

func (s Service) ListUsers(ctx context.Context) ([]User, error) {
	rows, err := s.qry.ListUsers(ctx)
	if err != nil {
		return nil, err
	}
	return fromRows(rows), nil
}

func (s Service) Delete(ctx context.Context, chatID int64) error {
	return s.qry.DeleteUser(ctx, chatID)
}

func (s Service) Count(ctx context.Context) (int64, error) {
	return s.qry.CountUsers(ctx)
}
