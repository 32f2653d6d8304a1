package db

import (
	"context"
	"database/sql"
)

const userColumns = `id, chat_id, email_ciphertext, password_ciphertext, last_status, last_checked_at, periodic_enabled, created_at, updated_at`

func scanUser(row *sql.Row) (User, error) {
	var u User
	err := row.Scan(
		&u.ID,
		&u.ChatID,
		&u.EmailCiphertext,
		&u.PasswordCiphertext,
		&u.LastStatus,
		&u.LastCheckedAt,
		&u.PeriodicEnabled,
		&u.CreatedAt,
		&u.UpdatedAt,
	)
	return u, err
}

func scanUsers(rows *sql.Rows) ([]User, error) {
	defer rows.Close()

	var out []User
	for rows.Next() {
		var u User
		err := rows.Scan(
			&u.ID,
			&u.ChatID,
			&u.EmailCiphertext,
			&u.PasswordCiphertext,
			&u.LastStatus,
			&u.LastCheckedAt,
			&u.PeriodicEnabled,
			&u.CreatedAt,
			&u.UpdatedAt,
		)
		if err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

const createUser = `
INSERT INTO users (chat_id, email_ciphertext, password_ciphertext, periodic_enabled, created_at, updated_at)
VALUES (?, ?, ?, 0, ?, ?)
`

type CreateUserParams struct {
	ChatID             int64
	EmailCiphertext    string
	PasswordCiphertext string
	CreatedAt          int64
	UpdatedAt          int64
}

func (q *Queries) CreateUser(ctx context.Context, arg CreateUserParams) error {
	_, err := q.db.ExecContext(ctx, createUser,
		arg.ChatID,
		arg.EmailCiphertext,
		arg.PasswordCiphertext,
		arg.CreatedAt,
		arg.UpdatedAt,
	)
	return err
}

const getUser = `
SELECT ` + userColumns + `
FROM users
WHERE chat_id = ?
`

func (q *Queries) GetUser(ctx context.Context, chatID int64) (User, error) {
	return scanUser(q.db.QueryRowContext(ctx, getUser, chatID))
}

const updateCredentials = `
UPDATE users
SET email_ciphertext = ?, password_ciphertext = ?, updated_at = ?
WHERE chat_id = ?
`

type UpdateCredentialsParams struct {
	EmailCiphertext    string
	PasswordCiphertext string
	UpdatedAt          int64
	ChatID             int64
}

func (q *Queries) UpdateCredentials(ctx context.Context, arg UpdateCredentialsParams) error {
	_, err := q.db.ExecContext(ctx, updateCredentials,
		arg.EmailCiphertext,
		arg.PasswordCiphertext,
		arg.UpdatedAt,
		arg.ChatID,
	)
	return err
}

const updateLastStatus = `
UPDATE users
SET last_status = ?, last_checked_at = ?, updated_at = ?
WHERE chat_id = ?
`

type UpdateLastStatusParams struct {
	LastStatus    sql.NullString
	LastCheckedAt sql.NullInt64
	UpdatedAt     int64
	ChatID        int64
}

func (q *Queries) UpdateLastStatus(ctx context.Context, arg UpdateLastStatusParams) error {
	_, err := q.db.ExecContext(ctx, updateLastStatus,
		arg.LastStatus,
		arg.LastCheckedAt,
		arg.UpdatedAt,
		arg.ChatID,
	)
	return err
}

const setPeriodic = `
UPDATE users
SET periodic_enabled = ?, updated_at = ?
WHERE chat_id = ?
`

type SetPeriodicParams struct {
	PeriodicEnabled bool
	UpdatedAt       int64
	ChatID          int64
}

func (q *Queries) SetPeriodic(ctx context.Context, arg SetPeriodicParams) error {
	_, err := q.db.ExecContext(ctx, setPeriodic,
		arg.PeriodicEnabled,
		arg.UpdatedAt,
		arg.ChatID,
	)
	return err
}

const listPeriodicEnabled = `
SELECT ` + userColumns + `
FROM users
WHERE periodic_enabled = 1
ORDER BY chat_id
`

func (q *Queries) ListPeriodicEnabled(ctx context.Context) ([]User, error) {
	rows, err := q.db.QueryContext(ctx, listPeriodicEnabled)
	if err != nil {
		return nil, err
	}
	return scanUsers(rows)
}

const listUsers = `
SELECT ` + userColumns + `
FROM users
ORDER BY chat_id
`

func (q *Queries) ListUsers(ctx context.Context) ([]User, error) {
	rows, err := q.db.QueryContext(ctx, listUsers)
	if err != nil {
		return nil, err
	}
	return scanUsers(rows)
}

const deleteUser = `
DELETE FROM users
WHERE chat_id = ?
`

func (q *Queries) DeleteUser(ctx context.Context, chatID int64) error {
	_, err := q.db.ExecContext(ctx, deleteUser, chatID)
	return err
}

const countUsers = `
SELECT COUNT(*)
FROM users
`

func (q *Queries) CountUsers(ctx context.Context) (int64, error) {
	var count int64
	err := q.db.QueryRowContext(ctx, countUsers).Scan(&count)
	return count, err
}
