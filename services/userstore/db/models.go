package db

import "database/sql"

type User struct {
	ID                 int64
	ChatID             int64
	EmailCiphertext    string
	PasswordCiphertext string
	LastStatus         sql.NullString
	LastCheckedAt      sql.NullInt64
	PeriodicEnabled    bool
	CreatedAt          int64
	UpdatedAt          int64
}
