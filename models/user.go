package models

import (
	"database/sql"
	"time"
)

// Model for the users table
type User struct {
	ID           int64        `db:"user_id"`
	Username     string       `db:"user_username"`
	Email        string       `db:"user_email"`
	FirstName    string       `db:"user_first_name"`
	LastName     string       `db:"user_last_name"`
	PasswordHash string       `db:"user_password"`
	IsStaff      bool         `db:"user_is_staff"`
	DateJoined   time.Time    `db:"user_date_joined"`
	LastLogin    sql.NullTime `db:"user_last_login"`
}

// UserInfo is the public representation of a user, as returned by the API
type UserInfo struct {
	ID         int64      `json:"id"`
	Username   string     `json:"username"`
	Email      string     `json:"email"`
	FirstName  string     `json:"first_name"`
	LastName   string     `json:"last_name"`
	IsStaff    bool       `json:"is_staff"`
	DateJoined time.Time  `json:"date_joined"`
	LastLogin  *time.Time `json:"last_login"`
}

// Info returns the public representation of the user
func (u *User) Info() UserInfo {
	info := UserInfo{
		ID:         u.ID,
		Username:   u.Username,
		Email:      u.Email,
		FirstName:  u.FirstName,
		LastName:   u.LastName,
		IsStaff:    u.IsStaff,
		DateJoined: u.DateJoined,
	}
	if u.LastLogin.Valid {
		t := u.LastLogin.Time
		info.LastLogin = &t
	}
	return info
}

// Model for the auth_tokens table
type AuthToken struct {
	Key     string    `db:"token_key"`
	UserID  int64     `db:"user_id"`
	Created time.Time `db:"token_created"`
}
