package migrations

import (
	"github.com/jmoiron/sqlx"
)

// V1 creates the tables for users and their auth tokens
func V1(tx *sqlx.Tx, postgres bool) error {
	_, err := tx.Exec(`
CREATE TABLE users (
	` + primaryKey("user_id", postgres) + `,
	user_username text not null,
	user_email text not null,
	user_first_name text not null default '',
	user_last_name text not null default '',
	user_password text not null,
	user_is_staff boolean not null default false,
	user_date_joined timestamp not null,
	user_last_login timestamp null
)`)
	if err != nil {
		return err
	}

	_, err = tx.Exec(`CREATE UNIQUE INDEX users_user_username ON users (user_username)`)
	if err != nil {
		return err
	}
	_, err = tx.Exec(`CREATE UNIQUE INDEX users_user_email ON users (user_email)`)
	if err != nil {
		return err
	}

	// One token per user
	_, err = tx.Exec(`
CREATE TABLE auth_tokens (
	token_key text not null primary key,
	user_id bigint not null unique references users (user_id) on delete cascade,
	token_created timestamp not null
)`)
	return err
}
