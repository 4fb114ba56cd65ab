package migrations

import (
	"github.com/jmoiron/sqlx"
)

// V2 creates the subscriptions table
// The unique index on the email is what guarantees one subscription per email, even with concurrent requests
func V2(tx *sqlx.Tx, postgres bool) error {
	_, err := tx.Exec(`
CREATE TABLE subscriptions (
	` + primaryKey("subscription_id", postgres) + `,
	subscription_email text not null,
	subscription_topic text not null
)`)
	if err != nil {
		return err
	}

	_, err = tx.Exec(`CREATE UNIQUE INDEX subscriptions_subscription_email ON subscriptions (subscription_email)`)
	if err != nil {
		return err
	}
	_, err = tx.Exec(`CREATE INDEX subscriptions_subscription_topic ON subscriptions (subscription_topic)`)
	return err
}
