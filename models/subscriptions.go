package models

// Model for the subscriptions table
// Each email can be subscribed to one topic only; this is enforced by a unique index on the email column
type Subscription struct {
	ID    int64  `db:"subscription_id" json:"-"`
	Email string `db:"subscription_email" json:"email"`
	Topic string `db:"subscription_topic" json:"topic"`
}
