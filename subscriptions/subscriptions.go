package subscriptions

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	log "github.com/sirupsen/logrus"

	"github.com/ItalyPaleAle/rss-digest/models"
	"github.com/ItalyPaleAle/rss-digest/utils"
)

// Store manages the subscriptions of emails to topics
// Each email is subscribed to at most one topic
type Store struct {
	db  *sqlx.DB
	log *log.Entry
}

// NewStore returns a Store that uses the given database
func NewStore(db *sqlx.DB) *Store {
	return &Store{
		db:  db,
		log: log.WithField("component", "subscriptions"),
	}
}

// CreateOrGet subscribes an email to a topic
// Returns ErrConflict if the email is already subscribed, in which case the existing subscription is not modified
func (s *Store) CreateOrGet(ctx context.Context, email string, topic string) (*models.Subscription, error) {
	email = utils.NormalizeEmail(email)

	// The unique index on the email decides which request wins when there are concurrent ones
	sub := &models.Subscription{}
	err := s.db.GetContext(ctx, sub, s.db.Rebind(`INSERT INTO subscriptions (subscription_email, subscription_topic)
VALUES (?, ?)
ON CONFLICT (subscription_email) DO NOTHING
RETURNING subscription_id, subscription_email, subscription_topic`), email, topic)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("email %s is already subscribed: %w", email, models.ErrConflict)
	} else if err != nil {
		s.log.Errorf("Error querying the database: %s", err)
		return nil, err
	}

	s.log.Infof("Subscribed %s to topic %s", email, topic)
	return sub, nil
}

// Upsert sets the topic for an email, creating the subscription if it doesn't exist
func (s *Store) Upsert(ctx context.Context, email string, topic string) (*models.Subscription, error) {
	email = utils.NormalizeEmail(email)

	sub := &models.Subscription{}
	err := s.db.GetContext(ctx, sub, s.db.Rebind(`INSERT INTO subscriptions (subscription_email, subscription_topic)
VALUES (?, ?)
ON CONFLICT (subscription_email) DO UPDATE SET subscription_topic = excluded.subscription_topic
RETURNING subscription_id, subscription_email, subscription_topic`), email, topic)
	if err != nil {
		s.log.Errorf("Error querying the database: %s", err)
		return nil, err
	}

	s.log.Infof("Set topic %s for %s", topic, email)
	return sub, nil
}

// GetByEmail returns the subscription for an email
// Returns ErrNotFound if the email isn't subscribed
func (s *Store) GetByEmail(ctx context.Context, email string) (*models.Subscription, error) {
	sub := &models.Subscription{}
	err := s.db.GetContext(ctx, sub, s.db.Rebind("SELECT * FROM subscriptions WHERE subscription_email = ?"), utils.NormalizeEmail(email))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("subscription for %s: %w", email, models.ErrNotFound)
	} else if err != nil {
		s.log.Errorf("Error querying the database: %s", err)
		return nil, err
	}
	return sub, nil
}

// ListAll returns all subscriptions
func (s *Store) ListAll(ctx context.Context) ([]models.Subscription, error) {
	rows := []models.Subscription{}
	err := s.db.SelectContext(ctx, &rows, "SELECT * FROM subscriptions ORDER BY subscription_id ASC")
	if err != nil {
		s.log.Errorf("Error querying the database: %s", err)
		return nil, err
	}
	return rows, nil
}

// ListByTopic returns all subscriptions to a topic
func (s *Store) ListByTopic(ctx context.Context, topic string) ([]models.Subscription, error) {
	rows := []models.Subscription{}
	err := s.db.SelectContext(ctx, &rows, s.db.Rebind("SELECT * FROM subscriptions WHERE subscription_topic = ? ORDER BY subscription_id ASC"), topic)
	if err != nil {
		s.log.Errorf("Error querying the database: %s", err)
		return nil, err
	}
	return rows, nil
}

// Count returns the number of subscriptions
func (s *Store) Count(ctx context.Context) (int, error) {
	var count int
	err := s.db.GetContext(ctx, &count, "SELECT COUNT(*) FROM subscriptions")
	if err != nil {
		s.log.Errorf("Error querying the database: %s", err)
		return 0, err
	}
	return count, nil
}
