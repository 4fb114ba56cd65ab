package auth

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/ItalyPaleAle/rss-digest/mailer"
	"github.com/ItalyPaleAle/rss-digest/models"
)

// ResetTokens creates and checks signed tokens used to reset passwords
// Tokens are not stored: they are bound to the user's current password hash and last login, so they stop working once either changes
type ResetTokens struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewResetTokens returns a ResetTokens object
func NewResetTokens(secret string, ttl time.Duration) (*ResetTokens, error) {
	if len(secret) < 16 {
		return nil, errors.New("token secret must be at least 16 characters long")
	}
	if ttl <= 0 {
		return nil, errors.New("token TTL must be positive")
	}
	return &ResetTokens{
		secret: []byte(secret),
		ttl:    ttl,
		now:    time.Now,
	}, nil
}

// Make returns the encoded user ID and the token for the user
func (r *ResetTokens) Make(user *models.User) (uid string, token string) {
	uid = EncodeUID(user.ID)
	ts := strconv.FormatInt(r.now().Unix(), 36)
	token = ts + "-" + r.sign(user, ts)
	return uid, token
}

// Check returns true if the token is valid for the user and not expired
func (r *ResetTokens) Check(user *models.User, token string) bool {
	if user == nil || token == "" {
		return false
	}

	ts, sig, ok := strings.Cut(token, "-")
	if !ok {
		return false
	}
	issued, err := strconv.ParseInt(ts, 36, 64)
	if err != nil {
		return false
	}
	if !hmac.Equal([]byte(sig), []byte(r.sign(user, ts))) {
		return false
	}

	age := r.now().Sub(time.Unix(issued, 0))
	return age >= 0 && age <= r.ttl
}

func (r *ResetTokens) sign(user *models.User, ts string) string {
	var lastLogin int64
	if user.LastLogin.Valid {
		lastLogin = user.LastLogin.Time.Unix()
	}
	h := hmac.New(sha256.New, r.secret)
	fmt.Fprintf(h, "password-reset|%d|%s|%d|%s", user.ID, user.PasswordHash, lastLogin, ts)
	return hex.EncodeToString(h.Sum(nil))
}

// EncodeUID encodes a user ID for use in URLs
func EncodeUID(id int64) string {
	return base64.RawURLEncoding.EncodeToString([]byte(strconv.FormatInt(id, 10)))
}

// DecodeUID decodes a user ID encoded with EncodeUID
func DecodeUID(uid string) (int64, error) {
	b, err := base64.RawURLEncoding.DecodeString(strings.TrimRight(uid, "="))
	if err != nil {
		return 0, err
	}
	return strconv.ParseInt(string(b), 10, 64)
}

// PasswordReset implements the flow to reset a forgotten password
type PasswordReset struct {
	Users  *Users
	Tokens *ResetTokens
	Mailer mailer.Mailer
	// Base URL of the frontend; the link sent to users is FrontendURL/reset-password/{uid}/{token}
	FrontendURL string
}

// Request sends an email with the link to reset the password
// Returns ErrNotFound if there's no user with that email
func (p *PasswordReset) Request(ctx context.Context, email string) error {
	if email == "" {
		return models.NewValidationError("email", "this field is required")
	}
	user, err := p.Users.GetByEmail(ctx, email)
	if err != nil {
		return err
	}

	uid, token := p.Tokens.Make(user)
	link := fmt.Sprintf("%s/reset-password/%s/%s", strings.TrimSuffix(p.FrontendURL, "/"), uid, token)

	err = p.Mailer.Send(ctx, mailer.Message{
		To:      user.Email,
		Subject: "Password Reset Request",
		Text:    "Click the link to reset your password: " + link,
	})
	if err != nil {
		return fmt.Errorf("error sending the password reset email: %w", err)
	}

	p.Users.log.Infof("Sent password reset link to user %d", user.ID)
	return nil
}

// Confirm sets a new password if the token is valid
func (p *PasswordReset) Confirm(ctx context.Context, uid string, token string, password string) error {
	id, err := DecodeUID(uid)
	if err != nil {
		return models.NewValidationError("token", "invalid token or user does not exist")
	}
	user, err := p.Users.GetByID(ctx, id)
	if errors.Is(err, models.ErrNotFound) {
		return models.NewValidationError("token", "invalid token or user does not exist")
	} else if err != nil {
		return err
	}

	if !p.Tokens.Check(user, token) {
		return models.NewValidationError("token", "invalid or expired token")
	}
	if password == "" {
		return models.NewValidationError("password", "this field is required")
	}

	return p.Users.SetPassword(ctx, user.ID, password)
}
