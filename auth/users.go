package auth

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	log "github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"

	"github.com/ItalyPaleAle/rss-digest/models"
	"github.com/ItalyPaleAle/rss-digest/utils"
)

// Minimum length for passwords
const minPasswordLength = 8

// RegisterRequest contains the details of a new user
type RegisterRequest struct {
	Username  string `json:"username"`
	Email     string `json:"email"`
	Password  string `json:"password"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
}

// Users manages user accounts and their auth tokens
type Users struct {
	db  *sqlx.DB
	log *log.Entry
	now func() time.Time
}

// NewUsers returns a Users object that uses the given database
func NewUsers(db *sqlx.DB) *Users {
	return &Users{
		db:  db,
		log: log.WithField("component", "auth"),
		now: time.Now,
	}
}

// Register creates a new user and returns it together with its auth token
func (u *Users) Register(ctx context.Context, req RegisterRequest) (*models.User, string, error) {
	req.Username = strings.TrimSpace(req.Username)
	req.Email = utils.NormalizeEmail(req.Email)

	// Validate the input
	verr := &models.ValidationError{}
	if req.Username == "" {
		verr.Add("username", "this field may not be blank")
	} else if len(req.Username) > 150 {
		verr.Add("username", "ensure this field has no more than 150 characters")
	}
	if err := utils.ValidateEmail(req.Email); err != nil {
		verr.Add("email", err.Error())
	}
	if len(req.Password) < minPasswordLength {
		verr.Add("password", fmt.Sprintf("ensure this field has at least %d characters", minPasswordLength))
	}
	if verr.HasErrors() {
		return nil, "", verr
	}

	// Check for duplicates, so we can tell the user which field is the problem
	err := u.duplicateError(ctx, req.Username, req.Email)
	if err != nil {
		return nil, "", err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, "", err
	}

	// The unique indexes catch concurrent registrations that passed the checks above
	var id int64
	err = u.db.GetContext(ctx, &id, u.db.Rebind(`INSERT INTO users (user_username, user_email, user_first_name, user_last_name, user_password, user_is_staff, user_date_joined)
VALUES (?, ?, ?, ?, ?, ?, ?)
ON CONFLICT DO NOTHING
RETURNING user_id`), req.Username, req.Email, req.FirstName, req.LastName, string(hash), false, u.now().UTC())
	if errors.Is(err, sql.ErrNoRows) {
		// Lost a race with another registration: find out which column collided
		err = u.duplicateError(ctx, req.Username, req.Email)
		if err == nil {
			err = models.NewValidationError("non_field_errors", "this username or email is already registered")
		}
		return nil, "", err
	} else if err != nil {
		u.log.Errorf("Error querying the database: %s", err)
		return nil, "", err
	}
	user, err := u.GetByID(ctx, id)
	if err != nil {
		return nil, "", err
	}

	token, err := u.Token(ctx, user.ID)
	if err != nil {
		return nil, "", err
	}

	u.log.Infof("Registered user %s (ID %d)", user.Username, user.ID)
	return user, token, nil
}

// Login checks the credentials of a user and returns it together with its auth token
// Unknown usernames and wrong passwords both return ErrAuth
func (u *Users) Login(ctx context.Context, username string, password string) (*models.User, string, error) {
	if username == "" || password == "" {
		verr := &models.ValidationError{}
		if username == "" {
			verr.Add("username", "this field is required")
		}
		if password == "" {
			verr.Add("password", "this field is required")
		}
		return nil, "", verr
	}

	user := &models.User{}
	err := u.db.GetContext(ctx, user, u.db.Rebind("SELECT * FROM users WHERE user_username = ?"), strings.TrimSpace(username))
	if errors.Is(err, sql.ErrNoRows) {
		// Run bcrypt anyway so the response time doesn't reveal whether the user exists
		_ = bcrypt.CompareHashAndPassword(dummyHash, []byte(password))
		return nil, "", models.ErrAuth
	} else if err != nil {
		u.log.Errorf("Error querying the database: %s", err)
		return nil, "", err
	}

	err = bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password))
	if err != nil {
		return nil, "", models.ErrAuth
	}

	now := u.now().UTC()
	_, err = u.db.ExecContext(ctx, u.db.Rebind("UPDATE users SET user_last_login = ? WHERE user_id = ?"), now, user.ID)
	if err != nil {
		u.log.Errorf("Error querying the database: %s", err)
		return nil, "", err
	}
	user.LastLogin = sql.NullTime{Time: now, Valid: true}

	token, err := u.Token(ctx, user.ID)
	if err != nil {
		return nil, "", err
	}
	return user, token, nil
}

// Hash of a random password, used to compare against when the user doesn't exist
var dummyHash, _ = bcrypt.GenerateFromPassword([]byte("not-a-real-password"), bcrypt.DefaultCost)

// Returns a ValidationError on the right field if the username or the email are already taken
func (u *Users) duplicateError(ctx context.Context, username string, email string) error {
	var exists bool
	err := u.db.GetContext(ctx, &exists, u.db.Rebind("SELECT EXISTS (SELECT 1 FROM users WHERE user_username = ?)"), username)
	if err != nil {
		u.log.Errorf("Error querying the database: %s", err)
		return err
	}
	if exists {
		return models.NewValidationError("username", "this username is already taken")
	}
	err = u.db.GetContext(ctx, &exists, u.db.Rebind("SELECT EXISTS (SELECT 1 FROM users WHERE user_email = ?)"), email)
	if err != nil {
		u.log.Errorf("Error querying the database: %s", err)
		return err
	}
	if exists {
		return models.NewValidationError("email", "this email is already registered")
	}
	return nil
}

// Token returns the auth token for a user, creating it if needed
// Each user has one token only
func (u *Users) Token(ctx context.Context, userID int64) (string, error) {
	key, err := newTokenKey()
	if err != nil {
		return "", err
	}
	_, err = u.db.ExecContext(ctx, u.db.Rebind("INSERT INTO auth_tokens (token_key, user_id, token_created) VALUES (?, ?, ?) ON CONFLICT (user_id) DO NOTHING"), key, userID, u.now().UTC())
	if err != nil {
		u.log.Errorf("Error querying the database: %s", err)
		return "", err
	}

	token := &models.AuthToken{}
	err = u.db.GetContext(ctx, token, u.db.Rebind("SELECT * FROM auth_tokens WHERE user_id = ?"), userID)
	if err != nil {
		u.log.Errorf("Error querying the database: %s", err)
		return "", err
	}
	return token.Key, nil
}

// Authenticate returns the user that owns the auth token
// Returns ErrAuth if the token is invalid
func (u *Users) Authenticate(ctx context.Context, token string) (*models.User, error) {
	if token == "" {
		return nil, models.ErrAuth
	}

	user := &models.User{}
	err := u.db.GetContext(ctx, user, u.db.Rebind("SELECT users.* FROM users, auth_tokens WHERE auth_tokens.token_key = ? AND users.user_id = auth_tokens.user_id"), token)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrAuth
	} else if err != nil {
		u.log.Errorf("Error querying the database: %s", err)
		return nil, err
	}
	return user, nil
}

// GetByID returns a user by its ID
func (u *Users) GetByID(ctx context.Context, id int64) (*models.User, error) {
	return u.getBy(ctx, "user_id", id)
}

// GetByEmail returns a user by its email
func (u *Users) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	return u.getBy(ctx, "user_email", utils.NormalizeEmail(email))
}

// GetByUsername returns a user by its username
func (u *Users) GetByUsername(ctx context.Context, username string) (*models.User, error) {
	return u.getBy(ctx, "user_username", username)
}

func (u *Users) getBy(ctx context.Context, column string, value any) (*models.User, error) {
	user := &models.User{}
	err := u.db.GetContext(ctx, user, u.db.Rebind("SELECT * FROM users WHERE "+column+" = ?"), value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("user: %w", models.ErrNotFound)
	} else if err != nil {
		u.log.Errorf("Error querying the database: %s", err)
		return nil, err
	}
	return user, nil
}

// ListAll returns all users
func (u *Users) ListAll(ctx context.Context) ([]models.User, error) {
	rows := []models.User{}
	err := u.db.SelectContext(ctx, &rows, "SELECT * FROM users ORDER BY user_id ASC")
	if err != nil {
		u.log.Errorf("Error querying the database: %s", err)
		return nil, err
	}
	return rows, nil
}

// SetStaff grants or revokes access to the administrative endpoints
func (u *Users) SetStaff(ctx context.Context, username string, staff bool) error {
	res, err := u.db.ExecContext(ctx, u.db.Rebind("UPDATE users SET user_is_staff = ? WHERE user_username = ?"), staff, username)
	if err != nil {
		u.log.Errorf("Error querying the database: %s", err)
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("user %s: %w", username, models.ErrNotFound)
	}
	return nil
}

// SetPassword changes the password of a user
func (u *Users) SetPassword(ctx context.Context, userID int64, password string) error {
	if len(password) < minPasswordLength {
		return models.NewValidationError("password", fmt.Sprintf("ensure this field has at least %d characters", minPasswordLength))
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	_, err = u.db.ExecContext(ctx, u.db.Rebind("UPDATE users SET user_password = ? WHERE user_id = ?"), string(hash), userID)
	if err != nil {
		u.log.Errorf("Error querying the database: %s", err)
		return err
	}

	u.log.Infof("Changed password for user %d", userID)
	return nil
}

// Returns a new random token key
func newTokenKey() (string, error) {
	b := make([]byte, 20)
	_, err := rand.Read(b)
	if err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
