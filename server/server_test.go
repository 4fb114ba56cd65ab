package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ItalyPaleAle/rss-digest/auth"
	"github.com/ItalyPaleAle/rss-digest/db"
	"github.com/ItalyPaleAle/rss-digest/digest"
	"github.com/ItalyPaleAle/rss-digest/feeds"
	"github.com/ItalyPaleAle/rss-digest/mailer"
	"github.com/ItalyPaleAle/rss-digest/migrations"
	"github.com/ItalyPaleAle/rss-digest/subscriptions"
	"github.com/ItalyPaleAle/rss-digest/topics"
)

const testFeed = `<?xml version="1.0"?><rss version="2.0"><channel><title>T</title>
<item><title>Post 1</title><link>https://example.com/1</link><description>S1</description></item>
<item><title>Post 2</title><link>https://example.com/2</link><description>S2</description></item>
</channel></rss>`

type testMailer struct {
	lock sync.Mutex
	sent []mailer.Message
}

func (m *testMailer) Send(ctx context.Context, msg mailer.Message) error {
	m.lock.Lock()
	defer m.lock.Unlock()
	m.sent = append(m.sent, msg)
	return nil
}

func (m *testMailer) Sent() []mailer.Message {
	m.lock.Lock()
	defer m.lock.Unlock()
	return append([]mailer.Message{}, m.sent...)
}

type testEnv struct {
	srv    *Server
	mailer *testMailer
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	feedSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, testFeed)
	}))
	t.Cleanup(feedSrv.Close)

	conn, err := db.OpenSQLite(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { conn.Close() })
	err = migrations.Migrate(conn)
	if err != nil {
		t.Fatal(err)
	}

	registry, err := topics.New(map[string]string{
		"AI":       feedSrv.URL + "/ai",
		"Security": feedSrv.URL + "/security",
	})
	if err != nil {
		t.Fatal(err)
	}
	f := &feeds.Feeds{}
	err = f.Init(registry, feeds.Options{Timeout: 5 * time.Second})
	if err != nil {
		t.Fatal(err)
	}

	m := &testMailer{}
	users := auth.NewUsers(conn)
	tokens, err := auth.NewResetTokens("0123456789abcdef0123456789abcdef", time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	subs := subscriptions.NewStore(conn)
	dispatcher, err := digest.NewDispatcher(digest.Options{
		Subscriptions: subs,
		Articles:      f,
		Registry:      registry,
		Mailer:        m,
	})
	if err != nil {
		t.Fatal(err)
	}

	srv := &Server{
		DigestTriggerKey: "trigger",
		Users:            users,
		PasswordReset: &auth.PasswordReset{
			Users:       users,
			Tokens:      tokens,
			Mailer:      m,
			FrontendURL: "http://frontend.local",
		},
		Subscriptions: subs,
		Feeds:         f,
		Dispatcher:    dispatcher,
	}
	err = srv.Init()
	if err != nil {
		t.Fatal(err)
	}

	return &testEnv{srv: srv, mailer: m}
}

// Sends a request to the server and returns the status code and the parsed JSON body
func (e *testEnv) do(t *testing.T, method string, path string, token string, body any) (int, map[string]any) {
	t.Helper()

	var reqBody *bytes.Reader
	switch b := body.(type) {
	case nil:
		reqBody = bytes.NewReader(nil)
	case []byte:
		reqBody = bytes.NewReader(b)
	default:
		enc, err := json.Marshal(b)
		if err != nil {
			t.Fatal(err)
		}
		reqBody = bytes.NewReader(enc)
	}

	req := httptest.NewRequest(method, path, reqBody)
	if token != "" {
		req.Header.Set("Authorization", "Token "+token)
	}
	rec := httptest.NewRecorder()
	e.srv.Handler().ServeHTTP(rec, req)

	res := map[string]any{}
	if rec.Body.Len() > 0 {
		err := json.Unmarshal(rec.Body.Bytes(), &res)
		if err != nil {
			t.Fatalf("Response body is not a JSON object: %q", rec.Body.String())
		}
	}
	return rec.Code, res
}

func (e *testEnv) signup(t *testing.T, username string, email string) string {
	t.Helper()
	code, res := e.do(t, "POST", "/signup", "", map[string]string{
		"username": username,
		"email":    email,
		"password": "correct horse",
	})
	if code != http.StatusCreated {
		t.Fatalf("Signup failed with status %d: %v", code, res)
	}
	return res["token"].(string)
}

func TestSignupAndLogin(t *testing.T) {
	e := newTestEnv(t)

	token := e.signup(t, "alice", "alice@example.com")
	if len(token) != 40 {
		t.Errorf("Unexpected token %q", token)
	}

	// Duplicate username
	code, res := e.do(t, "POST", "/signup/", "", map[string]string{
		"username": "alice",
		"email":    "other@example.com",
		"password": "correct horse",
	})
	if code != http.StatusBadRequest || res["username"] == nil {
		t.Errorf("Expected a validation error on username, got %d %v", code, res)
	}

	// Login returns the same token
	code, res = e.do(t, "POST", "/login/", "", map[string]string{
		"username": "alice",
		"password": "correct horse",
	})
	if code != http.StatusOK || res["token"] != token {
		t.Errorf("Unexpected login response %d %v", code, res)
	}
	user, _ := res["user"].(map[string]any)
	if user["email"] != "alice@example.com" || user["last_login"] == nil {
		t.Errorf("Unexpected user %v", user)
	}

	// Wrong password and unknown user get the same response
	code1, res1 := e.do(t, "POST", "/login", "", map[string]string{"username": "alice", "password": "wrong password"})
	code2, res2 := e.do(t, "POST", "/login", "", map[string]string{"username": "bob", "password": "wrong password"})
	if code1 != http.StatusUnauthorized || code2 != http.StatusUnauthorized || res1["error"] != res2["error"] {
		t.Errorf("Expected identical 401 responses, got %d %v and %d %v", code1, res1, code2, res2)
	}

	// Missing fields
	code, res = e.do(t, "POST", "/login", "", map[string]string{})
	if code != http.StatusBadRequest || res["username"] == nil || res["password"] == nil {
		t.Errorf("Expected a validation error, got %d %v", code, res)
	}
}

func TestSubscribe(t *testing.T) {
	e := newTestEnv(t)

	code, res := e.do(t, "POST", "/subscribe", "", map[string]string{"email": "Reader@Example.com", "topic": "AI"})
	if code != http.StatusCreated {
		t.Fatalf("Unexpected response %d %v", code, res)
	}
	if res["message"] != "Subscribed successfully with Reader@example.com & AI" {
		t.Errorf("Unexpected message %v", res["message"])
	}

	// Already subscribed, even with a different topic
	code, res = e.do(t, "POST", "/subscribe/", "", map[string]string{"email": "Reader@example.com", "topic": "Security"})
	if code != http.StatusBadRequest || res["error"] != "Email already subscribed" {
		t.Errorf("Expected a conflict, got %d %v", code, res)
	}

	tests := []struct {
		name  string
		body  any
		field string
	}{
		{"invalid email", map[string]string{"email": "nope", "topic": "AI"}, "email"},
		{"missing topic", map[string]string{"email": "a@example.com"}, "topic"},
		{"empty body", nil, "body"},
		{"invalid JSON", []byte("{"), "body"},
		{"too large", []byte(`{"email": "` + strings.Repeat("a", int(maxBodySize)) + `"}`), "body"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, res := e.do(t, "POST", "/subscribe", "", tt.body)
			if code != http.StatusBadRequest || res[tt.field] == nil {
				t.Errorf("Expected a validation error on %s, got %d %v", tt.field, code, res)
			}
		})
	}
}

func TestUserTopic(t *testing.T) {
	e := newTestEnv(t)
	token := e.signup(t, "alice", "alice@example.com")

	// Authentication is required
	code, _ := e.do(t, "GET", "/user/profile", "", nil)
	if code != http.StatusUnauthorized {
		t.Errorf("Expected 401, got %d", code)
	}
	code, _ = e.do(t, "GET", "/user/profile", "not-a-token", nil)
	if code != http.StatusUnauthorized {
		t.Errorf("Expected 401, got %d", code)
	}

	code, res := e.do(t, "GET", "/user/profile/", token, nil)
	if code != http.StatusOK || res["username"] != "alice" {
		t.Fatalf("Unexpected response %d %v", code, res)
	}
	if v, ok := res["subscribed_topic"]; !ok || v != nil {
		t.Errorf("Expected subscribed_topic to be null, got %v", v)
	}

	code, _ = e.do(t, "GET", "/update_user_topic", token, nil)
	if code != http.StatusNotFound {
		t.Errorf("Expected 404, got %d", code)
	}

	// Setting the topic twice overwrites it
	for _, topic := range []string{"AI", "Security"} {
		code, res = e.do(t, "POST", "/update_user_topic/", token, map[string]string{"topic": topic})
		if code != http.StatusOK || res["topic"] != topic {
			t.Fatalf("Unexpected response %d %v", code, res)
		}
	}

	code, res = e.do(t, "GET", "/update_user_topic", token, nil)
	if code != http.StatusOK || res["topic"] != "Security" {
		t.Errorf("Unexpected response %d %v", code, res)
	}
	_, res = e.do(t, "GET", "/user/profile", token, nil)
	if res["subscribed_topic"] != "Security" {
		t.Errorf("Unexpected subscribed_topic %v", res["subscribed_topic"])
	}

	code, res = e.do(t, "POST", "/update_user_topic", token, map[string]string{"topic": " "})
	if code != http.StatusBadRequest || res["topic"] == nil {
		t.Errorf("Expected a validation error, got %d %v", code, res)
	}
}

func TestDashboard(t *testing.T) {
	e := newTestEnv(t)
	token := e.signup(t, "admin", "admin@example.com")
	e.signup(t, "bob", "bob@example.com")
	e.do(t, "POST", "/subscribe", "", map[string]string{"email": "bob@example.com", "topic": "AI"})

	code, _ := e.do(t, "GET", "/dashboard", token, nil)
	if code != http.StatusForbidden {
		t.Errorf("Expected 403 for non-staff users, got %d", code)
	}

	err := e.srv.Users.SetStaff(context.Background(), "admin", true)
	if err != nil {
		t.Fatal(err)
	}

	code, res := e.do(t, "GET", "/dashboard/", token, nil)
	if code != http.StatusOK {
		t.Fatalf("Unexpected response %d %v", code, res)
	}
	if res["total_subscriptions"] != float64(1) {
		t.Errorf("Unexpected total_subscriptions %v", res["total_subscriptions"])
	}
	if users, _ := res["all_users"].([]any); len(users) != 2 {
		t.Errorf("Unexpected all_users %v", res["all_users"])
	}
	subs, _ := res["all_subscriptions"].([]any)
	if len(subs) != 1 || subs[0].(map[string]any)["email"] != "bob@example.com" {
		t.Errorf("Unexpected all_subscriptions %v", res["all_subscriptions"])
	}
}

func TestLatestFeeds(t *testing.T) {
	e := newTestEnv(t)

	code, res := e.do(t, "GET", "/latest-feeds", "", nil)
	if code != http.StatusOK || len(res) != 2 {
		t.Fatalf("Unexpected response %d %v", code, res)
	}

	code, res = e.do(t, "GET", "/latest-feeds/?topic=AI", "", nil)
	if code != http.StatusOK || len(res) != 1 {
		t.Fatalf("Unexpected response %d %v", code, res)
	}
	articles, _ := res["AI"].([]any)
	if len(articles) != 2 || articles[0].(map[string]any)["title"] != "Post 1" {
		t.Errorf("Unexpected articles %v", res["AI"])
	}

	// Unknown topics return all topics
	_, res = e.do(t, "GET", "/latest-feeds?topic=Bogus", "", nil)
	if len(res) != 2 {
		t.Errorf("Unexpected response %v", res)
	}
}

func TestSendLatestNewsletter(t *testing.T) {
	e := newTestEnv(t)
	e.do(t, "POST", "/subscribe", "", map[string]string{"email": "a@example.com", "topic": "AI"})
	e.do(t, "POST", "/subscribe", "", map[string]string{"email": "b@example.com", "topic": "Bogus"})

	for _, path := range []string{"/send-latest-newsletter", "/send-latest-newsletter?key=wrong", "/send-latest-newsletter?key=trigge"} {
		code, _ := e.do(t, "GET", path, "", nil)
		if code != http.StatusForbidden {
			t.Errorf("Expected 403 for %s, got %d", path, code)
		}
	}
	if len(e.mailer.Sent()) != 0 {
		t.Error("Expected no messages sent without the trigger key")
	}

	code, res := e.do(t, "GET", "/send-latest-newsletter/?key=trigger", "", nil)
	if code != http.StatusOK {
		t.Fatalf("Unexpected response %d %v", code, res)
	}
	if res["sent_count"] != float64(1) || res["skipped_count"] != float64(1) || res["failed_count"] != float64(0) {
		t.Errorf("Unexpected report %v", res)
	}
	sent := e.mailer.Sent()
	if len(sent) != 1 || sent[0].To != "a@example.com" || sent[0].Subject != "Your Weekly AI News Digest" {
		t.Errorf("Unexpected messages %v", sent)
	}
}

func TestSendTopicFeed(t *testing.T) {
	e := newTestEnv(t)
	token := e.signup(t, "admin", "admin@example.com")
	err := e.srv.Users.SetStaff(context.Background(), "admin", true)
	if err != nil {
		t.Fatal(err)
	}
	e.do(t, "POST", "/subscribe", "", map[string]string{"email": "a@example.com", "topic": "Security"})

	code, res := e.do(t, "POST", "/send-topic-feed", token, map[string]string{"topic": "Bogus"})
	if code != http.StatusBadRequest || res["topic"] == nil {
		t.Errorf("Expected a validation error, got %d %v", code, res)
	}

	code, res = e.do(t, "POST", "/send-topic-feed/", token, map[string]string{"topic": "Security"})
	if code != http.StatusOK || res["sent_count"] != float64(1) {
		t.Fatalf("Unexpected response %d %v", code, res)
	}
	sent := e.mailer.Sent()
	if len(sent) != 1 || sent[0].Subject != "Latest Security News" {
		t.Errorf("Unexpected messages %v", sent)
	}
}

func TestPasswordReset(t *testing.T) {
	e := newTestEnv(t)
	e.signup(t, "alice", "alice@example.com")

	code, res := e.do(t, "POST", "/password-reset", "", map[string]string{"email": "nobody@example.com"})
	if code != http.StatusNotFound || res["error"] != "User with this email does not exist" {
		t.Errorf("Unexpected response %d %v", code, res)
	}

	code, res = e.do(t, "POST", "/password-reset/", "", map[string]string{"email": "alice@example.com"})
	if code != http.StatusOK {
		t.Fatalf("Unexpected response %d %v", code, res)
	}
	sent := e.mailer.Sent()
	if len(sent) != 1 {
		t.Fatalf("Expected 1 message, got %d", len(sent))
	}
	_, link, found := strings.Cut(sent[0].Text, "http://frontend.local/reset-password/")
	if !found {
		t.Fatalf("Reset link not found in %q", sent[0].Text)
	}

	// Invalid token
	code, res = e.do(t, "POST", "/password-reset-confirm/"+strings.Split(link, "/")[0]+"/1-abc", "", map[string]string{"password": "new password"})
	if code != http.StatusBadRequest || res["token"] == nil {
		t.Errorf("Expected a validation error, got %d %v", code, res)
	}

	code, res = e.do(t, "POST", "/password-reset-confirm/"+link+"/", "", map[string]string{"password": "new password"})
	if code != http.StatusOK {
		t.Fatalf("Unexpected response %d %v", code, res)
	}

	code, _ = e.do(t, "POST", "/login", "", map[string]string{"username": "alice", "password": "new password"})
	if code != http.StatusOK {
		t.Errorf("Expected to log in with the new password, got %d", code)
	}

	// The link can't be used twice
	code, _ = e.do(t, "POST", "/password-reset-confirm/"+link, "", map[string]string{"password": "another password"})
	if code != http.StatusBadRequest {
		t.Errorf("Expected the token to be invalid after use, got %d", code)
	}
}

func TestNotFoundAndRequestID(t *testing.T) {
	e := newTestEnv(t)

	req := httptest.NewRequest("GET", "/nope", nil)
	rec := httptest.NewRecorder()
	e.srv.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Errorf("Expected 404, got %d", rec.Code)
	}
	if rec.Header().Get("X-Request-ID") == "" {
		t.Error("Missing X-Request-ID header")
	}

	// Known paths with the wrong method
	tests := []struct {
		method string
		path   string
		allow  string
	}{
		{"GET", "/signup", "POST"},
		{"GET", "/signup/", "POST"},
		{"POST", "/latest-feeds", "GET"},
		{"GET", "/password-reset-confirm/MQ/abc", "POST"},
		{"DELETE", "/update_user_topic", "GET, POST"},
	}
	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.path, nil)
			rec := httptest.NewRecorder()
			e.srv.Handler().ServeHTTP(rec, req)
			if rec.Code != http.StatusMethodNotAllowed {
				t.Errorf("Expected 405, got %d", rec.Code)
			}
			if rec.Header().Get("Allow") != tt.allow {
				t.Errorf("Expected Allow %q, got %q", tt.allow, rec.Header().Get("Allow"))
			}
		})
	}

	req = httptest.NewRequest("GET", "/latest-feeds?topic=AI", nil)
	req.Header.Set("X-Request-ID", "7b0e4bd6-8f5e-4bb5-9f0d-3d5f2a4e1c11")
	rec = httptest.NewRecorder()
	e.srv.Handler().ServeHTTP(rec, req)
	if rec.Header().Get("X-Request-ID") != "7b0e4bd6-8f5e-4bb5-9f0d-3d5f2a4e1c11" {
		t.Errorf("Unexpected X-Request-ID %q", rec.Header().Get("X-Request-ID"))
	}
}
