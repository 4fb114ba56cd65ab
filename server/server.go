package server

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/ItalyPaleAle/rss-digest/auth"
	"github.com/ItalyPaleAle/rss-digest/digest"
	"github.com/ItalyPaleAle/rss-digest/feeds"
	"github.com/ItalyPaleAle/rss-digest/subscriptions"
)

// Maximum request body size is 64 KB
const maxBodySize = int64(64 << 10)

// Timeout for the graceful shutdown
const shutdownTimeout = 15 * time.Second

// Server is the HTTP server for the API
type Server struct {
	// Address to listen on, such as ":8080"
	Listen string
	// If set, requests to trigger the digest dispatch must include this key in the "key" query string parameter
	DigestTriggerKey string

	Users         *auth.Users
	PasswordReset *auth.PasswordReset
	Subscriptions *subscriptions.Store
	Feeds         *feeds.Feeds
	Dispatcher    *digest.Dispatcher

	log     *log.Entry
	handler http.Handler
	ctx     context.Context
	cancel  context.CancelFunc
}

// Init the object
func (s *Server) Init() error {
	if s.Users == nil || s.PasswordReset == nil || s.Subscriptions == nil || s.Feeds == nil || s.Dispatcher == nil {
		return errors.New("server dependencies are not set")
	}
	if s.Listen == "" {
		s.Listen = ":8080"
	}

	s.log = log.WithField("component", "server")
	s.handler = s.requestHandler()

	// Context, that can be used to stop the web server
	s.ctx, s.cancel = context.WithCancel(context.Background())

	return nil
}

// Handler returns the HTTP handler for the server
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Start the web server
// This call blocks until the server is shut down
func (s *Server) Start() error {
	// Create the HTTP server
	// There's no write timeout because dispatching digests can take minutes
	srv := &http.Server{
		Addr:              s.Listen,
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		IdleTimeout:       60 * time.Second,
		MaxHeaderBytes:    1 << 20,
	}

	// In a separate goroutine, listen for the cancelation signal to stop the server
	shutdownErr := make(chan error, 1)
	go func() {
		// Block until the context is canceled
		<-s.ctx.Done()
		s.log.Info("Shutting down the web server")

		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		shutdownErr <- srv.Shutdown(ctx)
	}()

	s.log.Infof("Starting the web server, listening on %s", s.Listen)
	err := srv.ListenAndServe()
	if err != nil && err != http.ErrServerClosed {
		return err
	}

	err = <-shutdownErr
	if err != nil {
		s.log.Errorf("Could not shut down the server gracefully: %s", err)
		return err
	}
	s.log.Info("Web server shut down")
	return nil
}

// Stop the web server
func (s *Server) Stop() {
	s.cancel()
}

// Returns the handler with all routes
func (s *Server) requestHandler() http.Handler {
	mux := http.NewServeMux()

	// Routes accept an optional trailing slash
	route := func(method string, path string, handler http.HandlerFunc) {
		mux.HandleFunc(method+" "+path, handler)
		mux.HandleFunc(method+" "+path+"/{$}", handler)
	}

	// Auth
	route("POST", "/signup", s.handleSignup)
	route("POST", "/login", s.handleLogin)
	route("POST", "/password-reset", s.handlePasswordReset)
	route("POST", "/password-reset-confirm/{uid}/{token}", s.handlePasswordResetConfirm)

	// Feeds and subscriptions
	route("GET", "/latest-feeds", s.handleLatestFeeds)
	route("POST", "/subscribe", s.handleSubscribe)
	route("GET", "/user/profile", s.requireAuth(false, s.handleUserProfile))
	route("GET", "/update_user_topic", s.requireAuth(false, s.handleGetUserTopic))
	route("POST", "/update_user_topic", s.requireAuth(false, s.handleUpdateUserTopic))

	// Administration
	route("GET", "/dashboard", s.requireAuth(true, s.handleDashboard))
	route("GET", "/send-latest-newsletter", s.handleSendLatestNewsletter)
	route("POST", "/send-topic-feed", s.requireAuth(true, s.handleSendTopicFeed))

	// Unmatched requests: 405 if the path exists with another method, 404 otherwise
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		allowed := allowedMethods(mux, r)
		if len(allowed) > 0 {
			w.Header().Set("Allow", strings.Join(allowed, ", "))
			responseError(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
			return
		}
		responseError(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
	})

	return s.withRequestID(s.withLogging(mux))
}

// Returns the methods that have a route for the request's path
func allowedMethods(mux *http.ServeMux, r *http.Request) []string {
	allowed := []string{}
	for _, method := range []string{http.MethodGet, http.MethodPost} {
		if method == r.Method {
			continue
		}
		req := r.Clone(r.Context())
		req.Method = method
		_, pattern := mux.Handler(req)
		if pattern != "" && pattern != "/" {
			allowed = append(allowed, method)
		}
	}
	return allowed
}
