package server

import (
	"context"
	"net/http"
	"regexp"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/ItalyPaleAle/rss-digest/models"
)

type contextKey int

const (
	userContextKey contextKey = iota
	requestIDContextKey
)

// Matching "Token" or "Bearer" at the beginning of the access token in the Authorization header
var authHeaderExpr = regexp.MustCompile("^(?i:(?:Token|Bearer) )?([A-Za-z0-9_-]+)$")

// Adds a request ID to each request, using the one from the X-Request-ID header if it's a valid UUID
func (s *Server) withRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := r.Header.Get("X-Request-ID")
		if _, err := uuid.Parse(reqID); err != nil {
			reqID = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", reqID)

		ctx := context.WithValue(r.Context(), requestIDContextKey, reqID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// Records the status code written by a handler
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// Logs every request once it's done
func (s *Server) withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		s.requestLog(r).
			WithField("status", rec.status).
			WithField("duration", time.Since(start).String()).
			Infof("%s %s", r.Method, r.URL.Path)
	})
}

// Returns a logger with the request ID
func (s *Server) requestLog(r *http.Request) *log.Entry {
	reqID, _ := r.Context().Value(requestIDContextKey).(string)
	return s.log.WithField("request_id", reqID)
}

// Requires a valid auth token in the Authorization header
// If staff is true, the user must also be a staff member
func (s *Server) requireAuth(staff bool, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token := ""
		if a := r.Header.Get("Authorization"); a != "" {
			match := authHeaderExpr.FindStringSubmatch(a)
			if len(match) == 2 {
				token = match[1]
			}
		}
		if token == "" {
			responseError(w, "Authentication credentials were not provided", http.StatusUnauthorized)
			return
		}

		user, err := s.Users.Authenticate(r.Context(), token)
		if err != nil {
			s.handleError(w, r, err)
			return
		}
		if staff && !user.IsStaff {
			s.handleError(w, r, models.ErrForbidden)
			return
		}

		ctx := context.WithValue(r.Context(), userContextKey, user)
		next(w, r.WithContext(ctx))
	}
}

// Returns the user authenticated by requireAuth
func userFromContext(ctx context.Context) *models.User {
	user, _ := ctx.Value(userContextKey).(*models.User)
	return user
}
