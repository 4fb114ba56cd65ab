package server

import (
	"crypto/subtle"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/ItalyPaleAle/rss-digest/auth"
	"github.com/ItalyPaleAle/rss-digest/digest"
	"github.com/ItalyPaleAle/rss-digest/models"
	"github.com/ItalyPaleAle/rss-digest/utils"
)

// Maximum length of a topic name
const maxTopicLength = 255

type authResponse struct {
	Token string          `json:"token"`
	User  models.UserInfo `json:"user"`
}

type profileResponse struct {
	models.UserInfo
	SubscribedTopic *string `json:"subscribed_topic"`
}

type dashboardResponse struct {
	TotalSubscriptions int                   `json:"total_subscriptions"`
	AllUsers           []models.UserInfo     `json:"all_users"`
	AllSubscriptions   []models.Subscription `json:"all_subscriptions"`
}

type dispatchResponse struct {
	Message string `json:"message"`
	digest.Report
}

type topicRequest struct {
	Topic string `json:"topic"`
}

// Validates a topic from a request body: topics are free-form, but can't be empty
// Problems are added to verr
func validateTopic(topic string, verr *models.ValidationError) string {
	topic = strings.TrimSpace(topic)
	if topic == "" {
		verr.Add("topic", "this field may not be blank")
	} else if len(topic) > maxTopicLength {
		verr.Add("topic", fmt.Sprintf("ensure this field has no more than %d characters", maxTopicLength))
	}
	return topic
}

// POST /signup
func (s *Server) handleSignup(w http.ResponseWriter, r *http.Request) {
	req := auth.RegisterRequest{}
	err := decodeBody(w, r, &req)
	if err != nil {
		s.handleError(w, r, err)
		return
	}

	user, token, err := s.Users.Register(r.Context(), req)
	if err != nil {
		s.handleError(w, r, err)
		return
	}

	responseJSON(w, authResponse{
		Token: token,
		User:  user.Info(),
	}, http.StatusCreated)
}

// POST /login
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	req := struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}{}
	err := decodeBody(w, r, &req)
	if err != nil {
		s.handleError(w, r, err)
		return
	}

	user, token, err := s.Users.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		s.handleError(w, r, err)
		return
	}

	responseJSON(w, authResponse{
		Token: token,
		User:  user.Info(),
	}, http.StatusOK)
}

// POST /password-reset
func (s *Server) handlePasswordReset(w http.ResponseWriter, r *http.Request) {
	req := struct {
		Email string `json:"email"`
	}{}
	err := decodeBody(w, r, &req)
	if err != nil {
		s.handleError(w, r, err)
		return
	}

	err = s.PasswordReset.Request(r.Context(), req.Email)
	if errors.Is(err, models.ErrNotFound) {
		responseError(w, "User with this email does not exist", http.StatusNotFound)
		return
	} else if err != nil {
		s.handleError(w, r, err)
		return
	}

	responseJSON(w, map[string]string{
		"message": "Password reset link sent to email",
	}, http.StatusOK)
}

// POST /password-reset-confirm/{uid}/{token}
func (s *Server) handlePasswordResetConfirm(w http.ResponseWriter, r *http.Request) {
	req := struct {
		Password string `json:"password"`
	}{}
	err := decodeBody(w, r, &req)
	if err != nil {
		s.handleError(w, r, err)
		return
	}

	err = s.PasswordReset.Confirm(r.Context(), r.PathValue("uid"), r.PathValue("token"), req.Password)
	if err != nil {
		s.handleError(w, r, err)
		return
	}

	responseJSON(w, map[string]string{
		"message": "Password has been reset successfully",
	}, http.StatusOK)
}

// GET /latest-feeds
func (s *Server) handleLatestFeeds(w http.ResponseWriter, r *http.Request) {
	topic := strings.TrimSpace(r.URL.Query().Get("topic"))
	responseJSON(w, s.Feeds.Latest(r.Context(), topic), http.StatusOK)
}

// POST /subscribe
func (s *Server) handleSubscribe(w http.ResponseWriter, r *http.Request) {
	req := struct {
		Email string `json:"email"`
		Topic string `json:"topic"`
	}{}
	err := decodeBody(w, r, &req)
	if err != nil {
		s.handleError(w, r, err)
		return
	}

	verr := &models.ValidationError{}
	req.Email = utils.NormalizeEmail(req.Email)
	if err := utils.ValidateEmail(req.Email); err != nil {
		verr.Add("email", err.Error())
	}
	topic := validateTopic(req.Topic, verr)
	if verr.HasErrors() {
		s.handleError(w, r, verr)
		return
	}

	sub, err := s.Subscriptions.CreateOrGet(r.Context(), req.Email, topic)
	if errors.Is(err, models.ErrConflict) {
		responseError(w, "Email already subscribed", http.StatusBadRequest)
		return
	} else if err != nil {
		s.handleError(w, r, err)
		return
	}

	responseJSON(w, map[string]string{
		"message": fmt.Sprintf("Subscribed successfully with %s & %s", sub.Email, sub.Topic),
	}, http.StatusCreated)
}

// GET /user/profile
func (s *Server) handleUserProfile(w http.ResponseWriter, r *http.Request) {
	user := userFromContext(r.Context())

	res := profileResponse{
		UserInfo: user.Info(),
	}
	sub, err := s.Subscriptions.GetByEmail(r.Context(), user.Email)
	if err == nil {
		res.SubscribedTopic = &sub.Topic
	} else if !errors.Is(err, models.ErrNotFound) {
		s.handleError(w, r, err)
		return
	}

	responseJSON(w, res, http.StatusOK)
}

// GET /update_user_topic
func (s *Server) handleGetUserTopic(w http.ResponseWriter, r *http.Request) {
	user := userFromContext(r.Context())

	sub, err := s.Subscriptions.GetByEmail(r.Context(), user.Email)
	if errors.Is(err, models.ErrNotFound) {
		responseError(w, "Subscription not found", http.StatusNotFound)
		return
	} else if err != nil {
		s.handleError(w, r, err)
		return
	}

	responseJSON(w, topicRequest{Topic: sub.Topic}, http.StatusOK)
}

// POST /update_user_topic
func (s *Server) handleUpdateUserTopic(w http.ResponseWriter, r *http.Request) {
	user := userFromContext(r.Context())

	req := topicRequest{}
	err := decodeBody(w, r, &req)
	if err != nil {
		s.handleError(w, r, err)
		return
	}
	verr := &models.ValidationError{}
	topic := validateTopic(req.Topic, verr)
	if verr.HasErrors() {
		s.handleError(w, r, verr)
		return
	}

	sub, err := s.Subscriptions.Upsert(r.Context(), user.Email, topic)
	if err != nil {
		s.handleError(w, r, err)
		return
	}

	responseJSON(w, map[string]string{
		"message": "Topic updated successfully",
		"topic":   sub.Topic,
	}, http.StatusOK)
}

// GET /dashboard
func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	count, err := s.Subscriptions.Count(r.Context())
	if err != nil {
		s.handleError(w, r, err)
		return
	}
	users, err := s.Users.ListAll(r.Context())
	if err != nil {
		s.handleError(w, r, err)
		return
	}
	subs, err := s.Subscriptions.ListAll(r.Context())
	if err != nil {
		s.handleError(w, r, err)
		return
	}

	res := dashboardResponse{
		TotalSubscriptions: count,
		AllUsers:           make([]models.UserInfo, len(users)),
		AllSubscriptions:   subs,
	}
	for i := range users {
		res.AllUsers[i] = users[i].Info()
	}

	responseJSON(w, res, http.StatusOK)
}

// GET /send-latest-newsletter
func (s *Server) handleSendLatestNewsletter(w http.ResponseWriter, r *http.Request) {
	if s.DigestTriggerKey != "" && subtle.ConstantTimeCompare([]byte(r.URL.Query().Get("key")), []byte(s.DigestTriggerKey)) != 1 {
		s.handleError(w, r, models.ErrForbidden)
		return
	}

	report, err := s.Dispatcher.Run(r.Context())
	if err != nil {
		s.handleError(w, r, err)
		return
	}

	responseJSON(w, dispatchResponse{
		Message: fmt.Sprintf("Newsletter sent to %d subscribers", report.Sent),
		Report:  report,
	}, http.StatusOK)
}

// POST /send-topic-feed
func (s *Server) handleSendTopicFeed(w http.ResponseWriter, r *http.Request) {
	req := topicRequest{}
	err := decodeBody(w, r, &req)
	if err != nil {
		s.handleError(w, r, err)
		return
	}

	report, err := s.Dispatcher.RunTopic(r.Context(), strings.TrimSpace(req.Topic))
	if errors.Is(err, models.ErrNotFound) {
		responseError(w, "No articles found for this topic", http.StatusNotFound)
		return
	} else if err != nil {
		s.handleError(w, r, err)
		return
	}

	responseJSON(w, dispatchResponse{
		Message: fmt.Sprintf("Topic feed sent to %d subscribers", report.Sent),
		Report:  report,
	}, http.StatusOK)
}
