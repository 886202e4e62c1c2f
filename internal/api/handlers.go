package api

import (
	"context"
	"errors"
	"log"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"mentora/internal/auth"
	"mentora/internal/credstore"
	"mentora/internal/mentor"
	"mentora/internal/models"
)

// Stable user-facing messages; internal detail stays in operator logs.
const (
	msgLoginFailed = "login failed"
	msgUnavailable = "mentor is unavailable, please try again"
	msgTryAgain    = "something went wrong, please try again"
)

// Handler wires HTTP routes to the mentor orchestrator.
type Handler struct {
	mentor *mentor.Service
	creds  *credstore.Store
	auth   *auth.Service
}

// NewHandler constructs a Handler instance.
func NewHandler(service *mentor.Service, creds *credstore.Store, authService *auth.Service) *Handler {
	return &Handler{
		mentor: service,
		creds:  creds,
		auth:   authService,
	}
}

// RegisterRoutes attaches all HTTP routes to the router.
func (h *Handler) RegisterRoutes(router *gin.Engine) {
	api := router.Group("/api")
	api.POST("/login", h.login)
	api.POST("/chat", h.chat)
	api.POST("/sessions/start", h.startSession)

	authMW := h.auth.Middleware()
	browse := api.Group("")
	browse.Use(authMW, h.auth.CSRFMiddleware())
	browse.GET("/sessions", h.listSessions)
	browse.GET("/sessions/:session_id/messages", h.sessionMessages)
	browse.POST("/topic-prompts", h.topicPrompts)
	browse.POST("/logout", h.logout)
}

type credentialsRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func (h *Handler) login(c *gin.Context) {
	var req credentialsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	ok, err := h.creds.Verify(c.Request.Context(), req.Username, req.Password)
	if err != nil {
		log.Printf("login %s: %v", req.Username, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": msgTryAgain})
		return
	}
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": msgLoginFailed})
		return
	}
	user, err := h.creds.GetUser(c.Request.Context(), req.Username)
	if err != nil {
		log.Printf("login profile %s: %v", req.Username, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": msgTryAgain})
		return
	}
	authToken, err := h.auth.IssueToken(c.Request.Context(), req.Username)
	if err != nil {
		log.Printf("issue token %s: %v", req.Username, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": msgTryAgain})
		return
	}
	csrfToken, err := h.auth.NewCSRFToken()
	if err != nil {
		log.Printf("issue csrf token %s: %v", req.Username, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": msgTryAgain})
		return
	}
	h.setAuthCookies(c, authToken, csrfToken)
	c.JSON(http.StatusOK, gin.H{
		"username":   user.Username,
		"name":       user.Name,
		"created_at": user.CreatedAt,
		"auth_token": authToken,
	})
}

type chatRequest struct {
	Username  string `json:"username"`
	Password  string `json:"password"`
	Message   string `json:"message"`
	SessionID string `json:"session_id"`
}

func (h *Handler) chat(c *gin.Context) {
	var req chatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "message is required"})
		return
	}
	reply, err := h.mentor.Handle(c.Request.Context(), mentor.ChatRequest{
		Username:  req.Username,
		Password:  req.Password,
		Message:   req.Message,
		SessionID: req.SessionID,
	})
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"reply":       reply.Reply,
		"session_id":  reply.SessionID,
		"new_session": reply.NewSession,
	})
}

type startSessionRequest struct {
	Username     string   `json:"username"`
	Password     string   `json:"password"`
	LearningGoal string   `json:"learning_goal"`
	Skills       []string `json:"skills"`
	Difficulty   string   `json:"difficulty"`
	Role         string   `json:"role"`
}

func (h *Handler) startSession(c *gin.Context) {
	var req startSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	start, err := h.mentor.StartSession(c.Request.Context(), mentor.StartRequest{
		Username:     req.Username,
		Password:     req.Password,
		LearningGoal: req.LearningGoal,
		Skills:       req.Skills,
		Difficulty:   req.Difficulty,
		Role:         req.Role,
	})
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"session_id": start.Session.ID,
		"title":      start.Session.Title,
		"created_at": start.Session.CreatedAt,
		"intro":      start.Intro,
		"topics":     start.Topics,
	})
}

func (h *Handler) listSessions(c *gin.Context) {
	username, ok := auth.UsernameFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "authorization required"})
		return
	}
	sessions, err := h.mentor.Sessions(c.Request.Context(), username)
	if err != nil {
		h.writeError(c, err)
		return
	}
	if sessions == nil {
		sessions = make([]models.Session, 0)
	}
	c.JSON(http.StatusOK, gin.H{"sessions": sessions})
}

func (h *Handler) sessionMessages(c *gin.Context) {
	username, ok := auth.UsernameFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "authorization required"})
		return
	}
	sessionID := c.Param("session_id")
	turns, err := h.mentor.History(c.Request.Context(), username, sessionID)
	if err != nil {
		h.writeError(c, err)
		return
	}
	if turns == nil {
		turns = make([]models.ChatTurn, 0)
	}
	c.JSON(http.StatusOK, gin.H{"session_id": sessionID, "messages": turns})
}

type topicPromptsRequest struct {
	Topic string `json:"topic"`
}

func (h *Handler) topicPrompts(c *gin.Context) {
	username, _ := auth.UsernameFromContext(c)
	var req topicPromptsRequest
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.Topic) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "topic is required"})
		return
	}
	prompts := h.mentor.TopicPrompts(c.Request.Context(), username, req.Topic)
	c.JSON(http.StatusOK, gin.H{"prompts": prompts})
}

func (h *Handler) logout(c *gin.Context) {
	if authToken, ok := auth.AuthTokenFromContext(c); ok {
		_ = h.auth.RevokeToken(c.Request.Context(), authToken)
	}
	h.clearAuthCookies(c)
	c.Status(http.StatusNoContent)
}

// writeError maps orchestrator errors to HTTP statuses with generic
// user-facing messages.
func (h *Handler) writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, mentor.ErrAuth):
		c.JSON(http.StatusUnauthorized, gin.H{"error": msgLoginFailed})
	case errors.Is(err, mentor.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
	case errors.Is(err, mentor.ErrProvider):
		log.Printf("provider error: %v", err)
		if errors.Is(err, context.DeadlineExceeded) {
			c.JSON(http.StatusGatewayTimeout, gin.H{"error": msgUnavailable})
			return
		}
		c.JSON(http.StatusBadGateway, gin.H{"error": msgUnavailable})
	case errors.Is(err, mentor.ErrStorage):
		log.Printf("storage error: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": msgTryAgain})
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	}
}

func (h *Handler) setAuthCookies(c *gin.Context, authToken, csrfToken string) {
	ttl := int(h.auth.TokenTTL().Seconds())
	if ttl <= 0 {
		ttl = 3600
	}
	secure := gin.Mode() == gin.ReleaseMode
	setCookie(c, &http.Cookie{
		Name:     h.auth.AuthCookieName(),
		Value:    authToken,
		MaxAge:   ttl,
		Path:     "/",
		Secure:   secure,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	setCookie(c, &http.Cookie{
		Name:     h.auth.CSRFCookieName(),
		Value:    csrfToken,
		MaxAge:   ttl,
		Path:     "/",
		Secure:   secure,
		HttpOnly: false,
		SameSite: http.SameSiteStrictMode,
	})
}

func (h *Handler) clearAuthCookies(c *gin.Context) {
	for _, name := range []string{h.auth.AuthCookieName(), h.auth.CSRFCookieName()} {
		setCookie(c, &http.Cookie{
			Name:     name,
			Value:    "",
			MaxAge:   -1,
			Path:     "/",
			Secure:   gin.Mode() == gin.ReleaseMode,
			HttpOnly: name == h.auth.AuthCookieName(),
			SameSite: http.SameSiteStrictMode,
		})
	}
}

func setCookie(c *gin.Context, ck *http.Cookie) {
	if ck == nil {
		return
	}
	http.SetCookie(c.Writer, ck)
}
