package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const sessionIDContextKey = "archive_session_id"

var (
	errMissingSessionManager = errors.New("session manager dependency required")
	errMissingTokenManager   = errors.New("token manager dependency required")
	errInvalidAuthorization  = errors.New("authorization header missing or invalid")
)

// TokenManager mints and validates session tokens.
type TokenManager interface {
	IssueSessionToken(ctx context.Context, sessionID string) (string, int64, error)
	ValidateToken(token string) (string, error)
}

// Dependencies wires the HTTP surface to the command engine.
type Dependencies struct {
	Sessions *SessionManager
	Tokens   TokenManager
	Events   *EventDispatcher
	Logger   *zap.Logger
}

// NewHTTPHandler builds the gin router: session creation, the command
// endpoint, and the SSE event stream.
func NewHTTPHandler(deps Dependencies) (http.Handler, error) {
	if deps.Sessions == nil {
		return nil, errMissingSessionManager
	}
	if deps.Tokens == nil {
		return nil, errMissingTokenManager
	}

	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(cors.New(cors.Config{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowHeaders: []string{"Authorization", "Content-Type"},
		MaxAge:       12 * time.Hour,
	}))

	handler := &httpHandler{
		sessions: deps.Sessions,
		tokens:   deps.Tokens,
		events:   deps.Events,
		logger:   logger,
	}

	router.POST("/session", handler.handleCreateSession)

	protected := router.Group("/")
	protected.Use(handler.authorizeRequest)
	protected.POST("/command", handler.handleCommand)
	protected.GET("/events", handler.handleEvents)

	return router, nil
}

type httpHandler struct {
	sessions *SessionManager
	tokens   TokenManager
	events   *EventDispatcher
	logger   *zap.Logger
}

type sessionRequestPayload struct {
	PlayerName string `json:"player_name"`
}

type sessionResponsePayload struct {
	SessionID   string `json:"session_id"`
	AccessToken string `json:"access_token"`
	ExpiresIn   int64  `json:"expires_in"`
	TokenType   string `json:"token_type"`
	Banner      string `json:"banner"`
}

func (h *httpHandler) handleCreateSession(c *gin.Context) {
	var request sessionRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil || strings.TrimSpace(request.PlayerName) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}

	record, err := h.sessions.Create(request.PlayerName)
	if errors.Is(err, ErrInvalidPlayerName) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_player_name"})
		return
	}
	if err != nil {
		h.logger.Error("failed to create session", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "session_create_failed"})
		return
	}

	token, expiresIn, err := h.tokens.IssueSessionToken(c.Request.Context(), record.ID)
	if err != nil {
		h.logger.Error("failed to issue session token", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "token_issue_failed"})
		return
	}

	banner, err := record.Terminal.InitialLoad(c.Request.Context())
	if err != nil {
		h.logger.Error("failed to load archive state",
			zap.String("session_id", record.ID),
			zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "archive_load_failed"})
		return
	}

	c.JSON(http.StatusOK, sessionResponsePayload{
		SessionID:   record.ID,
		AccessToken: token,
		ExpiresIn:   expiresIn,
		TokenType:   "Bearer",
		Banner:      banner,
	})
}

type commandRequestPayload struct {
	Line string `json:"line"`
}

type commandResponsePayload struct {
	Output string `json:"output"`
}

func (h *httpHandler) handleCommand(c *gin.Context) {
	sessionID := c.GetString(sessionIDContextKey)
	record, ok := h.sessions.Lookup(sessionID)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "session_expired"})
		return
	}

	var request commandRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}

	output, err := record.Terminal.Dispatch(c.Request.Context(), request.Line)
	if err != nil {
		h.logger.Error("command failed against the store",
			zap.String("session_id", sessionID),
			zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "command_failed"})
		return
	}

	c.JSON(http.StatusOK, commandResponsePayload{Output: output})
}

type eventPayload struct {
	Kind            string `json:"kind"`
	Text            string `json:"text"`
	TimestampMillis int64  `json:"timestamp_ms"`
}

func (h *httpHandler) handleEvents(c *gin.Context) {
	if h.events == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "events_unavailable"})
		return
	}

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")
	c.Writer.WriteHeader(http.StatusOK)
	c.Writer.Flush()

	stream, cleanup := h.events.Subscribe(c.Request.Context())
	defer cleanup()

	heartbeat := time.NewTicker(15 * time.Second)
	defer heartbeat.Stop()

	for {
		select {
		case <-c.Request.Context().Done():
			return
		case event, ok := <-stream:
			if !ok {
				return
			}
			payload, err := json.Marshal(eventPayload{
				Kind:            event.Kind,
				Text:            event.Text,
				TimestampMillis: event.Timestamp.UnixMilli(),
			})
			if err != nil {
				h.logger.Error("failed to encode archive event", zap.Error(err))
				continue
			}
			fmt.Fprintf(c.Writer, "event: %s\ndata: %s\n\n", sseEventArchive, payload)
			c.Writer.Flush()
		case <-heartbeat.C:
			fmt.Fprintf(c.Writer, "event: %s\ndata: {}\n\n", sseEventHeartbeat)
			c.Writer.Flush()
		}
	}
}

// authorizeRequest resolves the session token from the Authorization header
// or, for EventSource clients that cannot set headers, the access_token
// query parameter.
func (h *httpHandler) authorizeRequest(c *gin.Context) {
	token := ""
	header := c.GetHeader("Authorization")
	switch {
	case strings.HasPrefix(header, "Bearer "):
		token = strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	default:
		token = strings.TrimSpace(c.Query("access_token"))
	}
	if token == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": errInvalidAuthorization.Error()})
		return
	}

	sessionID, err := h.tokens.ValidateToken(token)
	if err != nil {
		h.logger.Warn("token validation failed", zap.Error(err))
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	c.Set(sessionIDContextKey, sessionID)
	c.Next()
}
