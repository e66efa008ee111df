package devserver

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/coder/websocket"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/shopdeskhq/shopdesk/internal/remote"
	"github.com/shopdeskhq/shopdesk/internal/resource"
)

const ownerContextKey = "shopdesk_owner_id"

var (
	errMissingTokenIssuer = errors.New("token issuer dependency required")
	errMissingStorage     = errors.New("storage dependency required")
)

// Dependencies wires the dev remote store handler.
type Dependencies struct {
	Tokens     *TokenIssuer
	Storage    *Storage
	Dispatcher *Dispatcher
	Logger     *zap.Logger
}

// NewHTTPHandler builds the gin router implementing the remote store
// boundary: session issuance, owner-scoped reads, single-row writes, the
// public booking endpoint, and the realtime WebSocket feed.
func NewHTTPHandler(deps Dependencies) (http.Handler, error) {
	if deps.Tokens == nil {
		return nil, errMissingTokenIssuer
	}
	if deps.Storage == nil {
		return nil, errMissingStorage
	}

	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	dispatcher := deps.Dispatcher
	if dispatcher == nil {
		dispatcher = NewDispatcher()
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(cors.New(cors.Config{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowHeaders: []string{"Authorization", "Content-Type"},
		MaxAge:       12 * time.Hour,
	}))

	handler := &httpHandler{
		tokens:     deps.Tokens,
		storage:    deps.Storage,
		dispatcher: dispatcher,
		logger:     logger,
	}

	router.POST("/session", handler.handleSession)
	router.POST("/public/appointments", handler.handlePublicBooking)
	router.GET("/realtime", handler.handleRealtime)

	protected := router.Group("/")
	protected.Use(handler.authorizeRequest)
	for _, table := range allTables() {
		path := "/" + string(table)
		protected.GET(path, handler.handleSelect(table))
		protected.POST(path, handler.handleInsert(table))
		protected.PATCH(path+"/:id", handler.handleUpdate(table))
		protected.DELETE(path+"/:id", handler.handleDelete(table))
	}

	return router, nil
}

func allTables() []resource.Table {
	return append(resource.CollectionTables(), resource.TableSettings)
}

type httpHandler struct {
	tokens     *TokenIssuer
	storage    *Storage
	dispatcher *Dispatcher
	logger     *zap.Logger
}

type sessionRequestPayload struct {
	OwnerID string `json:"owner_id"`
}

type sessionResponsePayload struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int64  `json:"expires_in"`
	TokenType   string `json:"token_type"`
}

func (h *httpHandler) handleSession(c *gin.Context) {
	var request sessionRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil || strings.TrimSpace(request.OwnerID) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}

	token, expiresIn, err := h.tokens.Issue(strings.TrimSpace(request.OwnerID))
	if err != nil {
		h.logger.Error("failed to issue session token", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "token_issue_failed"})
		return
	}

	c.JSON(http.StatusOK, sessionResponsePayload{
		AccessToken: token,
		ExpiresIn:   expiresIn,
		TokenType:   "Bearer",
	})
}

func (h *httpHandler) authorizeRequest(c *gin.Context) {
	ownerID, err := h.ownerFromAuthorization(c.GetHeader("Authorization"))
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	c.Set(ownerContextKey, ownerID)
	c.Next()
}

func (h *httpHandler) ownerFromAuthorization(header string) (string, error) {
	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return "", errors.New("authorization header missing or invalid")
	}
	return h.tokens.Validate(strings.TrimPrefix(header, prefix))
}

func requestOwner(c *gin.Context) string {
	value, _ := c.Get(ownerContextKey)
	ownerID, _ := value.(string)
	return ownerID
}

func (h *httpHandler) handleSelect(table resource.Table) gin.HandlerFunc {
	return func(c *gin.Context) {
		ownerID := requestOwner(c)
		if queryOwner := c.Query("owner"); queryOwner != "" && queryOwner != ownerID {
			c.JSON(http.StatusForbidden, gin.H{"error": "owner_mismatch"})
			return
		}
		records, err := h.storage.SelectByOwner(table, ownerID)
		if err != nil {
			h.logger.Error("select failed", zap.String("table", string(table)), zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "select_failed"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"records": records})
	}
}

func (h *httpHandler) handleInsert(table resource.Table) gin.HandlerFunc {
	return func(c *gin.Context) {
		ownerID := requestOwner(c)
		payload, err := c.GetRawData()
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
			return
		}
		if _, payloadOwner := payloadIdentity(payload); payloadOwner != ownerID {
			c.JSON(http.StatusForbidden, gin.H{"error": "owner_mismatch"})
			return
		}
		row, err := h.storage.Insert(table, payload)
		if err != nil {
			h.logger.Error("insert failed", zap.String("table", string(table)), zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "insert_failed"})
			return
		}
		h.dispatcher.Publish(row.OwnerID, remote.ChangeEvent{
			Table:  table,
			Action: resource.ActionInsert,
			Record: json.RawMessage(row.PayloadJSON),
		})
		c.JSON(http.StatusCreated, gin.H{"status": "created"})
	}
}

func (h *httpHandler) handleUpdate(table resource.Table) gin.HandlerFunc {
	return func(c *gin.Context) {
		ownerID := requestOwner(c)
		patch, err := c.GetRawData()
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
			return
		}
		row, err := h.storage.Update(table, c.Param("id"), ownerID, patch)
		if errors.Is(err, ErrRowNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "not_found"})
			return
		}
		if errors.Is(err, ErrRowForbidden) {
			c.JSON(http.StatusForbidden, gin.H{"error": "owner_mismatch"})
			return
		}
		if err != nil {
			h.logger.Error("update failed", zap.String("table", string(table)), zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "update_failed"})
			return
		}
		h.dispatcher.Publish(row.OwnerID, remote.ChangeEvent{
			Table:  table,
			Action: resource.ActionUpdate,
			Record: json.RawMessage(row.PayloadJSON),
		})
		c.JSON(http.StatusOK, gin.H{"status": "updated"})
	}
}

func (h *httpHandler) handleDelete(table resource.Table) gin.HandlerFunc {
	return func(c *gin.Context) {
		ownerID := requestOwner(c)
		row, err := h.storage.Delete(table, c.Param("id"), ownerID)
		if errors.Is(err, ErrRowNotFound) {
			c.JSON(http.StatusOK, gin.H{"status": "already_absent"})
			return
		}
		if errors.Is(err, ErrRowForbidden) {
			c.JSON(http.StatusForbidden, gin.H{"error": "owner_mismatch"})
			return
		}
		if err != nil {
			h.logger.Error("delete failed", zap.String("table", string(table)), zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "delete_failed"})
			return
		}
		record, _ := json.Marshal(map[string]string{"id": row.RowID})
		h.dispatcher.Publish(row.OwnerID, remote.ChangeEvent{
			Table:  table,
			Action: resource.ActionDelete,
			Record: record,
		})
		c.JSON(http.StatusOK, gin.H{"status": "deleted"})
	}
}

// handlePublicBooking accepts an unauthenticated appointment insert for an
// owner, the path anonymous booking pages use.
func (h *httpHandler) handlePublicBooking(c *gin.Context) {
	payload, err := c.GetRawData()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	id, ownerID := payloadIdentity(payload)
	if id == "" || ownerID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	row, err := h.storage.Insert(resource.TableAppointments, payload)
	if err != nil {
		h.logger.Error("public booking insert failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "insert_failed"})
		return
	}
	h.dispatcher.Publish(row.OwnerID, remote.ChangeEvent{
		Table:  resource.TableAppointments,
		Action: resource.ActionInsert,
		Record: json.RawMessage(row.PayloadJSON),
	})
	c.JSON(http.StatusCreated, gin.H{"status": "created"})
}

// handleRealtime upgrades to a WebSocket and streams the owner's change
// events until the client disconnects.
func (h *httpHandler) handleRealtime(c *gin.Context) {
	ownerID, err := h.ownerFromAuthorization(c.GetHeader("Authorization"))
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	if queryOwner := c.Query("owner"); queryOwner != "" && queryOwner != ownerID {
		c.JSON(http.StatusForbidden, gin.H{"error": "owner_mismatch"})
		return
	}

	conn, err := websocket.Accept(c.Writer, c.Request, &websocket.AcceptOptions{
		InsecureSkipVerify: true,
	})
	if err != nil {
		h.logger.Warn("websocket accept failed", zap.Error(err))
		return
	}
	defer conn.Close(websocket.StatusNormalClosure, "feed closed")

	// CloseRead surfaces client disconnects through ctx cancellation.
	ctx := conn.CloseRead(c.Request.Context())

	events, cleanup := h.dispatcher.Subscribe(ctx, ownerID)
	defer cleanup()

	for {
		select {
		case <-ctx.Done():
			return
		case event := <-events:
			data, err := json.Marshal(event)
			if err != nil {
				continue
			}
			if err := conn.Write(ctx, websocket.MessageText, data); err != nil {
				return
			}
		}
	}
}
