package server

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/hermod-gw/hermod/internal/broadcast"
	"github.com/hermod-gw/hermod/internal/pairing"
	"github.com/hermod-gw/hermod/internal/session"
	"github.com/hermod-gw/hermod/internal/subscription"
	"github.com/hermod-gw/hermod/internal/webhook"
)

// Router provides embeddable HTTP handlers for the gateway.
// Endpoints (relative to basePath):
//
//	POST   /connect                     bring the session up
//	POST   /disconnect                  user-initiated logout
//	GET    /status                      session snapshot
//	GET    /pairing                     current pairing artifact
//	POST   /send                        body: {recipient, payload}
//	POST   /subscriptions               register a subscriber
//	GET    /subscriptions               list subscribers
//	GET    /subscriptions/:id           single subscriber
//	PATCH  /subscriptions/:id           partial update
//	DELETE /subscriptions/:id           remove
//	POST   /subscriptions/:id/test      synchronous test delivery
//	POST   /broadcast                   body: {recipients, payload}
//	GET    /stats                       pipeline statistics
//
// basePath may be empty or start with '/'; no trailing slash.

// Session is the router's view of the connection lifecycle manager.
type Session interface {
	Connect() error
	Disconnect() error
	Status() session.Snapshot
	Send(ctx context.Context, recipient string, payload []byte) error
}

// Deliverer is the router's view of the event delivery pipeline.
type Deliverer interface {
	TestDelivery(ctx context.Context, id string) error
	Snapshot() webhook.Stats
}

// Broadcaster runs a paced multi-recipient send.
type Broadcaster interface {
	Run(ctx context.Context, recipients []string, payload []byte) (broadcast.Report, error)
}

type Router struct {
	sess        Session
	artifacts   *pairing.Store
	registry    *subscription.Registry
	pipeline    Deliverer
	broadcaster Broadcaster
	basePath    string
	apiKey      string
}

// NewRouter constructs a Router with configurable basePath. An empty apiKey
// disables authentication.
func NewRouter(sess Session, artifacts *pairing.Store, registry *subscription.Registry, pipeline Deliverer, basePath, apiKey string) *Router {
	return &Router{
		sess:      sess,
		artifacts: artifacts,
		registry:  registry,
		pipeline:  pipeline,
		basePath:  sanitizeBase(basePath),
		apiKey:    apiKey,
	}
}

// SetBroadcaster enables the /broadcast endpoint. Without it the route
// responds 503.
func (r *Router) SetBroadcaster(b Broadcaster) { r.broadcaster = b }

// Handler returns an http.Handler powered by gin that can be mounted in any
// server/mux.
func (r *Router) Handler() http.Handler {
	g := gin.New()
	g.Use(gin.Recovery())
	group := g.Group(r.basePath)
	if r.apiKey != "" {
		group.Use(r.requireAPIKey)
	}
	group.POST("/connect", r.handleConnect)
	group.POST("/disconnect", r.handleDisconnect)
	group.GET("/status", r.handleStatus)
	group.GET("/pairing", r.handlePairing)
	group.POST("/send", r.handleSend)
	group.POST("/subscriptions", r.handleRegister)
	group.GET("/subscriptions", r.handleList)
	group.GET("/subscriptions/:id", r.handleGet)
	group.PATCH("/subscriptions/:id", r.handleUpdate)
	group.DELETE("/subscriptions/:id", r.handleRemove)
	group.POST("/subscriptions/:id/test", r.handleTest)
	group.POST("/broadcast", r.handleBroadcast)
	group.GET("/stats", r.handleStats)
	return g
}

// NewServer starts a standalone HTTP server on addr using this router.
func NewServer(addr string, r *Router) *http.Server {
	server := &http.Server{
		Addr:              addr,
		Handler:           r.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      45 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	go func() { _ = server.ListenAndServe() }()
	return server
}

// --- Handlers ---

type errorResp struct {
	Error      string   `json:"error"`
	Violations []string `json:"violations,omitempty"`
}

type okResp struct {
	OK bool `json:"ok"`
}

func (r *Router) requireAPIKey(c *gin.Context) {
	key := c.GetHeader("X-API-Key")
	if key == "" {
		if auth := c.GetHeader("Authorization"); strings.HasPrefix(auth, "Bearer ") {
			key = strings.TrimPrefix(auth, "Bearer ")
		}
	}
	if subtle.ConstantTimeCompare([]byte(key), []byte(r.apiKey)) != 1 {
		c.AbortWithStatusJSON(http.StatusUnauthorized, errorResp{Error: "invalid or missing API key"})
		return
	}
	c.Next()
}

func (r *Router) handleConnect(c *gin.Context) {
	if err := r.sess.Connect(); err != nil {
		writeJSON(c, http.StatusInternalServerError, errorResp{Error: err.Error()})
		return
	}
	writeJSON(c, http.StatusOK, okResp{OK: true})
}

func (r *Router) handleDisconnect(c *gin.Context) {
	if err := r.sess.Disconnect(); err != nil {
		writeJSON(c, http.StatusInternalServerError, errorResp{Error: err.Error()})
		return
	}
	writeJSON(c, http.StatusOK, okResp{OK: true})
}

func (r *Router) handleStatus(c *gin.Context) {
	writeJSON(c, http.StatusOK, r.sess.Status())
}

func (r *Router) handlePairing(c *gin.Context) {
	art, ok := r.artifacts.Read()
	if !ok {
		writeJSON(c, http.StatusNotFound, errorResp{Error: "no pairing artifact available"})
		return
	}
	writeJSON(c, http.StatusOK, art)
}

type sendRequest struct {
	Recipient string          `json:"recipient"`
	Payload   json.RawMessage `json:"payload"`
}

func (r *Router) handleSend(c *gin.Context) {
	var req sendRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeJSON(c, http.StatusBadRequest, errorResp{Error: "invalid JSON: " + err.Error()})
		return
	}
	if req.Recipient == "" {
		writeJSON(c, http.StatusBadRequest, errorResp{Error: "recipient required"})
		return
	}
	if err := r.sess.Send(c.Request.Context(), req.Recipient, req.Payload); err != nil {
		writeJSON(c, http.StatusBadGateway, errorResp{Error: err.Error()})
		return
	}
	writeJSON(c, http.StatusOK, okResp{OK: true})
}

func (r *Router) handleRegister(c *gin.Context) {
	var req subscription.RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeJSON(c, http.StatusBadRequest, errorResp{Error: "invalid JSON: " + err.Error()})
		return
	}
	sub, err := r.registry.Register(req)
	if err != nil {
		writeSubscriptionError(c, err)
		return
	}
	writeJSON(c, http.StatusCreated, sub)
}

func (r *Router) handleList(c *gin.Context) {
	writeJSON(c, http.StatusOK, r.registry.List())
}

func (r *Router) handleGet(c *gin.Context) {
	sub, err := r.registry.Get(c.Param("id"))
	if err != nil {
		writeSubscriptionError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, sub)
}

func (r *Router) handleUpdate(c *gin.Context) {
	var req subscription.UpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeJSON(c, http.StatusBadRequest, errorResp{Error: "invalid JSON: " + err.Error()})
		return
	}
	sub, err := r.registry.Update(c.Param("id"), req)
	if err != nil {
		writeSubscriptionError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, sub)
}

func (r *Router) handleRemove(c *gin.Context) {
	if err := r.registry.Remove(c.Param("id")); err != nil {
		writeSubscriptionError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, okResp{OK: true})
}

func (r *Router) handleTest(c *gin.Context) {
	if err := r.pipeline.TestDelivery(c.Request.Context(), c.Param("id")); err != nil {
		var nf *subscription.NotFoundError
		if errors.As(err, &nf) {
			writeJSON(c, http.StatusNotFound, errorResp{Error: err.Error()})
			return
		}
		writeJSON(c, http.StatusBadGateway, errorResp{Error: err.Error()})
		return
	}
	writeJSON(c, http.StatusOK, okResp{OK: true})
}

type broadcastRequest struct {
	Recipients []string        `json:"recipients"`
	Payload    json.RawMessage `json:"payload"`
}

func (r *Router) handleBroadcast(c *gin.Context) {
	if r.broadcaster == nil {
		writeJSON(c, http.StatusServiceUnavailable, errorResp{Error: "broadcast not configured"})
		return
	}
	var req broadcastRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeJSON(c, http.StatusBadRequest, errorResp{Error: "invalid JSON: " + err.Error()})
		return
	}
	if len(req.Recipients) == 0 {
		writeJSON(c, http.StatusBadRequest, errorResp{Error: "recipients required"})
		return
	}
	report, err := r.broadcaster.Run(c.Request.Context(), req.Recipients, req.Payload)
	if err != nil {
		if errors.Is(err, broadcast.ErrBusy) {
			writeJSON(c, http.StatusConflict, errorResp{Error: err.Error()})
			return
		}
		writeJSON(c, http.StatusBadGateway, errorResp{Error: err.Error()})
		return
	}
	writeJSON(c, http.StatusOK, report)
}

func (r *Router) handleStats(c *gin.Context) {
	writeJSON(c, http.StatusOK, r.pipeline.Snapshot())
}

func writeSubscriptionError(c *gin.Context, err error) {
	var ve *subscription.ValidationError
	if errors.As(err, &ve) {
		writeJSON(c, http.StatusBadRequest, errorResp{Error: "validation failed", Violations: ve.Violations})
		return
	}
	var nf *subscription.NotFoundError
	if errors.As(err, &nf) {
		writeJSON(c, http.StatusNotFound, errorResp{Error: err.Error()})
		return
	}
	writeJSON(c, http.StatusInternalServerError, errorResp{Error: err.Error()})
}
