package hermod

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/hermod-gw/hermod/internal/broadcast"
	cfg "github.com/hermod-gw/hermod/internal/config"
	"github.com/hermod-gw/hermod/internal/deliverylog"
	dlfactory "github.com/hermod-gw/hermod/internal/deliverylog/factory"
	"github.com/hermod-gw/hermod/internal/event"
	"github.com/hermod-gw/hermod/internal/logger"
	"github.com/hermod-gw/hermod/internal/metrics"
	"github.com/hermod-gw/hermod/internal/pairing"
	iapi "github.com/hermod-gw/hermod/internal/server"
	"github.com/hermod-gw/hermod/internal/session"
	"github.com/hermod-gw/hermod/internal/store"
	"github.com/hermod-gw/hermod/internal/subscription"
	"github.com/hermod-gw/hermod/internal/webhook"
)

// Re-export core types for external consumers.
// These are aliases so conversions are zero-cost.

type Event = event.Event

type EventKind = event.Kind

type Transport = session.Transport

type Notification = session.Notification

type Inbound = session.Inbound

type CredentialStore = session.CredentialStore

type Snapshot = session.Snapshot

type Subscriber = subscription.Subscriber

type RegisterRequest = subscription.RegisterRequest

type UpdateRequest = subscription.UpdateRequest

type PairingArtifact = pairing.Artifact

type DeliverySink = deliverylog.Sink

type Config = cfg.Config

// Notification vocabulary for Transport implementers.
const (
	NotificationPairingChallenge = session.NotificationPairingChallenge
	NotificationStateChange      = session.NotificationStateChange
	NotificationCredentialUpdate = session.NotificationCredentialUpdate
	NotificationInboundMessage   = session.NotificationInboundMessage

	ConnStateOpen       = session.ConnStateOpen
	ConnStateClose      = session.ConnStateClose
	ConnStateConnecting = session.ConnStateConnecting

	InboundMessage = session.InboundMessage
	InboundReceipt = session.InboundReceipt
)

const (
	EventMessageReceived   = event.KindMessageReceived
	EventMessageStatus     = event.KindMessageStatus
	EventPairingIssued     = event.KindPairingIssued
	EventSessionReady      = event.KindSessionReady
	EventSessionClosed     = event.KindSessionClosed
	EventSessionAuth       = event.KindSessionAuthenticated
	EventSessionAuthFailed = event.KindSessionAuthFailed
)

// Gateway wires the connection lifecycle manager and the event delivery
// pipeline together. It is the embeddable top-level object; cmd/hermod is a
// thin shell over it.
type Gateway struct {
	cfg         *cfg.Config
	manager     *session.Manager
	artifacts   *pairing.Store
	registry    *subscription.Registry
	pipeline    *webhook.Pipeline
	broadcaster *broadcast.Broadcaster
	persist     store.Store
	sinks       []deliverylog.Sink
}

// New builds a Gateway from config. The transport is supplied by the caller
// since it binds to a concrete messaging backend.
func New(t Transport, c *cfg.Config) (*Gateway, error) {
	if c == nil {
		c = &cfg.Config{}
	}
	log := logger.New(c.Log)

	credPath := c.Session.CredentialsPath
	if credPath == "" {
		credPath = "credentials.json"
	}
	artifacts := pairing.NewStore(c.Session.PairingLockTTL)
	creds := session.NewFileCredentialStore(credPath)
	registry := subscription.NewRegistry()
	registry.SetLogger(log)

	var persist store.Store
	if c.Store.DSN != "" {
		st, err := store.FromDSN(c.Store.DSN)
		if err != nil {
			return nil, err
		}
		if err := registry.SetStore(context.Background(), st); err != nil {
			_ = st.Close()
			return nil, err
		}
		persist = st
	}

	pipeline := webhook.NewPipeline(registry, webhook.Config{
		MaxRetries:       c.Webhook.MaxRetries,
		RetryDelay:       c.Webhook.RetryDelay,
		RequestTimeout:   c.Webhook.RequestTimeout,
		PaceDelay:        c.Webhook.PaceDelay,
		BreakerThreshold: c.Webhook.BreakerThreshold,
		BreakerCooldown:  c.Webhook.BreakerCooldown,
	}, log)

	var sinks []deliverylog.Sink
	for _, dsn := range c.Delivery.Sinks {
		s, err := dlfactory.NewSinkFromDSN(dsn)
		if err != nil {
			closeSinks(sinks)
			if persist != nil {
				_ = persist.Close()
			}
			return nil, err
		}
		sinks = append(sinks, s)
	}
	if len(sinks) > 0 {
		pipeline.SetAuditSink(deliverylog.Multi(sinks))
	}

	mgr := session.NewManager(t, creds, artifacts, session.Config{
		BackoffBase:          c.Session.BackoffBase,
		BackoffMultiplier:    c.Session.BackoffMultiplier,
		BackoffCap:           c.Session.BackoffCap,
		MaxAttempts:          c.Session.MaxAttempts,
		ConnectTimeout:       c.Session.ConnectTimeout,
		ArtifactCleanupDelay: c.Session.ArtifactCleanupDelay,
	}, log)
	mgr.SetPublisher(pipeline.Publish)

	return &Gateway{
		cfg:         c,
		manager:     mgr,
		artifacts:   artifacts,
		registry:    registry,
		pipeline:    pipeline,
		broadcaster: broadcast.New(mgr, c.Session.BroadcastPace, log),
		persist:     persist,
		sinks:       sinks,
	}, nil
}

func (g *Gateway) Connect() error    { return g.manager.Connect() }
func (g *Gateway) Disconnect() error { return g.manager.Disconnect() }
func (g *Gateway) Status() Snapshot  { return g.manager.Status() }

func (g *Gateway) Send(ctx context.Context, recipient string, payload []byte) error {
	return g.manager.Send(ctx, recipient, payload)
}

// Pairing returns the current pairing artifact, if one is held.
func (g *Gateway) Pairing() (PairingArtifact, bool) { return g.artifacts.Read() }

func (g *Gateway) RegisterSubscriber(req RegisterRequest) (Subscriber, error) {
	return g.registry.Register(req)
}

func (g *Gateway) UpdateSubscriber(id string, req UpdateRequest) (Subscriber, error) {
	return g.registry.Update(id, req)
}

func (g *Gateway) RemoveSubscriber(id string) error { return g.registry.Remove(id) }
func (g *Gateway) Subscribers() []Subscriber        { return g.registry.List() }

// Publish enqueues an event for webhook delivery, bypassing the session
// manager. Useful for synthetic events in embedding code.
func (g *Gateway) Publish(e Event) { g.pipeline.Publish(e) }

// TestDelivery performs one synchronous delivery to the given subscriber.
func (g *Gateway) TestDelivery(ctx context.Context, id string) error {
	return g.pipeline.TestDelivery(ctx, id)
}

// Broadcast sends payload to each recipient sequentially with pacing.
func (g *Gateway) Broadcast(ctx context.Context, recipients []string, payload []byte) (broadcast.Report, error) {
	return g.broadcaster.Run(ctx, recipients, payload)
}

func (g *Gateway) Stats() webhook.Stats { return g.pipeline.Snapshot() }

// Router returns an embeddable HTTP router exposing the API.
func (g *Gateway) Router() *iapi.Router {
	r := iapi.NewRouter(g.manager, g.artifacts, g.registry, g.pipeline, g.cfg.Server.BasePath, g.cfg.Server.APIKey)
	r.SetBroadcaster(g.broadcaster)
	return r
}

// Close shuts the session down, drains the pipeline, and releases storage
// handles. Safe to call once.
func (g *Gateway) Close() error {
	err := g.manager.Shutdown()
	g.pipeline.Close()
	closeSinks(g.sinks)
	if g.persist != nil {
		if cerr := g.persist.Close(); err == nil {
			err = cerr
		}
	}
	return err
}

func closeSinks(sinks []deliverylog.Sink) {
	for _, s := range sinks {
		if c, ok := s.(io.Closer); ok {
			_ = c.Close()
		}
	}
}

func LoadConfig(path string) (*cfg.Config, error) {
	return cfg.Load(path)
}

// NewHTTPServer starts an HTTP server exposing the gateway API on addr.
func NewHTTPServer(addr string, g *Gateway) *http.Server {
	return iapi.NewServer(addr, g.Router())
}

// Metrics helpers (public facade)

func RegisterMetrics(r prometheus.Registerer) error { return metrics.Register(r) }
func RegisterMetricsDefault() error                 { return metrics.Register(prometheus.DefaultRegisterer) }

// ServeMetrics starts an HTTP server on addr exposing /metrics using the
// default registry. It blocks in the caller goroutine.
func ServeMetrics(addr string) error {
	http.Handle("/metrics", metrics.Handler())
	srv := &http.Server{
		Addr:              addr,
		Handler:           nil,
		ReadTimeout:       10 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return srv.ListenAndServe()
}
