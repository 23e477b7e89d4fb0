// Package api exposes the runtime over HTTP: state queries backed by the
// OMS, a signal ingestion endpoint, health/metrics, and a websocket event
// stream. Handlers only read snapshots and publish events; all trading logic
// stays behind the event engine.
package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"trading-runtime/internal/events"
	"trading-runtime/internal/monitor"
	"trading-runtime/internal/oms"
	"trading-runtime/internal/strategy"
)

// Server wires HTTP endpoints around the event engine.
type Server struct {
	Router  *gin.Engine
	Engine  *events.Engine
	OMS     *oms.Engine
	Metrics *monitor.Collector
	Meta    SystemMeta
}

// SystemMeta describes runtime status exposed to clients.
type SystemMeta struct {
	Venue       string   `json:"venue"`
	Symbols     []string `json:"symbols"`
	UseMockFeed bool     `json:"use_mock_feed"`
	Version     string   `json:"version"`
	StartedAt   time.Time
}

// NewServer builds the router and its middleware stack.
func NewServer(engine *events.Engine, store *oms.Engine, metrics *monitor.Collector, meta SystemMeta) *Server {
	r := gin.New()

	// Middleware stack (order matters!)
	r.Use(gin.Recovery())
	r.Use(RequestIDMiddleware())
	if metrics != nil {
		r.Use(RequestLogger(metrics.Metrics()))
	} else {
		r.Use(RequestLogger(nil))
	}
	r.Use(RateLimitMiddleware())
	r.Use(TimeoutMiddleware(30 * time.Second))
	r.Use(CORSMiddleware())

	if meta.StartedAt.IsZero() {
		meta.StartedAt = time.Now()
	}

	s := &Server{
		Router:  r,
		Engine:  engine,
		OMS:     store,
		Metrics: metrics,
		Meta:    meta,
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.Router.GET("/health", s.health)
	s.Router.GET("/ws", s.websocket)

	api := s.Router.Group("/api")
	{
		api.GET("/system/status", s.getSystemStatus)
		api.GET("/metrics", s.getMetrics)

		api.GET("/orders", s.getOrders)
		api.GET("/orders/active", s.getActiveOrders)
		api.GET("/trades", s.getTrades)
		api.GET("/positions", s.getPositions)
		api.GET("/account", s.getAccount)

		api.POST("/signal", s.postSignal)
	}
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) getSystemStatus(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"venue":          s.Meta.Venue,
		"symbols":        s.Meta.Symbols,
		"use_mock_feed":  s.Meta.UseMockFeed,
		"version":        s.Meta.Version,
		"uptime_seconds": time.Since(s.Meta.StartedAt).Seconds(),
		"queue_depth":    s.Engine.QueueLen(),
	})
}

func (s *Server) getMetrics(c *gin.Context) {
	if s.Metrics == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "metrics not enabled"})
		return
	}
	c.JSON(http.StatusOK, s.Metrics.Snapshot())
}

func (s *Server) getOrders(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"orders": s.OMS.GetAllOrders()})
}

func (s *Server) getActiveOrders(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"orders": s.OMS.GetAllActiveOrders()})
}

func (s *Server) getTrades(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"trades": s.OMS.GetAllTrades()})
}

func (s *Server) getPositions(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"positions": s.OMS.GetAllPositions()})
}

func (s *Server) getAccount(c *gin.Context) {
	account, ok := s.OMS.GetAccount()
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "no account snapshot yet"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"account_id": account.AccountID,
		"balance":    account.Balance,
		"frozen":     account.Frozen,
		"available":  account.Available(),
	})
}

// postSignal validates an external decision set and publishes it as an
// eSignal event. Dispatch to strategies happens on the engine thread; the
// response only acknowledges queueing.
func (s *Server) postSignal(c *gin.Context) {
	var signal strategy.Signal
	if err := c.ShouldBindJSON(&signal); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid signal payload", "detail": err.Error()})
		return
	}
	if len(signal) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "signal is empty"})
		return
	}
	if err := signal.Validate(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	s.Engine.Put(events.Event{Type: events.EventSignal, Data: signal})
	c.JSON(http.StatusAccepted, gin.H{"status": "queued", "symbols": len(signal)})
}

// Start blocks serving HTTP on addr.
func (s *Server) Start(addr string) error {
	return s.Router.Run(addr)
}
