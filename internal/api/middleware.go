package api

import (
	"context"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"trading-runtime/internal/monitor"
)

// clientLimiter pairs a caller's token bucket with its last activity, so
// idle entries can be pruned.
type clientLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// limiterPool hands out one rate limiter per client IP. Pruning happens
// inline when the pool grows past pruneAbove; no background goroutine.
type limiterPool struct {
	mu         sync.Mutex
	clients    map[string]*clientLimiter
	idleAfter  time.Duration
	pruneAbove int
}

var limiters = &limiterPool{
	clients:    make(map[string]*clientLimiter),
	idleAfter:  5 * time.Minute,
	pruneAbove: 1000,
}

func (p *limiterPool) get(ip string) *rate.Limiter {
	now := time.Now()
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.clients) > p.pruneAbove {
		for key, client := range p.clients {
			if now.Sub(client.lastSeen) > p.idleAfter {
				delete(p.clients, key)
			}
		}
	}

	client, ok := p.clients[ip]
	if !ok {
		// 20 req/s per IP, burst 50.
		client = &clientLimiter{limiter: rate.NewLimiter(rate.Limit(20), 50)}
		p.clients[ip] = client
	}
	client.lastSeen = now
	return client.limiter
}

// CORSMiddleware allows browser dashboards on other origins to call the API.
func CORSMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, Authorization, Cache-Control, X-Requested-With")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT, DELETE")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

// RequestIDMiddleware tags each request with an id, honoring one supplied by
// the client, and echoes it back in the response header.
func RequestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader("X-Request-ID")
		if requestID == "" {
			requestID = uuid.NewString()
		}
		c.Set("RequestID", requestID)
		c.Writer.Header().Set("X-Request-ID", requestID)
		c.Next()
	}
}

// RateLimitMiddleware rejects callers that exceed their per-IP budget.
func RateLimitMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		ip := c.ClientIP()
		if !limiters.get(ip).Allow() {
			log.Printf("api: rate limit exceeded for %s", ip)
			c.JSON(http.StatusTooManyRequests, gin.H{
				"error":   "rate limit exceeded",
				"message": "too many requests, please slow down",
			})
			c.Abort()
			return
		}
		c.Next()
	}
}

// TimeoutMiddleware bounds how long a handler may run. The handler chain
// executes on its own goroutine; whichever of completion, panic or deadline
// happens first decides the response.
func TimeoutMiddleware(timeout time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), timeout)
		defer cancel()
		c.Request = c.Request.WithContext(ctx)

		finished := make(chan struct{})
		panicked := make(chan any, 1)
		go func() {
			defer func() {
				if p := recover(); p != nil {
					panicked <- p
				}
			}()
			c.Next()
			close(finished)
		}()

		select {
		case <-finished:
		case p := <-panicked:
			log.Printf("api: handler panic on %s %s: %v", c.Request.Method, c.Request.URL.Path, p)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
			c.Abort()
		case <-ctx.Done():
			log.Printf("api: request timeout on %s %s", c.Request.Method, c.Request.URL.Path)
			c.JSON(http.StatusRequestTimeout, gin.H{
				"error":   "request timeout",
				"message": "request took too long to process",
			})
			c.Abort()
		}
	}
}

// RequestLogger logs each request with timing and status and, when metrics
// are enabled, feeds the API counters and latency histogram.
func RequestLogger(metrics *monitor.SystemMetrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		method := c.Request.Method

		c.Next()

		latency := time.Since(start)
		status := c.Writer.Status()

		if metrics != nil {
			metrics.IncrementAPI()
			metrics.APILatency.RecordDuration(latency)
			if status >= 400 {
				metrics.IncrementAPIErrors()
			}
		}

		requestID := c.GetString("RequestID")
		if len(requestID) > 8 {
			requestID = requestID[:8]
		}
		if requestID == "" {
			requestID = "-"
		}
		log.Printf("api: %s | %s %s | %d | %v | %s",
			requestID, method, path, status, latency, c.ClientIP())
	}
}
