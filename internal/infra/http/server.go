// Package http exposes the certificate registry over a JSON API. Issuer
// endpoints are tenant-scoped via the X-Tenant-ID header; verification is
// public and rate limited.
package http

import (
	"net/http"
	"time"

	"certledger/internal/config"
	"certledger/internal/domain"
	"certledger/internal/infra/ratelimit"
	"certledger/internal/usecase"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

type Server struct {
	cfg config.Config
	r   *gin.Engine

	issueUC  *usecase.IssueCertificate
	verifyUC *usecase.VerifyCertificate
	statusUC *usecase.StatusService

	index    domain.CertificateIndex
	recorder domain.TransactionRecorder

	gatherer prometheus.Gatherer
	log      *logrus.Logger

	rateLimiter       domain.RateLimiter
	rateLimitRequests int
	rateLimitWindow   time.Duration

	healthcheck func() error
}

type ServerDeps struct {
	Issue  *usecase.IssueCertificate
	Verify *usecase.VerifyCertificate
	Status *usecase.StatusService

	Index    domain.CertificateIndex
	Recorder domain.TransactionRecorder

	Gatherer    prometheus.Gatherer
	Log         *logrus.Logger
	RateLimiter domain.RateLimiter

	// Healthcheck reports readiness of the backing stores; nil means
	// always ready.
	Healthcheck func() error
}

func NewServer(cfg config.Config, deps ServerDeps) *Server {
	r := gin.New()
	r.Use(gin.Recovery())

	s := &Server{
		cfg:         cfg,
		r:           r,
		issueUC:     deps.Issue,
		verifyUC:    deps.Verify,
		statusUC:    deps.Status,
		index:       deps.Index,
		recorder:    deps.Recorder,
		gatherer:    deps.Gatherer,
		log:         deps.Log,
		rateLimiter: deps.RateLimiter,
		healthcheck: deps.Healthcheck,
	}
	s.initRateLimit()
	s.routes()
	return s
}

func (s *Server) initRateLimit() {
	if s.rateLimiter == nil && s.cfg.RateLimitRequests > 0 {
		if s.cfg.RedisAddr != "" {
			client := redis.NewClient(&redis.Options{
				Addr:     s.cfg.RedisAddr,
				Password: s.cfg.RedisPassword,
				DB:       s.cfg.RedisDB,
			})
			if limiter, err := ratelimit.NewRedisLimiter(client, nil); err == nil {
				s.rateLimiter = limiter
			}
		}
		if s.rateLimiter == nil {
			s.rateLimiter = ratelimit.NewMemoryLimiter(s.cfg.RateLimitMaxKeys, nil)
		}
	}
	s.rateLimitRequests = s.cfg.RateLimitRequests
	s.rateLimitWindow = s.cfg.RateLimitWindow()
}

func (s *Server) routes() {
	s.r.GET("/healthz", s.handleHealthz)
	if s.gatherer != nil {
		s.r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{})))
	}

	v1 := s.r.Group("/v1")
	{
		v1.POST("/certificates", s.handleIssue)
		v1.GET("/certificates", s.handleList)
		v1.GET("/certificates/:number", s.handleGet)
		v1.GET("/certificates/:number/transactions", s.handleTransactions)
		v1.POST("/certificates/:number/status", s.handleStatusChange)
		v1.POST("/verify", s.handleVerify)
	}

	s.r.NoRoute(s.handleNoRoute)
}

func (s *Server) handleHealthz(c *gin.Context) {
	if s.healthcheck != nil {
		if err := s.healthcheck(); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "error": err.Error()})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// handleNoRoute dispatches colon-suffixed actions, which gin cannot
// register directly.
func (s *Server) handleNoRoute(c *gin.Context) {
	if c.Request.Method == http.MethodPost && c.Request.URL.Path == "/v1/certificates:batch" {
		s.handleIssueBatch(c)
		return
	}
	writeErrorCode(c, http.StatusNotFound, "NOT_FOUND", "route not found")
}

func (s *Server) Run() error {
	return s.r.Run(s.cfg.HTTPAddr)
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler {
	return s.r
}

func (s *Server) logger() *logrus.Logger {
	if s.log != nil {
		return s.log
	}
	return logrus.StandardLogger()
}
