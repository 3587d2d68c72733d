// Package web serves the dashboard, the JSON API, the token update flow,
// metrics and the live report websocket.
package web

import (
	"context"
	"errors"
	"log"
	"net/http"
	"time"

	"BollWatch/internal/model"
	"BollWatch/internal/scanner"
	"BollWatch/internal/store"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Runner starts manual scans.
type Runner interface {
	Trigger(trigger model.Trigger) error
	State() scanner.State
}

// Schedule exposes the daily scan schedule.
type Schedule interface {
	Reschedule(spec string) error
	Spec() string
	NextRun() time.Time
}

// TokenStore reads and replaces the quote API credential.
type TokenStore interface {
	Current() model.Credential
	Update(token string) (model.Credential, error)
}

// Deps are the collaborators the server needs. Schedule, Hub and Gatherer
// are optional.
type Deps struct {
	Runner   Runner
	Store    store.Store
	Schedule Schedule
	Tokens   TokenStore
	Auth     *Auth
	Hub      *Hub
	Gatherer prometheus.Gatherer
	Title    string
}

type Server struct {
	Engine *gin.Engine
	deps   Deps
	http   *http.Server
}

func NewServer(addr string, d Deps) *Server {
	if d.Auth == nil {
		d.Auth = NewAuth(AuthConfig{})
	}
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(gin.LoggerWithConfig(gin.LoggerConfig{
		Output:    log.Writer(),
		SkipPaths: []string{"/health", "/metrics"},
	}))

	s := &Server{
		Engine: router,
		deps:   d,
		http: &http.Server{
			Addr:              addr,
			Handler:           router,
			ReadHeaderTimeout: 10 * time.Second,
		},
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	r := s.Engine
	r.GET("/health", s.health)
	r.GET("/", s.dashboard)
	r.GET("/token", s.tokenPage)

	api := r.Group("/api")
	api.GET("/report", s.getReport)
	api.GET("/status", s.status)
	api.POST("/trigger", s.trigger)
	api.POST("/login", s.login)

	authed := api.Group("", s.deps.Auth.RequireSession())
	authed.POST("/token", s.updateToken)
	authed.PUT("/schedule", s.reschedule)

	if s.deps.Gatherer != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.deps.Gatherer, promhttp.HandlerOpts{})))
	}
	if s.deps.Hub != nil {
		r.GET("/ws", gin.WrapF(s.deps.Hub.ServeWS))
	}
}

// Start serves HTTP until Shutdown is called.
func (s *Server) Start(ctx context.Context) error {
	go s.sweepLogins(ctx)
	log.Printf("[INFO] web server listening on %s", s.http.Addr)
	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting requests and waits for in-flight ones.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.deps.Hub != nil {
		s.deps.Hub.Close()
	}
	return s.http.Shutdown(ctx)
}

func (s *Server) sweepLogins(ctx context.Context) {
	ticker := time.NewTicker(10 * time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.deps.Auth.limiter.cleanup()
		}
	}
}
