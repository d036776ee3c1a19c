// Package admin is the supplemental loopback HTTP surface of
// SPEC_FULL.md §6/§11: a second front door onto the Command Bus (C11)
// for an operator who wants read-only status/metrics and authenticated
// command submission over HTTP instead of only the file-drop path.
// Disabled by default and never started unless cfg.Enabled.
//
// Grounded on the teacher's api/tactics.go Server/gin.Context handler
// shape (userID pulled from context by a prior middleware, gin.H JSON
// responses), generalized from the teacher's per-user tactic CRUD to a
// single-operator status/command surface since this system has no
// multi-tenant concept.
package admin

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/gorilla/websocket"
	"github.com/pquerna/otp/totp"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/crypto/bcrypt"

	"github.com/realmrhigh/hightrade/cmdbus"
	"github.com/realmrhigh/hightrade/config"
	"github.com/realmrhigh/hightrade/log"
	"github.com/realmrhigh/hightrade/metrics"
	"github.com/realmrhigh/hightrade/notify"
)

const (
	tokenTTL          = 15 * time.Minute
	commandTimeout    = 10 * time.Second
	jwtClaimSubject   = "hightrade-admin"
)

// StatusFunc supplies the scheduler's current snapshot without this
// package importing scheduler directly — the scheduler already depends
// on nothing in admin, and keeping the dependency one-directional keeps
// the admin bridge a pure consumer of state someone else owns.
type StatusFunc func() map[string]any

// Server wraps the gin engine and every dependency a route needs.
type Server struct {
	cfg    config.AdminBridgeConfig
	bus    *cmdbus.Bus
	sink   *notify.Sink
	status StatusFunc
	engine *gin.Engine
}

// New builds the admin HTTP server. It does not start listening —
// call Run to do that, typically from its own goroutine in main.
func New(cfg config.AdminBridgeConfig, bus *cmdbus.Bus, sink *notify.Sink, status StatusFunc) *Server {
	gin.SetMode(gin.ReleaseMode)
	s := &Server{cfg: cfg, bus: bus, sink: sink, status: status, engine: gin.New()}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.engine.GET("/healthz", s.handleHealthz)
	s.engine.POST("/auth", s.handleAuth)

	authed := s.engine.Group("/")
	authed.Use(s.requireBearer)
	authed.GET("/status", s.handleStatus)
	authed.GET("/metrics", s.handleMetrics)
	authed.POST("/command", s.handleCommand)
	authed.GET("/stream", s.handleStream)
}

// Run blocks serving on cfg.Addr until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{Addr: s.cfg.Addr, Handler: s.engine}
	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	}
}

func (s *Server) handleHealthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// handleAuth exchanges a valid TOTP code plus the shared admin token
// for a short-lived JWT. Both factors must check out: the TOTP proves
// possession of the enrolled authenticator, the bcrypt-compared token
// proves knowledge of the shared operator credential.
func (s *Server) handleAuth(c *gin.Context) {
	var req struct {
		Code  string `json:"code" binding:"required"`
		Token string `json:"admin_token" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: " + err.Error()})
		return
	}

	if err := bcrypt.CompareHashAndPassword([]byte(s.cfg.AdminTokenHash), []byte(req.Token)); err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid admin token"})
		return
	}
	if !totp.Validate(req.Code, s.cfg.TOTPSecret) {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid TOTP code"})
		return
	}

	claims := jwt.RegisteredClaims{
		Subject:   jwtClaimSubject,
		Issuer:    s.cfg.TOTPIssuer,
		IssuedAt:  jwt.NewNumericDate(time.Now()),
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(tokenTTL)),
	}
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := tok.SignedString([]byte(s.cfg.JWTSecret))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to issue token"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"token": signed, "expires_in_seconds": int(tokenTTL.Seconds())})
}

// requireBearer validates the Authorization: Bearer <jwt> header minted
// by handleAuth. Every route but /healthz and /auth sits behind this.
func (s *Server) requireBearer(c *gin.Context) {
	header := c.GetHeader("Authorization")
	raw := strings.TrimPrefix(header, "Bearer ")
	if raw == "" || raw == header {
		// /stream can't set a custom header before the upgrade
		// handshake completes in every client, so it's also accepted
		// as a query parameter.
		raw = c.Query("token")
	}
	if raw == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing bearer token"})
		return
	}

	_, err := jwt.ParseWithClaims(raw, &jwt.RegisteredClaims{}, func(t *jwt.Token) (interface{}, error) {
		return []byte(s.cfg.JWTSecret), nil
	})
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid or expired token"})
		return
	}
	c.Next()
}

func (s *Server) handleStatus(c *gin.Context) {
	c.JSON(http.StatusOK, s.status())
}

func (s *Server) handleMetrics(c *gin.Context) {
	promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}).ServeHTTP(c.Writer, c.Request)
}

// handleCommand feeds the same Command Bus queue the file-drop CLI
// uses — this route is a second front door onto C11, not a parallel
// implementation of it.
func (s *Server) handleCommand(c *gin.Context) {
	var req struct {
		Command string `json:"command" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: " + err.Error()})
		return
	}

	if _, err := s.bus.Send(req.Command); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	resp, err := s.bus.WaitForResponse(commandTimeout)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if resp == nil {
		c.JSON(http.StatusGatewayTimeout, gin.H{"error": "no response from orchestrator — is it running?"})
		return
	}
	c.JSON(http.StatusOK, resp)
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Loopback-only surface (cfg.Addr is expected to bind 127.0.0.1);
	// any origin is accepted since there is no browser-facing deployment.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// handleStream upgrades to a websocket and pushes every notification
// Sink.Notify emits from here on — the same structured payload C13's
// webhook templates render from, as a live feed instead of a poll.
func (s *Server) handleStream(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Component("admin").Debug().Err(err).Msg("websocket upgrade failed")
		return
	}
	defer conn.Close()

	events, cancel := s.sink.Subscribe()
	defer cancel()

	for ev := range events {
		if err := conn.WriteJSON(ev); err != nil {
			return
		}
	}
}
