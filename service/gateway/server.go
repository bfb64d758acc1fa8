package gateway

import (
	"context"
	"fmt"
	"net/http"

	"RTGateway/logger"
	"RTGateway/middleware"
	"RTGateway/tools/safe"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Server hosts the websocket endpoint plus diagnostics routes on gin.
type Server struct {
	g    *Gateway
	http *http.Server
}

func NewServer(g *Gateway, port int) *Server {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery(), middleware.Origin())

	s := &Server{g: g}
	engine.GET("/ws", s.handleWS)
	engine.GET("/healthz", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"ok": true}) })
	engine.GET("/routes", func(c *gin.Context) { c.JSON(http.StatusOK, g.reg.List()) })
	engine.GET("/stats", func(c *gin.Context) {
		snap := statsSnapshot()
		snap["gateway.connections.live"] = int64(g.conns.Count())
		c.JSON(http.StatusOK, snap)
	})

	s.http = &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: engine}
	return s
}

func (s *Server) handleWS(c *gin.Context) {
	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logger.Infof("[server] websocket upgrade failed: %v", err)
		return
	}
	safe.Go(func() { s.g.HandleConnection(ws) })
}

// Run blocks serving until Shutdown; returns nil on clean shutdown.
func (s *Server) Run() error {
	logger.Infof("[server] gateway listening on %s", s.http.Addr)
	if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown stops accepting new connections, then closes live ones.
func (s *Server) Shutdown(ctx context.Context) error {
	err := s.http.Shutdown(ctx)
	s.g.Close()
	return err
}
