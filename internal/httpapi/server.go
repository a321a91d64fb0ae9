package httpapi

import (
	"context"
	"errors"
	"net/http"
	"time"

	"yappuccino/server/internal/core"
	"yappuccino/server/internal/ws"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Server is the Echo application.
type Server struct {
	echo *echo.Echo
	dir  *core.Directory
}

// New constructs an Echo app with the chat websocket route plus the
// operational REST endpoints.
func New(dir *core.Directory, chat *ws.Handler) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())

	s := &Server{echo: e, dir: dir}
	s.registerRoutes(chat)
	return s
}

// Echo exposes the underlying Echo instance for tests.
func (s *Server) Echo() *echo.Echo {
	return s.echo
}

func (s *Server) registerRoutes(chat *ws.Handler) {
	s.echo.GET("/health", s.handleHealth)
	s.echo.GET("/api/state", s.handleState)
	s.echo.GET("/metrics", echo.WrapHandler(promhttp.Handler()))
	chat.Register(s.echo)
}

// Run starts Echo and blocks until ctx cancellation or startup failure.
func (s *Server) Run(ctx context.Context, addr string) error {
	errCh := make(chan error, 1)
	go func() {
		err := s.echo.Start(addr)
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.echo.Shutdown(shutCtx)
		return nil
	}
}

type healthResponse struct {
	Status  string `json:"status"`
	Clients int    `json:"clients"`
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, healthResponse{
		Status:  "ok",
		Clients: s.dir.ClientCount(),
	})
}

type stateUser struct {
	Name    string `json:"name"`
	State   string `json:"state"`
	Address string `json:"address,omitempty"`
}

type stateResponse struct {
	Clients int         `json:"clients"`
	Users   []stateUser `json:"users"`
}

// handleState reports every directory record, disconnected ones
// included, for operators poking at presence.
func (s *Server) handleState(c echo.Context) error {
	members := s.dir.Snapshot()
	users := make([]stateUser, 0, len(members))
	clients := 0
	for _, m := range members {
		if m.State != core.StateDisconnected {
			clients++
		}
		users = append(users, stateUser{
			Name:    m.Name,
			State:   m.State.String(),
			Address: m.Addr,
		})
	}
	return c.JSON(http.StatusOK, stateResponse{
		Clients: clients,
		Users:   users,
	})
}
