package ws

import (
	"fmt"
	"log/slog"
	"net/http"

	"yappuccino/server/internal/core"
	"yappuccino/server/internal/history"
	"yappuccino/server/internal/metrics"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
)

// Admission rejection bodies. Clients display these verbatim.
const (
	msgInvalidName      = "Nombre de usuario inválido"
	msgAlreadyConnected = "Usuario ya conectado"
)

// Handler owns websocket admission and transport for the chat service.
type Handler struct {
	dir     *core.Directory
	router  *core.Router
	hist    *history.Store
	sendBuf int

	upgrader websocket.Upgrader
}

// NewHandler creates a websocket handler bound to the user directory.
func NewHandler(dir *core.Directory, router *core.Router, hist *history.Store, sendBuf int) *Handler {
	return &Handler{
		dir:     dir,
		router:  router,
		hist:    hist,
		sendBuf: sendBuf,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(_ *http.Request) bool { return true },
		},
	}
}

// Register binds the chat route on an Echo router.
func (h *Handler) Register(e *echo.Echo) {
	e.GET("/", h.HandleChat)
}

// HandleChat admits one user by name, upgrades the request and serves
// the connection until disconnect. A plain GET with a free name acts as
// a pre-flight and returns 200 without upgrading.
func (h *Handler) HandleChat(c echo.Context) error {
	name := c.QueryParam("name")
	if name == "" || name == publicAlias {
		metrics.AdmissionRejected.WithLabelValues("invalid_name").Inc()
		slog.Warn("connection rejected", "reason", "invalid name", "remote", c.RealIP())
		return c.String(http.StatusBadRequest, msgInvalidName)
	}
	if h.dir.HasLive(name) {
		metrics.AdmissionRejected.WithLabelValues("duplicate_name").Inc()
		slog.Warn("connection rejected", "reason", "name taken", "user", name, "remote", c.RealIP())
		return c.String(http.StatusBadRequest, msgAlreadyConnected)
	}
	if !websocket.IsWebSocketUpgrade(c.Request()) {
		return c.NoContent(http.StatusOK)
	}

	ws, err := h.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		metrics.AdmissionRejected.WithLabelValues("upgrade_failed").Inc()
		return fmt.Errorf("upgrade websocket: %w", err)
	}

	newSession(h, ws, name, c.Request().RemoteAddr).run()
	return nil
}
