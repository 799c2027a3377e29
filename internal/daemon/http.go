package daemon

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/runnerr0/tabsentry/internal/settings"
	"github.com/runnerr0/tabsentry/internal/tabs"
)

// NewRouter builds the HTTP API. ws, if non-nil, serves the bridge at /ws.
func NewRouter(d *Daemon, ws http.Handler, maxBody int64) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	if maxBody > 0 {
		router.Use(limitBody(maxBody))
	}

	api := router.Group("/api/v1")
	{
		api.POST("/commands", d.postCommand)
		api.GET("/status", d.getStatus)
		api.GET("/closed-tabs", d.getClosedTabs)
		api.GET("/settings", d.getSettings)
		api.PUT("/settings", d.putSettings)
	}

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	if ws != nil {
		router.GET("/ws", gin.WrapH(ws))
	}
	return router
}

func limitBody(n int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.Body != nil {
			c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, n)
		}
		c.Next()
	}
}

// httpStatus maps a command error onto a status code.
func httpStatus(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrBadCommand), errors.Is(err, settings.ErrInvalid):
		return http.StatusBadRequest
	case errors.Is(err, ErrPingFailed), errors.Is(err, tabs.ErrNoBrowser):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func (d *Daemon) respond(c *gin.Context, data interface{}, err error) {
	if err != nil {
		c.JSON(httpStatus(err), Response{OK: false, Error: err.Error()})
		return
	}
	c.JSON(http.StatusOK, Response{OK: true, Data: data})
}

func (d *Daemon) postCommand(c *gin.Context) {
	var cmd Command
	if err := c.ShouldBindJSON(&cmd); err != nil {
		c.JSON(http.StatusBadRequest, Response{OK: false, Error: "invalid command: " + err.Error()})
		return
	}
	data, err := d.execute(c.Request.Context(), cmd)
	d.respond(c, data, err)
}

func (d *Daemon) getStatus(c *gin.Context) {
	c.JSON(http.StatusOK, Response{OK: true, Data: d.Status(c.Request.Context())})
}

func (d *Daemon) getClosedTabs(c *gin.Context) {
	data, err := d.execute(c.Request.Context(), Command{Name: CmdListClosedTabs, Filter: c.Query("q")})
	d.respond(c, data, err)
}

func (d *Daemon) getSettings(c *gin.Context) {
	c.JSON(http.StatusOK, Response{OK: true, Data: d.Settings.Get()})
}

// putSettings applies the body as a patch over the current settings.
func (d *Daemon) putSettings(c *gin.Context) {
	var p settings.Patch
	if err := c.ShouldBindJSON(&p); err != nil {
		c.JSON(http.StatusBadRequest, Response{OK: false, Error: "invalid settings: " + err.Error()})
		return
	}
	data, err := d.execute(c.Request.Context(), Command{Name: CmdSaveSettings, Settings: &p})
	d.respond(c, data, err)
}

// HTTPServer serves the router on the daemon address.
type HTTPServer struct {
	server *http.Server
	logger *slog.Logger
}

// NewHTTPServer creates a server for handler on addr.
func NewHTTPServer(addr string, handler http.Handler, logger *slog.Logger) *HTTPServer {
	return &HTTPServer{
		server: &http.Server{
			Addr:              addr,
			Handler:           handler,
			ReadHeaderTimeout: 10 * time.Second,
		},
		logger: logger,
	}
}

// Start serves until Shutdown. It returns nil after a graceful shutdown.
func (s *HTTPServer) Start() error {
	s.logger.Info("HTTP server starting", "addr", s.server.Addr)
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting requests and waits for in-flight ones.
func (s *HTTPServer) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}
