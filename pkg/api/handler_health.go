package api

import (
	"context"
	"net/http"
	"time"

	echo "github.com/labstack/echo/v5"

	"github.com/coglab/cognition-engine/pkg/database"
	"github.com/coglab/cognition-engine/pkg/version"
)

// healthzHandler handles GET /healthz: process liveness only.
func (s *Server) healthzHandler(c *echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

// readyzHandler handles GET /readyz: configuration loaded and, when a
// database backs the store, the database reachable.
func (s *Server) readyzHandler(c *echo.Context) error {
	if s.dbClient == nil {
		return c.JSON(http.StatusOK, map[string]any{"status": "ready", "store": "memory"})
	}

	reqCtx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	health, err := database.Health(reqCtx, s.dbClient.DB().DB)
	if err != nil {
		return c.JSON(http.StatusServiceUnavailable, map[string]any{
			"status": "not ready", "database": health, "error": err.Error(),
		})
	}
	return c.JSON(http.StatusOK, map[string]any{"status": "ready", "database": health})
}

// versionHandler handles GET /version.
func (s *Server) versionHandler(c *echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"app":     version.AppName,
		"version": version.Full(),
		"commit":  version.GitCommit,
	})
}
