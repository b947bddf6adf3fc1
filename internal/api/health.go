package api

import (
	"net/http"
	"runtime"
	"time"

	"ai-chat-app/backend/pkg/health"

	"github.com/gin-gonic/gin"
)

var startTime = time.Now()

// SystemHandler serves the unauthenticated service endpoints
type SystemHandler struct {
	checker *health.Checker
	env     string
	name    string
}

// NewSystemHandler creates a new system handler
func NewSystemHandler(checker *health.Checker, name, env string) *SystemHandler {
	return &SystemHandler{checker: checker, env: env, name: name}
}

// RegisterRoutes registers the root info and health routes
func (h *SystemHandler) RegisterRoutes(router gin.IRoutes) {
	router.GET("/", h.Root)
	router.GET("/health", h.Health)
}

// Root handles GET /
func (h *SystemHandler) Root(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"message":     h.name + " is running",
		"environment": h.env,
		"timestamp":   time.Now().UTC().Format(time.RFC3339),
	})
}

// Health handles GET /health; 503 when a critical component is down
func (h *SystemHandler) Health(c *gin.Context) {
	h.checker.RunChecks(c.Request.Context())

	status, code := "ok", http.StatusOK
	switch h.checker.Overall() {
	case health.StatusDown:
		status, code = "unhealthy", http.StatusServiceUnavailable
	case health.StatusDegraded:
		status = "degraded"
	}

	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	c.JSON(code, gin.H{
		"status":     status,
		"timestamp":  time.Now().UTC().Format(time.RFC3339),
		"uptime":     time.Since(startTime).Round(time.Second).String(),
		"components": h.checker.GetStatus(),
		"memory": gin.H{
			"alloc_mb":  mem.Alloc / 1024 / 1024,
			"sys_mb":    mem.Sys / 1024 / 1024,
			"gc_cycles": mem.NumGC,
		},
	})
}
