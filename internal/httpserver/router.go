package httpserver

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/codezest-academy/codezest-notifications/pkg/metrics"
	"github.com/codezest-academy/codezest-notifications/pkg/rbac"
)

type Router struct {
	Engine *gin.Engine
}

// NewRouter wires the dispatch and operator endpoints. db may be nil for
// deployments without a readiness dependency on PostgreSQL.
func NewRouter(handler *NotificationHandler, jwtSecret string, db *pgxpool.Pool) *Router {
	r := gin.New()
	r.Use(gin.Recovery(), TraceID(), requestMetrics())

	// Health endpoints
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.HEAD("/healthz", func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	r.GET("/readyz", func(c *gin.Context) {
		if db != nil {
			ctx, cancel := context.WithTimeout(c.Request.Context(), 1*time.Second)
			defer cancel()

			if err := db.Ping(ctx); err != nil {
				c.JSON(http.StatusInternalServerError, gin.H{"status": "db_not_ready", "error": err.Error()})
				return
			}
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := r.Group("/api", AuthRequired(jwtSecret))
	{
		api.POST("/notifications",
			RequirePermission(rbac.PermissionSendNotification), handler.Send)
		api.POST("/notifications/:id/cancel",
			RequirePermission(rbac.PermissionCancelNotification), handler.Cancel)

		admin := api.Group("/admin")
		admin.GET("/dead-letters",
			RequirePermission(rbac.PermissionReadDeadLetters), handler.DeadLetters)
		admin.POST("/dead-letters/:id/replay",
			RequirePermission(rbac.PermissionReplayDeadLetters), handler.Replay)
	}

	return &Router{Engine: r}
}

func (r *Router) Run(port string) error {
	return r.Engine.Run(port)
}

func requestMetrics() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		metrics.RecordHTTPRequestDuration(
			c.Request.Method,
			c.FullPath(),
			strconv.Itoa(c.Writer.Status()),
			time.Since(start),
		)
	}
}

func parseID(id string) (uuid.UUID, error) {
	return uuid.Parse(id)
}
