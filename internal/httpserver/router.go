package httpserver

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/DevNectorFoods/Email-Automation/internal/handler"
	"github.com/DevNectorFoods/Email-Automation/pkg/mq"
)

type Router struct {
	Engine *gin.Engine
}

func NewRouter(
	fetchHandler *handler.FetchHandler,
	accountHandler *handler.AccountHandler,
	emailQueryHandler *handler.EmailQueryHandler,
	jwtSecret string,
	db *pgxpool.Pool,
	publisher *mq.Publisher,
) *Router {
	r := gin.Default()
	r.Use(MetricsMiddleware())

	// Health endpoints (放在最前面)
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})
	r.HEAD("/healthz", func(c *gin.Context) {
		c.Status(200)
	})
	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})
	r.HEAD("/health", func(c *gin.Context) {
		c.Status(200)
	})

	r.GET("/readyz", func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c, 1*time.Second)
		defer cancel()

		if err := db.Ping(ctx); err != nil {
			c.JSON(500, gin.H{"status": "db_not_ready", "error": err.Error()})
			return
		}

		if publisher != nil && !publisher.IsConnected() {
			c.JSON(500, gin.H{"status": "mq_not_ready"})
			return
		}

		c.JSON(200, gin.H{"status": "ready"})
	})

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// Protected
	auth := r.Group("/")
	auth.Use(AuthMiddleware(jwtSecret))
	{
		auth.POST("/fetch", fetchHandler.TriggerFetch)
		auth.GET("/status", fetchHandler.GetStatus)
		auth.GET("/emails", emailQueryHandler.GetEmails)
		auth.GET("/emails/stats", emailQueryHandler.GetStats)
		auth.POST("/accounts", accountHandler.CreateAccount)
		auth.POST("/accounts/test", accountHandler.TestAccount)
		auth.GET("/accounts", accountHandler.ListAccounts)
	}

	return &Router{Engine: r}
}

func (r *Router) Run(port string) error {
	return r.Engine.Run(port)
}
