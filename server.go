package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/dmdcottage/sheets_backend/config"
	"github.com/dmdcottage/sheets_backend/controllers"
	"github.com/dmdcottage/sheets_backend/grid"
	"github.com/dmdcottage/sheets_backend/middlewares"
	"github.com/dmdcottage/sheets_backend/models"
	"github.com/dmdcottage/sheets_backend/utils"
	"github.com/dmdcottage/sheets_backend/workflow"
	"github.com/dmdcottage/sheets_backend/ws"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

const defaultPort = "8080"

// application holds everything the route handlers need. The fields are set
// once during startup, before ready flips; the readiness gate keeps traffic
// out until then.
type application struct {
	ready    atomic.Bool
	ctl      *controllers.Controller
	wsServer *ws.Server
}

func main() {
	godotenv.Load()

	port := os.Getenv("API_PORT")
	if port == "" {
		// Cloud Run standard env var.
		port = os.Getenv("PORT")
	}
	if port == "" {
		port = defaultPort
	}

	logger := config.NewLogger()

	// Cloud Run sends SIGTERM on revision shutdown; handle it for graceful drain.
	sigCtx, stopSignals := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stopSignals()

	app := &application{}

	// Start the HTTP server ASAP so the startup probe passes. Until the
	// database is ready, app endpoints answer 503.
	r := gin.New()

	// Correlation IDs: generate once per request and attach to context.
	r.Use(func(c *gin.Context) {
		cid := c.GetHeader("x-correlation-id")
		if cid == "" {
			cid = uuid.NewString()
		}
		c.Request = c.Request.WithContext(utils.SetCorrelationIdInContext(c.Request.Context(), cid))
		c.Next()
	})
	r.Use(func(c *gin.Context) {
		if c.Request.URL.Path == "/healthz" {
			c.Status(http.StatusNoContent)
			c.Abort()
			return
		}
		if !app.ready.Load() {
			c.AbortWithStatus(http.StatusServiceUnavailable)
			return
		}
		c.Next()
	})

	r.GET("/healthz", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	corsConfig := cors.DefaultConfig()
	// In production, require an explicit allowlist via CORS_ALLOWED_ORIGINS
	// (comma-separated). In non-production, allow all.
	allowedOrigins := strings.TrimSpace(os.Getenv("CORS_ALLOWED_ORIGINS"))
	if strings.EqualFold(strings.TrimSpace(os.Getenv("GO_ENV")), "production") {
		if allowedOrigins == "" {
			corsConfig.AllowOrigins = []string{}
		} else {
			corsConfig.AllowOrigins = splitAndTrim(allowedOrigins)
		}
	} else {
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AddAllowMethods("GET", "POST", "PUT", "DELETE", "OPTIONS")
	corsConfig.AddAllowHeaders("token", "Origin", "Content-Type", "Authorization")
	corsConfig.AddExposeHeaders("Content-Length")
	corsConfig.AllowCredentials = true
	r.Use(cors.New(corsConfig))

	r.Use(middlewares.AuthMiddleware())
	r.Use(customErrorLogger(logger))
	r.Use(gin.Recovery())

	api := r.Group("/api")
	{
		api.POST("/auth/login", func(c *gin.Context) { app.ctl.Login(c) })

		sheets := api.Group("/sheets/:sheetId")
		sheets.GET("", func(c *gin.Context) { app.ctl.GetSheet(c) })
		sheets.GET("/cells/:row/:column", func(c *gin.Context) { app.ctl.GetCell(c) })
		sheets.GET("/cells/:row/:column/history", func(c *gin.Context) { app.ctl.GetCellHistory(c) })

		mutating := sheets.Group("", middlewares.RequireAuth())
		mutating.PUT("/cells/:row/:column", func(c *gin.Context) { app.ctl.UpdateCell(c) })
		mutating.POST("/cells/batch", func(c *gin.Context) { app.ctl.BatchCells(c) })
		mutating.POST("/format", func(c *gin.Context) { app.ctl.FormatRange(c) })
		mutating.PUT("/report-date", func(c *gin.Context) { app.ctl.UpdateReportDate(c) })
		sheets.GET("/sources", func(c *gin.Context) { app.ctl.ListSources(c) })
		mutating.POST("/sources", func(c *gin.Context) { app.ctl.AddSource(c) })
		mutating.DELETE("/sources/:sourceSheetId", func(c *gin.Context) { app.ctl.DeleteSource(c) })

		api.POST("/reports", middlewares.RequireAuth(), func(c *gin.Context) { app.ctl.CreateReport(c) })
		api.POST("/webhooks/:webhookId", func(c *gin.Context) { app.ctl.HandleBookingWebhook(c) })
	}

	r.GET("/ws", middlewares.RequireAuth(), func(c *gin.Context) {
		userId, _ := utils.GetUserIdFromContext(c.Request.Context())
		userName, _ := utils.GetUserNameFromContext(c.Request.Context())
		app.wsServer.Serve(c, userId, userName)
	})

	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	})

	// Listen immediately; connect dependencies after the port is open.
	srv := &http.Server{
		Addr:    ":" + port,
		Handler: r,
	}
	serverErrCh := make(chan error, 1)
	go func() {
		// ListenAndServe returns http.ErrServerClosed on graceful shutdown.
		serverErrCh <- srv.ListenAndServe()
	}()

	db := config.OpenDatabase()
	sqlDB, _ := db.DB()
	defer func() {
		if sqlDB != nil {
			_ = sqlDB.Close()
		}
	}()

	// IMPORTANT: AutoMigrate can run DDL that blocks tables. Allow disabling
	// migrations on startup and running them as a separate job instead.
	if !strings.EqualFold(strings.TrimSpace(os.Getenv("SKIP_MIGRATIONS")), "true") {
		models.MigrateTable(db)
	} else {
		logger.WithFields(logrus.Fields{"field": "migrations"}).Warn("SKIP_MIGRATIONS=true; skipping AutoMigrate on startup")
	}

	setIsolationLevel(db, logger)

	redisDb := config.ConnectRedis()

	hub := ws.NewHub()
	go hub.Run()

	store := grid.NewStore(db, logger)
	pipeline := workflow.NewPipeline(db, logger, store, redisDb)

	app.ctl = controllers.New(db, logger, store, pipeline)
	app.wsServer = &ws.Server{
		Hub:    hub,
		Logger: logger,
		CanRead: func(ctx context.Context, userId, sheetId int) (bool, error) {
			var sheet models.Sheet
			if err := db.WithContext(ctx).First(&sheet, sheetId).Error; err != nil {
				return false, err
			}
			canRead, _, err := models.SheetAccess(db.WithContext(ctx), userId, &sheet)
			return canRead, err
		},
	}
	app.ready.Store(true)

	logger.WithFields(logrus.Fields{
		"info": "Connection Established",
	}).Info("listening on http://localhost:", port, "/")
	log.Println("Server started successfully")

	// Block until shutdown or server error.
	select {
	case <-sigCtx.Done():
		// graceful shutdown below
	case err := <-serverErrCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithFields(logrus.Fields{"field": "http"}).Error("server stopped unexpectedly: " + err.Error())
		}
	}

	// Drain HTTP requests.
	shutdownTimeout := 30 * time.Second
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.WithFields(logrus.Fields{"field": "http"}).Error("graceful shutdown failed: " + err.Error())
	}

	redisDb.Close()
}

// setIsolationLevel sets the session isolation level to READ COMMITTED,
// retrying with backoff until it sticks.
func setIsolationLevel(db *gorm.DB, logger *logrus.Logger) {
	for attempt := 1; ; attempt++ {
		err := db.Exec("SET SESSION TRANSACTION ISOLATION LEVEL READ COMMITTED").Error
		if err == nil {
			return
		}
		sleep := time.Second * time.Duration(1<<min(attempt, 5))
		if sleep > 30*time.Second {
			sleep = 30 * time.Second
		}
		logger.WithFields(logrus.Fields{
			"field":   "database",
			"attempt": attempt,
		}).Warn("failed to set isolation level; retrying in " + sleep.String() + ": " + err.Error())
		time.Sleep(sleep)
	}
}

// customErrorLogger is a custom Gin middleware that logs only errors
func customErrorLogger(logger *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		// Only log when there are errors
		if len(c.Errors) > 0 {
			logger.Error(c.Errors.String())
		}
	}
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func splitAndTrim(csv string) []string {
	if strings.TrimSpace(csv) == "" {
		return nil
	}
	parts := strings.Split(csv, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
