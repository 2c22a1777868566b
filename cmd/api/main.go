package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"beacontrack/internal/auth"
	"beacontrack/internal/config"
	"beacontrack/internal/httpmiddleware"
	"beacontrack/internal/queue"
	"beacontrack/internal/roster"
	"beacontrack/internal/stats"
	"beacontrack/internal/store"
)

func main() {
	if _, err := os.Stat(".env"); err == nil {
		if err := godotenv.Load(); err != nil {
			log.Printf("warning: .env load failed: %v", err)
		}
	}
	cfg := config.Load()

	if cfg.Env == "production" || cfg.Env == "prod" {
		gin.SetMode(gin.ReleaseMode)
	}

	if err := runHTTP(cfg); err != nil {
		log.Fatalf("http server failed: %v", err)
	}
}

func runHTTP(cfg config.App) error {
	var (
		rosterStore roster.Store
		db          *store.DB
	)
	if cfg.StoreBackend == "memory" {
		rosterStore = roster.NewMemStore()
		log.Println("using in-memory store")
	} else {
		var err error
		db, err = store.NewDB(cfg.DatabaseURL)
		if err != nil {
			return err
		}
		defer db.Close()
		rosterStore = roster.NewRepository(db.Client)
	}

	redisClient := store.NewRedis(cfg.RedisAddr)

	var q queue.Queue
	if cfg.QueueBackend == "memory" {
		q = queue.NewInMemory(64)
	} else {
		q = queue.NewRedisQueue(redisClient.Client, "beacontrack:syncs")
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(gin.LoggerWithConfig(gin.LoggerConfig{
		SkipPaths: []string{"/healthz", "/metrics"},
	}))
	r.Use(corsMiddleware())
	r.Use(httpmiddleware.NewSimpleTokenBucket(cfg.RateLimitPerMin, cfg.RateLimitPerMin).GinMiddleware())

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	r.GET("/healthz", func(c *gin.Context) {
		redisHealthy := redisClient.Healthy(c.Request.Context())
		dbHealthy := db == nil || db.Client.PingContext(c.Request.Context()) == nil
		status := http.StatusOK
		if !redisHealthy || !dbHealthy {
			status = http.StatusServiceUnavailable
		}
		c.JSON(status, gin.H{"status": "ok", "redis": redisHealthy, "db": dbHealthy})
	})

	r.POST("/v1/students/register", func(c *gin.Context) {
		var req struct {
			Username string `json:"username" binding:"required"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		student, err := rosterStore.CreateStudent(c.Request.Context(), req.Username, time.Now().UTC())
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		tokens, err := auth.Issue(strconv.FormatInt(student.ID, 10), "student", cfg.JWTIssuer, cfg.JWTSigningKey, cfg.AccessTTL, cfg.RefreshTTL)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "token issue failed"})
			return
		}

		c.JSON(http.StatusCreated, gin.H{
			"student":       student,
			"access_token":  tokens.AccessToken,
			"refresh_token": tokens.RefreshToken,
			"expires_at":    tokens.AccessExp.Unix(),
		})
	})

	// Read-only room inventory, mirroring the beacon installation views.
	r.GET("/v1/buildings", func(c *gin.Context) {
		listHandler(c, func(ctx context.Context) (any, error) {
			v, err := rosterStore.ListBuildings(ctx)
			return v, err
		}, "buildings")
	})
	r.GET("/v1/rooms", func(c *gin.Context) {
		listHandler(c, func(ctx context.Context) (any, error) {
			v, err := rosterStore.ListRooms(ctx)
			return v, err
		}, "rooms")
	})
	r.GET("/v1/beacons", func(c *gin.Context) {
		listHandler(c, func(ctx context.Context) (any, error) {
			v, err := rosterStore.ListBeacons(ctx)
			return v, err
		}, "beacons")
	})

	authGroup := r.Group("/v1", auth.StudentAuth(cfg.JWTSigningKey, cfg.JWTIssuer))

	authGroup.POST("/sync", func(c *gin.Context) {
		student, ok := authedStudent(c, rosterStore)
		if !ok {
			return
		}
		job := queue.Job{StudentID: student.ID, Username: student.Username}
		if err := q.Publish(c.Request.Context(), job); err != nil {
			log.Printf("queue publish failed: %v", err)
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "sync enqueue failed"})
			return
		}
		c.JSON(http.StatusAccepted, gin.H{"status": "queued"})
	})

	authGroup.GET("/attendance", func(c *gin.Context) {
		reportHandler(c, rosterStore, "")
	})

	authGroup.GET("/classes/:code/attendance", func(c *gin.Context) {
		reportHandler(c, rosterStore, c.Param("code"))
	})

	authGroup.POST("/attendance", func(c *gin.Context) {
		student, ok := authedStudent(c, rosterStore)
		if !ok {
			return
		}
		var req struct {
			InstanceID int64 `json:"instance_id" binding:"required"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		rec, err := rosterStore.RecordAttendance(c.Request.Context(), req.InstanceID, student.ID, time.Now().UTC(), false)
		if err != nil {
			if errors.Is(err, roster.ErrNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "instance not found"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusCreated, gin.H{"record": rec})
	})

	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("Starting server on :%s", cfg.HTTPPort)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server forced shutdown: %v", err)
	}

	log.Println("Server exited")
	return nil
}

func listHandler(c *gin.Context, load func(ctx context.Context) (any, error), key string) {
	v, err := load(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{key: v})
}

// authedStudent resolves the bearer token's subject to a student row.
func authedStudent(c *gin.Context, s roster.Store) (roster.Student, bool) {
	claimsAny, _ := c.Get("claims")
	claims, _ := claimsAny.(auth.Claims)
	id, err := strconv.ParseInt(claims.Subject, 10, 64)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid subject"})
		return roster.Student{}, false
	}
	student, err := s.StudentByID(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, roster.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "student not found"})
		} else {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		}
		return roster.Student{}, false
	}
	return student, true
}

// reportHandler computes percentage and streaks for one class or, with an
// empty code, across all of the student's classes merged by date.
func reportHandler(c *gin.Context, s roster.Store, classCode string) {
	student, ok := authedStudent(c, s)
	if !ok {
		return
	}
	facts, err := s.StudentInstances(c.Request.Context(), student.ID, classCode)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	report := stats.Compute(facts, student.RegisteredOn, time.Now().UTC())
	if report.Streaks == nil {
		report.Streaks = []stats.Streak{}
	}
	resp := gin.H{"percentage": report.Percentage, "streaks": report.Streaks}
	if classCode != "" {
		resp["class"] = classCode
	}
	c.JSON(http.StatusOK, resp)
}

// CORS middleware for browser requests
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")
		if origin == "" {
			origin = "*"
		}

		c.Header("Access-Control-Allow-Origin", origin)
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, Authorization")
		c.Header("Access-Control-Allow-Credentials", "true")
		c.Header("Access-Control-Max-Age", "86400")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}
