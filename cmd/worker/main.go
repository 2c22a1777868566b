package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"beacontrack/internal/config"
	"beacontrack/internal/metrics"
	"beacontrack/internal/queue"
	"beacontrack/internal/roster"
	"beacontrack/internal/store"
	"beacontrack/internal/timetable"
	"beacontrack/internal/timetableclient"
)

// Worker consumes sync jobs, fetches raw timetable events from the
// provider, and reconciles them into the stored schedule.
func main() {
	if _, err := os.Stat(".env"); err == nil {
		if err := godotenv.Load(); err != nil {
			log.Printf("warning: .env load failed: %v", err)
		}
	}
	cfg := config.Load()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Println("shutdown signal received")
		cancel()
	}()

	var rosterStore roster.Store
	if cfg.StoreBackend == "memory" {
		rosterStore = roster.NewMemStore()
		log.Println("using in-memory store")
	} else {
		db, err := store.NewDB(cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("db connect failed: %v", err)
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

	provider := timetableclient.New(cfg.TimetableURL, cfg.TimetableSkip)
	if !cfg.TimetableSkip {
		if err := provider.Health(ctx); err != nil {
			log.Printf("WARNING: timetable provider not available: %v", err)
			log.Println("Worker will retry when jobs arrive")
		} else {
			log.Println("Timetable provider connected")
		}
	}

	reconciler := timetable.NewReconciler(rosterStore)

	jobs, err := q.Consume(ctx)
	if err != nil {
		log.Fatalf("queue consume init failed: %v", err)
	}

	log.Println("worker started, waiting for sync jobs...")
	for job := range jobs {
		log.Printf("syncing timetable for student %d (%s)", job.StudentID, job.Username)

		student, err := rosterStore.StudentByID(ctx, job.StudentID)
		if err != nil {
			log.Printf("student %d lookup failed: %v", job.StudentID, err)
			metrics.SyncFailures.Inc()
			continue
		}

		raw, err := provider.Events(ctx, student.Username)
		if err != nil {
			log.Printf("fetch events for %s failed: %v", student.Username, err)
			metrics.SyncFailures.Inc()
			continue
		}

		events, err := timetable.NormalizeEvents(raw)
		if err != nil {
			log.Printf("normalize events for %s failed: %v", student.Username, err)
			metrics.SyncFailures.Inc()
			continue
		}

		diff, err := reconciler.Reconcile(ctx, student, events)
		if err != nil {
			log.Printf("reconcile for %s failed: %v", student.Username, err)
			metrics.SyncFailures.Inc()
			continue
		}

		metrics.SyncsTotal.Inc()
		metrics.MeetingsActivated.Add(float64(len(diff.Activated)))
		metrics.MeetingsDeactivated.Add(float64(len(diff.Deactivated)))
		log.Printf("student %s: %d activated, %d retained, %d deactivated",
			student.Username, len(diff.Activated), len(diff.Retained), len(diff.Deactivated))
	}

	log.Println("worker stopped")
}
