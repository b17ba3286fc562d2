package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"snaptide/internal/config"
	dbinit "snaptide/internal/db"
	"snaptide/internal/events"
	"snaptide/internal/handlers"
	"snaptide/internal/metrics"
	"snaptide/internal/store"
	"snaptide/internal/telemetry"
)

func main() {
	cfg, err := config.FromEnv()
	if err != nil {
		log.Fatal("config: ", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := telemetry.Init(ctx, cfg.OTLPEndpoint, cfg.ServiceName, cfg.SampleRatio)
	if err != nil {
		log.Fatal(err)
	}
	defer func() {
		c, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(c); err != nil {
			log.Println("tracing shutdown:", err)
		}
	}()

	var (
		posts store.PostStore
		auth  *handlers.AuthHandler
		errs  = &handlers.ErrorHandler{}
	)
	switch cfg.Backend {
	case config.BackendSQLite:
		db, err := dbinit.Open(cfg.SQLiteDSN)
		if err != nil {
			log.Fatal(err)
		}
		defer db.Close()
		if err := dbinit.InitDatabase(db); err != nil {
			log.Fatal("schema init: ", err)
		}
		posts = store.NewSQLiteStore(db, nil)
		auth = &handlers.AuthHandler{DB: db, Err: errs}
		log.Printf("using sqlite store at %s", cfg.SQLiteDSN)
	default:
		posts = store.NewMemoryStore(nil)
		log.Println("using in-memory store")
	}

	if cfg.SeedPosts > 0 {
		if err := seedIfEmpty(ctx, posts, cfg.SeedPosts); err != nil {
			log.Fatal(err)
		}
	}

	var pub events.Publisher = events.Nop{}
	if cfg.KafkaBrokers != "" {
		kp, err := events.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaTopic)
		if err != nil {
			log.Fatal(err)
		}
		pub = kp
		log.Printf("publishing post events to %s on %s", cfg.KafkaTopic, cfg.KafkaBrokers)
	}
	defer pub.Close()

	m := metrics.New()
	postHandler := &handlers.PostHandler{
		Store:   posts,
		Events:  pub,
		Metrics: m,
		Err:     errs,
	}
	if auth != nil {
		postHandler.Owners = auth
	}

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           telemetry.Handler(handlers.NewRouter(postHandler, auth, m)),
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       90 * time.Second,
	}

	go func() {
		<-ctx.Done()
		c, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(c); err != nil {
			log.Println("http shutdown:", err)
		}
	}()

	log.Printf("listening on %s", cfg.ListenAddr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatal(err)
	}
	log.Println("server stopped")
}

// seedIfEmpty keeps restarts of a persisted store from duplicating the demo
// posts.
func seedIfEmpty(ctx context.Context, s store.PostStore, n int) error {
	count, err := s.Count(ctx)
	if err != nil {
		return err
	}
	if count > 0 {
		return nil
	}
	return store.Seed(ctx, s, n)
}
