package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"ezduka.app/internal/auth"
	"ezduka.app/internal/config"
	"ezduka.app/internal/feed"
	"ezduka.app/internal/httpapi"
	"ezduka.app/internal/obs"
	"ezduka.app/internal/ratelimit"
	"ezduka.app/internal/session"
	"ezduka.app/internal/store/memory"
	"ezduka.app/internal/store/pg"
)

var (
	version = "0.3.1"
	commit  = "dev"
)

func main() {
	obs.Init()
	obs.InitBuildInfo(version, commit)

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	opts := httpapi.Options{
		SessionTTL: cfg.SessionTTL,
		CsrfBypass: cfg.CsrfBypassPaths,
		Version:    version,
	}

	// Storage: Postgres when a DSN is configured, in-memory otherwise.
	var pgStore *pg.Store
	if cfg.PostgresDSN != "" {
		pgStore, err = pg.Open(cfg.PostgresDSN, cfg.IdempotencyRetention)
		if err != nil {
			log.Fatalf("open db: %v", err)
		}
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		if err := pgStore.EnsureSchema(ctx); err != nil {
			cancel()
			log.Fatalf("ensure schema: %v", err)
		}
		cancel()
		opts.Tenants = pgStore
		opts.Purchases = pgStore
		opts.Billing = pgStore
		opts.Idempotency = pgStore
		opts.Ready = httpapi.ReadyProbe{DB: pgStore.DB()}

		go func() {
			ticker := time.NewTicker(time.Hour)
			defer ticker.Stop()
			for range ticker.C {
				sctx, scancel := context.WithTimeout(context.Background(), time.Minute)
				if n, err := pgStore.SweepIdempotency(sctx); err != nil {
					obs.LogError("idempotency sweep failed", err, nil)
				} else if n > 0 {
					log.Printf("swept %d expired idempotency keys", n)
				}
				scancel()
			}
		}()
	} else {
		log.Println("EZDUKA_PG_DSN not set; using in-memory storage")
		mem := memory.New(cfg.IdempotencyRetention)
		opts.Tenants = mem
		opts.Purchases = mem
		opts.Billing = mem
		opts.Idempotency = mem
		go func() {
			ticker := time.NewTicker(time.Hour)
			defer ticker.Stop()
			for range ticker.C {
				mem.Sweep()
			}
		}()
	}

	// Rate limiting: Redis-backed window shared across replicas, with a
	// local fallback when Redis is down.
	rlCfg := ratelimit.Config{Window: cfg.RateWindow, Limit: cfg.RateLimit}
	local := ratelimit.NewFixedWindow(rlCfg)
	defer local.Close()
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		defer rdb.Close()
		primary := ratelimit.NewRedis(rdb, rlCfg, "ezduka:rl")
		opts.Limiter = ratelimit.NewChain(primary, local, func(err error) {
			obs.RateLimitFallback()
			obs.LogError("rate limiter falling back to local window", err, nil)
		})
	} else {
		opts.Limiter = local
	}

	opts.Feed = feed.New()

	// Dev credential seed until a real user store lands.
	verifier := auth.NewStaticVerifier()
	if email := os.Getenv("EZDUKA_DEV_EMAIL"); email != "" {
		verifier.Seed(email, os.Getenv("EZDUKA_DEV_PASSWORD"), auth.Identity{
			UserID:   "dev-user",
			TenantID: os.Getenv("EZDUKA_DEV_TENANT"),
			Role:     session.RoleOwner,
		})
	}
	opts.Verifier = verifier

	api := httpapi.New(opts)

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           api.Handler(),
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		WriteTimeout:      0, // SSE connections stay open
		IdleTimeout:       60 * time.Second,
	}

	log.Printf("Starting ezduka-api %s on %s", version, srv.Addr)

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	<-stop
	log.Println("Shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	_ = srv.Shutdown(ctx)
	if pgStore != nil {
		_ = pgStore.Close()
	}
	log.Println("Stopped")
}
