package main // Entry point package

import (
	"context"
	"log"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/event-registration/internal/config"
	"github.com/iliyamo/event-registration/internal/database"
	"github.com/iliyamo/event-registration/internal/handler"
	"github.com/iliyamo/event-registration/internal/mail"
	appmw "github.com/iliyamo/event-registration/internal/middleware"
	"github.com/iliyamo/event-registration/internal/model"
	"github.com/iliyamo/event-registration/internal/queue"
	"github.com/iliyamo/event-registration/internal/repository"
	"github.com/iliyamo/event-registration/internal/router"
	queue_publisher "github.com/iliyamo/event-registration/internal/service"
)

func main() {
	_ = godotenv.Load() // .env is optional; real deployments set the environment

	cfg := config.Load() // fatal on missing JWT_SECRET and DB settings

	db, err := database.Open(cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName)
	if err != nil {
		log.Fatalf("database: %v", err)
	}

	rdb := config.NewRedisClient() // nil disables cache + rate limiting
	if rdb == nil {
		log.Println("redis unavailable; cache and rate limiting disabled")
	}

	identities := repository.NewIdentityRepo(db)
	tokens := repository.NewTokenRepo(db)
	events := repository.NewEventRepo(db)
	registrations := repository.NewRegistrationRepo(db)
	subscribers := repository.NewSubscriberRepo(db)
	donations := repository.NewDonationRepo(db)

	publisher := queue_publisher.AMQPPublisher{}

	e := echo.New()
	e.HideBanner = true
	e.Use(appmw.NewTokenBucket(config.LoadRateLimitConfig(), rdb))

	router.RegisterRoutes(e)
	router.RegisterPublic(e,
		handler.NewPublicHandler(events, subscribers, donations),
		appmw.NewRedisCache(config.LoadCacheConfig(), rdb))

	// One auth implementation, bound three times.
	for prefix, role := range map[string]model.Role{
		"user":  model.RoleUser,
		"host":  model.RoleHost,
		"admin": model.RoleAdmin,
	} {
		a := handler.NewAuthHandler(cfg, role, identities, tokens, publisher)
		router.RegisterAuth(e, a, prefix, cfg.JWTSecret, identities)
	}

	router.RegisterHost(e, handler.NewHostHandler(events, registrations), cfg.JWTSecret, identities)
	router.RegisterAdmin(e, handler.NewAdminHandler(events, identities, donations, subscribers, publisher), cfg.JWTSecret, identities)
	router.RegisterParticipant(e, handler.NewParticipantHandler(events, registrations), cfg.JWTSecret, identities)

	// Background email delivery.
	baseURL := os.Getenv("PUBLIC_BASE_URL")
	if baseURL == "" {
		baseURL = "http://localhost:" + cfg.Port
	}
	go func() {
		if err := queue.StartEmailConsumer(func(ev queue.EmailEvent) (string, string, error) {
			return mail.Render(ev, baseURL)
		}); err != nil {
			log.Printf("email consumer stopped: %v", err)
		}
	}()

	// Expired refresh tokens are invisible to Lookup the moment they pass
	// their expiry; this sweep just reclaims the rows.
	go func() {
		for {
			time.Sleep(time.Hour)
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			if n, err := tokens.DeleteExpired(ctx, time.Now().UTC()); err != nil {
				log.Printf("token sweep: %v", err)
			} else if n > 0 {
				log.Printf("token sweep: removed %d expired rows", n)
			}
			cancel()
		}
	}()

	addr := ":" + cfg.Port
	log.Printf("listening on %s (env=%s)", addr, cfg.Env)
	if err := e.Start(addr); err != nil {
		log.Fatal(err)
	}
}
