package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/nrezzano/web_auctions/internal/config"
	"github.com/nrezzano/web_auctions/internal/es"
	"github.com/nrezzano/web_auctions/internal/handlers"
	"github.com/nrezzano/web_auctions/internal/handlers/watchlist"
	"github.com/nrezzano/web_auctions/internal/logging"
	"github.com/nrezzano/web_auctions/internal/middleware/csrf"
	"github.com/nrezzano/web_auctions/internal/mykafka"
	"github.com/nrezzano/web_auctions/internal/service/token"
	httpserver "github.com/nrezzano/web_auctions/internal/transport/http"
	"github.com/nrezzano/web_auctions/internal/upload"
)

const listingIndex = "listing"

func main() {
	configuration, err := config.LoadConfig()
	if err != nil {
		log.Fatal(err)
	}

	slog.SetDefault(logging.New(configuration.LOG_LEVEL))

	db, err := config.InitDB(configuration)
	if err != nil {
		log.Fatalf("database init failed: %v", err)
	}

	jwtSecret := []byte(configuration.JWT_SECRET)
	refreshSecret := []byte(configuration.REFRESH_SECRET)

	brokers := []string{configuration.KAFKA_ADDRESS}
	topics := []string{"user_events", "listing_events", "bid_events", "watchlist_events"}
	prod, err := mykafka.NewProducer(brokers, topics)
	if err != nil {
		log.Fatal(err)
	}

	esClient, err := es.NewClient(configuration)
	if err != nil {
		log.Fatal(err)
	}

	uploads, err := upload.NewStore(configuration.UPLOAD_DIR)
	if err != nil {
		log.Fatal(err)
	}

	validate := validator.New()

	e := echo.New()
	e.Pre(middleware.RemoveTrailingSlash())
	e.Use(middleware.Recover(), middleware.RequestID())
	e.Use(csrf.Middleware(csrf.Config{
		SkipPaths: []string{"/api/v1/register", "/api/v1/login"},
	}))

	deps := httpserver.Deps{
		DB: db,
		AuthHandler: &handlers.AuthHandler{
			DB: db, JWTSecret: jwtSecret, RefreshSecret: refreshSecret, Producer: prod,
		},
		ListingHandler: &handlers.ListingHandler{
			DB: db, Producer: prod, JWTSecret: jwtSecret,
			ES: esClient, ESIndex: listingIndex,
			Uploads: uploads, Validate: validate,
		},
		CommentHandler: &handlers.CommentHandler{
			DB: db, Producer: prod, JWTSecret: jwtSecret, Validate: validate,
		},
		CategoryHandler: &handlers.CategoryHandler{DB: db, Validate: validate},
		WatchlistHandler: &watchlist.WatchlistHandler{
			DB: db, Producer: prod, JWTSecret: jwtSecret,
		},
		SearchHandler: &handlers.SearchHandler{ES: esClient, Index: listingIndex},
		TokenService:  &token.TokenService{DB: db, JWTSecret: jwtSecret, RefreshSecret: refreshSecret},
	}

	httpserver.Register(e, &deps)

	srv := &http.Server{
		Addr:         configuration.APP_PORT,
		Handler:      e,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("http server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Printf("server shutdown error: %v", err)
	}

	if sqlDB, err := db.DB(); err == nil {
		if err := sqlDB.Close(); err != nil {
			log.Printf("db close error: %v", err)
		}
	} else {
		log.Printf("db() error: %v", err)
	}

	if err := prod.Close(); err != nil {
		log.Printf("kafka close error: %v", err)
	}

	log.Println("shutdown complete")
}
