package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"parkeval-service/internal/config"
	"parkeval-service/internal/db"
	httphandler "parkeval-service/internal/http"
	"parkeval-service/internal/repository"
	"parkeval-service/internal/service"
)

func main() {
	configPath := flag.String("config", os.Getenv("PARKEVAL_CONFIG"), "path to YAML config file")
	tokenFor := flag.String("token-for", "", "print a reviewer token for the given name and exit")
	tokenTTL := flag.Duration("token-ttl", 12*time.Hour, "lifetime of tokens printed by -token-for")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	if *tokenFor != "" {
		token, err := httphandler.IssueToken(cfg.Auth.JWTSecret, *tokenFor, *tokenTTL)
		if err != nil {
			fmt.Fprintf(os.Stderr, "token: %v\n", err)
			os.Exit(1)
		}
		fmt.Println(token)
		return
	}

	log := config.NewLogger(cfg.Log)

	var store service.Store
	if cfg.DB.DSN != "" {
		conn, err := db.Open(cfg.DB.DSN, log)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to open database")
		}
		store = repository.NewReviewRepository(conn)
	} else {
		log.Info().Msg("db.dsn not set, results are written to files only")
	}

	reviewService, err := service.NewReviewService(store, cfg.Review, log.With().Str("component", "service").Logger())
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create review service")
	}

	if cfg.Auth.JWTSecret == "" {
		log.Warn().Msg("auth.jwt_secret not set, mutating routes are unauthenticated")
	}

	srv := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           newRouter(cfg, reviewService, log),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info().Str("addr", cfg.HTTP.Addr).Msg("http server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("http server failed")
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("graceful shutdown failed")
	}
	log.Info().Msg("server stopped")
}

func newRouter(cfg *config.Config, reviewService *service.ReviewService, log zerolog.Logger) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())

	corsCfg := cors.DefaultConfig()
	corsCfg.AllowHeaders = append(corsCfg.AllowHeaders, "Authorization")
	corsCfg.AllowMethods = []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodDelete, http.MethodOptions}
	if len(cfg.HTTP.CORSOrigins) == 0 || (len(cfg.HTTP.CORSOrigins) == 1 && cfg.HTTP.CORSOrigins[0] == "*") {
		corsCfg.AllowAllOrigins = true
	} else {
		corsCfg.AllowOrigins = cfg.HTTP.CORSOrigins
	}
	r.Use(cors.New(corsCfg))

	handler := httphandler.NewHandler(reviewService, log.With().Str("component", "http").Logger())
	handler.Register(r, httphandler.AuthMiddleware(cfg.Auth.JWTSecret, log))
	return r
}
