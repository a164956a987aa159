package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"atlasid/internal/credential"
	"atlasid/internal/ledger"
	"atlasid/internal/platform/config"
	"atlasid/internal/platform/health"
	"atlasid/internal/platform/logger"
	mw "atlasid/internal/platform/middleware"
	"atlasid/internal/platform/tracer"
	"atlasid/internal/session/handler"
	sessionmetrics "atlasid/internal/session/metrics"
	"atlasid/internal/session/service"
	sessionstore "atlasid/internal/session/store"
	"atlasid/internal/trust"
	trustmetrics "atlasid/internal/trust/metrics"
)

// main wires high-level dependencies, exposes the HTTP router, and keeps the
// server lifecycle small. Business logic lives in the internal packages.
func main() {
	cfg := config.FromEnv()
	log := logger.New()

	log.Info("initializing atlasid",
		"addr", cfg.Addr,
		"environment", cfg.Environment,
		"authority_did", cfg.AuthorityDID,
		"trust_topic", cfg.TrustTopicID,
		"anchor_topic", cfg.AnchorTopicID,
		"collect_window", cfg.CollectWindow,
	)

	// An in-process topic log backs the demo deployment; a consensus
	// service client satisfies the same interfaces in production.
	topicLog := ledger.NewInMemory()
	seedTrustDocument(log, topicLog, cfg)

	trc := tracer.NewOTel()
	resolver := trust.NewResolver(topicLog, ledger.TopicID(cfg.TrustTopicID), cfg.CollectWindow,
		trust.WithLogger(log),
		trust.WithTracer(trc),
		trust.WithMetrics(trustmetrics.New()),
	)
	verifier := credential.NewVerifier(resolver, topicLog, credential.VerifierConfig{
		AuthorityDID:  cfg.AuthorityDID,
		AnchorTopic:   ledger.TopicID(cfg.AnchorTopicID),
		CollectWindow: cfg.CollectWindow,
	},
		credential.WithLogger(log),
		credential.WithTracer(trc),
	)
	sessions := service.New(sessionstore.NewInMemory(), verifier,
		service.WithLogger(log),
		service.WithTracer(trc),
		service.WithMetrics(sessionmetrics.New()),
	)

	r := chi.NewRouter()
	r.Use(mw.Recovery(log))
	r.Use(mw.RequestID)
	r.Use(mw.Logger(log))
	r.Use(mw.ContentType)
	r.Use(mw.Timeout(30 * time.Second))

	hc := health.New(cfg.Environment)
	hc.RegisterCheck("trust_topic", func() error {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_, err := topicLog.Collect(ctx, ledger.TopicID(cfg.TrustTopicID), cfg.CollectWindow)
		return err
	})
	hc.Register(r)
	r.Handle("/metrics", promhttp.Handler())
	handler.New(sessions, log, handler.WithMaxUploadBytes(cfg.MaxUploadBytes)).Register(r)

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	log.Info("starting http server", "addr", cfg.Addr)

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	// Graceful shutdown on SIGINT
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt)
	<-quit

	log.Info("shutting down server gracefully")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Error("graceful shutdown failed", "error", err)
		os.Exit(1)
	}

	log.Info("server stopped")
}
