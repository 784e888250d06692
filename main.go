package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/charmbracelet/log"
	"github.com/fasthttp/router"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/valyala/fasthttp"
	"golang.org/x/sync/errgroup"

	"geosafe/internal/authority"
	"geosafe/internal/classify"
	"geosafe/internal/config"
	"geosafe/internal/credibility"
	"geosafe/internal/db"
	"geosafe/internal/http/handlers"
	appmw "geosafe/internal/http/middleware"
	"geosafe/internal/ingest"
	"geosafe/internal/jobs"
	"geosafe/internal/metrics"
	"geosafe/internal/patterns"
	"geosafe/internal/ratings"
	"geosafe/internal/reports"
)

func main() {
	_ = godotenv.Load()
	cfg := config.Load()
	setupLogging(cfg.LogLevel)

	if err := cfg.Validate(); err != nil {
		log.Fatal("invalid configuration", "err", err)
	}

	sqlDB, err := db.Connect(cfg)
	if err != nil {
		log.Fatal("failed to connect database", "err", err)
	}
	ix := db.NewIndex(sqlDB, db.Options{
		Timeout:     cfg.StoreTimeout,
		ReadRetries: cfg.StoreReadRetries,
	})

	metrics.Init(prometheus.DefaultRegisterer)

	var model classify.Model
	if cfg.ClassifierAPIKey != "" {
		model = classify.NewOpenAIModel(cfg.ClassifierAPIKey, cfg.ClassifierBaseURL, cfg.ClassifierModel)
		log.Info("classifier model enabled", "model", cfg.ClassifierModel)
	} else {
		log.Warn("APP_CLASSIFIER_API_KEY not set, using keyword classification only")
	}
	pipeline := classify.New(model, classify.Options{
		Timeout: cfg.ClassifierTimeout,
		RPS:     cfg.ClassifierRPS,
	})

	reportManager := reports.NewManager(ix, cfg.Retention())
	ingestService := ingest.NewService(pipeline, reportManager)
	aggregator := credibility.NewAggregator(ix, reportManager)
	detector := patterns.NewDetector(ix, reportManager, patterns.Options{
		Window:         cfg.PatternWindow(),
		Threshold:      cfg.PatternThreshold,
		FullConfidence: cfg.PatternFullConfidence,
	})
	ratingService := ratings.NewService(ix)
	generator := authority.NewGenerator(ix, reportManager, pipeline)

	runner := jobs.NewRunner()
	runner.Add(jobs.SweepJob, cfg.SweepInterval, jobs.Sweep(reportManager))
	runner.Add(jobs.PatternJob, cfg.PatternInterval, jobs.Patterns(detector))

	adminAuth, err := appmw.AdminAuth(cfg)
	if err != nil {
		log.Fatal("failed to prepare admin credentials", "err", err)
	}

	r := router.New()
	handler := handlers.RequestLogger(r.Handler)

	r.GET("/healthz", func(ctx *fasthttp.RequestCtx) {
		ctx.SetStatusCode(fasthttp.StatusOK)
		ctx.SetBodyString("ok")
	})

	r.POST("/v1/reports", handlers.SubmitReport(ingestService))
	r.GET("/v1/reports/near", handlers.ReportsNear(reportManager))
	r.GET("/v1/reports/{id}", handlers.GetReport(reportManager))
	r.GET("/v1/patterns/near", handlers.PatternsNear(detector))

	r.POST("/v1/reports/{id}/votes", appmw.VoterIdentity(handlers.CastVote(aggregator)))
	r.DELETE("/v1/reports/{id}/votes", appmw.VoterIdentity(handlers.RemoveVote(aggregator)))
	r.GET("/v1/reports/{id}/votes/mine", appmw.VoterIdentity(handlers.MyVote(aggregator)))
	r.GET("/v1/reports/{id}/comments", handlers.Comments(aggregator))

	r.POST("/v1/ratings", appmw.VoterIdentity(handlers.SubmitRating(ratingService)))
	r.GET("/v1/ratings", handlers.RatingsForLocation(ratingService))

	r.POST("/v1/classify", handlers.Classify(pipeline))
	r.POST("/v1/moderate", handlers.Moderate(pipeline))

	r.GET("/metrics", adminAuth(handlers.MetricsHandler(prometheus.DefaultGatherer)))
	r.POST("/admin/jobs/{name}/run", adminAuth(handlers.RunJob(runner)))
	r.POST("/admin/authority-reports", adminAuth(handlers.GenerateAuthorityReport(generator)))

	server := &fasthttp.Server{
		Handler:      handler,
		Name:         "geosafe",
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Info("geosafe listening", "addr", cfg.ListenAddr)
		return server.ListenAndServe(cfg.ListenAddr)
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.ShutdownWithContext(shutdownCtx)
	})
	g.Go(func() error {
		return runner.Start(gctx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatal("server error", "err", err)
	}
	log.Info("geosafe stopped")
}

func setupLogging(level string) {
	lvl, err := log.ParseLevel(level)
	if err != nil {
		lvl = log.InfoLevel
	}
	log.SetLevel(lvl)
	log.SetReportTimestamp(true)
	log.SetTimeFormat(time.RFC3339)
}
