package main

import (
	"context"
	"flag"
	"log/slog"
	"os"

	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"
	"go.opentelemetry.io/contrib/instrumentation/github.com/labstack/echo/otelecho"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"

	"github.com/studiofoundry/backstage/internal/config"
	"github.com/studiofoundry/backstage/internal/domain"
	"github.com/studiofoundry/backstage/internal/infrastructure/database"
	"github.com/studiofoundry/backstage/internal/infrastructure/providers"
	"github.com/studiofoundry/backstage/internal/infrastructure/repository"
	"github.com/studiofoundry/backstage/internal/present/rest"
	"github.com/studiofoundry/backstage/internal/present/rest/middleware"
	"github.com/studiofoundry/backstage/internal/service"
	"github.com/studiofoundry/backstage/internal/usecase"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	flag.Parse()

	conf, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", slog.String("error", err.Error()), slog.String("module", "main"))
		os.Exit(1)
	}

	ctx := context.Background()

	shutdownTrace, err := setupTrace(ctx, conf.Server)
	if err != nil {
		slog.Error("failed to set up tracing", slog.String("error", err.Error()), slog.String("module", "main"))
		os.Exit(1)
	}
	defer shutdownTrace(ctx)

	db, err := providers.NewDatabase(conf.Server)
	if err != nil {
		slog.Error("failed to connect database", slog.String("error", err.Error()), slog.String("module", "main"))
		os.Exit(1)
	}

	if err := providers.MigrateDatabase(db); err != nil {
		slog.Error("failed to migrate database", slog.String("error", err.Error()), slog.String("module", "main"))
		os.Exit(1)
	}

	rdb := database.NewRedis(conf.Server.RedisAddr, "", conf.Server.RedisDB)
	mc := providers.NewMemcache(conf.Server.MemcachedAddr)

	domainConf := domain.Config{
		FQDN:            conf.Site.FQDN,
		AssetPublicBase: conf.Site.AssetPublicBase,
	}

	assetStore := providers.NewAssetStore(conf)
	identity := providers.NewIdentity(mc, conf.Server)

	progress := service.NewProgressService(rdb)
	locks := service.NewLockService(rdb)
	sessions := service.NewSessionService(&domainConf, identity)

	runner := usecase.NewRunner(progress)

	entityRepo := repository.NewEntityRepository(db)
	profileRepo := repository.NewProfileRepository(db)

	entityUsecase := usecase.NewEntityUsecase(entityRepo, assetStore, locks, runner)
	accountUsecase := usecase.NewAccountUsecase(profileRepo, identity, locks, runner)

	e := echo.New()
	e.HideBanner = true
	e.Use(echomiddleware.Logger())
	e.Use(echomiddleware.Recover())
	e.Use(echomiddleware.CORS())
	if conf.Server.EnableTrace {
		e.Use(otelecho.Middleware(conf.Site.FQDN))
	}

	auth := middleware.NewAuthMiddleware(sessions)
	handler := rest.NewHandler(domainConf, entityUsecase, accountUsecase, progress)
	handler.RegisterRoutes(e, auth.RequireSession)

	e.Logger.Fatal(e.Start(conf.Server.Listen))
}

func setupTrace(ctx context.Context, conf config.Server) (func(context.Context) error, error) {
	noop := func(context.Context) error { return nil }

	if !conf.EnableTrace || conf.TraceEndpoint == "" {
		return noop, nil
	}

	exporter, err := otlptracehttp.New(ctx,
		otlptracehttp.WithEndpointURL(conf.TraceEndpoint),
	)
	if err != nil {
		return noop, err
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName("backstage"),
		),
	)
	if err != nil {
		return noop, err
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
	)

	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.TraceContext{})

	return tp.Shutdown, nil
}
