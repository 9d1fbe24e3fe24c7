package bootstrap

import (
	"context"
	"fmt"
	"log/slog"

	"go.uber.org/fx"
	"gorm.io/gorm"

	"govsync/internal/auth"
	"govsync/internal/bootstrap/config"
	"govsync/internal/bootstrap/database"
	"govsync/internal/bootstrap/logging"
	"govsync/internal/errs"
	"govsync/internal/httpapi"
	cacheinfra "govsync/internal/infrastructure/cache"
	"govsync/internal/infrastructure/events"
	sqliterepo "govsync/internal/infrastructure/persistence/sqlite/repository"
	sqliteuow "govsync/internal/infrastructure/persistence/sqlite/uow"
	"govsync/internal/infrastructure/requestsource"
	"govsync/internal/infrastructure/resilient"
	"govsync/internal/infrastructure/votingpower"
	"govsync/internal/ports"
	"govsync/internal/usecase/governance"
)

var Module = fx.Options(
	fx.Provide(provideConfig),
	fx.Provide(provideDatabase),
	fx.Provide(provideApp),
	fx.Provide(
		fx.Annotate(
			sqliterepo.NewGovernanceRepository,
			fx.As(new(ports.GovernanceRepository)),
		),
	),
	fx.Provide(
		fx.Annotate(
			sqliteuow.NewUnitOfWork,
			fx.As(new(ports.UnitOfWork)),
		),
	),
	fx.Provide(
		fx.Annotate(
			cacheinfra.NewKVStore,
			fx.As(new(ports.Cache)),
		),
	),
	fx.Provide(provideFileRequests),
	fx.Provide(provideRequestSource),
	fx.Provide(provideVotingPower),
	fx.Provide(events.NewHub),
	fx.Provide(events.NewMetrics),
	fx.Provide(provideEventPublisher),
	fx.Provide(provideService),
	fx.Provide(provideTokens),
	fx.Provide(provideAPI),
)

type configParams struct {
	fx.In

	Ctx        context.Context
	ConfigFile string `name:"configFile"`
}

func provideConfig(p configParams) (config.Config, error) {
	ctx := logging.WithAttrs(p.Ctx, slog.String("component", "bootstrap.fx"))
	return config.Load(ctx, p.ConfigFile)
}

func provideDatabase(lc fx.Lifecycle, ctx context.Context, cfg config.Config) (*gorm.DB, error) {
	logCtx := logging.WithAttrs(ctx, slog.String("component", "bootstrap.fx"))

	db, err := database.Open(logCtx, cfg.Database)
	if err != nil {
		return nil, err
	}

	lc.Append(fx.Hook{
		OnStop: func(_ context.Context) error {
			sqlDB, err := db.DB()
			if err != nil {
				return err
			}
			return sqlDB.Close()
		},
	})

	return db, nil
}

func provideApp(cfg config.Config, db *gorm.DB, file *requestsource.FileSource, api *httpapi.API) *App {
	return &App{
		Config:       cfg,
		DB:           db,
		FileRequests: file,
		API:          api,
	}
}

func retryPolicy(cfg config.RetryConfig) resilient.Policy {
	return resilient.Policy{
		InitialInterval: cfg.InitialInterval,
		MaxInterval:     cfg.MaxInterval,
		MaxElapsed:      cfg.MaxElapsed,
		MaxTries:        cfg.MaxTries,
	}
}

// provideFileRequests returns nil unless the file driver is selected.
func provideFileRequests(cfg config.Config) (*requestsource.FileSource, error) {
	if cfg.RequestSource.Driver != "file" {
		return nil, nil
	}
	return requestsource.NewFileSource(cfg.RequestSource.File)
}

func provideRequestSource(cfg config.Config, file *requestsource.FileSource) (ports.RequestSource, error) {
	var next ports.RequestSource
	switch cfg.RequestSource.Driver {
	case "http":
		src, err := requestsource.NewHTTPSource(cfg.RequestSource.BaseURL, cfg.RequestSource.Timeout, nil)
		if err != nil {
			return nil, err
		}
		next = src
	case "file":
		next = file
	default:
		return nil, fmt.Errorf("unsupported request_source.driver %q", cfg.RequestSource.Driver)
	}
	return resilient.NewRequestSource(next, retryPolicy(cfg.Retry)), nil
}

func provideVotingPower(ctx context.Context, cfg config.Config) (ports.VotingPowerOracle, error) {
	var next ports.VotingPowerOracle
	switch cfg.VotingPower.Driver {
	case "http":
		oracle, err := votingpower.NewHTTPOracle(cfg.VotingPower.BaseURL, cfg.VotingPower.Timeout, nil)
		if err != nil {
			return nil, err
		}
		next = oracle
	case "file":
		registry, err := votingpower.LoadRegistry(cfg.VotingPower.File)
		if err != nil {
			return nil, err
		}
		next = registry
	case "static":
		logging.Warn(
			logging.WithAttrs(ctx, slog.String("component", "bootstrap.fx")),
			"using static test voting power; do not run this in production",
		)
		next = votingpower.NewStatic()
	default:
		return nil, fmt.Errorf("unsupported voting_power.driver %q", cfg.VotingPower.Driver)
	}
	return resilient.NewVotingPowerOracle(next, retryPolicy(cfg.Retry)), nil
}

func provideEventPublisher(lc fx.Lifecycle, ctx context.Context, cfg config.Config, hub *events.Hub, metrics *events.Metrics) (ports.EventPublisher, error) {
	publishers := []ports.EventPublisher{hub, metrics}
	if cfg.Events.NATSURL == "" {
		return events.NewFanout(publishers...), nil
	}

	nc, err := events.ConnectNATS(cfg.Events.NATSURL, cfg.Events.SubjectPrefix, cfg.App.Name)
	if err != nil {
		return nil, errs.Wrap(err, "connect nats")
	}
	logging.Info(
		logging.WithAttrs(ctx, slog.String("component", "bootstrap.fx")),
		"publishing governance events to nats",
		slog.String("subject_prefix", cfg.Events.SubjectPrefix),
	)
	lc.Append(fx.Hook{
		OnStop: func(_ context.Context) error {
			return nc.Close()
		},
	})
	return events.NewFanout(append(publishers, nc)...), nil
}

type serviceParams struct {
	fx.In

	Cfg      config.Config
	Repo     ports.GovernanceRepository
	UOW      ports.UnitOfWork
	Cache    ports.Cache
	Requests ports.RequestSource
	Oracle   ports.VotingPowerOracle
	Events   ports.EventPublisher
}

func provideService(p serviceParams) *governance.Service {
	gov := p.Cfg.Governance
	return governance.NewService(p.Repo, p.UOW, p.Cache, p.Requests, p.Oracle, p.Events, governance.Options{
		ApproveReason:           gov.ApproveReason,
		RejectReason:            gov.RejectReason,
		MinVotingPowerToPropose: gov.MinVotingPowerToPropose,
		Scopes:                  gov.Scopes,
		ReconcileConcurrency:    gov.ReconcileConcurrency,
	})
}

// provideTokens returns nil when no JWT secret is configured.
func provideTokens(ctx context.Context, cfg config.Config) (*auth.Tokens, error) {
	if cfg.Auth.JWTSecret == "" {
		logging.Warn(
			logging.WithAttrs(ctx, slog.String("component", "bootstrap.fx")),
			"auth.jwt_secret not set; write routes trust the X-Principal header",
		)
		return nil, nil
	}
	return auth.NewTokens(cfg.Auth.JWTSecret, cfg.Auth.Issuer, cfg.Auth.TokenTTL)
}

func provideAPI(cfg config.Config, svc *governance.Service, tokens *auth.Tokens, hub *events.Hub, metrics *events.Metrics) *httpapi.API {
	return httpapi.New(svc, httpapi.Options{
		Tokens:         tokens,
		Hub:            hub,
		Metrics:        metrics,
		RateLimitRPS:   cfg.HTTP.RateLimitRPS,
		RateLimitBurst: cfg.HTTP.RateLimitBurst,
	})
}
