package bootstrap

import (
	"context"
	"errors"
	"log/slog"

	"gorm.io/gorm"

	"govsync/internal/bootstrap/config"
	"govsync/internal/bootstrap/logging"
	"govsync/internal/errs"
	"govsync/internal/httpapi"
	"govsync/internal/infrastructure/persistence/sqlite/model"
	"govsync/internal/infrastructure/requestsource"
)

type App struct {
	Config config.Config
	DB     *gorm.DB

	// FileRequests is set when the request source is the local YAML file.
	FileRequests *requestsource.FileSource

	API *httpapi.API
}

func (a *App) InitSchema(ctx context.Context) error {
	if ctx == nil {
		return errors.New("context is required")
	}
	if err := ctx.Err(); err != nil {
		return errs.Wrap(err, "check context")
	}

	logCtx := logging.WithAttrs(ctx, slog.String("component", "bootstrap.app"))
	logging.Info(logCtx, "start schema migration")

	if err := a.DB.WithContext(ctx).AutoMigrate(model.All()...); err != nil {
		return errs.Wrap(err, "auto migrate schema")
	}

	logging.Info(logCtx, "schema migration completed")
	return nil
}
