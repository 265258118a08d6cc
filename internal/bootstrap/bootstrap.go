package bootstrap

import (
	"context"
	"fmt"

	"github.com/selfcanonical/csvmerge/internal/config"
	"github.com/selfcanonical/csvmerge/internal/core/ports"
	"github.com/selfcanonical/csvmerge/internal/core/usecase"
	"github.com/selfcanonical/csvmerge/internal/infrastructure/queue/nats"
	"github.com/selfcanonical/csvmerge/internal/infrastructure/repository/postgres"
	"github.com/selfcanonical/csvmerge/internal/infrastructure/resilience"
	"github.com/selfcanonical/csvmerge/internal/infrastructure/storage/localfs"
	"github.com/selfcanonical/csvmerge/internal/infrastructure/tabular"
	"github.com/selfcanonical/csvmerge/internal/infrastructure/textenc"
	"github.com/selfcanonical/csvmerge/internal/infrastructure/workbook/excelize"
)

type App struct {
	Config config.Config

	Queue   ports.MessageQueue
	Repo    ports.JobRepository
	Storage ports.ObjectStorage

	CreateUC ports.JobCreator
	ReaderUC ports.JobReader
	MergeUC  ports.JobMerger

	closeFn func()
}

func New(ctx context.Context, cfg config.Config) (*App, error) {
	db, err := postgres.OpenDB(cfg.PostgresDSN)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	repo := postgres.NewJobRepository(db)
	if err := repo.EnsureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}

	storage, err := localfs.New(cfg.StoragePath)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init object storage: %w", err)
	}

	queue, err := nats.NewWithOptions(cfg.NATSURL, cfg.NATSSubject, nats.Options{
		PublishGuard: resilience.NewGuard(resilience.DefaultPolicy()),
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init message queue: %w", err)
	}

	resolver := textenc.NewResolver(cfg.EncodingProbeLines, cfg.EncodingMinConfidence)
	extractor := tabular.NewExtractor(resolver)
	builder := excelize.NewBuilder()

	createUC := usecase.NewCreateJobUseCase(repo, storage, queue, cfg.MaxFilesPerJob)
	mergeUC := usecase.NewMergeJobUseCase(repo, storage, extractor, builder)

	return &App{
		Config:  cfg,
		Queue:   queue,
		Repo:    repo,
		Storage: storage,

		CreateUC: createUC,
		ReaderUC: repo,
		MergeUC:  mergeUC,

		closeFn: func() {
			queue.Close()
			_ = db.Close()
		},
	}, nil
}

func (a *App) Close() {
	if a.closeFn != nil {
		a.closeFn()
	}
}
