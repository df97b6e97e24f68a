package app

import (
	"github.com/jonboulle/clockwork"
	"gorm.io/gorm"

	"github.com/yungbote/sciencelab-batchserver/internal/observability"
	"github.com/yungbote/sciencelab-batchserver/internal/platform/logger"
	"github.com/yungbote/sciencelab-batchserver/internal/services"
)

type Services struct {
	Identity  services.IdentityDirectory
	Quota     services.QuotaGuard
	Leases    services.LeaseManager
	URIs      services.URIResolver
	Ingester  services.ResultIngester
	Notifier  services.NotificationDispatcher
	Canceller services.CancellationHandler
	Batch     services.BatchService
}

func wireServices(db *gorm.DB, log *logger.Logger, cfg Config, reposet Repos, clients Clients, metrics *observability.Metrics) Services {
	log.Info("Wiring services...")
	clock := clockwork.NewRealClock()

	var publisher services.EventPublisher
	if clients.Stream != nil {
		publisher = clients.Stream
	}

	identity := services.NewIdentityDirectory(db, log, clock, reposet.Client)
	quota := services.NewQuotaGuard(log, reposet.Input, cfg.Batch.MaxInputsPerClient)
	leases := services.NewLeaseManager(log, clock, reposet.Input)
	uris := services.NewURIResolver(log, clients.Store, services.URIResolverConfig{
		InputsBucket:    cfg.Storage.InputsBucket,
		OutputsBucket:   cfg.Storage.OutputsBucket,
		ExternalBaseURL: cfg.Storage.ExternalBaseURL,
	})
	ingester := services.NewResultIngester(db, log, clock, reposet.Input, reposet.Client, reposet.Result)
	notifier := services.NewNotificationDispatcher(log, publisher, uris, metrics, services.NotificationConfig{
		DeploymentID: cfg.Batch.DeploymentID,
		Timeout:      cfg.Notifications.Timeout,
	})
	canceller := services.NewCancellationHandler(db, log, clock, reposet.Input)

	batch := services.NewBatchService(
		log,
		identity,
		quota,
		leases,
		uris,
		ingester,
		notifier,
		canceller,
		clients.Store,
		metrics,
		services.BatchConfig{
			MaxBatchSize:   cfg.Batch.MaxBatchSize,
			MinInputID:     cfg.Batch.MinInputID,
			UploadURITTL:   cfg.Batch.UploadURITTL,
			ArchiveOutputs: cfg.Batch.ArchiveOutputs,
			OutputsBucket:  cfg.Storage.OutputsBucket,
			MaxOutputBytes: cfg.Batch.MaxOutputBytes,
			TempDir:        cfg.Batch.TempDir,
		},
	)

	return Services{
		Identity:  identity,
		Quota:     quota,
		Leases:    leases,
		URIs:      uris,
		Ingester:  ingester,
		Notifier:  notifier,
		Canceller: canceller,
		Batch:     batch,
	}
}
