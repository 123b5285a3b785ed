package app

import (
	"log"

	"github.com/redis/go-redis/v9"

	"vizboard/dashboard/internal/config"
	"vizboard/dashboard/internal/handler"
	"vizboard/dashboard/internal/pkg/storage"
	"vizboard/dashboard/internal/repository"
	"vizboard/dashboard/internal/service"
	"vizboard/dashboard/internal/ws"
)

func Run(cfg *config.Config) {
	db, err := repository.NewDB(cfg.DSN())
	if err != nil {
		log.Fatal(err)
	}

	s3Storage, err := storage.NewS3Storage(cfg)
	if err != nil {
		log.Fatal(err)
	}
	objectStorage := service.WithCallTimeout(s3Storage, cfg.StorageCallTimeout())

	// Nil when no admin credentials are configured; the bootstrap cascade
	// then starts with its client-side strategies.
	var provision service.ProvisionClient
	if p := storage.NewAdminProvisioner(cfg); p != nil {
		provision = p
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})

	hub := ws.NewHub()
	previewCache := repository.NewPreviewCache(rdb)
	datasetRepo := repository.NewDatasetRepository(db)

	bootstrap := service.NewBootstrapper(objectStorage, provision)
	chunked := service.NewChunkedEngine(objectStorage, service.DefaultChunkSizeBytes)
	transfer := service.NewTransferService(objectStorage, bootstrap, chunked)
	datasets := service.NewDatasetService(datasetRepo, objectStorage, hub)
	uploads := service.NewUploadManager(bootstrap, transfer, datasets, previewCache, hub)

	uploadHandler := handler.NewUploadHandler(uploads, hub)
	datasetHandler := handler.NewDatasetHandler(datasets)

	server := NewServer(uploadHandler, datasetHandler)
	server.Run(cfg.ServerPort)
}
