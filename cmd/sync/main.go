package main

import (
	"context"
	"flag"
	"log"
	"os/signal"
	"syscall"

	"arena/sync/internal/app"
	"arena/sync/internal/auth"
	"arena/sync/internal/backup"
	"arena/sync/internal/broadcast"
	"arena/sync/internal/config"
	"arena/sync/internal/email"
	"arena/sync/internal/history"
	"arena/sync/internal/notify"
	"arena/sync/internal/search"
	"arena/sync/internal/store"
	"arena/sync/internal/stream"
	"arena/sync/internal/tags"
)

func main() {
	rebuildTags := flag.Bool("rebuild-tags", false, "rebuild the tag cache from a full scan and exit")
	reindex := flag.Bool("reindex", false, "rebuild the asset search index from a full scan and exit")
	runBackup := flag.Bool("backup", false, "dump all collections to object storage and exit")
	flag.Parse()

	cfg := config.Load()
	ctx := context.Background()

	db, err := store.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("database connection failed: %v", err)
	}
	defer db.Close()

	if err := store.ApplyMigrations(ctx, db, cfg.MigrationsDir); err != nil {
		log.Fatalf("migrations failed: %v", err)
	}

	rdb, err := stream.Open(cfg.RedisURL)
	if err != nil {
		log.Fatalf("redis connection failed: %v", err)
	}
	defer rdb.Close()

	publisher := stream.NewPublisher(rdb, cfg.StreamName)
	dataStore := store.NewPostgresStore(db, publisher)

	meiliClient := search.NewMeili(cfg.MeiliURL, cfg.MeiliAPIKey)
	defer meiliClient.Close()
	syncer := search.NewSyncer(meiliClient, dataStore)

	tagCache := tags.NewCache(dataStore)

	switch {
	case *rebuildTags:
		if err := tagCache.Rebuild(ctx); err != nil {
			log.Fatalf("tag rebuild failed: %v", err)
		}
		return
	case *reindex:
		if err := syncer.Reindex(ctx); err != nil {
			log.Fatalf("reindex failed: %v", err)
		}
		return
	case *runBackup:
		if cfg.BackupEndpoint == "" {
			log.Fatalf("backup requested but BACKUP_S3_ENDPOINT is not set")
		}
		object, err := backup.Connect(cfg.BackupEndpoint, cfg.BackupAccessKey, cfg.BackupSecretKey, cfg.BackupUseSSL)
		if err != nil {
			log.Fatalf("object storage connection failed: %v", err)
		}
		if err := backup.New(dataStore, object, cfg.BackupBucket).Run(ctx); err != nil {
			log.Fatalf("backup failed: %v", err)
		}
		return
	}

	accounts := auth.NewDirectory(rdb)

	service := app.New(app.Deps{
		Store:    dataStore,
		History:  history.NewRecorder(dataStore),
		Search:   syncer,
		Notify:   notify.NewFanout(dataStore, accounts, cfg.EditorFanout, cfg.SiteName, cfg.SiteURL),
		Tags:     tagCache,
		Activity: broadcast.NewWebhook(cfg.ActivityWebhookURL),
		Editors:  broadcast.NewWebhook(cfg.EditorWebhookURL),
		Outbox:   broadcast.NewOutbox(dataStore, broadcast.NewTwitterPoster(cfg.TwitterAPIURL, cfg.TwitterToken)),
		Mailer: email.NewService(email.Config{
			Host:     cfg.SMTPHost,
			Port:     cfg.SMTPPort,
			Username: cfg.SMTPUsername,
			Password: cfg.SMTPPassword,
			From:     cfg.SMTPFrom,
			FromName: cfg.SMTPFromName,
		}),
		SiteURL: cfg.SiteURL,
	})

	consumer := stream.NewConsumer(rdb, cfg.StreamName, cfg.ConsumerGroup, cfg.ConsumerName,
		cfg.HandleTimeout, service.Handle)

	runCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// drain anything this consumer crashed on last time
	if err := consumer.ProcessPending(runCtx); err != nil {
		log.Printf("WARNING: drain pending events: %v", err)
	}

	log.Printf("sync worker %s consuming %s as %s", cfg.ConsumerName, cfg.StreamName, cfg.ConsumerGroup)
	if err := consumer.Run(runCtx); err != nil && runCtx.Err() == nil {
		log.Fatalf("consumer failed: %v", err)
	}
}
