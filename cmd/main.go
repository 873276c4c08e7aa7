package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"

	"github.com/FAKUBA08/HaySquare-Back/internal/api"
	"github.com/FAKUBA08/HaySquare-Back/internal/auth"
	"github.com/FAKUBA08/HaySquare-Back/internal/config"
	"github.com/FAKUBA08/HaySquare-Back/internal/events"
	"github.com/FAKUBA08/HaySquare-Back/internal/media"
	"github.com/FAKUBA08/HaySquare-Back/internal/metrics"
	"github.com/FAKUBA08/HaySquare-Back/internal/notifier"
	"github.com/FAKUBA08/HaySquare-Back/internal/presence"
	"github.com/FAKUBA08/HaySquare-Back/internal/repository"
	"github.com/FAKUBA08/HaySquare-Back/internal/service"
	"github.com/FAKUBA08/HaySquare-Back/internal/storage"
	"github.com/FAKUBA08/HaySquare-Back/internal/utils"
	"github.com/FAKUBA08/HaySquare-Back/internal/ws"
)

func main() {
	path := os.Getenv("CONFIG_PATH")
	if path == "" {
		path = "config/config.yaml"
	}
	cfg, err := config.Load(path)
	if err != nil {
		panic(err)
	}

	logger, err := utils.NewLogger(cfg.App.IsDevelopment())
	if err != nil {
		panic(err)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	m := metrics.New()

	// Message store
	var (
		messages    service.MessageStore
		visitors    service.VisitorStore
		mongoClient *mongo.Client
	)
	if cfg.Mongo.Memory {
		logger.Warn("using in-memory message store; history is lost on restart")
		mem := repository.NewMemoryStore()
		messages, visitors = mem, mem
	} else {
		mongoClient, err = repository.NewMongoClient(ctx, cfg, logger)
		if err != nil {
			logger.Fatalf("mongo connect: %v", err)
		}
		db := mongoClient.Database(cfg.Mongo.Database)
		messages = repository.NewMessageRepository(db, cfg.MongoOpTimeout)
		visitors = repository.NewVisitorRepository(db, cfg.MongoOpTimeout)
	}

	// Attachment pipeline
	publisher, err := newPublisher(ctx, cfg)
	if err != nil {
		logger.Fatalf("storage init: %v", err)
	}
	pipeline, err := media.NewPipeline(media.Options{
		Dir:                cfg.Upload.Dir,
		MaxBytes:           cfg.Upload.MaxBytes,
		CompressAboveBytes: cfg.Upload.CompressAboveBytes,
		ImageMaxWidth:      cfg.Upload.ImageMaxWidth,
		JPEGQuality:        cfg.Upload.JPEGQuality,
	}, media.FFmpeg{Path: cfg.Upload.FFmpegPath}, publisher, logger)
	if err != nil {
		logger.Fatalf("upload pipeline: %v", err)
	}

	// Presence
	hub := ws.NewHub(m, logger)
	regOpts := []presence.Option{presence.WithMetrics(m)}
	var rdb *redis.Client
	if cfg.Redis.Enabled {
		rdb = redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr, Password: cfg.Redis.Pass, DB: cfg.Redis.DB})
		mirror := presence.NewRedisMirror(rdb, cfg.Redis.Prefix, logger)
		if err := mirror.Reset(ctx); err != nil {
			logger.Warnw("redis presence reset failed", "err", err)
		}
		go mirror.Run(ctx)
		regOpts = append(regOpts, presence.WithMirror(mirror))
	}
	registry := presence.NewRegistry(hub, cfg.TypingQuiet, logger, regOpts...)

	// Notifications
	bridge := notifier.NewBridge(notifier.BridgeOptions{
		Timeout:       cfg.NotifyTimeout,
		RatePerSecond: cfg.Notify.RatePerSecond,
		Burst:         cfg.Notify.Burst,
		LoginURL:      cfg.AdminLoginURL(),
	}, logger, m, newNotifiers(cfg, logger)...)

	// Event bus
	pub, err := newEventPublisher(ctx, cfg)
	if err != nil {
		logger.Fatalf("event bus init: %v", err)
	}
	bus := events.NewAsync(pub, 1024, logger, m)

	validator := auth.NewValidator(cfg.App.JWTSecret)
	if !validator.Enabled() {
		logger.Warn("app.jwt_secret not set; admin endpoints are open")
	}

	chat := service.NewChatService(service.Deps{
		Messages: messages,
		Visitors: visitors,
		Presence: registry,
		Emitter:  hub,
		Uploads:  pipeline,
		Notifier: bridge,
		Events:   bus,
		Metrics:  m,
		Log:      logger,
	})
	router := ws.NewRouter(hub, registry, chat, validator, logger)
	socket := ws.NewServer(router, ws.ServerOptions{
		PingInterval:   cfg.PingInterval,
		WriteDeadline:  cfg.WriteDeadline,
		MaxMessageSize: cfg.WS.MaxMessageSizeBytes,
		SendBuffer:     cfg.WS.SendBuffer,
	})

	app := api.NewServer(api.Deps{
		Config:    cfg,
		Chat:      chat,
		Presence:  registry,
		Socket:    socket,
		Validator: validator,
		Metrics:   m,
		Log:       logger,
		AccessLog: os.Stdout,
	})

	go func() {
		addr := ":" + cfg.App.PortString()
		logger.Infof("starting chat service on %s", addr)
		if err := app.Listen(addr); err != nil {
			logger.Fatalf("listen failed: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit
	logger.Infow("shutdown requested", "signal", sig.String())

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		logger.Warnw("fiber shutdown", "err", err)
	}
	bridge.Wait()
	if err := bus.Close(); err != nil {
		logger.Warnw("event bus close", "err", err)
	}
	stop()
	if rdb != nil {
		_ = rdb.Close()
	}
	if mongoClient != nil {
		_ = mongoClient.Disconnect(shutdownCtx)
	}
	logger.Info("shutdown completed")
}

func newPublisher(ctx context.Context, cfg *config.Config) (storage.Publisher, error) {
	if cfg.Upload.Storage == "s3" {
		return storage.NewS3Publisher(ctx, cfg.S3.Region, cfg.S3.Bucket, cfg.S3.Endpoint, cfg.S3.PublicRead, cfg.PresignTTL)
	}
	return storage.NewDiskPublisher(cfg.Upload.Dir, cfg.App.PublicURL), nil
}

func newEventPublisher(ctx context.Context, cfg *config.Config) (events.Publisher, error) {
	switch cfg.Events.Driver {
	case "kafka":
		return events.NewKafkaPublisher(cfg.Events.KafkaBrokers, cfg.Events.KafkaTopic), nil
	case "nats":
		return events.NewNATSPublisher(ctx, cfg.Events.NATSURL, cfg.Events.NATSStream, cfg.Events.NATSSubject)
	case "none", "":
		return events.Noop{}, nil
	}
	return nil, fmt.Errorf("unknown events.driver %q", cfg.Events.Driver)
}

// newNotifiers builds the configured channels. A channel that cannot be set
// up is logged and skipped; notifications are never fatal.
func newNotifiers(cfg *config.Config, log *zap.SugaredLogger) []notifier.Notifier {
	n := cfg.Notify
	var out []notifier.Notifier
	for _, name := range n.Channels {
		switch name {
		case "whatsapp":
			out = append(out, notifier.NewWhatsAppNotifier(n.WhatsAppBase, n.WhatsAppNumber, n.WhatsAppFetch, log))
		case "email":
			if n.BrevoAPIKey == "" || n.SupportEmail == "" {
				log.Warn("email notifications need notify.brevo_api_key and notify.support_email; skipped")
				continue
			}
			out = append(out, notifier.NewEmailNotifier(n.BrevoAPIKey, n.BrevoEndpoint, n.SenderEmail, n.SenderName, n.SupportEmail, log))
		case "telegram":
			bot, err := notifier.NewTelegramBot(n.TelegramToken)
			if err != nil {
				log.Warnw("telegram notifications skipped", "err", err)
				continue
			}
			out = append(out, notifier.NewTelegramNotifier(bot, n.TelegramChatID))
		default:
			log.Warnw("unknown notification channel", "channel", name)
		}
	}
	return out
}
