package api

import (
	"context"
	"encoding/json"
	"io"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/websocket/v2"
	"go.uber.org/zap"

	"github.com/FAKUBA08/HaySquare-Back/internal/auth"
	"github.com/FAKUBA08/HaySquare-Back/internal/config"
	"github.com/FAKUBA08/HaySquare-Back/internal/domain"
	"github.com/FAKUBA08/HaySquare-Back/internal/metrics"
	"github.com/FAKUBA08/HaySquare-Back/internal/presence"
	"github.com/FAKUBA08/HaySquare-Back/internal/service"
	"github.com/FAKUBA08/HaySquare-Back/internal/utils"
	"github.com/FAKUBA08/HaySquare-Back/internal/ws"
)

// ChatService is everything the HTTP handlers call on the service layer.
type ChatService interface {
	SendVisitorMessage(ctx context.Context, visitorID, body string) (*domain.ChatMessage, error)
	AdminReply(ctx context.Context, visitorID, body string, kind domain.Kind, meta json.RawMessage) (*domain.ChatMessage, error)
	PostOffer(ctx context.Context, visitorID string, offer domain.OfferMeta) (*domain.ChatMessage, error)
	PostDelivery(ctx context.Context, visitorID string, delivery domain.DeliveryMeta) (*domain.ChatMessage, error)
	CreateOrder(ctx context.Context, visitorID, body string, order domain.OrderMeta) (*domain.ChatMessage, error)
	Upload(ctx context.Context, in service.UploadInput) (*domain.ChatMessage, error)
	History(ctx context.Context, visitorID string) ([]domain.ChatMessage, error)
	ListOrders(ctx context.Context, visitorID string) ([]domain.ChatMessage, error)
	ConfirmOrder(ctx context.Context, orderMessageID string) (*domain.ChatMessage, error)
	DeleteVisitor(ctx context.Context, visitorID string) (int64, error)
}

type Roster interface {
	Roster() []presence.Entry
}

type Deps struct {
	Config    *config.Config
	Chat      ChatService
	Presence  Roster
	Socket    *ws.Server
	Validator *auth.Validator
	Metrics   *metrics.Metrics
	Log       *zap.SugaredLogger
	// request log output; nil disables the access log
	AccessLog io.Writer
}

// room above the upload cap for the multipart envelope
const multipartOverhead = 1 << 20

func NewServer(d Deps) *fiber.App {
	cfg := d.Config
	app := fiber.New(fiber.Config{
		BodyLimit:             int(cfg.Upload.MaxBytes) + multipartOverhead,
		ReadTimeout:           60 * time.Second,
		WriteTimeout:          60 * time.Second,
		DisableStartupMessage: true,
		ErrorHandler:          errorHandler(d.Log),
	})

	app.Use(recover.New())
	if d.AccessLog != nil {
		app.Use(logger.New(logger.Config{Output: d.AccessLog}))
	}
	origins := "*"
	if cfg.App.FrontendURL != "" && !cfg.App.IsDevelopment() {
		origins = cfg.App.FrontendURL
	}
	app.Use(cors.New(cors.Config{
		AllowOrigins: origins,
		AllowHeaders: "Origin, Content-Type, Accept, Authorization",
		AllowMethods: "GET,POST,PUT,DELETE,OPTIONS",
	}))

	app.Static("/uploads", cfg.Upload.Dir)
	app.Get("/health", func(c *fiber.Ctx) error { return c.JSON(fiber.Map{"status": "ok"}) })
	if d.Metrics != nil {
		app.Get("/metrics", adaptor.HTTPHandler(d.Metrics.Handler()))
	}

	if d.Socket != nil {
		app.Use("/ws", func(c *fiber.Ctx) error {
			if websocket.IsWebSocketUpgrade(c) {
				return c.Next()
			}
			return fiber.ErrUpgradeRequired
		})
		app.Get("/ws", websocket.New(d.Socket.HandleWS()))
	}

	h := &Handler{chat: d.Chat, presence: d.Presence, validator: d.Validator, log: d.Log}
	admin := RequireAdmin(d.Validator)

	api := app.Group("/api")
	api.Post("/messages", h.PostMessage)
	api.Post("/messages/upload", h.Upload)
	api.Post("/messages/offer", admin, h.PostOffer)
	api.Post("/messages/delivery", admin, h.PostDelivery)
	api.Post("/messages/orders", admin, h.CreateOrder)
	api.Get("/messages/orders/:visitorId", admin, h.ListOrders)
	api.Put("/messages/orders/:id/confirm", admin, h.ConfirmOrder)
	api.Get("/messages/:visitorId", h.History)
	api.Delete("/users/:visitorId", admin, h.DeleteVisitor)
	api.Get("/presence", admin, h.Presence)

	return app
}

// errorHandler renders fiber's own errors (body limit, unknown route) and
// anything a handler returned unwritten in the JSON error shape.
func errorHandler(log *zap.SugaredLogger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		if utils.StatusOf(err) >= fiber.StatusInternalServerError {
			log.Errorw("unhandled request error", "path", c.Path(), "err", err)
		}
		return utils.JSONError(c, err)
	}
}
