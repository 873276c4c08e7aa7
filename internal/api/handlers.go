package api

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/FAKUBA08/HaySquare-Back/internal/auth"
	"github.com/FAKUBA08/HaySquare-Back/internal/domain"
	"github.com/FAKUBA08/HaySquare-Back/internal/service"
	"github.com/FAKUBA08/HaySquare-Back/internal/utils"
)

type Handler struct {
	chat      ChatService
	presence  Roster
	validator *auth.Validator
	log       *zap.SugaredLogger
}

type messageRequest struct {
	VisitorID string          `json:"visitorId"`
	Message   string          `json:"message"`
	Sender    string          `json:"sender"`
	Type      string          `json:"type"`
	Meta      json.RawMessage `json:"meta"`
}

type offerRequest struct {
	VisitorID string `json:"visitorId"`
	domain.OfferMeta
}

type deliveryRequest struct {
	VisitorID string `json:"visitorId"`
	domain.DeliveryMeta
}

type orderRequest struct {
	VisitorID string `json:"visitorId"`
	Message   string `json:"message"`
	domain.OrderMeta
}

// POST /api/messages
func (h *Handler) PostMessage(c *fiber.Ctx) error {
	var req messageRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.JSONMessage(c, fiber.StatusBadRequest, "invalid request body")
	}

	var (
		m   *domain.ChatMessage
		err error
	)
	if domain.ParseSender(req.Sender) == domain.SenderAdmin {
		if !isAdmin(c, h.validator) {
			return utils.JSONError(c, domain.ErrUnauthorized)
		}
		m, err = h.chat.AdminReply(c.UserContext(), req.VisitorID, req.Message, domain.Kind(req.Type), req.Meta)
	} else {
		if req.Type != "" && domain.Kind(req.Type) != domain.KindText {
			return h.fail(c, domain.ErrInvalidKind)
		}
		if len(req.Meta) > 0 && string(req.Meta) != "null" {
			return h.fail(c, domain.ErrInvalidMeta)
		}
		m, err = h.chat.SendVisitorMessage(c.UserContext(), req.VisitorID, req.Message)
	}
	if err != nil {
		return h.fail(c, err)
	}
	return utils.JSONSuccess(c, fiber.StatusCreated, m)
}

// POST /api/messages/upload (multipart/form-data: visitorId, sender, file)
func (h *Handler) Upload(c *fiber.Ctx) error {
	sender := domain.ParseSender(c.FormValue("sender"))
	if sender == domain.SenderAdmin && !isAdmin(c, h.validator) {
		return utils.JSONError(c, domain.ErrUnauthorized)
	}

	fileHeader, err := c.FormFile("file")
	if err != nil {
		return h.fail(c, domain.ErrMissingFile)
	}
	f, err := fileHeader.Open()
	if err != nil {
		return h.fail(c, err)
	}
	defer f.Close()

	ct := fileHeader.Header.Get(fiber.HeaderContentType)
	if ct == "" || ct == fiber.MIMEOctetStream {
		head := make([]byte, 512)
		n, _ := f.Read(head)
		ct = http.DetectContentType(head[:n])
		if _, err := f.Seek(0, io.SeekStart); err != nil {
			return h.fail(c, err)
		}
	}

	m, err := h.chat.Upload(c.UserContext(), service.UploadInput{
		VisitorID:    c.FormValue("visitorId"),
		Sender:       sender,
		OriginalName: fileHeader.Filename,
		MimeType:     ct,
		Size:         fileHeader.Size,
		File:         f,
	})
	if err != nil {
		return h.fail(c, err)
	}
	return utils.JSONSuccess(c, fiber.StatusCreated, m)
}

// GET /api/messages/:visitorId
func (h *Handler) History(c *fiber.Ctx) error {
	msgs, err := h.chat.History(c.UserContext(), c.Params("visitorId"))
	if err != nil {
		return h.fail(c, err)
	}
	return utils.JSONSuccess(c, fiber.StatusOK, msgs)
}

// DELETE /api/users/:visitorId
func (h *Handler) DeleteVisitor(c *fiber.Ctx) error {
	n, err := h.chat.DeleteVisitor(c.UserContext(), c.Params("visitorId"))
	if err != nil {
		return h.fail(c, err)
	}
	return utils.JSONSuccess(c, fiber.StatusOK, fiber.Map{"deleted": n})
}

func (h *Handler) PostOffer(c *fiber.Ctx) error {
	var req offerRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.JSONMessage(c, fiber.StatusBadRequest, "invalid request body")
	}
	m, err := h.chat.PostOffer(c.UserContext(), req.VisitorID, req.OfferMeta)
	if err != nil {
		return h.fail(c, err)
	}
	return utils.JSONSuccess(c, fiber.StatusCreated, m)
}

func (h *Handler) PostDelivery(c *fiber.Ctx) error {
	var req deliveryRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.JSONMessage(c, fiber.StatusBadRequest, "invalid request body")
	}
	m, err := h.chat.PostDelivery(c.UserContext(), req.VisitorID, req.DeliveryMeta)
	if err != nil {
		return h.fail(c, err)
	}
	return utils.JSONSuccess(c, fiber.StatusCreated, m)
}

func (h *Handler) CreateOrder(c *fiber.Ctx) error {
	var req orderRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.JSONMessage(c, fiber.StatusBadRequest, "invalid request body")
	}
	m, err := h.chat.CreateOrder(c.UserContext(), req.VisitorID, req.Message, req.OrderMeta)
	if err != nil {
		return h.fail(c, err)
	}
	return utils.JSONSuccess(c, fiber.StatusCreated, m)
}

func (h *Handler) ListOrders(c *fiber.Ctx) error {
	msgs, err := h.chat.ListOrders(c.UserContext(), c.Params("visitorId"))
	if err != nil {
		return h.fail(c, err)
	}
	return utils.JSONSuccess(c, fiber.StatusOK, msgs)
}

func (h *Handler) ConfirmOrder(c *fiber.Ctx) error {
	m, err := h.chat.ConfirmOrder(c.UserContext(), c.Params("id"))
	if err != nil {
		return h.fail(c, err)
	}
	return utils.JSONSuccess(c, fiber.StatusOK, m)
}

// GET /api/presence
func (h *Handler) Presence(c *fiber.Ctx) error {
	return utils.JSONSuccess(c, fiber.StatusOK, h.presence.Roster())
}

// fail writes err as a JSON error. Server faults are logged here since the
// client only sees a generic message.
func (h *Handler) fail(c *fiber.Ctx, err error) error {
	if utils.StatusOf(err) >= fiber.StatusInternalServerError {
		h.log.Errorw("request failed", "method", c.Method(), "path", c.Path(), "err", err)
	}
	return utils.JSONError(c, err)
}
