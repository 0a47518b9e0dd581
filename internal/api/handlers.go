package api

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/bilgisen/feedcaster/internal/logger"
	"github.com/bilgisen/feedcaster/internal/middleware"
	"github.com/bilgisen/feedcaster/internal/models"
	"github.com/bilgisen/feedcaster/internal/publisher"
	"github.com/bilgisen/feedcaster/internal/scheduler"
	"github.com/bilgisen/feedcaster/internal/service"
	"github.com/bilgisen/feedcaster/internal/storage"
)

const Version = "1.0.0"

// Cycles triggers and reports scheduler runs.
type Cycles interface {
	RunIngest(ctx context.Context) (scheduler.IngestStats, error)
	RunPublish(ctx context.Context) (scheduler.PublishStats, error)
	Stats() (scheduler.IngestStats, scheduler.PublishStats)
}

type Pinger interface {
	Ping(ctx context.Context) error
}

type Handlers struct {
	svc    *service.Service
	cycles Cycles
	db     Pinger
}

func NewHandlers(svc *service.Service, cycles Cycles, db Pinger) *Handlers {
	return &Handlers{svc: svc, cycles: cycles, db: db}
}

type createChannelRequest struct {
	ExternalID   string `json:"external_id" validate:"required"`
	Name         string `json:"name" validate:"required"`
	Topic        string `json:"topic"`
	Moderation   bool   `json:"moderation"`
	Model        string `json:"model"`
	Prompt       string `json:"prompt"`
	PostInterval int64  `json:"post_interval" validate:"gte=0"`
	Active       *bool  `json:"active"`
}

type addSourceRequest struct {
	URL  string `json:"url" validate:"required,url"`
	Name string `json:"name"`
}

type editPostRequest struct {
	Content string `json:"content" validate:"required"`
}

type discoverRequest struct {
	URL string `json:"url" validate:"required,url"`
}

// toHTTPError maps domain errors onto status codes.
func toHTTPError(err error) error {
	code := fiber.StatusInternalServerError
	switch {
	case errors.Is(err, storage.ErrNotFound):
		code = fiber.StatusNotFound
	case errors.Is(err, storage.ErrAlreadyExists),
		errors.Is(err, storage.ErrInvalidTransition),
		errors.Is(err, service.ErrNotPublished),
		errors.Is(err, scheduler.ErrCycleRunning):
		code = fiber.StatusConflict
	case errors.Is(err, service.ErrInvalidInput),
		errors.Is(err, service.ErrNoSources),
		errors.Is(err, service.ErrNoEntries):
		code = fiber.StatusUnprocessableEntity
	case errors.Is(err, publisher.ErrPublishFailed):
		code = fiber.StatusBadGateway
	}
	return fiber.NewError(code, err.Error())
}

func idParam(c *fiber.Ctx) (int64, error) {
	id, err := strconv.ParseInt(c.Params("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, fiber.NewError(fiber.StatusBadRequest, "invalid id")
	}
	return id, nil
}

// HealthCheck handles GET /health
func (h *Handlers) HealthCheck(c *fiber.Ctx) error {
	status := "ok"
	code := fiber.StatusOK
	if err := h.db.Ping(c.UserContext()); err != nil {
		logger.Get().Error().Err(err).Msg("Database ping failed")
		status = "degraded"
		code = fiber.StatusServiceUnavailable
	}

	body := fiber.Map{
		"status":  status,
		"version": Version,
		"time":    time.Now().Format(time.RFC3339),
	}
	if counts, err := h.svc.StatusCounts(c.UserContext()); err == nil {
		body["posts"] = counts
	}
	if h.cycles != nil {
		ingest, publish := h.cycles.Stats()
		body["ingest"] = ingest
		body["publish"] = publish
	}
	return c.Status(code).JSON(body)
}

// ListChannels handles GET /admin/channels
func (h *Handlers) ListChannels(c *fiber.Ctx) error {
	channels, err := h.svc.ListChannels(c.UserContext())
	if err != nil {
		return toHTTPError(err)
	}
	return c.JSON(fiber.Map{"items": channels, "total": len(channels)})
}

// CreateChannel handles POST /admin/channels
func (h *Handlers) CreateChannel(c *fiber.Ctx) error {
	req := middleware.Body[createChannelRequest](c)
	active := true
	if req.Active != nil {
		active = *req.Active
	}

	ch, err := h.svc.CreateChannel(c.UserContext(), models.Channel{
		ExternalID:   req.ExternalID,
		Name:         req.Name,
		Topic:        req.Topic,
		Active:       active,
		Moderation:   req.Moderation,
		Model:        req.Model,
		Prompt:       req.Prompt,
		PostInterval: req.PostInterval,
	})
	if err != nil {
		return toHTTPError(err)
	}
	return c.Status(fiber.StatusCreated).JSON(ch)
}

// GetChannel handles GET /admin/channels/:id
func (h *Handlers) GetChannel(c *fiber.Ctx) error {
	id, err := idParam(c)
	if err != nil {
		return err
	}
	ch, err := h.svc.GetChannel(c.UserContext(), id)
	if err != nil {
		return toHTTPError(err)
	}
	return c.JSON(ch)
}

// UpdateChannel handles PATCH /admin/channels/:id
func (h *Handlers) UpdateChannel(c *fiber.Ctx) error {
	id, err := idParam(c)
	if err != nil {
		return err
	}
	ch, err := h.svc.UpdateChannelSettings(c.UserContext(), id, *middleware.Body[models.ChannelUpdate](c))
	if err != nil {
		return toHTTPError(err)
	}
	return c.JSON(ch)
}

// ToggleChannel handles POST /admin/channels/:id/toggle
func (h *Handlers) ToggleChannel(c *fiber.Ctx) error {
	id, err := idParam(c)
	if err != nil {
		return err
	}
	active, err := h.svc.ToggleChannelActive(c.UserContext(), id)
	if err != nil {
		return toHTTPError(err)
	}
	return c.JSON(fiber.Map{"id": id, "active": active})
}

// DeleteChannel handles DELETE /admin/channels/:id
func (h *Handlers) DeleteChannel(c *fiber.Ctx) error {
	id, err := idParam(c)
	if err != nil {
		return err
	}
	if err := h.svc.DeleteChannel(c.UserContext(), id); err != nil {
		return toHTTPError(err)
	}
	return c.JSON(fiber.Map{"status": "deleted"})
}

// ListSources handles GET /admin/channels/:id/sources
func (h *Handlers) ListSources(c *fiber.Ctx) error {
	id, err := idParam(c)
	if err != nil {
		return err
	}
	sources, err := h.svc.ListSources(c.UserContext(), id)
	if err != nil {
		return toHTTPError(err)
	}
	return c.JSON(fiber.Map{"items": sources, "total": len(sources)})
}

// AddSource handles POST /admin/channels/:id/sources
func (h *Handlers) AddSource(c *fiber.Ctx) error {
	id, err := idParam(c)
	if err != nil {
		return err
	}
	req := middleware.Body[addSourceRequest](c)
	src, err := h.svc.AddSource(c.UserContext(), id, req.URL, req.Name)
	if err != nil {
		return toHTTPError(err)
	}
	return c.Status(fiber.StatusCreated).JSON(src)
}

// DeleteSource handles DELETE /admin/sources/:id
func (h *Handlers) DeleteSource(c *fiber.Ctx) error {
	id, err := idParam(c)
	if err != nil {
		return err
	}
	if err := h.svc.DeleteSource(c.UserContext(), id); err != nil {
		return toHTTPError(err)
	}
	return c.JSON(fiber.Map{"status": "deleted"})
}

// ListQueue handles GET /admin/channels/:id/queue
func (h *Handlers) ListQueue(c *fiber.Ctx) error {
	id, err := idParam(c)
	if err != nil {
		return err
	}
	posts, err := h.svc.ListDueQueue(c.UserContext(), id)
	if err != nil {
		return toHTTPError(err)
	}
	return c.JSON(fiber.Map{"items": posts, "total": len(posts)})
}

// ClearQueue handles DELETE /admin/channels/:id/queue
func (h *Handlers) ClearQueue(c *fiber.Ctx) error {
	id, err := idParam(c)
	if err != nil {
		return err
	}
	n, err := h.svc.ClearQueue(c.UserContext(), id)
	if err != nil {
		return toHTTPError(err)
	}
	return c.JSON(fiber.Map{"deleted": n})
}

// ManualPost handles POST /admin/channels/:id/manual-post
func (h *Handlers) ManualPost(c *fiber.Ctx) error {
	id, err := idParam(c)
	if err != nil {
		return err
	}
	post, err := h.svc.CreateManualPost(c.UserContext(), id)
	if err != nil {
		return toHTTPError(err)
	}
	return c.Status(fiber.StatusCreated).JSON(post)
}

// ModerationQueue handles GET /admin/moderation?channel_id=
func (h *Handlers) ModerationQueue(c *fiber.Ctx) error {
	channelID := int64(c.QueryInt("channel_id", 0))
	posts, err := h.svc.ModerationQueue(c.UserContext(), channelID)
	if err != nil {
		return toHTTPError(err)
	}
	return c.JSON(fiber.Map{"items": posts, "total": len(posts)})
}

// ApprovePost handles POST /admin/posts/:id/approve
func (h *Handlers) ApprovePost(c *fiber.Ctx) error {
	id, err := idParam(c)
	if err != nil {
		return err
	}
	post, err := h.svc.ApprovePost(c.UserContext(), id)
	if err != nil {
		return toHTTPError(err)
	}
	return c.JSON(post)
}

// RejectPost handles POST /admin/posts/:id/reject
func (h *Handlers) RejectPost(c *fiber.Ctx) error {
	id, err := idParam(c)
	if err != nil {
		return err
	}
	if err := h.svc.RejectPost(c.UserContext(), id); err != nil {
		return toHTTPError(err)
	}
	return c.JSON(fiber.Map{"status": "rejected"})
}

// EditPost handles PATCH /admin/posts/:id
func (h *Handlers) EditPost(c *fiber.Ctx) error {
	id, err := idParam(c)
	if err != nil {
		return err
	}
	req := middleware.Body[editPostRequest](c)
	ok, err := h.svc.EditPublishedPost(c.UserContext(), id, req.Content)
	if err != nil {
		return toHTTPError(err)
	}
	return c.JSON(fiber.Map{"edited": ok})
}

// DeletePost handles DELETE /admin/posts/:id
func (h *Handlers) DeletePost(c *fiber.Ctx) error {
	id, err := idParam(c)
	if err != nil {
		return err
	}
	ok, err := h.svc.DeletePublishedPost(c.UserContext(), id)
	if err != nil {
		return toHTTPError(err)
	}
	return c.JSON(fiber.Map{"deleted": ok})
}

// RunCycle handles POST /admin/cycles/:name
func (h *Handlers) RunCycle(c *fiber.Ctx) error {
	var (
		stats any
		err   error
	)
	switch c.Params("name") {
	case "ingest":
		stats, err = h.cycles.RunIngest(c.UserContext())
	case "publish":
		stats, err = h.cycles.RunPublish(c.UserContext())
	default:
		return fiber.NewError(fiber.StatusNotFound, "unknown cycle")
	}
	if err != nil {
		return toHTTPError(err)
	}
	return c.JSON(stats)
}

// Discover handles POST /admin/discover
func (h *Handlers) Discover(c *fiber.Ctx) error {
	req := middleware.Body[discoverRequest](c)
	feeds, err := h.svc.DiscoverFeeds(c.UserContext(), req.URL)
	if err != nil {
		return toHTTPError(err)
	}
	return c.JSON(fiber.Map{"items": feeds, "total": len(feeds)})
}
