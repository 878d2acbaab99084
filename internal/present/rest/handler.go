package rest

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"github.com/studiofoundry/backstage"
	"github.com/studiofoundry/backstage/internal/domain"
	"github.com/studiofoundry/backstage/internal/present/rest/presenter"
	"github.com/studiofoundry/backstage/internal/usecase"
)

const maxAssetUploadBytes = 32 << 20

// ProgressStream delivers the progress events published under one key,
// either an operation id or the id of the entity or account being
// mutated.
type ProgressStream interface {
	Subscribe(ctx context.Context, id string) (<-chan backstage.ProgressEvent, func())
}

type Handler struct {
	config   domain.Config
	entity   *usecase.EntityUsecase
	account  *usecase.AccountUsecase
	progress ProgressStream
}

func NewHandler(
	config domain.Config,
	entity *usecase.EntityUsecase,
	account *usecase.AccountUsecase,
	progress ProgressStream,
) *Handler {
	return &Handler{
		config:   config,
		entity:   entity,
		account:  account,
		progress: progress,
	}
}

func (h *Handler) RegisterRoutes(e *echo.Echo, auth echo.MiddlewareFunc) {
	api := e.Group("/api/v1", auth)

	api.GET("/entities", h.handleListEntities)
	api.POST("/entities", h.handleCreateEntity)
	api.GET("/entities/:id", h.handleGetEntity)
	api.PUT("/entities/:id", h.handleUpdateEntity)
	api.DELETE("/entities/:id", h.handleDeleteEntity)
	api.POST("/entities/:id/publish", h.handlePublish)
	api.POST("/entities/:id/unpublish", h.handleUnpublish)
	api.GET("/entities/:id/completeness", h.handleCompleteness)
	api.POST("/entities/:id/assets/:slot", h.handleUploadAsset)
	api.DELETE("/entities/:id/assets", h.handleDetachAsset)
	api.POST("/drafts/:id/abandon", h.handleAbandonDraft)

	api.GET("/accounts", h.handleListAccounts)
	api.POST("/accounts", h.handleInviteAccount)
	api.GET("/accounts/:id", h.handleGetAccount)
	api.DELETE("/accounts/:id", h.handleDeprovisionAccount)

	api.GET("/progress/:id", h.handleProgress)
}

func session(c echo.Context) (domain.Session, bool) {
	return domain.SessionFromContext(c.Request().Context())
}

type entityRequest struct {
	ID       string               `json:"id,omitempty"`
	Kind     string               `json:"kind"`
	Title    string               `json:"title"`
	Fields   map[string]string    `json:"fields"`
	VideoURL string               `json:"videoUrl"`
	Primary  *backstage.AssetRef  `json:"primaryAsset,omitempty"`
	Gallery  []backstage.AssetRef `json:"gallery,omitempty"`
}

func (r entityRequest) toInput() usecase.EntityInput {
	return usecase.EntityInput{
		ID:           r.ID,
		Kind:         r.Kind,
		Title:        r.Title,
		Fields:       r.Fields,
		VideoURL:     r.VideoURL,
		PrimaryAsset: r.Primary,
		Gallery:      r.Gallery,
	}
}

func toWire(e domain.Entity) backstage.Entity {
	return backstage.Entity{
		ID:           e.ID,
		Kind:         e.Kind,
		Title:        e.Title,
		Fields:       e.Fields,
		VideoURL:     e.VideoURL,
		Status:       e.Status,
		PrimaryAsset: e.PrimaryAsset,
		Gallery:      e.Gallery,
		CDate:        e.CDate,
		MDate:        e.MDate,
	}
}

func toWireProfile(p domain.Profile) backstage.Profile {
	return backstage.Profile{
		ID:     p.ID,
		Email:  p.Email,
		Role:   p.Role,
		Status: p.Status,
	}
}

func (h *Handler) handleListEntities(c echo.Context) error {
	ctx := c.Request().Context()

	limit := 50
	limitStr := c.QueryParam("limit")
	if limitStr != "" {
		limitInt, err := strconv.Atoi(limitStr)
		if err != nil {
			return presenter.BadRequestMessage(c, "invalid limit parameter")
		}
		limit = limitInt
	}
	if limit > 100 {
		limit = 100
	}

	entities, err := h.entity.List(ctx, c.QueryParam("kind"), limit)
	if err != nil {
		return presenter.Error(c, err)
	}

	wire := make([]backstage.Entity, 0, len(entities))
	for _, e := range entities {
		wire = append(wire, toWire(e))
	}
	return presenter.OK(c, wire)
}

func (h *Handler) handleCreateEntity(c echo.Context) error {
	ctx := c.Request().Context()
	sess, _ := session(c)

	var req entityRequest
	if err := c.Bind(&req); err != nil {
		return presenter.BadRequest(c, err)
	}

	entity, err := h.entity.Create(ctx, sess, req.toInput())
	if err != nil {
		return presenter.Error(c, err)
	}
	return presenter.OK(c, toWire(entity))
}

func (h *Handler) handleGetEntity(c echo.Context) error {
	ctx := c.Request().Context()

	entity, err := h.entity.Get(ctx, c.Param("id"))
	if err != nil {
		return presenter.Error(c, err)
	}
	return presenter.OK(c, toWire(entity))
}

func (h *Handler) handleUpdateEntity(c echo.Context) error {
	ctx := c.Request().Context()
	sess, _ := session(c)

	var req entityRequest
	if err := c.Bind(&req); err != nil {
		return presenter.BadRequest(c, err)
	}

	entity, err := h.entity.Update(ctx, sess, c.Param("id"), req.toInput())
	if err != nil {
		return presenter.Error(c, err)
	}
	return presenter.OK(c, toWire(entity))
}

func (h *Handler) handleDeleteEntity(c echo.Context) error {
	ctx := c.Request().Context()
	sess, _ := session(c)

	result, err := h.entity.Delete(ctx, sess, c.Param("id"))
	if err != nil {
		return presenter.Error(c, err)
	}
	return presenter.OK(c, result)
}

func (h *Handler) handlePublish(c echo.Context) error {
	ctx := c.Request().Context()
	sess, _ := session(c)

	result, err := h.entity.Publish(ctx, sess, c.Param("id"))
	if err != nil {
		return presenter.Error(c, err)
	}
	if !result.OK {
		return c.JSON(http.StatusUnprocessableEntity, result)
	}
	return presenter.OK(c, result)
}

func (h *Handler) handleUnpublish(c echo.Context) error {
	ctx := c.Request().Context()
	sess, _ := session(c)

	if err := h.entity.Unpublish(ctx, sess, c.Param("id")); err != nil {
		return presenter.Error(c, err)
	}
	return presenter.OK(c, echo.Map{"status": "ok"})
}

func (h *Handler) handleCompleteness(c echo.Context) error {
	ctx := c.Request().Context()

	entity, err := h.entity.Get(ctx, c.Param("id"))
	if err != nil {
		return presenter.Error(c, err)
	}
	return presenter.OK(c, domain.Evaluate(entity))
}

func (h *Handler) handleUploadAsset(c echo.Context) error {
	ctx := c.Request().Context()
	sess, _ := session(c)

	slot := c.Param("slot")
	if slot != backstage.SlotPrimary && slot != backstage.SlotGallery {
		return presenter.BadRequestMessage(c, "unknown asset slot")
	}

	data, err := io.ReadAll(io.LimitReader(c.Request().Body, maxAssetUploadBytes+1))
	if err != nil {
		return presenter.BadRequest(c, err)
	}
	if len(data) == 0 {
		return presenter.BadRequestMessage(c, "empty asset body")
	}
	if len(data) > maxAssetUploadBytes {
		return presenter.BadRequestMessage(c, "asset too large")
	}

	contentType := c.Request().Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	ref, err := h.entity.UploadAsset(ctx, sess, c.Param("id"), slot, data, contentType)
	if err != nil {
		return presenter.Error(c, err)
	}
	return presenter.OK(c, ref)
}

func (h *Handler) handleDetachAsset(c echo.Context) error {
	ctx := c.Request().Context()
	sess, _ := session(c)

	key := c.QueryParam("key")
	if key == "" {
		return presenter.BadRequestMessage(c, "key parameter is required")
	}

	result, err := h.entity.DetachAsset(ctx, sess, c.Param("id"), key)
	if err != nil {
		return presenter.Error(c, err)
	}
	return presenter.OK(c, result)
}

type abandonRequest struct {
	Assets []backstage.AssetRef `json:"assets"`
}

func (h *Handler) handleAbandonDraft(c echo.Context) error {
	ctx := c.Request().Context()
	sess, _ := session(c)

	var req abandonRequest
	if err := c.Bind(&req); err != nil {
		return presenter.BadRequest(c, err)
	}

	result, err := h.entity.AbandonDraft(ctx, sess, c.Param("id"), req.Assets)
	if err != nil {
		return presenter.Error(c, err)
	}
	return presenter.OK(c, result)
}

func (h *Handler) handleListAccounts(c echo.Context) error {
	ctx := c.Request().Context()
	sess, _ := session(c)

	profiles, err := h.account.List(ctx, sess)
	if err != nil {
		return presenter.Error(c, err)
	}

	wire := make([]backstage.Profile, 0, len(profiles))
	for _, p := range profiles {
		wire = append(wire, toWireProfile(p))
	}
	return presenter.OK(c, wire)
}

type inviteRequest struct {
	Email string `json:"email"`
	Role  string `json:"role"`
}

func (h *Handler) handleInviteAccount(c echo.Context) error {
	ctx := c.Request().Context()
	sess, _ := session(c)

	var req inviteRequest
	if err := c.Bind(&req); err != nil {
		return presenter.BadRequest(c, err)
	}

	profile, err := h.account.Invite(ctx, sess, req.Email, req.Role)
	if err != nil {
		return presenter.Error(c, err)
	}
	return presenter.OK(c, toWireProfile(profile))
}

func (h *Handler) handleGetAccount(c echo.Context) error {
	ctx := c.Request().Context()
	sess, _ := session(c)

	profile, err := h.account.Get(ctx, sess, c.Param("id"))
	if err != nil {
		return presenter.Error(c, err)
	}
	return presenter.OK(c, toWireProfile(profile))
}

func (h *Handler) handleDeprovisionAccount(c echo.Context) error {
	ctx := c.Request().Context()
	sess, _ := session(c)

	result, err := h.account.Deprovision(ctx, sess, c.Param("id"))
	if err != nil {
		return presenter.Error(c, err)
	}
	return presenter.OK(c, result)
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// handleProgress streams progress events over a websocket until the
// final event arrives. The path id is either an operation id or the id
// of the entity or account being mutated; subscribing by the latter
// before dispatching the mutation catches the events from step one.
func (h *Handler) handleProgress(c echo.Context) error {
	ws, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		slog.Error(
			"Failed to upgrade WebSocket",
			slog.String("error", err.Error()),
			slog.String("module", "socket"),
		)
		return err
	}
	defer func() {
		ws.Close()
	}()

	ctx := c.Request().Context()

	events, cancel := h.progress.Subscribe(ctx, c.Param("id"))
	defer cancel()

	quit := make(chan struct{})

	go func() {
		for {
			// Only heartbeats arrive on this socket; reading drives
			// close detection.
			if _, _, err := ws.ReadMessage(); err != nil {
				wsErr, ok := err.(*websocket.CloseError)
				if ok {
					if !(wsErr.Code == websocket.CloseNormalClosure || wsErr.Code == websocket.CloseGoingAway) {
						slog.DebugContext(
							ctx, "WebSocket closed",
							slog.String("error", wsErr.Error()),
							slog.String("module", "socket"),
						)
					}
				} else {
					slog.ErrorContext(
						ctx, "Error reading message",
						slog.String("error", err.Error()),
						slog.String("module", "socket"),
					)
				}

				close(quit)
				break
			}
		}
	}()

	for {
		select {
		case <-quit:
			return nil
		case event, ok := <-events:
			if !ok {
				return nil
			}
			if err := ws.WriteJSON(event); err != nil {
				slog.ErrorContext(
					ctx, "Error writing message",
					slog.String("error", err.Error()),
					slog.String("module", "socket"),
				)
				return nil
			}
			if event.Final {
				return nil
			}
		}
	}
}
