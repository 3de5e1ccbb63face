package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-gl/mathgl/mgl64"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/FairForge/viewercore/internal/geom"
	"github.com/FairForge/viewercore/internal/image360"
	"github.com/FairForge/viewercore/internal/logging"
	"github.com/FairForge/viewercore/internal/provider"
)

const batchPreloadWorkers = 4

// Image360Handler exposes the image360 facade.
type Image360Handler struct {
	facade *image360.Facade[provider.SiteFilter]
	logger *zap.Logger
}

// NewImage360Handler creates an image360 handler.
func NewImage360Handler(facade *image360.Facade[provider.SiteFilter], logger *zap.Logger) *Image360Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Image360Handler{facade: facade, logger: logger}
}

// RegisterRoutes registers the image360 routes.
func (h *Image360Handler) RegisterRoutes(r chi.Router) {
	r.Route("/api/v1/image360", func(r chi.Router) {
		r.Post("/collections", h.CreateCollection)

		r.Get("/entities", h.ListEntities)
		r.Get("/entities/{id}", h.GetEntity)
		r.Post("/entities/{id}/preload", h.PreloadEntity)
		r.Delete("/entities/{id}", h.DeleteEntity)
		r.Post("/preload", h.PreloadBatch)

		r.Post("/intersect", h.Intersect)
		r.Put("/visibility", h.SetVisibility)
		r.Get("/cache", h.CacheStats)
	})
}

type entityView struct {
	ID           uuid.UUID  `json:"id"`
	StationID    string     `json:"stationId"`
	Label        string     `json:"label,omitempty"`
	Site         string     `json:"site"`
	Position     mgl64.Vec3 `json:"position"`
	IconVisible  bool       `json:"iconVisible"`
	HoverVisible bool       `json:"hoverVisible"`
	State        string     `json:"state"`
	Faces        []string   `json:"faces,omitempty"`
}

func (h *Image360Handler) view(e *image360.Entity) entityView {
	v := entityView{
		ID:           e.ID,
		StationID:    e.Station.ID,
		Label:        e.Station.Label,
		Site:         e.Station.Site,
		Position:     e.Position(),
		IconVisible:  e.Icon().Visible(),
		HoverVisible: e.Icon().HoverVisible(),
		State:        h.facade.Cache().State(e).String(),
	}
	for _, f := range e.Faces() {
		v.Faces = append(v.Faces, f.Face)
	}
	return v
}

func (h *Image360Handler) views(entities []*image360.Entity) []entityView {
	out := make([]entityView, len(entities))
	for i, e := range entities {
		out[i] = h.view(e)
	}
	return out
}

type createCollectionRequest struct {
	Site                string      `json:"site"`
	Labels              []string    `json:"labels,omitempty"`
	PostTransform       *mgl64.Mat4 `json:"postTransform,omitempty"` // column major
	PreComputedRotation bool        `json:"preComputedRotation"`
}

// CreateCollection creates entities for a site.
func (h *Image360Handler) CreateCollection(w http.ResponseWriter, r *http.Request) {
	var req createCollectionRequest
	if err := decodeBody(r, w, &req); err != nil {
		writeError(h.logger, w, http.StatusBadRequest, fmt.Errorf("decode request: %w", err))
		return
	}

	filter := provider.SiteFilter{Site: req.Site, Labels: req.Labels}
	if err := filter.Validate(); err != nil {
		writeError(h.logger, w, http.StatusBadRequest, err)
		return
	}

	created, err := h.facade.Create(r.Context(), filter, req.PostTransform, req.PreComputedRotation)
	if err != nil {
		writeError(h.logger, w, statusFor(err), err)
		return
	}

	writeJSON(h.logger, w, http.StatusCreated, map[string]interface{}{
		"entities": h.views(created),
		"count":    len(created),
	})
}

// ListEntities lists the collection in insertion order.
func (h *Image360Handler) ListEntities(w http.ResponseWriter, r *http.Request) {
	entities := h.facade.Entities()
	writeJSON(h.logger, w, http.StatusOK, map[string]interface{}{
		"entities": h.views(entities),
		"count":    len(entities),
	})
}

func (h *Image360Handler) entityFromPath(r *http.Request) (*image360.Entity, int, error) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		return nil, http.StatusBadRequest, fmt.Errorf("invalid entity id: %w", err)
	}
	e, err := h.facade.EntityByID(id)
	if err != nil {
		return nil, http.StatusNotFound, fmt.Errorf("entity %s: %w", id, err)
	}
	return e, 0, nil
}

// GetEntity returns one entity.
func (h *Image360Handler) GetEntity(w http.ResponseWriter, r *http.Request) {
	e, status, err := h.entityFromPath(r)
	if err != nil {
		writeError(h.logger, w, status, err)
		return
	}
	writeJSON(h.logger, w, http.StatusOK, h.view(e))
}

// PreloadEntity loads an entity's faces and waits for them.
func (h *Image360Handler) PreloadEntity(w http.ResponseWriter, r *http.Request) {
	e, status, err := h.entityFromPath(r)
	if err != nil {
		writeError(h.logger, w, status, err)
		return
	}

	ctx := context.WithValue(r.Context(), logging.ContextKeyEntityID, e.ID.String())
	if err := h.facade.Preload(ctx, e); err != nil {
		logging.WithContext(ctx, h.logger).Warn("preload failed", zap.Error(err))
		writeError(h.logger, w, statusFor(err), err)
		return
	}
	writeJSON(h.logger, w, http.StatusOK, h.view(e))
}

type batchPreloadRequest struct {
	IDs []uuid.UUID `json:"ids"`
}

type batchPreloadResult struct {
	ID    uuid.UUID `json:"id"`
	State string    `json:"state"`
	Error string    `json:"error,omitempty"`
}

// PreloadBatch preloads several entities concurrently. Individual failures
// are reported per entity.
func (h *Image360Handler) PreloadBatch(w http.ResponseWriter, r *http.Request) {
	var req batchPreloadRequest
	if err := decodeBody(r, w, &req); err != nil {
		writeError(h.logger, w, http.StatusBadRequest, fmt.Errorf("decode request: %w", err))
		return
	}
	if len(req.IDs) == 0 {
		writeError(h.logger, w, http.StatusBadRequest, errors.New("ids are required"))
		return
	}

	results := make([]batchPreloadResult, len(req.IDs))
	var g errgroup.Group
	g.SetLimit(batchPreloadWorkers)
	for i, id := range req.IDs {
		g.Go(func() error {
			results[i] = batchPreloadResult{ID: id}
			e, err := h.facade.EntityByID(id)
			if err == nil {
				err = h.facade.Preload(r.Context(), e)
			}
			if err != nil {
				results[i].Error = err.Error()
				results[i].State = image360.StateFailed.String()
				return nil
			}
			results[i].State = h.facade.Cache().State(e).String()
			return nil
		})
	}
	_ = g.Wait()

	writeJSON(h.logger, w, http.StatusOK, map[string]interface{}{
		"results": results,
	})
}

// DeleteEntity removes, purges and disposes an entity.
func (h *Image360Handler) DeleteEntity(w http.ResponseWriter, r *http.Request) {
	e, status, err := h.entityFromPath(r)
	if err != nil {
		writeError(h.logger, w, status, err)
		return
	}

	if err := h.facade.Delete(r.Context(), e); err != nil {
		writeError(h.logger, w, statusFor(err), err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type intersectRequest struct {
	NDC    mgl64.Vec2        `json:"ndc"`
	Camera geom.CameraParams `json:"camera"`
}

// Intersect picks the first entity whose icon is under the given screen point.
func (h *Image360Handler) Intersect(w http.ResponseWriter, r *http.Request) {
	var req intersectRequest
	if err := decodeBody(r, w, &req); err != nil {
		writeError(h.logger, w, http.StatusBadRequest, fmt.Errorf("decode request: %w", err))
		return
	}
	if req.NDC[0] < -1 || req.NDC[0] > 1 || req.NDC[1] < -1 || req.NDC[1] > 1 {
		writeError(h.logger, w, http.StatusBadRequest, errors.New("ndc must be within [-1, 1]"))
		return
	}

	hit := h.facade.Intersect(req.NDC, req.Camera.Camera())
	if hit == nil {
		writeJSON(h.logger, w, http.StatusOK, map[string]interface{}{"hit": false})
		return
	}
	writeJSON(h.logger, w, http.StatusOK, map[string]interface{}{
		"hit":    true,
		"entity": h.view(hit),
	})
}

type visibilityRequest struct {
	Icons      *bool `json:"icons,omitempty"`
	HoverIcons *bool `json:"hoverIcons,omitempty"`
}

// SetVisibility broadcasts icon visibility flags.
func (h *Image360Handler) SetVisibility(w http.ResponseWriter, r *http.Request) {
	var req visibilityRequest
	if err := decodeBody(r, w, &req); err != nil {
		writeError(h.logger, w, http.StatusBadRequest, fmt.Errorf("decode request: %w", err))
		return
	}
	if req.Icons == nil && req.HoverIcons == nil {
		writeError(h.logger, w, http.StatusBadRequest, errors.New("icons or hoverIcons is required"))
		return
	}

	if req.Icons != nil {
		h.facade.SetAllIconsVisibility(*req.Icons)
	}
	if req.HoverIcons != nil {
		h.facade.SetAllHoverIconsVisibility(*req.HoverIcons)
	}
	w.WriteHeader(http.StatusNoContent)
}

// CacheStats returns the loading cache counters.
func (h *Image360Handler) CacheStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(h.logger, w, http.StatusOK, h.facade.Cache().Stats())
}
