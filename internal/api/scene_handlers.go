package api

import (
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-gl/mathgl/mgl64"
	"go.uber.org/zap"

	"github.com/FairForge/viewercore/internal/geom"
	"github.com/FairForge/viewercore/internal/scene"
)

// SceneHandler serves sector scene metadata.
type SceneHandler struct {
	source SceneSource
	logger *zap.Logger
}

// NewSceneHandler creates a scene handler.
func NewSceneHandler(source SceneSource, logger *zap.Logger) *SceneHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SceneHandler{source: source, logger: logger}
}

// RegisterRoutes registers the scene routes.
func (h *SceneHandler) RegisterRoutes(r chi.Router) {
	r.Route("/api/v1/scenes", func(r chi.Router) {
		r.Post("/parse", h.ParseScene)
		r.Get("/{model}", h.GetScene)
		r.Post("/{model}/cull", h.CullScene)
	})
}

type sectorNode struct {
	ID             int           `json:"id"`
	Path           string        `json:"path"`
	Depth          int           `json:"depth"`
	Bounds         boxView       `json:"bounds"`
	DownloadSize   int64         `json:"downloadSize"`
	SectorFileName string        `json:"sectorFileName,omitempty"`
	Children       []*sectorNode `json:"children,omitempty"`
}

type boxView struct {
	Min mgl64.Vec3 `json:"min"`
	Max mgl64.Vec3 `json:"max"`
}

type sceneSummary struct {
	Version           int         `json:"version"`
	MaxTreeIndex      int         `json:"maxTreeIndex"`
	Unit              string      `json:"unit"`
	SectorCount       int         `json:"sectorCount"`
	TotalDownloadSize int64       `json:"totalDownloadSize"`
	Root              *sectorNode `json:"root"`
}

func summarize(s *scene.SectorScene) sceneSummary {
	nodes := make(map[int]*sectorNode, s.Len())
	s.Walk(func(sec *scene.Sector) bool {
		n := &sectorNode{
			ID:             sec.ID,
			Path:           sec.Path,
			Depth:          sec.Depth,
			Bounds:         boxView{Min: sec.Bounds.Min, Max: sec.Bounds.Max},
			DownloadSize:   sec.DownloadSize,
			SectorFileName: sec.SectorFileName,
		}
		nodes[sec.ID] = n
		if parent, ok := nodes[sec.ParentID]; ok && !sec.IsRoot() {
			parent.Children = append(parent.Children, n)
		}
		return true
	})

	return sceneSummary{
		Version:           s.Version,
		MaxTreeIndex:      s.MaxTreeIndex,
		Unit:              s.Unit,
		SectorCount:       s.Len(),
		TotalDownloadSize: s.TotalDownloadSize(),
		Root:              nodes[s.Root().ID],
	}
}

// ParseScene validates and parses a metadata document from the body.
func (h *SceneHandler) ParseScene(w http.ResponseWriter, r *http.Request) {
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		writeError(h.logger, w, http.StatusBadRequest, fmt.Errorf("read body: %w", err))
		return
	}

	s, err := scene.ParseJSON(data)
	if err != nil {
		writeError(h.logger, w, statusFor(err), err)
		return
	}

	writeJSON(h.logger, w, http.StatusOK, summarize(s))
}

// GetScene loads a model's scene from the provider.
func (h *SceneHandler) GetScene(w http.ResponseWriter, r *http.Request) {
	s, err := h.source.Scene(r.Context(), chi.URLParam(r, "model"))
	if err != nil {
		writeError(h.logger, w, statusFor(err), err)
		return
	}

	writeJSON(h.logger, w, http.StatusOK, summarize(s))
}

type cullRequest struct {
	Box *boxView `json:"box"`
}

// CullScene returns the sectors whose bounds intersect the requested box.
func (h *SceneHandler) CullScene(w http.ResponseWriter, r *http.Request) {
	var req cullRequest
	if err := decodeBody(r, w, &req); err != nil {
		writeError(h.logger, w, http.StatusBadRequest, fmt.Errorf("decode request: %w", err))
		return
	}
	if req.Box == nil {
		writeError(h.logger, w, http.StatusBadRequest, errors.New("box is required"))
		return
	}

	s, err := h.source.Scene(r.Context(), chi.URLParam(r, "model"))
	if err != nil {
		writeError(h.logger, w, statusFor(err), err)
		return
	}

	visible := s.SectorsIntersecting(geom.Box3{Min: req.Box.Min, Max: req.Box.Max})
	ids := make([]int, len(visible))
	var size int64
	for i, sec := range visible {
		ids[i] = sec.ID
		size += sec.DownloadSize
	}

	writeJSON(h.logger, w, http.StatusOK, map[string]interface{}{
		"sectors":      ids,
		"downloadSize": size,
	})
}
