package api

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/poiesic/bifrost/core"
	"github.com/poiesic/bifrost/storage"
)

// DetectionKey is the metadata key reported as "did" by /collection.
const DetectionKey = "Detection"

type errorResponse struct {
	Error string `json:"error"`
}

type detectionItem struct {
	ID         string  `json:"id"`
	BBox       string  `json:"bbox"`
	Confidence float64 `json:"confidence"`
	UTC        string  `json:"utc"`
	DID        *string `json:"did"`
}

type entryLabel struct {
	ID    string `json:"id"`
	Label string `json:"label"`
}

type additionalInfo struct {
	FirstDetection *string `json:"first_detection"`
	LastDetection  *string `json:"last_detection"`
}

type labelStats struct {
	Total          int            `json:"total"`
	LastData       *string        `json:"lastData"`
	AdditionalInfo additionalInfo `json:"additionalInfo"`
}

type statusResponse struct {
	Status string `json:"status"`
}

type runningResponse struct {
	Running bool `json:"running"`
}

type queryRequest struct {
	Question string `json:"question"`
}

type queryResponse struct {
	Context string `json:"context"`
	Answer  string `json:"answer"`
}

type metadataRequest struct {
	Filters map[string]string `json:"filters"`
}

type metadataResponse struct {
	Context string `json:"context"`
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, storage.ErrNotFound), errors.Is(err, ErrNoDocuments):
		status = http.StatusNotFound
	default:
		s.logger.Error("request failed", "path", r.URL.Path, "err", err)
	}
	render.Status(r, status)
	render.JSON(w, r, errorResponse{Error: err.Error()})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, statusResponse{Status: "ok"})
}

// handleCollection groups the aggregate collection by label.
func (s *Server) handleCollection(w http.ResponseWriter, r *http.Request) {
	entries, err := s.index.GetAll(r.Context(), s.collection)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	grouped := make(map[string][]detectionItem)
	for _, e := range entries {
		label := e.Metadata.Label
		if label == "" {
			label = "unknown"
		}
		item := detectionItem{
			ID:         e.ID,
			BBox:       e.Metadata.BBox,
			Confidence: e.Metadata.Confidence,
			UTC:        e.Metadata.UTC,
		}
		if did, ok := e.Metadata.Get(DetectionKey); ok {
			item.DID = &did
		}
		grouped[label] = append(grouped[label], item)
	}
	render.JSON(w, r, grouped)
}

// handleCollections lists every entry id and label across all collections.
// A mirrored detection appears once per collection under the same id.
func (s *Server) handleCollections(w http.ResponseWriter, r *http.Request) {
	collections, err := s.index.ListCollections(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	result := []entryLabel{}
	for _, col := range collections {
		entries, err := s.index.GetAll(r.Context(), col.Name)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		for _, e := range entries {
			label := e.Metadata.Label
			if label == "" {
				label = "Unlabeled"
			}
			result = append(result, entryLabel{ID: e.ID, Label: label})
		}
	}
	render.JSON(w, r, result)
}

func (s *Server) handleLabelStats(w http.ResponseWriter, r *http.Request) {
	label := chi.URLParam(r, "label")

	count, err := s.index.Count(r.Context(), s.collection)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if count == 0 {
		s.writeError(w, r, ErrNoDocuments)
		return
	}

	entries, err := s.index.Filter(r.Context(), s.collection, map[string]string{"label": label})
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	stats := labelStats{Total: len(entries)}
	if len(entries) > 0 {
		first := entries[0].Document
		last := entries[len(entries)-1].Document
		stats.LastData = &last
		stats.AdditionalInfo = additionalInfo{FirstDetection: &first, LastDetection: &last}
	}
	render.JSON(w, r, stats)
}

func (s *Server) handleMQTTStart(w http.ResponseWriter, r *http.Request) {
	status, err := s.lifecycle.Start(s.lifecycleCtx)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	render.JSON(w, r, statusResponse{Status: string(status)})
}

func (s *Server) handleMQTTStop(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, statusResponse{Status: string(s.lifecycle.Stop())})
}

func (s *Server) handleMQTTStatus(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, runningResponse{Running: s.lifecycle.Running()})
}

func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	var req queryRequest
	if err := render.DecodeJSON(r.Body, &req); err != nil {
		s.writeError(w, r, fmt.Errorf("%w: invalid query request: %w", core.ErrValidation, err))
		return
	}

	resp, err := s.answerer.Answer(r.Context(), req.Question)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	render.JSON(w, r, queryResponse{Context: resp.Context, Answer: resp.Answer})
}

func (s *Server) handleQueryMetadata(w http.ResponseWriter, r *http.Request) {
	var req metadataRequest
	if err := render.DecodeJSON(r.Body, &req); err != nil {
		s.writeError(w, r, fmt.Errorf("%w: invalid metadata request: %w", core.ErrValidation, err))
		return
	}

	contextText, err := s.answerer.QueryMetadata(r.Context(), req.Filters)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	render.JSON(w, r, metadataResponse{Context: contextText})
}

func (s *Server) handleIngestionStats(w http.ResponseWriter, r *http.Request) {
	if s.stats == nil {
		s.writeError(w, r, storage.ErrNotFound)
		return
	}
	render.JSON(w, r, s.stats.Stats())
}
