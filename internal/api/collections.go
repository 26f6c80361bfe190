package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/inventory-gateway/internal/store"
)

// handleListRecords returns every record in a served collection.
//
// Query parameters:
//   - q: optional JSON filter document, e.g. {"type":"compute"}
func (s *Server) handleListRecords(w http.ResponseWriter, r *http.Request) {
	collection := chi.URLParam(r, "collection")

	var q store.Query
	if raw := r.URL.Query().Get("q"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &q); err != nil {
			writeBadRequest(w, "q must be a JSON object")
			return
		}
	}

	records, err := s.store.Find(r.Context(), collection, q)
	if err != nil {
		if errors.Is(err, store.ErrInvalidQuery) {
			writeBadRequest(w, err.Error())
			return
		}
		s.logger.Error("listing records failed", "collection", collection, "error", err)
		writeInternalError(w, "failed to list records")
		return
	}

	items := make([]map[string]any, len(records))
	for i, rec := range records {
		items[i] = rec.Document()
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items, "count": len(items)})
}

// handleGetRecord returns a single record by ID.
func (s *Server) handleGetRecord(w http.ResponseWriter, r *http.Request) {
	collection, id := chi.URLParam(r, "collection"), chi.URLParam(r, "id")

	rec, err := s.store.FindOne(r.Context(), collection, store.Query{store.FieldID: id})
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeNotFound(w, "record not found")
			return
		}
		s.logger.Error("getting record failed", "collection", collection, "id", id, "error", err)
		writeInternalError(w, "failed to get record")
		return
	}

	writeJSON(w, http.StatusOK, rec)
}

// handleCreateRecord inserts a record. The id is generated unless the body
// supplies one.
func (s *Server) handleCreateRecord(w http.ResponseWriter, r *http.Request) {
	collection := chi.URLParam(r, "collection")

	var doc map[string]any
	if err := json.NewDecoder(r.Body).Decode(&doc); err != nil || doc == nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	rec, err := s.store.Insert(r.Context(), collection, doc)
	if err != nil {
		if errors.Is(err, store.ErrExists) {
			writeConflict(w, "record already exists")
			return
		}
		s.logger.Error("creating record failed", "collection", collection, "error", err)
		writeInternalError(w, "failed to create record")
		return
	}

	writeJSON(w, http.StatusCreated, rec)
}

// handleUpdateRecord merges the body into a record. A null value removes
// the field.
func (s *Server) handleUpdateRecord(w http.ResponseWriter, r *http.Request) {
	collection, id := chi.URLParam(r, "collection"), chi.URLParam(r, "id")

	var patch map[string]any
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil || patch == nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	rec, err := s.store.Update(r.Context(), collection, id, patch)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeNotFound(w, "record not found")
			return
		}
		s.logger.Error("updating record failed", "collection", collection, "id", id, "error", err)
		writeInternalError(w, "failed to update record")
		return
	}

	writeJSON(w, http.StatusOK, rec)
}

// handleDeleteRecord removes a record by ID.
func (s *Server) handleDeleteRecord(w http.ResponseWriter, r *http.Request) {
	collection, id := chi.URLParam(r, "collection"), chi.URLParam(r, "id")

	if _, err := s.store.Delete(r.Context(), collection, id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeNotFound(w, "record not found")
			return
		}
		s.logger.Error("deleting record failed", "collection", collection, "id", id, "error", err)
		writeInternalError(w, "failed to delete record")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
