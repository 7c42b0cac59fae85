package handlers

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"leopacolor/internal/domain"
)

type referenceListResponse struct {
	References []domain.ReferenceImage `json:"references"`
}

func (a *App) ListReferences(w http.ResponseWriter, r *http.Request) {
	refs, err := a.Catalog.ListReferences(r.Context())
	if err != nil {
		a.Logger.Error().Err(err).Msg("handlers: list references")
		a.error(w, http.StatusInternalServerError, "internal", "failed to list references")
		return
	}
	a.json(w, http.StatusOK, referenceListResponse{References: refs})
}

func (a *App) UploadReference(w http.ResponseWriter, r *http.Request) {
	filename, content, err := readImageUpload(r, "image.jpg")
	if err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}

	ref, err := a.Catalog.SaveReference(r.Context(), filename, content)
	if err != nil {
		a.Logger.Error().Err(err).Msg("handlers: save reference")
		a.error(w, http.StatusInternalServerError, "internal", "failed to save reference")
		return
	}
	a.json(w, http.StatusCreated, ref)
}

func (a *App) GetReference(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	ref, err := a.Catalog.GetReference(r.Context(), id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			a.error(w, http.StatusNotFound, "not_found", "Reference image not found")
			return
		}
		a.Logger.Error().Err(err).Str("reference_id", id).Msg("handlers: get reference")
		a.error(w, http.StatusInternalServerError, "internal", "failed to load reference")
		return
	}
	a.json(w, http.StatusOK, ref)
}

func (a *App) DeleteReference(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	deleted, err := a.Catalog.DeleteReference(r.Context(), id)
	if err != nil {
		a.Logger.Error().Err(err).Str("reference_id", id).Msg("handlers: delete reference")
		a.error(w, http.StatusInternalServerError, "internal", "failed to delete reference")
		return
	}
	if !deleted {
		a.error(w, http.StatusNotFound, "not_found", "Reference image not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
