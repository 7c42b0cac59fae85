package handlers

import (
	"encoding/json"
	"net/http"

	"leopacolor/internal/catalog"
	"leopacolor/internal/colorize"
	"leopacolor/internal/infra"
)

// App bundles the dependencies request handlers need.
type App struct {
	Logger  infra.Logger
	Catalog *catalog.Catalog
	Jobs    *colorize.Coordinator
}

func NewApp(logger infra.Logger, cat *catalog.Catalog, jobs *colorize.Coordinator) *App {
	return &App{Logger: logger, Catalog: cat, Jobs: jobs}
}

func (a *App) json(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func (a *App) error(w http.ResponseWriter, status int, code, message string) {
	a.json(w, status, map[string]string{"error": code, "message": message})
}
