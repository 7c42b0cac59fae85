package handlers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
)

var colorHex = map[string]string{
	"red":    "#FF0000",
	"green":  "#00FF00",
	"blue":   "#0000FF",
	"yellow": "#FFFF00",
	"purple": "#800080",
}

// ColorInfo looks up a named color; unknown names map to black.
func (a *App) ColorInfo(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	hex, ok := colorHex[strings.ToLower(name)]
	if !ok {
		hex = "#000000"
	}
	a.json(w, http.StatusOK, map[string]string{"name": name, "hex": hex})
}
