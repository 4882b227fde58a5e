package presets

import (
	"encoding/json"
	"log"
	"net/http"

	"github.com/gorilla/mux"
)

// PresetsResponse - 프리셋 카탈로그 응답
type PresetsResponse struct {
	Success bool     `json:"success"`
	Catalog *Catalog `json:"catalog"`
}

type Handler struct {
	catalog *Catalog
}

func NewHandler(catalog *Catalog) *Handler {
	return &Handler{catalog: catalog}
}

func (h *Handler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/api/presets", h.HandleList).Methods("GET")
}

// HandleList - GET /api/presets
func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(PresetsResponse{Success: true, Catalog: h.catalog}); err != nil {
		log.Printf("❌ [Presets] Failed to encode response: %v", err)
	}
}
