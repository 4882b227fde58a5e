package gallery

import (
	"encoding/json"
	"log"
	"net/http"

	"github.com/gorilla/mux"

	"tryon-server/modules/common/model"
)

// HistoryLister - 최신순 history 조회 (history.Store)
type HistoryLister interface {
	List() []model.HistoryItem
}

// GalleryResponse - 갤러리 응답
type GalleryResponse struct {
	Success bool                `json:"success"`
	Items   []model.HistoryItem `json:"items"`
	Count   int                 `json:"count"`
}

// Handler - 읽기 전용 갤러리. 페이지네이션/필터/삭제 없음
type Handler struct {
	history HistoryLister
}

func NewHandler(history HistoryLister) *Handler {
	return &Handler{history: history}
}

func (h *Handler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/api/gallery", h.HandleList).Methods("GET")
}

// HandleList - GET /api/gallery
// 기록이 없으면 아무것도 렌더링하지 않도록 204
func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	items := h.history.List()
	if len(items) == 0 {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(GalleryResponse{
		Success: true,
		Items:   items,
		Count:   len(items),
	}); err != nil {
		log.Printf("❌ [Gallery] Failed to encode response: %v", err)
	}
}
