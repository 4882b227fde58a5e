package wizard

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"tryon-server/modules/common/model"
	"tryon-server/modules/common/utils"
	"tryon-server/modules/generation"
)

// Response - 위자드 API 공통 응답
type Response struct {
	Success      bool             `json:"success"`
	ErrorMessage string           `json:"error_message,omitempty"`
	Session      *SessionView     `json:"session,omitempty"`
	Item         *model.ImageItem `json:"item,omitempty"`
	Result       *ResultView      `json:"result,omitempty"`
}

// SelectRequest - 프리셋/업로드 항목 선택
type SelectRequest struct {
	ID string `json:"id"`
}

// GenerateClothesRequest - 텍스트로 의류 생성
type GenerateClothesRequest struct {
	Prompt string `json:"prompt"`
}

type Handler struct {
	manager           *Manager
	hub               *Hub
	generationTimeout time.Duration
	webpQuality       float32
}

func NewHandler(manager *Manager, hub *Hub, generationTimeout time.Duration, webpQuality float32) *Handler {
	return &Handler{
		manager:           manager,
		hub:               hub,
		generationTimeout: generationTimeout,
		webpQuality:       webpQuality,
	}
}

// RegisterRoutes - 위자드 엔드포인트 등록
func (h *Handler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/api/sessions", h.HandleCreateSession).Methods("POST", "OPTIONS")
	r.HandleFunc("/api/sessions/{sessionId}", h.HandleGetSession).Methods("GET")
	r.HandleFunc("/api/sessions/{sessionId}", h.HandleDeleteSession).Methods("DELETE")

	r.HandleFunc("/api/sessions/{sessionId}/person/select", h.HandlePersonSelect).Methods("POST", "OPTIONS")
	r.HandleFunc("/api/sessions/{sessionId}/person/upload", h.HandlePersonUpload).Methods("POST", "OPTIONS")
	r.HandleFunc("/api/sessions/{sessionId}/person/next", h.HandlePersonNext).Methods("POST", "OPTIONS")

	r.HandleFunc("/api/sessions/{sessionId}/clothes/select", h.HandleClothesSelect).Methods("POST", "OPTIONS")
	r.HandleFunc("/api/sessions/{sessionId}/clothes/upload", h.HandleClothesUpload).Methods("POST", "OPTIONS")
	r.HandleFunc("/api/sessions/{sessionId}/clothes/generate", h.HandleClothesGenerate).Methods("POST", "OPTIONS")
	r.HandleFunc("/api/sessions/{sessionId}/clothes/back", h.HandleClothesBack).Methods("POST", "OPTIONS")
	r.HandleFunc("/api/sessions/{sessionId}/clothes/next", h.HandleClothesNext).Methods("POST", "OPTIONS")

	r.HandleFunc("/api/sessions/{sessionId}/result", h.HandleGetResult).Methods("GET")
	r.HandleFunc("/api/sessions/{sessionId}/result/retry", h.HandleResultRetry).Methods("POST", "OPTIONS")
	r.HandleFunc("/api/sessions/{sessionId}/result/reset", h.HandleResultReset).Methods("POST", "OPTIONS")
	r.HandleFunc("/api/sessions/{sessionId}/result/download", h.HandleResultDownload).Methods("GET")

	r.HandleFunc("/ws", h.HandleWebSocket)
}

// HandleCreateSession - POST /api/sessions
func (h *Handler) HandleCreateSession(w http.ResponseWriter, r *http.Request) {
	session := h.manager.Create()
	view := session.View()
	writeJSON(w, http.StatusCreated, Response{Success: true, Session: &view})
}

// HandleGetSession - GET /api/sessions/{sessionId}
func (h *Handler) HandleGetSession(w http.ResponseWriter, r *http.Request) {
	session, ok := h.session(w, r)
	if !ok {
		return
	}
	h.writeSession(w, http.StatusOK, session, nil)
}

// HandleDeleteSession - DELETE /api/sessions/{sessionId}
func (h *Handler) HandleDeleteSession(w http.ResponseWriter, r *http.Request) {
	if !h.manager.Remove(mux.Vars(r)["sessionId"]) {
		writeError(w, ErrSessionNotFound)
		return
	}
	writeJSON(w, http.StatusOK, Response{Success: true})
}

// HandlePersonSelect - POST /api/sessions/{sessionId}/person/select
func (h *Handler) HandlePersonSelect(w http.ResponseWriter, r *http.Request) {
	session, ok := h.session(w, r)
	if !ok {
		return
	}
	var req SelectRequest
	if !decodeBody(w, r, &req) {
		return
	}

	item, err := session.Person.Select(req.ID)
	if err != nil {
		writeError(w, err)
		return
	}
	h.writeSession(w, http.StatusOK, session, &item)
}

// HandlePersonUpload - POST /api/sessions/{sessionId}/person/upload (multipart "file")
func (h *Handler) HandlePersonUpload(w http.ResponseWriter, r *http.Request) {
	session, ok := h.session(w, r)
	if !ok {
		return
	}
	src, ok := uploadedFile(w, r)
	if !ok {
		return
	}

	item, err := session.Person.Upload(src)
	if err != nil {
		writeError(w, err)
		return
	}
	h.writeSession(w, http.StatusOK, session, &item)
}

// HandlePersonNext - POST /api/sessions/{sessionId}/person/next
func (h *Handler) HandlePersonNext(w http.ResponseWriter, r *http.Request) {
	session, ok := h.session(w, r)
	if !ok {
		return
	}
	if _, err := session.PersonNext(); err != nil {
		writeError(w, err)
		return
	}
	h.writeSession(w, http.StatusOK, session, nil)
}

// HandleClothesSelect - POST /api/sessions/{sessionId}/clothes/select
func (h *Handler) HandleClothesSelect(w http.ResponseWriter, r *http.Request) {
	session, ok := h.session(w, r)
	if !ok {
		return
	}
	var req SelectRequest
	if !decodeBody(w, r, &req) {
		return
	}

	item, err := session.Clothes.Select(req.ID)
	if err != nil {
		writeError(w, err)
		return
	}
	h.writeSession(w, http.StatusOK, session, &item)
}

// HandleClothesUpload - POST /api/sessions/{sessionId}/clothes/upload (multipart "file")
func (h *Handler) HandleClothesUpload(w http.ResponseWriter, r *http.Request) {
	session, ok := h.session(w, r)
	if !ok {
		return
	}
	src, ok := uploadedFile(w, r)
	if !ok {
		return
	}

	item, err := session.Clothes.Upload(src)
	if err != nil {
		writeError(w, err)
		return
	}
	h.writeSession(w, http.StatusOK, session, &item)
}

// HandleClothesGenerate - POST /api/sessions/{sessionId}/clothes/generate
// 응답은 생성이 끝난 뒤에 보낸다. 클라이언트가 끊겨도 생성은 계속되고 결과는 세션 목록에 남는다
func (h *Handler) HandleClothesGenerate(w http.ResponseWriter, r *http.Request) {
	session, ok := h.session(w, r)
	if !ok {
		return
	}
	var req GenerateClothesRequest
	if !decodeBody(w, r, &req) {
		return
	}

	log.Printf("🎨 [Wizard] Clothes generate request: session=%s, prompt=%s", session.ID, utils.TruncateString(req.Prompt, 30))

	ctx := context.WithoutCancel(r.Context())
	if h.generationTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.generationTimeout)
		defer cancel()
	}

	item, err := session.Clothes.Generate(ctx, req.Prompt)
	if err != nil {
		writeError(w, err)
		return
	}
	h.writeSession(w, http.StatusOK, session, &item)
}

// HandleClothesBack - POST /api/sessions/{sessionId}/clothes/back
func (h *Handler) HandleClothesBack(w http.ResponseWriter, r *http.Request) {
	session, ok := h.session(w, r)
	if !ok {
		return
	}
	if _, err := session.ClothesBack(); err != nil {
		writeError(w, err)
		return
	}
	h.writeSession(w, http.StatusOK, session, nil)
}

// HandleClothesNext - POST /api/sessions/{sessionId}/clothes/next
// 결과 단계로 들어가면서 합성을 시작하고 바로 loading 상태로 응답
func (h *Handler) HandleClothesNext(w http.ResponseWriter, r *http.Request) {
	session, ok := h.session(w, r)
	if !ok {
		return
	}
	if _, err := session.ClothesNext(); err != nil {
		writeError(w, err)
		return
	}
	h.writeSession(w, http.StatusAccepted, session, nil)
}

// HandleGetResult - GET /api/sessions/{sessionId}/result
func (h *Handler) HandleGetResult(w http.ResponseWriter, r *http.Request) {
	session, ok := h.session(w, r)
	if !ok {
		return
	}
	result := session.Result()
	if result == nil {
		writeError(w, ErrStepInactive)
		return
	}
	view := result.View()
	writeJSON(w, http.StatusOK, Response{Success: true, Result: &view})
}

// HandleResultRetry - POST /api/sessions/{sessionId}/result/retry
func (h *Handler) HandleResultRetry(w http.ResponseWriter, r *http.Request) {
	session, ok := h.session(w, r)
	if !ok {
		return
	}
	result, err := session.RetryResult()
	if err != nil {
		writeError(w, err)
		return
	}
	view := result.View()
	writeJSON(w, http.StatusAccepted, Response{Success: true, Result: &view})
}

// HandleResultReset - POST /api/sessions/{sessionId}/result/reset (back / done)
func (h *Handler) HandleResultReset(w http.ResponseWriter, r *http.Request) {
	session, ok := h.session(w, r)
	if !ok {
		return
	}
	if _, err := session.ResetResult(); err != nil {
		writeError(w, err)
		return
	}
	h.writeSession(w, http.StatusOK, session, nil)
}

// HandleResultDownload - GET /api/sessions/{sessionId}/result/download?format=png|webp
func (h *Handler) HandleResultDownload(w http.ResponseWriter, r *http.Request) {
	session, ok := h.session(w, r)
	if !ok {
		return
	}
	result := session.Result()
	if result == nil {
		writeError(w, ErrStepInactive)
		return
	}
	view := result.View()
	if view.Status != model.ResultDone {
		writeJSON(w, http.StatusConflict, Response{ErrorMessage: "Result is not ready"})
		return
	}

	data, mimeType, err := utils.DecodeDataURI(view.ResultURL)
	if err != nil {
		log.Printf("❌ [Wizard] Invalid result data: %v", err)
		writeJSON(w, http.StatusInternalServerError, Response{ErrorMessage: "Invalid result image"})
		return
	}

	filename := "try-on-result.png"
	switch strings.ToLower(r.URL.Query().Get("format")) {
	case "", "png":
	case "webp":
		data, err = utils.ConvertToWebP(data, h.webpQuality)
		if err != nil {
			log.Printf("❌ [Wizard] WebP conversion failed: %v", err)
			writeJSON(w, http.StatusInternalServerError, Response{ErrorMessage: "WebP conversion failed"})
			return
		}
		mimeType = "image/webp"
		filename = "try-on-result.webp"
	default:
		writeJSON(w, http.StatusBadRequest, Response{ErrorMessage: "format must be png or webp"})
		return
	}

	w.Header().Set("Content-Type", mimeType)
	w.Header().Set("Content-Disposition", `attachment; filename="`+filename+`"`)
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}

// HandleWebSocket - GET /ws?sessionId=
func (h *Handler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	sessionID := r.URL.Query().Get("sessionId")
	if _, err := h.manager.Get(sessionID); err != nil {
		log.Printf("❌ [Events] WebSocket rejected: unknown session %q", sessionID)
		writeError(w, err)
		return
	}
	h.hub.Serve(w, r, sessionID)
}

func (h *Handler) session(w http.ResponseWriter, r *http.Request) (*Session, bool) {
	session, err := h.manager.Get(mux.Vars(r)["sessionId"])
	if err != nil {
		writeError(w, err)
		return nil, false
	}
	return session, true
}

func (h *Handler) writeSession(w http.ResponseWriter, status int, session *Session, item *model.ImageItem) {
	view := session.View()
	writeJSON(w, status, Response{Success: true, Session: &view, Item: item})
}

func decodeBody(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		log.Printf("❌ [Wizard] Invalid request: %v", err)
		writeJSON(w, http.StatusBadRequest, Response{ErrorMessage: "Invalid request format"})
		return false
	}
	return true
}

// multipartSource - 업로드된 multipart 파일을 utils.FileSource 로
type multipartSource struct {
	header *multipart.FileHeader
}

func (s multipartSource) Open() (io.ReadCloser, error) {
	return s.header.Open()
}

func (s multipartSource) ContentType() string {
	return s.header.Header.Get("Content-Type")
}

func uploadedFile(w http.ResponseWriter, r *http.Request) (utils.FileSource, bool) {
	r.Body = http.MaxBytesReader(w, r.Body, utils.MaxUploadBytes+1<<20)
	if err := r.ParseMultipartForm(utils.MaxUploadBytes); err != nil {
		log.Printf("❌ [Wizard] Invalid upload: %v", err)
		writeJSON(w, http.StatusBadRequest, Response{ErrorMessage: "Invalid upload"})
		return nil, false
	}
	_, header, err := r.FormFile("file")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, Response{ErrorMessage: "file is required"})
		return nil, false
	}
	return multipartSource{header: header}, true
}

// writeError - 에러 종류별 상태 코드와 사용자 메시지
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	message := "Internal error"

	var genErr *generation.GenerationError
	switch {
	case errors.Is(err, ErrSessionNotFound):
		status, message = http.StatusNotFound, "Session not found"
	case errors.Is(err, ErrUnknownItem):
		status, message = http.StatusNotFound, "Image not found"
	case errors.Is(err, ErrSelectionRequired):
		status, message = http.StatusBadRequest, "Selection required"
	case errors.Is(err, ErrEmptyPrompt):
		status, message = http.StatusBadRequest, "Prompt is required"
	case errors.Is(err, ErrInvalidTransition), errors.Is(err, ErrStepInactive):
		status, message = http.StatusConflict, "Not allowed in the current step"
	case errors.Is(err, ErrAlreadyStarted), errors.Is(err, ErrNotRetryable):
		status, message = http.StatusConflict, "Result generation is not retryable now"
	case errors.As(err, &genErr):
		status, message = http.StatusBadGateway, generation.UserMessage(err, generation.MsgClothingFailed)
	case errors.Is(err, ErrInvalidUpload):
		status, message = http.StatusBadRequest, "Invalid image file"
	}

	writeJSON(w, status, Response{ErrorMessage: message})
}

func writeJSON(w http.ResponseWriter, status int, resp Response) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		log.Printf("❌ [Wizard] Failed to encode response: %v", err)
	}
}
