package http

import (
	"encoding/json"
	"net/http"

	"pair-quiz-service/internal/app"
	"pair-quiz-service/internal/domain"
)

// Handler serves the pair-game REST API.
type Handler struct {
	service *app.PairService
	tokens  TokenVerifier
	ws      *WSHandler
}

func NewHandler(service *app.PairService, tokens TokenVerifier) *Handler {
	return &Handler{
		service: service,
		tokens:  tokens,
		ws:      NewWSHandler(service),
	}
}

type answerRequest struct {
	Answer string `json:"answer"`
}

// Register mounts every route on mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /pair-game-quiz/pairs/connection", Authenticate(h.tokens, h.connect))
	mux.HandleFunc("GET /pair-game-quiz/pairs/my-current", Authenticate(h.tokens, h.myCurrent))
	mux.HandleFunc("POST /pair-game-quiz/pairs/my-current/answers", Authenticate(h.tokens, h.answer))
	mux.HandleFunc("GET /pair-game-quiz/pairs/my-current/ws", Authenticate(h.tokens, h.ws.ServeWS))
	mux.HandleFunc("GET /pair-game-quiz/pairs/{id}", Authenticate(h.tokens, h.byID))
}

func (h *Handler) connect(w http.ResponseWriter, r *http.Request) {
	view, err := h.service.Connect(r.Context(), UserID(r.Context()))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (h *Handler) myCurrent(w http.ResponseWriter, r *http.Request) {
	view, err := h.service.GetCurrent(r.Context(), UserID(r.Context()))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (h *Handler) byID(w http.ResponseWriter, r *http.Request) {
	view, err := h.service.GetByID(r.Context(), r.PathValue("id"), UserID(r.Context()))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (h *Handler) answer(w http.ResponseWriter, r *http.Request) {
	var req answerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, domain.ErrInvalidAnswer)
		return
	}
	result, err := h.service.SubmitAnswer(r.Context(), UserID(r.Context()), req.Answer)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}
