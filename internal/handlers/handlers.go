package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/bajuddin15/whatsapp-session-manager/internal/bridge"
	"github.com/bajuddin15/whatsapp-session-manager/internal/models"
	"github.com/bajuddin15/whatsapp-session-manager/internal/repository"
	"github.com/bajuddin15/whatsapp-session-manager/pkg/logger"
	"github.com/bajuddin15/whatsapp-session-manager/pkg/validator"
)

const Version = "1.0.0"

// MessageSender despacha mensagens de saída pela sessão do token.
type MessageSender interface {
	SendMessage(ctx context.Context, token, to, msg, mediaURL string) error
	Counts() (total, ready int)
}

// UserFinder busca o perfil persistido de um tenant.
type UserFinder interface {
	FindByToken(token string) (*models.User, error)
}

type Handler struct {
	sender    MessageSender
	users     UserFinder
	logger    *logger.Logger
	startTime time.Time
}

func NewHandler(sender MessageSender, users UserFinder, log *logger.Logger) *Handler {
	return &Handler{
		sender:    sender,
		users:     users,
		logger:    log,
		startTime: time.Now(),
	}
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		h.logger.Errorf("Falha ao codificar resposta JSON: %v", err)
	}
}

// UserProfile devolve o perfil do tenant identificado pelo devToken.
func (h *Handler) UserProfile(w http.ResponseWriter, r *http.Request) {
	var req models.UserProfileRequest
	if err := validator.ValidateJSON(r, &req); err != nil {
		h.logger.Warnf("JSON inválido na requisição de perfil: %v", err)
		h.writeJSON(w, http.StatusBadRequest, models.ProfileResponse{
			Success: false,
			Message: "Invalid request body",
		})
		return
	}

	user, err := h.users.FindByToken(req.DevToken)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			h.writeJSON(w, http.StatusNotFound, models.ProfileResponse{
				Success: false,
				Message: "User not found",
			})
			return
		}
		h.logger.Errorf("Falha ao buscar perfil do token %s: %v", req.DevToken, err)
		h.writeJSON(w, http.StatusInternalServerError, models.ProfileResponse{
			Success: false,
			Message: "Internal server error",
		})
		return
	}

	h.writeJSON(w, http.StatusOK, models.ProfileResponse{
		Success: true,
		Message: "User found",
		Data:    user,
	})
}

// SendMessage despacha uma mensagem de texto (e opcionalmente mídia) pela
// sessão pronta do token.
func (h *Handler) SendMessage(w http.ResponseWriter, r *http.Request) {
	var req models.SendMessageRequest
	if err := validator.ValidateJSON(r, &req); err != nil {
		h.logger.Warnf("JSON inválido na requisição de envio: %v", err)
		h.writeJSON(w, http.StatusBadRequest, models.APIError{Error: "Invalid request body"})
		return
	}

	if err := h.sender.SendMessage(r.Context(), req.DevToken, req.To, req.Msg, req.MediaURL); err != nil {
		if errors.Is(err, bridge.ErrSessionNotReady) {
			h.writeJSON(w, http.StatusBadRequest, models.APIError{Error: "WhatsApp session not ready"})
			return
		}
		h.logger.Errorf("[%s] Falha ao enviar mensagem para %s: %v", req.DevToken, req.To, err)
		h.writeJSON(w, http.StatusInternalServerError, models.APIError{Error: "Internal server error"})
		return
	}

	h.writeJSON(w, http.StatusOK, models.SendMessageResponse{
		Success: true,
		Message: "Message send successfully",
	})
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	total, ready := h.sender.Counts()

	h.writeJSON(w, http.StatusOK, models.HealthResponse{
		Status:    "healthy",
		Service:   "WhatsApp CRM Bridge",
		Version:   Version,
		Uptime:    time.Since(h.startTime).String(),
		Timestamp: time.Now(),
		Checks: map[string]string{
			"api":            "ok",
			"total_sessions": fmt.Sprintf("%d", total),
			"ready_sessions": fmt.Sprintf("%d", ready),
		},
	})
}

func (h *Handler) NotFound(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusNotFound, models.APIError{Error: "Endpoint not found"})
}

func (h *Handler) MethodNotAllowed(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusMethodNotAllowed, models.APIError{Error: "Method not allowed"})
}
