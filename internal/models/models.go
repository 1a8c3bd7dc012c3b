package models

import (
	"time"

	"github.com/google/uuid"
)

// User é o registro persistido de um tenant cuja sessão já ficou pronta.
type User struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	Phone     string    `json:"phone"`
	DevToken  string    `json:"devToken"`
	WidServer string    `json:"widServer,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

type UserProfileRequest struct {
	DevToken string `json:"devToken"`
}

type SendMessageRequest struct {
	DevToken string `json:"devToken"`
	To       string `json:"to"`
	Msg      string `json:"msg"`
	MediaURL string `json:"mediaUrl,omitempty"`
}

type ProfileResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Data    *User  `json:"data,omitempty"`
}

type SendMessageResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

type APIError struct {
	Error string `json:"error"`
}

type HealthResponse struct {
	Status    string            `json:"status"`
	Service   string            `json:"service"`
	Version   string            `json:"version"`
	Uptime    string            `json:"uptime"`
	Timestamp time.Time         `json:"timestamp"`
	Checks    map[string]string `json:"checks"`
}

// MessageRecord é o registro estruturado encaminhado ao CRM para cada
// mensagem recebida.
type MessageRecord struct {
	MsgID    string
	From     string
	To       string
	Body     string
	MediaURL string
}

// Command é a mensagem de controle recebida pelo canal de notificação.
type Command struct {
	DevToken string `json:"devToken"`
	Action   string `json:"action,omitempty"`
}

// Event é o envelope de todos os eventos enviados pelo canal de notificação.
type Event struct {
	Type string      `json:"type"`
	Data interface{} `json:"data,omitempty"`
}

const (
	EventQR                  = "qr"
	EventSessionReady        = "session_ready"
	EventSessionAlreadyReady = "session_already_ready"
	EventIncomingMessage     = "incoming_message"
	EventOutgoingMessage     = "outgoing_message"
	EventLogout              = "logout"
)
