package ws

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/bajuddin15/whatsapp-session-manager/internal/bridge"
	"github.com/bajuddin15/whatsapp-session-manager/internal/models"
	"github.com/bajuddin15/whatsapp-session-manager/pkg/logger"
)

// SessionController é o que o handler WebSocket precisa do controlador de
// sessões.
type SessionController interface {
	Start(token string, ch bridge.Channel) error
	Logout(token string, requester bridge.Channel)
	ReleaseChannel(token string, ch bridge.Channel)
}

type Handler struct {
	controller SessionController
	logger     *logger.Logger
	upgrader   websocket.Upgrader
}

func NewHandler(controller SessionController, log *logger.Logger) *Handler {
	return &Handler{
		controller: controller,
		logger:     log,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// o front end pode rodar em qualquer origem
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
}

// Serve faz o upgrade da conexão e processa comandos {devToken, action} até o
// cliente desconectar. Na saída, vínculos token→canal deste canal são
// esquecidos para não vazar registros de canais mortos.
func (h *Handler) Serve(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Errorf("Falha no upgrade do WebSocket: %v", err)
		return
	}

	ch := newChannel(conn, h.logger)
	seen := make(map[string]struct{})

	defer func() {
		ch.Close()
		for token := range seen {
			h.controller.ReleaseChannel(token, ch)
		}
	}()

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Warnf("Conexão WebSocket encerrada de forma inesperada: %v", err)
			}
			return
		}

		var cmd models.Command
		if err := json.Unmarshal(raw, &cmd); err != nil {
			h.logger.Warnf("Comando inválido no WebSocket: %v", err)
			continue
		}

		if cmd.DevToken == "" {
			continue
		}
		seen[cmd.DevToken] = struct{}{}

		switch cmd.Action {
		case "logout":
			h.controller.Logout(cmd.DevToken, ch)
		default:
			// qualquer outra ação (ou nenhuma) é pedido de início de sessão
			if err := h.controller.Start(cmd.DevToken, ch); err != nil {
				h.logger.Errorf("Falha ao iniciar sessão %s: %v", cmd.DevToken, err)
			}
		}
	}
}
