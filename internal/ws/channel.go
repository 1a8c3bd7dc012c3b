package ws

import (
	"sync"

	"github.com/gorilla/websocket"

	"github.com/bajuddin15/whatsapp-session-manager/internal/models"
	"github.com/bajuddin15/whatsapp-session-manager/pkg/logger"
)

const sendBuffer = 32

// Channel é um canal de notificação sobre uma conexão WebSocket. Os eventos
// passam por um buffer e um único goroutine escritor, o que preserva a ordem
// de produção dentro do canal.
type Channel struct {
	conn   *websocket.Conn
	logger *logger.Logger

	send      chan models.Event
	done      chan struct{}
	closeOnce sync.Once
}

func newChannel(conn *websocket.Conn, log *logger.Logger) *Channel {
	ch := &Channel{
		conn:   conn,
		logger: log,
		send:   make(chan models.Event, sendBuffer),
		done:   make(chan struct{}),
	}
	go ch.writeLoop()
	return ch
}

// Push enfileira um evento para o cliente. Canal fechado ou buffer cheio
// descartam o evento: um consumidor lento não pode travar os callbacks do
// provedor.
func (c *Channel) Push(event string, data interface{}) {
	evt := models.Event{Type: event, Data: data}

	select {
	case <-c.done:
	case c.send <- evt:
	default:
		c.logger.Warnf("Canal lento, evento %s descartado", event)
	}
}

func (c *Channel) writeLoop() {
	for {
		select {
		case <-c.done:
			return
		case evt := <-c.send:
			if err := c.conn.WriteJSON(evt); err != nil {
				c.logger.Errorf("Falha ao escrever evento %s no WebSocket: %v", evt.Type, err)
				c.Close()
				return
			}
		}
	}
}

func (c *Channel) Close() {
	c.closeOnce.Do(func() {
		close(c.done)
		if err := c.conn.Close(); err != nil {
			c.logger.Debugf("Falha ao fechar conexão WebSocket: %v", err)
		}
	})
}
