package bridge

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/skip2/go-qrcode"

	"github.com/bajuddin15/whatsapp-session-manager/internal/config"
	"github.com/bajuddin15/whatsapp-session-manager/internal/models"
	"github.com/bajuddin15/whatsapp-session-manager/internal/provider"
	"github.com/bajuddin15/whatsapp-session-manager/pkg/logger"
)

var ErrSessionNotReady = errors.New("sessão do WhatsApp não está pronta")

// Channel é o lado de envio de um canal de notificação. A implementação
// WebSocket fica em internal/ws.
type Channel interface {
	Push(event string, data interface{})
}

// Relay são as chamadas best-effort para o CRM.
type Relay interface {
	AddProvider(ctx context.Context, token, phone string) error
	UploadFile(ctx context.Context, mimetype string, data []byte) (string, error)
	ForwardMessage(ctx context.Context, rec models.MessageRecord) error
}

// UserDirectory é o registro persistente de usuários por token.
type UserDirectory interface {
	ExistsByToken(token string) (bool, error)
	Create(user *models.User) error
	DeleteByToken(token string) error
}

// Cleaner agenda a remoção do diretório de credenciais de uma sessão.
type Cleaner interface {
	ScheduleRemoval(path string)
}

// Responder decide a resposta automática para uma mensagem recebida.
type Responder func(body string) (reply string, ok bool)

// PingPongResponder é a regra enlatada padrão: "ping" vira "pong".
func PingPongResponder(body string) (string, bool) {
	if strings.EqualFold(strings.TrimSpace(body), "ping") {
		return "pong", true
	}
	return "", false
}

// SessionManager conduz o ciclo de vida das sessões: criação sob demanda,
// repasse de QR, promoção a pronta, roteamento de mensagens e destruição.
type SessionManager struct {
	registry *Registry
	channels *ChannelRegistry
	users    UserDirectory
	relay    Relay
	cleaner  Cleaner
	factory  provider.Factory
	cfg      *config.Config
	logger   *logger.Logger

	responder Responder
}

func NewSessionManager(
	reg *Registry,
	channels *ChannelRegistry,
	users UserDirectory,
	relay Relay,
	cleaner Cleaner,
	factory provider.Factory,
	cfg *config.Config,
	log *logger.Logger,
) *SessionManager {
	return &SessionManager{
		registry:  reg,
		channels:  channels,
		users:     users,
		relay:     relay,
		cleaner:   cleaner,
		factory:   factory,
		cfg:       cfg,
		logger:    log,
		responder: PingPongResponder,
	}
}

// SetResponder troca a regra de resposta automática. nil desativa.
func (m *SessionManager) SetResponder(r Responder) {
	m.responder = r
}

// Start cria a sessão do token se ainda não existir. Sessão pronta avisa o
// canal; sessão em inicialização não ganha um segundo cliente.
func (m *SessionManager) Start(token string, ch Channel) error {
	if sess, ok := m.registry.Get(token); ok {
		if sess.Ready() {
			ch.Push(models.EventSessionAlreadyReady, nil)
		}
		return nil
	}

	sess, err := m.registry.Create(token)
	if err != nil {
		if errors.Is(err, ErrSessionExists) {
			return nil
		}
		return err
	}

	client, err := m.factory(token, m.sessionDir(token), provider.Handlers{
		OnQR:      func(code string) { m.handleQR(token, ch, code) },
		OnReady:   func(info provider.ClientInfo) { m.handleReady(token, ch, info) },
		OnMessage: func(msg provider.Message) { m.handleMessage(token, ch, msg) },
	})
	if err != nil {
		m.registry.Destroy(token)
		return fmt.Errorf("falha ao criar cliente para %s: %w", token, err)
	}

	sess.AttachClient(client)

	if err := client.Initialize(); err != nil {
		m.registry.Destroy(token)
		client.Destroy()
		return fmt.Errorf("falha ao inicializar cliente para %s: %w", token, err)
	}

	m.logger.Infof("Sessão iniciada para o token %s", token)
	return nil
}

func (m *SessionManager) handleQR(token string, ch Channel, code string) {
	png, err := qrcode.Encode(code, qrcode.Medium, 256)
	if err != nil {
		m.logger.Errorf("[%s] Falha ao gerar QR code PNG: %v", token, err)
		return
	}

	dataURL := "data:image/png;base64," + base64.StdEncoding.EncodeToString(png)
	ch.Push(models.EventQR, dataURL)
}

func (m *SessionManager) handleReady(token string, ch Channel, info provider.ClientInfo) {
	sess, ok := m.registry.Get(token)
	if !ok {
		return
	}

	// segundo evento ready do provedor é no-op
	if !sess.MarkReady() {
		return
	}

	m.channels.Bind(token, ch)
	ch.Push(models.EventSessionReady, nil)

	ctx, cancel := context.WithTimeout(context.Background(), m.cfg.CRM.Timeout)
	defer cancel()

	if err := m.relay.AddProvider(ctx, token, info.Phone); err != nil {
		m.logger.Errorf("[%s] Falha ao registrar provider no CRM: %v", token, err)
	}

	exists, err := m.users.ExistsByToken(token)
	if err != nil {
		m.logger.Errorf("[%s] Falha ao consultar usuário: %v", token, err)
		return
	}
	if exists {
		return
	}

	now := time.Now()
	user := &models.User{
		ID:        uuid.New(),
		Name:      info.PushName,
		Phone:     info.Phone,
		DevToken:  token,
		WidServer: info.Server,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := m.users.Create(user); err != nil {
		m.logger.Errorf("[%s] Falha ao criar usuário: %v", token, err)
	}
}

func (m *SessionManager) handleMessage(token string, starter Channel, msg provider.Message) {
	ch, ok := m.channels.Channel(token)
	if !ok {
		ch = starter
	}

	ch.Push(models.EventIncomingMessage, msg.Body)

	ctx, cancel := context.WithTimeout(context.Background(), m.cfg.CRM.Timeout)
	defer cancel()

	mediaURL := ""
	if msg.HasMedia && msg.Download != nil {
		mimetype, data, err := msg.Download(ctx)
		switch {
		case err != nil:
			m.logger.Errorf("[%s] Falha ao baixar mídia da mensagem %s: %v", token, msg.ID, err)
		case mimetype != "" && len(data) > 0:
			url, err := m.relay.UploadFile(ctx, mimetype, data)
			if err != nil {
				m.logger.Errorf("[%s] Falha no upload de mídia para o CRM: %v", token, err)
			} else {
				mediaURL = url
			}
		}
	}

	body := msg.Body
	if msg.Type != "chat" {
		body = msg.Caption
	}

	rec := models.MessageRecord{
		MsgID:    msg.ID,
		From:     msg.From,
		To:       msg.To,
		Body:     body,
		MediaURL: mediaURL,
	}
	if err := m.relay.ForwardMessage(ctx, rec); err != nil {
		m.logger.Errorf("[%s] Falha ao encaminhar mensagem para o CRM: %v", token, err)
	}

	if m.responder == nil {
		return
	}
	reply, ok := m.responder(msg.Body)
	if !ok {
		return
	}

	sess, found := m.registry.Get(token)
	if !found {
		return
	}
	client := sess.Client()
	if client == nil {
		return
	}

	sendCtx, sendCancel := context.WithTimeout(context.Background(), m.cfg.WhatsApp.SendTimeout)
	defer sendCancel()

	if err := client.SendText(sendCtx, msg.Chat, reply); err != nil {
		m.logger.Errorf("[%s] Falha ao enviar resposta automática: %v", token, err)
		return
	}
	ch.Push(models.EventOutgoingMessage, reply)
}

// SendMessage despacha uma mensagem de texto pela sessão pronta do token e,
// se houver mediaUrl, tenta enviar a mídia como mensagem separada. Falha no
// envio de mídia não derruba a chamada.
func (m *SessionManager) SendMessage(ctx context.Context, token, to, msg, mediaURL string) error {
	sess, ok := m.registry.Get(token)
	if !ok || !sess.Ready() {
		return ErrSessionNotReady
	}

	client := sess.Client()
	if client == nil {
		return ErrSessionNotReady
	}

	if err := client.SendText(ctx, to, msg); err != nil {
		return fmt.Errorf("falha ao enviar mensagem: %w", err)
	}

	if mediaURL != "" {
		if err := client.SendMediaURL(ctx, to, mediaURL); err != nil {
			m.logger.Errorf("[%s] Falha ao enviar mídia para %s: %v", token, to, err)
		}
	}

	return nil
}

// Logout destrói o cliente, remove a sessão do registro, agenda a limpeza do
// diretório de credenciais e apaga o registro do usuário. No-op se não houver
// sessão para o token.
func (m *SessionManager) Logout(token string, requester Channel) {
	sess, ok := m.registry.Destroy(token)
	if !ok {
		return
	}

	if client := sess.Client(); client != nil {
		client.Destroy()
	}

	m.cleaner.ScheduleRemoval(m.sessionDir(token))

	if err := m.users.DeleteByToken(token); err != nil {
		m.logger.Errorf("[%s] Falha ao deletar usuário no logout: %v", token, err)
	}

	if ch, bound := m.channels.Channel(token); bound {
		ch.Push(models.EventLogout, nil)
		m.channels.Release(token, ch)
		if requester != nil && requester != ch {
			requester.Push(models.EventLogout, nil)
		}
	} else if requester != nil {
		requester.Push(models.EventLogout, nil)
	}

	m.logger.Infof("Sessão encerrada para o token %s", token)
}

// ReleaseChannel esquece o vínculo token→canal se ele ainda apontar para ch.
// Chamado pelo handler WebSocket quando a conexão cai sem logout explícito.
func (m *SessionManager) ReleaseChannel(token string, ch Channel) {
	m.channels.Release(token, ch)
}

// Counts devolve o total de sessões vivas e quantas estão prontas.
func (m *SessionManager) Counts() (total, ready int) {
	return m.registry.Len()
}

// Shutdown derruba todos os clientes vivos. Usado no desligamento do processo.
func (m *SessionManager) Shutdown() {
	var tokens []string
	m.registry.Range(func(token string, _ *Session) {
		tokens = append(tokens, token)
	})

	for _, token := range tokens {
		if sess, ok := m.registry.Destroy(token); ok {
			if client := sess.Client(); client != nil {
				client.Destroy()
			}
		}
	}
}

func (m *SessionManager) sessionDir(token string) string {
	return filepath.Join(m.cfg.WhatsApp.SessionRoot, "session-"+token)
}
