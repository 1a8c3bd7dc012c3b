package bridge

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/bajuddin15/whatsapp-session-manager/internal/config"
	"github.com/bajuddin15/whatsapp-session-manager/internal/models"
	"github.com/bajuddin15/whatsapp-session-manager/internal/provider"
	"github.com/bajuddin15/whatsapp-session-manager/pkg/logger"
)

type pushedEvent struct {
	Type string
	Data interface{}
}

type fakeChannel struct {
	mu     sync.Mutex
	events []pushedEvent
}

func (c *fakeChannel) Push(event string, data interface{}) {
	c.mu.Lock()
	c.events = append(c.events, pushedEvent{Type: event, Data: data})
	c.mu.Unlock()
}

func (c *fakeChannel) types() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.events))
	for i, e := range c.events {
		out[i] = e.Type
	}
	return out
}

func (c *fakeChannel) last() (pushedEvent, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.events) == 0 {
		return pushedEvent{}, false
	}
	return c.events[len(c.events)-1], true
}

type fakeClient struct {
	mu        sync.Mutex
	initCalls int
	destroyed bool
	sentTexts []string
	sentTo    []string
	sentMedia []string
	textErr   error
	mediaErr  error
	info      provider.ClientInfo
}

func (c *fakeClient) Initialize() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.initCalls++
	return nil
}

func (c *fakeClient) SendText(_ context.Context, to, text string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.textErr != nil {
		return c.textErr
	}
	c.sentTo = append(c.sentTo, to)
	c.sentTexts = append(c.sentTexts, text)
	return nil
}

func (c *fakeClient) SendMediaURL(_ context.Context, to, mediaURL string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.mediaErr != nil {
		return c.mediaErr
	}
	c.sentMedia = append(c.sentMedia, mediaURL)
	return nil
}

func (c *fakeClient) Destroy() {
	c.mu.Lock()
	c.destroyed = true
	c.mu.Unlock()
}

func (c *fakeClient) Info() provider.ClientInfo { return c.info }

type fakeFactory struct {
	mu       sync.Mutex
	client   *fakeClient
	handlers provider.Handlers
	calls    int
	dirs     []string
	err      error
}

func (f *fakeFactory) New(token, dir string, h provider.Handlers) (provider.Client, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.dirs = append(f.dirs, dir)
	if f.err != nil {
		return nil, f.err
	}
	f.handlers = h
	return f.client, nil
}

type fakeRelay struct {
	mu             sync.Mutex
	providers      []string
	uploadURL      string
	uploadErr      error
	uploads        int
	forwarded      []models.MessageRecord
	addProviderErr error
}

func (r *fakeRelay) AddProvider(_ context.Context, token, phone string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.addProviderErr != nil {
		return r.addProviderErr
	}
	r.providers = append(r.providers, token+":"+phone)
	return nil
}

func (r *fakeRelay) UploadFile(_ context.Context, _ string, _ []byte) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.uploads++
	if r.uploadErr != nil {
		return "", r.uploadErr
	}
	return r.uploadURL, nil
}

func (r *fakeRelay) ForwardMessage(_ context.Context, rec models.MessageRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.forwarded = append(r.forwarded, rec)
	return nil
}

type fakeUsers struct {
	mu      sync.Mutex
	users   map[string]*models.User
	creates int
	deletes []string
}

func newFakeUsers() *fakeUsers {
	return &fakeUsers{users: make(map[string]*models.User)}
}

func (u *fakeUsers) ExistsByToken(token string) (bool, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	_, ok := u.users[token]
	return ok, nil
}

func (u *fakeUsers) Create(user *models.User) error {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.creates++
	u.users[user.DevToken] = user
	return nil
}

func (u *fakeUsers) DeleteByToken(token string) error {
	u.mu.Lock()
	defer u.mu.Unlock()
	delete(u.users, token)
	u.deletes = append(u.deletes, token)
	return nil
}

type fakeCleaner struct {
	mu    sync.Mutex
	paths []string
}

func (c *fakeCleaner) ScheduleRemoval(path string) {
	c.mu.Lock()
	c.paths = append(c.paths, path)
	c.mu.Unlock()
}

type managerFixture struct {
	manager *SessionManager
	factory *fakeFactory
	relay   *fakeRelay
	users   *fakeUsers
	cleaner *fakeCleaner
}

func newManagerFixture(t *testing.T) *managerFixture {
	t.Helper()

	log := logger.New("[bridge-test] ", logger.ERROR)
	log.SetOutput(io.Discard)

	cfg := &config.Config{
		WhatsApp: config.WhatsAppConfig{
			SessionRoot: "/tmp/whatsapp-sessions",
			SendTimeout: time.Second,
		},
		CRM: config.CRMConfig{Timeout: time.Second},
	}

	f := &managerFixture{
		factory: &fakeFactory{client: &fakeClient{
			info: provider.ClientInfo{PushName: "Fulano", Phone: "5511999999999", Server: "s.whatsapp.net"},
		}},
		relay:   &fakeRelay{uploadURL: "https://cdn.example/up.png"},
		users:   newFakeUsers(),
		cleaner: &fakeCleaner{},
	}

	f.manager = NewSessionManager(
		NewRegistry(),
		NewChannelRegistry(),
		f.users,
		f.relay,
		f.cleaner,
		f.factory.New,
		cfg,
		log,
	)
	return f
}

func (f *managerFixture) startReady(t *testing.T, token string, ch *fakeChannel) {
	t.Helper()
	require.NoError(t, f.manager.Start(token, ch))
	f.factory.handlers.OnReady(f.factory.client.Info())
}

func TestSessionManager_StartFlow(t *testing.T) {
	f := newManagerFixture(t)
	ch := &fakeChannel{}

	require.NoError(t, f.manager.Start("tok1", ch))
	require.Equal(t, 1, f.factory.calls)
	require.Equal(t, 1, f.factory.client.initCalls)
	require.Contains(t, f.factory.dirs[0], "session-tok1")

	// provedor emite QR
	f.factory.handlers.OnQR("qr-challenge")
	last, ok := ch.last()
	require.True(t, ok)
	require.Equal(t, models.EventQR, last.Type)
	require.True(t, strings.HasPrefix(last.Data.(string), "data:image/png;base64,"))

	// provedor fica pronto
	f.factory.handlers.OnReady(f.factory.client.Info())
	require.Contains(t, ch.types(), models.EventSessionReady)
	require.True(t, f.manager.registry.IsReady("tok1"))
	require.Equal(t, []string{"tok1:5511999999999"}, f.relay.providers)

	user, exists := f.users.users["tok1"]
	require.True(t, exists)
	require.Equal(t, "5511999999999", user.Phone)
	require.Equal(t, "Fulano", user.Name)
	require.Equal(t, 1, f.users.creates)
}

func TestSessionManager_SecondReadyIsNoop(t *testing.T) {
	f := newManagerFixture(t)
	ch := &fakeChannel{}
	f.startReady(t, "tok1", ch)

	f.factory.handlers.OnReady(f.factory.client.Info())

	require.Equal(t, 1, f.users.creates)
	require.Len(t, f.relay.providers, 1)
}

func TestSessionManager_StartWhenAlreadyReady(t *testing.T) {
	f := newManagerFixture(t)
	ch := &fakeChannel{}
	f.startReady(t, "tok1", ch)

	other := &fakeChannel{}
	require.NoError(t, f.manager.Start("tok1", other))

	last, ok := other.last()
	require.True(t, ok)
	require.Equal(t, models.EventSessionAlreadyReady, last.Type)
	// nenhum segundo cliente construído
	require.Equal(t, 1, f.factory.calls)
}

func TestSessionManager_StartWhileInitializing(t *testing.T) {
	f := newManagerFixture(t)
	ch := &fakeChannel{}

	require.NoError(t, f.manager.Start("tok1", ch))

	other := &fakeChannel{}
	require.NoError(t, f.manager.Start("tok1", other))

	require.Equal(t, 1, f.factory.calls)
	require.Empty(t, other.types())
}

func TestSessionManager_SendMessageWithoutSession(t *testing.T) {
	f := newManagerFixture(t)

	err := f.manager.SendMessage(context.Background(), "ghost", "5511888888888", "oi", "")
	require.ErrorIs(t, err, ErrSessionNotReady)
	require.Empty(t, f.factory.client.sentTexts)
}

func TestSessionManager_SendMessageNotYetReady(t *testing.T) {
	f := newManagerFixture(t)
	require.NoError(t, f.manager.Start("tok1", &fakeChannel{}))

	err := f.manager.SendMessage(context.Background(), "tok1", "5511888888888", "oi", "")
	require.ErrorIs(t, err, ErrSessionNotReady)
}

func TestSessionManager_SendMessage(t *testing.T) {
	f := newManagerFixture(t)
	f.startReady(t, "tok1", &fakeChannel{})

	t.Run("texto simples", func(t *testing.T) {
		err := f.manager.SendMessage(context.Background(), "tok1", "5511888888888", "olá", "")
		require.NoError(t, err)
		require.Equal(t, []string{"olá"}, f.factory.client.sentTexts)
		require.Equal(t, []string{"5511888888888"}, f.factory.client.sentTo)
	})

	t.Run("com mídia", func(t *testing.T) {
		err := f.manager.SendMessage(context.Background(), "tok1", "5511888888888", "veja", "https://x/img.png")
		require.NoError(t, err)
		require.Equal(t, []string{"https://x/img.png"}, f.factory.client.sentMedia)
	})

	t.Run("falha de mídia não derruba a chamada", func(t *testing.T) {
		f.factory.client.mediaErr = errors.New("fetch falhou")
		err := f.manager.SendMessage(context.Background(), "tok1", "5511888888888", "veja", "https://x/img.png")
		require.NoError(t, err)
	})

	t.Run("falha de texto é propagada", func(t *testing.T) {
		f.factory.client.textErr = errors.New("sem conexão")
		err := f.manager.SendMessage(context.Background(), "tok1", "5511888888888", "oi", "")
		require.Error(t, err)
	})
}

func TestSessionManager_Logout(t *testing.T) {
	f := newManagerFixture(t)
	ch := &fakeChannel{}
	f.startReady(t, "tok1", ch)

	f.manager.Logout("tok1", ch)

	require.False(t, f.manager.registry.Has("tok1"))
	require.True(t, f.factory.client.destroyed)
	require.Equal(t, []string{"tok1"}, f.users.deletes)
	require.Len(t, f.cleaner.paths, 1)
	require.Contains(t, f.cleaner.paths[0], "session-tok1")
	require.Contains(t, ch.types(), models.EventLogout)

	// vínculo do canal esquecido
	_, bound := f.manager.channels.Channel("tok1")
	require.False(t, bound)
}

func TestSessionManager_LogoutWithoutSession(t *testing.T) {
	f := newManagerFixture(t)
	ch := &fakeChannel{}

	f.manager.Logout("ghost", ch)

	require.Empty(t, ch.types())
	require.Empty(t, f.cleaner.paths)
	require.Empty(t, f.users.deletes)
}

func TestSessionManager_IncomingMessage(t *testing.T) {
	newMsg := func() provider.Message {
		return provider.Message{
			ID:        "m1",
			Chat:      "5511888888888@s.whatsapp.net",
			From:      "5511888888888",
			To:        "5511999999999",
			Body:      "olá",
			Type:      "chat",
			Timestamp: time.Now(),
		}
	}

	t.Run("texto é repassado ao canal e ao CRM", func(t *testing.T) {
		f := newManagerFixture(t)
		ch := &fakeChannel{}
		f.startReady(t, "tok1", ch)

		f.factory.handlers.OnMessage(newMsg())

		require.Contains(t, ch.types(), models.EventIncomingMessage)
		require.Len(t, f.relay.forwarded, 1)
		rec := f.relay.forwarded[0]
		require.Equal(t, "m1", rec.MsgID)
		require.Equal(t, "5511888888888", rec.From)
		require.Equal(t, "5511999999999", rec.To)
		require.Equal(t, "olá", rec.Body)
		require.Empty(t, rec.MediaURL)
	})

	t.Run("mídia baixada vira URL no registro", func(t *testing.T) {
		f := newManagerFixture(t)
		ch := &fakeChannel{}
		f.startReady(t, "tok1", ch)

		msg := newMsg()
		msg.Type = "image"
		msg.Caption = "legenda"
		msg.HasMedia = true
		msg.Download = func(context.Context) (string, []byte, error) {
			return "image/png", []byte{0x89}, nil
		}

		f.factory.handlers.OnMessage(msg)

		require.Equal(t, 1, f.relay.uploads)
		rec := f.relay.forwarded[0]
		require.Equal(t, "https://cdn.example/up.png", rec.MediaURL)
		require.Equal(t, "legenda", rec.Body)
	})

	t.Run("falha no upload não bloqueia o encaminhamento", func(t *testing.T) {
		f := newManagerFixture(t)
		ch := &fakeChannel{}
		f.startReady(t, "tok1", ch)
		f.relay.uploadErr = errors.New("CRM fora do ar")

		msg := newMsg()
		msg.Type = "image"
		msg.HasMedia = true
		msg.Download = func(context.Context) (string, []byte, error) {
			return "image/png", []byte{0x89}, nil
		}

		f.factory.handlers.OnMessage(msg)

		require.Len(t, f.relay.forwarded, 1)
		require.Empty(t, f.relay.forwarded[0].MediaURL)
	})

	t.Run("ping responde pong", func(t *testing.T) {
		f := newManagerFixture(t)
		ch := &fakeChannel{}
		f.startReady(t, "tok1", ch)

		msg := newMsg()
		msg.Body = "PING"

		f.factory.handlers.OnMessage(msg)

		require.Equal(t, []string{"pong"}, f.factory.client.sentTexts)
		require.Equal(t, []string{"5511888888888@s.whatsapp.net"}, f.factory.client.sentTo)
		require.Contains(t, ch.types(), models.EventOutgoingMessage)
	})

	t.Run("responder nil desativa a resposta automática", func(t *testing.T) {
		f := newManagerFixture(t)
		ch := &fakeChannel{}
		f.startReady(t, "tok1", ch)
		f.manager.SetResponder(nil)

		msg := newMsg()
		msg.Body = "ping"

		f.factory.handlers.OnMessage(msg)

		require.Empty(t, f.factory.client.sentTexts)
	})
}

func TestSessionManager_Shutdown(t *testing.T) {
	f := newManagerFixture(t)
	f.startReady(t, "tok1", &fakeChannel{})

	f.manager.Shutdown()

	require.True(t, f.factory.client.destroyed)
	total, _ := f.manager.Counts()
	require.Zero(t, total)
}

func TestPingPongResponder(t *testing.T) {
	reply, ok := PingPongResponder("ping")
	require.True(t, ok)
	require.Equal(t, "pong", reply)

	reply, ok = PingPongResponder("  PiNg ")
	require.True(t, ok)
	require.Equal(t, "pong", reply)

	_, ok = PingPongResponder("bom dia")
	require.False(t, ok)
}
