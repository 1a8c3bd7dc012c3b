package bridge

import (
	"errors"
	"sync"

	"github.com/bajuddin15/whatsapp-session-manager/internal/provider"
)

var ErrSessionExists = errors.New("já existe uma sessão para este token")

// Session é o vínculo vivo entre um token de tenant e o cliente de mensagens.
// O handle do cliente pertence exclusivamente à sessão e não pode ser usado
// depois do destroy.
type Session struct {
	Token string

	mu     sync.Mutex
	client provider.Client
	ready  bool
}

func (s *Session) AttachClient(c provider.Client) {
	s.mu.Lock()
	s.client = c
	s.mu.Unlock()
}

func (s *Session) Client() provider.Client {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.client
}

func (s *Session) Ready() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ready
}

// MarkReady promove a sessão. Devolve false se a sessão já estava pronta,
// para que um segundo evento ready do provedor vire no-op.
func (s *Session) MarkReady() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ready {
		return false
	}
	s.ready = true
	return true
}

const registryShards = 64

type registryShard struct {
	mu sync.RWMutex
	m  map[string]*Session
}

// Registry mapeia token de tenant para sessão viva. É a única autoridade
// sobre "existe sessão para este token": no máximo uma sessão por token.
type Registry struct {
	shards [registryShards]registryShard
}

func NewRegistry() *Registry {
	r := &Registry{}
	for i := 0; i < registryShards; i++ {
		r.shards[i].m = make(map[string]*Session)
	}
	return r
}

func (r *Registry) shard(key string) *registryShard {
	// FNV-1a
	var h uint32 = 2166136261
	for i := 0; i < len(key); i++ {
		h ^= uint32(key[i])
		h *= 16777619
	}
	return &r.shards[h%registryShards]
}

func (r *Registry) Has(token string) bool {
	sh := r.shard(token)
	sh.mu.RLock()
	_, ok := sh.m[token]
	sh.mu.RUnlock()
	return ok
}

func (r *Registry) IsReady(token string) bool {
	sh := r.shard(token)
	sh.mu.RLock()
	s, ok := sh.m[token]
	sh.mu.RUnlock()
	return ok && s.Ready()
}

func (r *Registry) Create(token string) (*Session, error) {
	sh := r.shard(token)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	if _, ok := sh.m[token]; ok {
		return nil, ErrSessionExists
	}

	s := &Session{Token: token}
	sh.m[token] = s
	return s, nil
}

func (r *Registry) Get(token string) (*Session, bool) {
	sh := r.shard(token)
	sh.mu.RLock()
	s, ok := sh.m[token]
	sh.mu.RUnlock()
	return s, ok
}

// Destroy remove a sessão imediatamente e devolve o handle removido para que
// o chamador derrube o cliente. Idempotente: segundo destroy é no-op.
func (r *Registry) Destroy(token string) (*Session, bool) {
	sh := r.shard(token)
	sh.mu.Lock()
	s, ok := sh.m[token]
	if ok {
		delete(sh.m, token)
	}
	sh.mu.Unlock()
	return s, ok
}

func (r *Registry) Range(fn func(token string, s *Session)) {
	for i := 0; i < registryShards; i++ {
		sh := &r.shards[i]
		sh.mu.RLock()
		for k, s := range sh.m {
			fn(k, s)
		}
		sh.mu.RUnlock()
	}
}

func (r *Registry) Len() (total, ready int) {
	r.Range(func(_ string, s *Session) {
		total++
		if s.Ready() {
			ready++
		}
	})
	return total, ready
}

// ChannelRegistry mapeia token para o canal de notificação aberto, para que
// eventos originados no provedor cheguem ao listener certo. O vínculo é fraco:
// o canal pode fechar independentemente da sessão.
type ChannelRegistry struct {
	mu sync.RWMutex
	m  map[string]Channel
}

func NewChannelRegistry() *ChannelRegistry {
	return &ChannelRegistry{m: make(map[string]Channel)}
}

func (c *ChannelRegistry) Bind(token string, ch Channel) {
	c.mu.Lock()
	c.m[token] = ch
	c.mu.Unlock()
}

func (c *ChannelRegistry) Channel(token string) (Channel, bool) {
	c.mu.RLock()
	ch, ok := c.m[token]
	c.mu.RUnlock()
	return ch, ok
}

// Release remove o vínculo apenas se ele ainda apontar para ch, para que um
// canal antigo desconectando não derrube o registro de um canal mais novo.
func (c *ChannelRegistry) Release(token string, ch Channel) {
	c.mu.Lock()
	if cur, ok := c.m[token]; ok && cur == ch {
		delete(c.m, token)
	}
	c.mu.Unlock()
}
