package provider

import (
	"context"
	"time"
)

// ClientInfo são os dados que o provedor reporta quando a sessão autentica.
type ClientInfo struct {
	PushName string
	Phone    string
	Server   string
}

// DownloadFunc baixa a mídia anexada a uma mensagem e devolve o mimetype e o
// conteúdo.
type DownloadFunc func(ctx context.Context) (mimetype string, data []byte, err error)

// Message é a visão neutra de uma mensagem recebida do provedor.
type Message struct {
	ID        string
	Chat      string // JID completo da conversa, usado para responder
	From      string
	To        string
	Body      string
	Type      string // "chat" para texto puro, senão o tipo de mídia
	Caption   string
	Timestamp time.Time
	HasMedia  bool
	Download  DownloadFunc // nil quando não há mídia
}

// Handlers são os callbacks que o controlador registra na criação do cliente.
// O provedor entrega um evento por vez por cliente, na ordem em que ocorrem.
type Handlers struct {
	OnQR      func(code string)
	OnReady   func(info ClientInfo)
	OnMessage func(msg Message)
}

// Client é a capacidade estreita que o controlador de sessão consome do
// provedor de mensagens. A implementação real fica em whatsmeow.go; testes
// usam um fake.
type Client interface {
	// Initialize conecta o cliente. Eventos chegam depois, de forma
	// assíncrona, pelos Handlers.
	Initialize() error

	SendText(ctx context.Context, to, text string) error

	// SendMediaURL baixa a mídia da URL e envia como mensagem separada.
	SendMediaURL(ctx context.Context, to, mediaURL string) error

	// Destroy derruba a conexão. O handle não pode ser usado depois.
	Destroy()

	Info() ClientInfo
}

// Factory constrói um cliente amarrado ao diretório de credenciais do token.
type Factory func(token, sessionDir string, handlers Handlers) (Client, error)
