package provider

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/mdp/qrterminal/v3"
	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/store/sqlstore"
	"go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"
	"google.golang.org/protobuf/proto"

	"github.com/bajuddin15/whatsapp-session-manager/internal/config"
	"github.com/bajuddin15/whatsapp-session-manager/pkg/logger"
)

// NewWhatsmeowFactory devolve uma Factory que cria clientes whatsmeow com o
// estado de credenciais isolado no diretório da sessão do token. Apagar o
// diretório no logout remove a sessão inteira.
func NewWhatsmeowFactory(cfg *config.Config, log *logger.Logger) Factory {
	return func(token, sessionDir string, handlers Handlers) (Client, error) {
		if err := os.MkdirAll(sessionDir, 0o755); err != nil {
			return nil, fmt.Errorf("falha ao criar diretório de sessão: %w", err)
		}

		waLogger := logger.NewWhatsAppLogger(fmt.Sprintf("[WA:%s] ", token), logger.INFO)

		ctx := context.Background()
		dsn := fmt.Sprintf("file:%s?_foreign_keys=on", filepath.Join(sessionDir, "session.db"))
		container, err := sqlstore.New(ctx, "sqlite3", dsn, waLogger)
		if err != nil {
			return nil, fmt.Errorf("falha ao abrir store da sessão: %w", err)
		}

		device, err := container.GetFirstDevice(ctx)
		if err != nil {
			return nil, fmt.Errorf("falha ao obter dispositivo: %w", err)
		}

		return &waClient{
			token:          token,
			client:         whatsmeow.NewClient(device, waLogger),
			handlers:       handlers,
			logger:         log,
			defaultCountry: cfg.WhatsApp.DefaultCountry,
			qrTerminal:     cfg.WhatsApp.QRTerminal,
			maxMediaSize:   cfg.WhatsApp.MaxMediaSize,
			httpClient:     &http.Client{Timeout: 2 * time.Minute},
		}, nil
	}
}

type waClient struct {
	token    string
	client   *whatsmeow.Client
	handlers Handlers
	logger   *logger.Logger

	defaultCountry string
	qrTerminal     bool
	maxMediaSize   int64
	httpClient     *http.Client

	cancelQR context.CancelFunc
}

func (c *waClient) Initialize() error {
	c.client.AddEventHandler(c.handleEvent)

	if c.client.Store.ID == nil {
		qrCtx, cancel := context.WithCancel(context.Background())
		c.cancelQR = cancel

		qrChan, err := c.client.GetQRChannel(qrCtx)
		if err != nil {
			cancel()
			return fmt.Errorf("falha ao obter canal de QR: %w", err)
		}

		if err := c.client.Connect(); err != nil {
			cancel()
			return fmt.Errorf("falha ao conectar: %w", err)
		}

		go c.pumpQR(qrChan)
		return nil
	}

	if err := c.client.Connect(); err != nil {
		return fmt.Errorf("falha ao reconectar com sessão existente: %w", err)
	}

	return nil
}

func (c *waClient) pumpQR(qrChan <-chan whatsmeow.QRChannelItem) {
	for item := range qrChan {
		switch item.Event {
		case "code":
			if c.qrTerminal {
				qrterminal.GenerateHalfBlock(item.Code, qrterminal.L, os.Stdout)
			}
			if c.handlers.OnQR != nil {
				c.handlers.OnQR(item.Code)
			}
		case "success":
			return
		case "timeout":
			c.logger.Warnf("[%s] QR code expirou sem leitura", c.token)
			return
		default:
			if item.Error != nil {
				c.logger.Errorf("[%s] Erro no pareamento: %v", c.token, item.Error)
			}
			return
		}
	}
}

func (c *waClient) handleEvent(evt interface{}) {
	switch e := evt.(type) {
	case *events.Connected:
		if c.handlers.OnReady != nil {
			c.handlers.OnReady(c.Info())
		}
	case *events.Message:
		if e.Info.IsFromMe {
			return
		}
		if c.handlers.OnMessage != nil {
			c.handlers.OnMessage(c.translateMessage(e))
		}
	}
}

func (c *waClient) translateMessage(e *events.Message) Message {
	msg := Message{
		ID:        e.Info.ID,
		Chat:      e.Info.Chat.String(),
		From:      e.Info.Sender.User,
		Type:      "chat",
		Timestamp: e.Info.Timestamp,
	}
	if c.client.Store.ID != nil {
		msg.To = c.client.Store.ID.User
	}

	msg.Body = e.Message.GetConversation()
	if msg.Body == "" {
		if ext := e.Message.GetExtendedTextMessage(); ext != nil {
			msg.Body = ext.GetText()
		}
	}

	switch {
	case e.Message.GetImageMessage() != nil:
		img := e.Message.GetImageMessage()
		msg.Type = "image"
		msg.Caption = img.GetCaption()
		msg.HasMedia = true
		msg.Download = c.downloader(img, img.GetMimetype())
	case e.Message.GetVideoMessage() != nil:
		vid := e.Message.GetVideoMessage()
		msg.Type = "video"
		msg.Caption = vid.GetCaption()
		msg.HasMedia = true
		msg.Download = c.downloader(vid, vid.GetMimetype())
	case e.Message.GetAudioMessage() != nil:
		aud := e.Message.GetAudioMessage()
		msg.Type = "audio"
		msg.HasMedia = true
		msg.Download = c.downloader(aud, aud.GetMimetype())
	case e.Message.GetDocumentMessage() != nil:
		doc := e.Message.GetDocumentMessage()
		msg.Type = "document"
		msg.Caption = doc.GetCaption()
		msg.HasMedia = true
		msg.Download = c.downloader(doc, doc.GetMimetype())
	case e.Message.GetStickerMessage() != nil:
		stk := e.Message.GetStickerMessage()
		msg.Type = "sticker"
		msg.HasMedia = true
		msg.Download = c.downloader(stk, stk.GetMimetype())
	}

	return msg
}

func (c *waClient) downloader(media whatsmeow.DownloadableMessage, mimetype string) DownloadFunc {
	return func(ctx context.Context) (string, []byte, error) {
		data, err := c.client.Download(ctx, media)
		if err != nil {
			return "", nil, fmt.Errorf("falha ao baixar mídia: %w", err)
		}
		return mimetype, data, nil
	}
}

func (c *waClient) SendText(ctx context.Context, to, text string) error {
	jid, err := c.parseRecipient(to)
	if err != nil {
		return err
	}

	_, err = c.client.SendMessage(ctx, jid, &waE2E.Message{
		ExtendedTextMessage: &waE2E.ExtendedTextMessage{
			Text: proto.String(text),
		},
	})
	if err != nil {
		return fmt.Errorf("falha ao enviar mensagem: %w", err)
	}

	return nil
}

func (c *waClient) SendMediaURL(ctx context.Context, to, mediaURL string) error {
	jid, err := c.parseRecipient(to)
	if err != nil {
		return err
	}

	data, contentType, err := c.downloadMedia(ctx, mediaURL)
	if err != nil {
		return err
	}

	mediaType := determineMediaType(contentType)

	uploaded, err := c.client.Upload(ctx, data, mediaType)
	if err != nil {
		return fmt.Errorf("falha ao fazer upload da mídia: %w", err)
	}

	filename := "media"
	if ext := filepath.Ext(mediaURL); ext != "" {
		filename += ext
	}

	msg := buildMediaMessage(uploaded, data, contentType, filename)

	if _, err := c.client.SendMessage(ctx, jid, msg); err != nil {
		return fmt.Errorf("falha ao enviar mensagem de mídia: %w", err)
	}

	return nil
}

func (c *waClient) Destroy() {
	if c.cancelQR != nil {
		c.cancelQR()
	}
	if c.client.IsConnected() {
		c.client.Disconnect()
	}
}

func (c *waClient) Info() ClientInfo {
	info := ClientInfo{PushName: c.client.Store.PushName}
	if c.client.Store.ID != nil {
		info.Phone = c.client.Store.ID.User
		info.Server = c.client.Store.ID.Server
	}
	return info
}

func (c *waClient) parseRecipient(to string) (types.JID, error) {
	n := strings.TrimSpace(to)
	n = strings.NewReplacer(" ", "", "-", "", "(", "", ")", "", "+", "").Replace(n)

	if !strings.Contains(n, "@") {
		if c.defaultCountry != "" && !strings.HasPrefix(n, c.defaultCountry) {
			n = c.defaultCountry + n
		}
		n += "@" + types.DefaultUserServer
	}

	jid, err := types.ParseJID(n)
	if err != nil {
		return types.JID{}, fmt.Errorf("número de telefone inválido: %w", err)
	}

	return jid, nil
}

func (c *waClient) downloadMedia(ctx context.Context, mediaURL string) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, mediaURL, nil)
	if err != nil {
		return nil, "", fmt.Errorf("falha ao criar requisição: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("falha ao baixar mídia: %w", err)
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			c.logger.Errorf("Falha ao fechar corpo da resposta: %v", err)
		}
	}()

	if resp.StatusCode != http.StatusOK {
		return nil, "", fmt.Errorf("falha ao baixar mídia: status %d", resp.StatusCode)
	}

	limit := c.maxMediaSize
	if limit <= 0 {
		limit = 25 << 20
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, limit))
	if err != nil {
		return nil, "", fmt.Errorf("falha ao ler mídia: %w", err)
	}

	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = http.DetectContentType(data)
	}

	return data, contentType, nil
}

func determineMediaType(contentType string) whatsmeow.MediaType {
	switch {
	case strings.HasPrefix(contentType, "image/"):
		return whatsmeow.MediaImage
	case strings.HasPrefix(contentType, "video/"):
		return whatsmeow.MediaVideo
	case strings.HasPrefix(contentType, "audio/"):
		return whatsmeow.MediaAudio
	default:
		return whatsmeow.MediaDocument
	}
}

func buildMediaMessage(uploaded whatsmeow.UploadResponse, data []byte, contentType, filename string) *waE2E.Message {
	size := uint64(len(data))

	switch determineMediaType(contentType) {
	case whatsmeow.MediaImage:
		return &waE2E.Message{
			ImageMessage: &waE2E.ImageMessage{
				URL:           proto.String(uploaded.URL),
				DirectPath:    proto.String(uploaded.DirectPath),
				MediaKey:      uploaded.MediaKey,
				Mimetype:      proto.String(contentType),
				FileEncSHA256: uploaded.FileEncSHA256,
				FileSHA256:    uploaded.FileSHA256,
				FileLength:    proto.Uint64(size),
			},
		}
	case whatsmeow.MediaVideo:
		return &waE2E.Message{
			VideoMessage: &waE2E.VideoMessage{
				URL:           proto.String(uploaded.URL),
				DirectPath:    proto.String(uploaded.DirectPath),
				MediaKey:      uploaded.MediaKey,
				Mimetype:      proto.String(contentType),
				FileEncSHA256: uploaded.FileEncSHA256,
				FileSHA256:    uploaded.FileSHA256,
				FileLength:    proto.Uint64(size),
			},
		}
	case whatsmeow.MediaAudio:
		return &waE2E.Message{
			AudioMessage: &waE2E.AudioMessage{
				URL:           proto.String(uploaded.URL),
				DirectPath:    proto.String(uploaded.DirectPath),
				MediaKey:      uploaded.MediaKey,
				Mimetype:      proto.String(contentType),
				FileEncSHA256: uploaded.FileEncSHA256,
				FileSHA256:    uploaded.FileSHA256,
				FileLength:    proto.Uint64(size),
			},
		}
	default:
		return &waE2E.Message{
			DocumentMessage: &waE2E.DocumentMessage{
				URL:           proto.String(uploaded.URL),
				DirectPath:    proto.String(uploaded.DirectPath),
				MediaKey:      uploaded.MediaKey,
				Mimetype:      proto.String(contentType),
				FileEncSHA256: uploaded.FileEncSHA256,
				FileSHA256:    uploaded.FileSHA256,
				FileLength:    proto.Uint64(size),
				FileName:      proto.String(filename),
			},
		}
	}
}
