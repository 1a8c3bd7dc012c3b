package crm

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/bajuddin15/whatsapp-session-manager/internal/models"
	"github.com/bajuddin15/whatsapp-session-manager/pkg/logger"
)

const (
	addProviderPath    = "/index.php/Api/addWhatsAppProvider"
	uploadFilePath     = "/index.php/api/upload_file"
	forwardMessagePath = "/index.php/Message/getMessageWhatsApp"
)

// Relay faz as chamadas HTTP de saída para o CRM. Todas são best-effort: o
// erro volta para o chamador, que loga e descarta. Não há retry aqui.
type Relay struct {
	baseURL    string
	httpClient *http.Client
	logger     *logger.Logger
}

func New(baseURL string, timeout time.Duration, log *logger.Logger) *Relay {
	return &Relay{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		logger:     log,
	}
}

// AddProvider registra no CRM o vínculo token↔telefone de uma sessão que
// acabou de ficar pronta.
func (r *Relay) AddProvider(ctx context.Context, token, phone string) error {
	form := url.Values{
		"token":       {token},
		"phoneNumber": {phone},
	}

	resp, err := r.postForm(ctx, r.baseURL+addProviderPath, form)
	if err != nil {
		return fmt.Errorf("falha ao registrar provider no CRM: %w", err)
	}
	defer r.drainAndClose(resp.Body)

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("CRM respondeu status %d ao registrar provider", resp.StatusCode)
	}

	return nil
}

// UploadFile envia a mídia baixada para o CRM e devolve a URL publicada.
func (r *Relay) UploadFile(ctx context.Context, mimetype string, data []byte) (string, error) {
	file := "data:" + mimetype + ";base64," + base64.StdEncoding.EncodeToString(data)

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	if err := mw.WriteField("userfile", file); err != nil {
		return "", fmt.Errorf("falha ao montar formulário de upload: %w", err)
	}
	if err := mw.Close(); err != nil {
		return "", fmt.Errorf("falha ao fechar formulário de upload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.baseURL+uploadFilePath, &body)
	if err != nil {
		return "", fmt.Errorf("falha ao criar requisição de upload: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("falha no upload de mídia para o CRM: %w", err)
	}
	defer r.drainAndClose(resp.Body)

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("CRM respondeu status %d no upload de mídia", resp.StatusCode)
	}

	var result struct {
		URL string `json:"url"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("resposta de upload inválida: %w", err)
	}

	return result.URL, nil
}

// ForwardMessage encaminha uma mensagem recebida para o CRM.
func (r *Relay) ForwardMessage(ctx context.Context, rec models.MessageRecord) error {
	form := url.Values{
		"msgId":    {rec.MsgID},
		"from":     {rec.From},
		"to":       {rec.To},
		"msg":      {rec.Body},
		"mediaUrl": {rec.MediaURL},
	}

	resp, err := r.postForm(ctx, r.baseURL+forwardMessagePath, form)
	if err != nil {
		return fmt.Errorf("falha ao encaminhar mensagem para o CRM: %w", err)
	}
	defer r.drainAndClose(resp.Body)

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("CRM respondeu status %d ao encaminhar mensagem", resp.StatusCode)
	}

	return nil
}

func (r *Relay) postForm(ctx context.Context, endpoint string, form url.Values) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint,
		strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	return r.httpClient.Do(req)
}

func (r *Relay) drainAndClose(body io.ReadCloser) {
	_, _ = io.Copy(io.Discard, body)
	if err := body.Close(); err != nil {
		r.logger.Errorf("Falha ao fechar corpo da resposta do CRM: %v", err)
	}
}
