package crm

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/bajuddin15/whatsapp-session-manager/internal/models"
	"github.com/bajuddin15/whatsapp-session-manager/pkg/logger"
)

func testLogger() *logger.Logger {
	log := logger.New("[crm-test] ", logger.ERROR)
	log.SetOutput(io.Discard)
	return log
}

func TestAddProvider(t *testing.T) {
	t.Run("envia token e telefone form-urlencoded", func(t *testing.T) {
		var gotPath, gotToken, gotPhone string

		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			gotPath = r.URL.Path
			require.NoError(t, r.ParseForm())
			gotToken = r.PostFormValue("token")
			gotPhone = r.PostFormValue("phoneNumber")
			w.WriteHeader(http.StatusOK)
		}))
		defer srv.Close()

		relay := New(srv.URL, time.Second, testLogger())
		err := relay.AddProvider(context.Background(), "tok1", "5511999999999")

		require.NoError(t, err)
		require.Equal(t, "/index.php/Api/addWhatsAppProvider", gotPath)
		require.Equal(t, "tok1", gotToken)
		require.Equal(t, "5511999999999", gotPhone)
	})

	t.Run("status diferente de 200 vira erro", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadGateway)
		}))
		defer srv.Close()

		relay := New(srv.URL, time.Second, testLogger())
		err := relay.AddProvider(context.Background(), "tok1", "5511999999999")

		require.Error(t, err)
		require.Contains(t, err.Error(), "502")
	})
}

func TestUploadFile(t *testing.T) {
	t.Run("envia data URL multipart e devolve url", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			require.Equal(t, "/index.php/api/upload_file", r.URL.Path)
			require.NoError(t, r.ParseMultipartForm(1<<20))

			file := r.PostFormValue("userfile")
			require.True(t, strings.HasPrefix(file, "data:image/png;base64,"))

			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"url":"https://cdn.example/abc.png"}`))
		}))
		defer srv.Close()

		relay := New(srv.URL, time.Second, testLogger())
		url, err := relay.UploadFile(context.Background(), "image/png", []byte{0x89, 0x50})

		require.NoError(t, err)
		require.Equal(t, "https://cdn.example/abc.png", url)
	})

	t.Run("falha de upload vira erro sem url", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		}))
		defer srv.Close()

		relay := New(srv.URL, time.Second, testLogger())
		url, err := relay.UploadFile(context.Background(), "image/png", []byte{0x01})

		require.Error(t, err)
		require.Empty(t, url)
	})
}

func TestForwardMessage(t *testing.T) {
	var form map[string]string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/index.php/Message/getMessageWhatsApp", r.URL.Path)
		require.NoError(t, r.ParseForm())
		form = map[string]string{
			"msgId":    r.PostFormValue("msgId"),
			"from":     r.PostFormValue("from"),
			"to":       r.PostFormValue("to"),
			"msg":      r.PostFormValue("msg"),
			"mediaUrl": r.PostFormValue("mediaUrl"),
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	relay := New(srv.URL, time.Second, testLogger())
	err := relay.ForwardMessage(context.Background(), models.MessageRecord{
		MsgID:    "m1",
		From:     "5511888888888",
		To:       "5511999999999",
		Body:     "olá",
		MediaURL: "https://cdn.example/abc.png",
	})

	require.NoError(t, err)
	require.Equal(t, "m1", form["msgId"])
	require.Equal(t, "5511888888888", form["from"])
	require.Equal(t, "5511999999999", form["to"])
	require.Equal(t, "olá", form["msg"])
	require.Equal(t, "https://cdn.example/abc.png", form["mediaUrl"])
}
