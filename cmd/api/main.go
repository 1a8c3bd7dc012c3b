package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gorilla/mux"
	_ "github.com/mattn/go-sqlite3"

	"github.com/bajuddin15/whatsapp-session-manager/internal/bridge"
	"github.com/bajuddin15/whatsapp-session-manager/internal/cleanup"
	"github.com/bajuddin15/whatsapp-session-manager/internal/config"
	"github.com/bajuddin15/whatsapp-session-manager/internal/crm"
	"github.com/bajuddin15/whatsapp-session-manager/internal/handlers"
	"github.com/bajuddin15/whatsapp-session-manager/internal/middleware"
	"github.com/bajuddin15/whatsapp-session-manager/internal/provider"
	"github.com/bajuddin15/whatsapp-session-manager/internal/repository"
	"github.com/bajuddin15/whatsapp-session-manager/internal/ws"
	"github.com/bajuddin15/whatsapp-session-manager/pkg/logger"
)

const Banner = `
╔══════════════════════════════════════════════════════════╗
║                                                          ║
║        WhatsApp CRM Bridge                               ║
║                    Version %s                         ║
║                                                          ║
╚══════════════════════════════════════════════════════════╝
`

func main() {
	fmt.Printf(Banner, handlers.Version)

	log := logger.New("[API] ", logger.INFO)
	log.Info("Iniciando WhatsApp CRM Bridge...")

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Falha ao carregar configuração: %v", err)
	}
	log.Info("Configuração carregada com sucesso")

	db, err := sql.Open(cfg.Database.Driver, cfg.Database.DSN)
	if err != nil {
		log.Fatalf("Falha ao abrir banco de dados: %v", err)
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Errorf("Erro ao fechar banco de dados: %v", err)
		}
	}()

	userRepo := repository.NewUserRepository(db, log)
	if err := userRepo.Migrate(); err != nil {
		log.Fatalf("Falha ao migrar banco de dados: %v", err)
	}
	log.Info("Banco de dados pronto")

	cleaner := cleanup.New(log, cfg.Cleanup.Delay, cfg.Cleanup.MaxRetries)
	relay := crm.New(cfg.CRM.BaseURL, cfg.CRM.Timeout, log)

	manager := bridge.NewSessionManager(
		bridge.NewRegistry(),
		bridge.NewChannelRegistry(),
		userRepo,
		relay,
		cleaner,
		provider.NewWhatsmeowFactory(cfg, log),
		cfg,
		log,
	)

	apiHandler := handlers.NewHandler(manager, userRepo, log)
	wsHandler := ws.NewHandler(manager, log)

	router := setupRouter(apiHandler, wsHandler, cfg, log)

	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	serverErrors := make(chan error, 1)
	go func() {
		log.Infof("Servidor escutando na porta %s", cfg.Server.Port)
		log.Infof("Health check disponível em: http://localhost:%s/health", cfg.Server.Port)
		log.Infof("Canal de notificação disponível em: ws://localhost:%s/ws", cfg.Server.Port)

		serverErrors <- server.ListenAndServe()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Erro no servidor: %v", err)
		}
	case sig := <-shutdown:
		log.Infof("Sinal de desligamento recebido: %v", sig)

		ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		log.Info("Encerrando servidor...")
		if err := server.Shutdown(ctx); err != nil {
			log.Errorf("Erro ao encerrar servidor: %v", err)
			if err := server.Close(); err != nil {
				log.Errorf("Erro ao fechar servidor: %v", err)
			}
		}

		log.Info("Desconectando sessões do WhatsApp...")
		manager.Shutdown()

		log.Info("Aguardando limpezas pendentes...")
		cleaner.Wait()

		log.Info("Servidor encerrado com sucesso")
	}
}

func setupRouter(h *handlers.Handler, wsH *ws.Handler, cfg *config.Config, log *logger.Logger) *mux.Router {
	router := mux.NewRouter()

	router.HandleFunc("/health", h.Health).Methods(http.MethodGet)
	router.HandleFunc("/ws", wsH.Serve)

	api := router.PathPrefix("/api").Subrouter()
	api.Use(middleware.ContentTypeMiddleware())
	api.HandleFunc("/userProfile", h.UserProfile).Methods(http.MethodPost)
	api.HandleFunc("/sendMessage", h.SendMessage).Methods(http.MethodPost)

	router.PathPrefix("/").Handler(http.FileServer(http.Dir(cfg.Server.StaticDir)))

	router.NotFoundHandler = http.HandlerFunc(h.NotFound)
	router.MethodNotAllowedHandler = http.HandlerFunc(h.MethodNotAllowed)

	router.Use(
		middleware.RecoveryMiddleware(log),
		middleware.LoggingMiddleware(log),
		middleware.CORSMiddleware(),
	)

	return router
}
