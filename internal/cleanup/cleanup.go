package cleanup

import (
	"errors"
	"os"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/bajuddin15/whatsapp-session-manager/pkg/logger"
)

// Worker remove diretórios de credenciais de sessões destruídas. O provedor
// pode ainda segurar lock nos arquivos logo após o destroy, então a remoção
// tolera EBUSY com novas tentativas em intervalo fixo. A limpeza é sempre
// best-effort: nenhuma falha é propagada para quem agendou.
type Worker struct {
	logger *logger.Logger

	remove     func(path string) error
	delay      time.Duration
	maxRetries int

	wg sync.WaitGroup
}

func New(log *logger.Logger, delay time.Duration, maxRetries int) *Worker {
	return &Worker{
		logger:     log,
		remove:     os.RemoveAll,
		delay:      delay,
		maxRetries: maxRetries,
	}
}

// ScheduleRemoval agenda a remoção do diretório sem bloquear o chamador.
func (w *Worker) ScheduleRemoval(path string) {
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		w.removeWithRetry(path)
	}()
}

// Wait bloqueia até todas as remoções agendadas terminarem.
func (w *Worker) Wait() {
	w.wg.Wait()
}

func (w *Worker) removeWithRetry(path string) {
	for attempt := 1; attempt <= w.maxRetries; attempt++ {
		if attempt > 1 {
			time.Sleep(w.delay)
		}

		err := w.remove(path)
		if err == nil {
			w.logger.Infof("Arquivos de sessão removidos: %s", path)
			return
		}

		if !isBusy(err) {
			w.logger.Errorf("Falha ao remover arquivos de sessão %s: %v", path, err)
			return
		}

		w.logger.Infof("Diretório ocupado, nova tentativa de remoção (%d/%d): %s",
			attempt, w.maxRetries, path)
	}

	w.logger.Errorf("Remoção de %s abandonada após %d tentativas", path, w.maxRetries)
}

func isBusy(err error) bool {
	if errors.Is(err, syscall.EBUSY) {
		return true
	}
	return strings.Contains(err.Error(), "resource busy")
}
