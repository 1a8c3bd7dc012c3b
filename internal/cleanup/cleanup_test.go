package cleanup

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/bajuddin15/whatsapp-session-manager/pkg/logger"
)

func testLogger() *logger.Logger {
	log := logger.New("[cleanup-test] ", logger.ERROR)
	log.SetOutput(io.Discard)
	return log
}

func TestScheduleRemoval(t *testing.T) {
	t.Run("sucesso na primeira tentativa", func(t *testing.T) {
		dir := filepath.Join(t.TempDir(), "session-tok1")
		require.NoError(t, os.MkdirAll(dir, 0o755))

		w := New(testLogger(), time.Millisecond, 10)
		w.ScheduleRemoval(dir)
		w.Wait()

		_, err := os.Stat(dir)
		require.True(t, os.IsNotExist(err))
	})

	t.Run("ocupado nove vezes, sucesso na décima", func(t *testing.T) {
		attempts := 0
		removed := false

		w := New(testLogger(), time.Millisecond, 10)
		w.remove = func(path string) error {
			attempts++
			if attempts < 10 {
				return &os.PathError{Op: "unlinkat", Path: path, Err: syscall.EBUSY}
			}
			removed = true
			return nil
		}

		w.ScheduleRemoval("/tmp/session-busy")
		w.Wait()

		require.Equal(t, 10, attempts)
		require.True(t, removed)
	})

	t.Run("dez falhas ocupado abandona sem propagar", func(t *testing.T) {
		attempts := 0

		w := New(testLogger(), time.Millisecond, 10)
		w.remove = func(path string) error {
			attempts++
			return &os.PathError{Op: "unlinkat", Path: path, Err: syscall.EBUSY}
		}

		w.ScheduleRemoval("/tmp/session-stuck")
		w.Wait()

		require.Equal(t, 10, attempts)
	})

	t.Run("erro diferente de ocupado nao tenta de novo", func(t *testing.T) {
		attempts := 0

		w := New(testLogger(), time.Millisecond, 10)
		w.remove = func(path string) error {
			attempts++
			return fmt.Errorf("permission denied")
		}

		w.ScheduleRemoval("/tmp/session-denied")
		w.Wait()

		require.Equal(t, 1, attempts)
	})
}

func TestIsBusy(t *testing.T) {
	require.True(t, isBusy(&os.PathError{Op: "unlinkat", Path: "x", Err: syscall.EBUSY}))
	require.True(t, isBusy(fmt.Errorf("remove x: resource busy")))
	require.False(t, isBusy(fmt.Errorf("permission denied")))
}
