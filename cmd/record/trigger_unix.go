//go:build unix

package record

import (
	"context"
	"os"
	"os/signal"

	"golang.org/x/sys/unix"

	"github.com/tphakala/batrec/internal/analysis"
)

// watchManualTrigger arms the manual trigger on SIGUSR1.
func watchManualTrigger(ctx context.Context, m *analysis.Manager) {
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, unix.SIGUSR1)
	defer signal.Stop(sig)
	for {
		select {
		case <-ctx.Done():
			return
		case <-sig:
			m.ManualTrigger()
		}
	}
}
