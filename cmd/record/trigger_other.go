//go:build !unix

package record

import (
	"context"

	"github.com/tphakala/batrec/internal/analysis"
)

func watchManualTrigger(ctx context.Context, _ *analysis.Manager) {
	<-ctx.Done()
}
