package record

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	obsmetrics "github.com/tphakala/batrec/internal/observability/metrics"
)

func TestBindFlagsOverridesConfig(t *testing.T) {
	flags := pflag.NewFlagSet("record", pflag.ContinueOnError)
	flags.String("mode", "", "")
	require.NoError(t, bindFlags(flags, map[string]string{"mode": "bindtest.mode"}))

	viper.SetDefault("bindtest.mode", "auto")
	assert.Equal(t, "auto", viper.GetString("bindtest.mode"))

	require.NoError(t, flags.Parse([]string{"--mode=manual"}))
	assert.Equal(t, "manual", viper.GetString("bindtest.mode"))
}

func TestBindFlagsUnknownFlag(t *testing.T) {
	flags := pflag.NewFlagSet("record", pflag.ContinueOnError)
	assert.Error(t, bindFlags(flags, map[string]string{"missing": "bindtest.missing"}))
}

func TestNotifyingMetricsCountsStorageMisses(t *testing.T) {
	rm, err := obsmetrics.NewRecorderMetrics(prometheus.NewRegistry())
	require.NoError(t, err)

	// A nil notifier drops notifications but the counter still moves.
	m := &notifyingMetrics{RecorderMetrics: rm}
	m.StorageUnavailable()
	m.StorageUnavailable()
	assert.InDelta(t, 2, testutil.ToFloat64(rm.StorageMisses), 0)
}
