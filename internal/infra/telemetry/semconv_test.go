package telemetry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/coachpo/ctpgate/internal/domain/schema"
)

func TestOperationAttributesCarryGatewayAndResult(t *testing.T) {
	attrs := OperationAttributes("prod", "ctp", "send_order", ResultRejected)
	set := attribute.NewSet(attrs...)

	v, ok := set.Value(AttrGateway)
	require.True(t, ok)
	require.Equal(t, "ctp", v.AsString())
	v, ok = set.Value(AttrResult)
	require.True(t, ok)
	require.Equal(t, ResultRejected, v.AsString())
}

func TestGatewayMetricsNilReceiverIsNoop(t *testing.T) {
	var m *GatewayMetrics
	m.RecordEvent(context.Background(), "ctp", schema.EventTypeTick)
	m.RecordRequest(context.Background(), "ctp", "send_order", ResultSuccess)
	m.RecordTransition(context.Background(), "ctp", "md", "Ready")
	m.RecordReconnect(context.Background(), "ctp")
}

func TestGatewayMetricsCountsEvents(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	m := NewGatewayMetrics(&Provider{meterProvider: mp, config: Config{Environment: "Test"}})

	ctx := context.Background()
	m.RecordEvent(ctx, "ctp", schema.EventTypeTick)
	m.RecordEvent(ctx, "ctp", schema.EventTypeTick)

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(ctx, &rm))

	var total int64
	for _, sm := range rm.ScopeMetrics {
		for _, md := range sm.Metrics {
			if md.Name != "gateway.events.published" {
				continue
			}
			sum, ok := md.Data.(metricdata.Sum[int64])
			require.True(t, ok)
			for _, dp := range sum.DataPoints {
				env, _ := dp.Attributes.Value(AttrEnvironment)
				require.Equal(t, "test", env.AsString())
				total += dp.Value
			}
		}
	}
	require.Equal(t, int64(2), total)
}

func TestStripScheme(t *testing.T) {
	require.Equal(t, "collector:4318", stripScheme("https://collector:4318"))
	require.Equal(t, "collector:4318", stripScheme("collector:4318"))
}
