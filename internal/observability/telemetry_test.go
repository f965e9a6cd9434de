package observability

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"go.opentelemetry.io/otel/attribute"
)

func TestSamplerFor(t *testing.T) {
	tests := []struct {
		ratio float64
		want  string
	}{
		{0, "AlwaysOnSampler"},
		{1, "AlwaysOnSampler"},
		{0.25, "TraceIDRatioBased{0.25}"},
	}
	for _, tt := range tests {
		assert.Contains(t, samplerFor(tt.ratio).Description(), tt.want)
	}
}

func TestResourceAttributes(t *testing.T) {
	attrs := resourceAttributes(Options{ServiceName: "graphite", World: "lobby", Protocol: 763})
	set := attribute.NewSet(attrs...)

	v, ok := set.Value("service.name")
	assert.True(t, ok)
	assert.Equal(t, "graphite", v.AsString())
	v, ok = set.Value("graphite.world")
	assert.True(t, ok)
	assert.Equal(t, "lobby", v.AsString())
	v, ok = set.Value("graphite.protocol")
	assert.True(t, ok)
	assert.Equal(t, int64(763), v.AsInt64())
	_, ok = set.Value("service.version")
	assert.False(t, ok)
}

func TestExporterOptions(t *testing.T) {
	assert.Empty(t, exporterOptions(Options{}))
	assert.Len(t, exporterOptions(Options{Endpoint: "otel:4318", Insecure: true}), 2)
}
