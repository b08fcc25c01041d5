package telemetry

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

type dialect string

func (d dialect) String() string { return string(d) }

// recordSpans installs an in-memory tracer for the duration of the test.
func recordSpans(t *testing.T) *tracetest.SpanRecorder {
	t.Helper()
	rec := tracetest.NewSpanRecorder()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec))
	setTracer(provider.Tracer("test"), true)
	t.Cleanup(func() {
		setTracer(nil, false)
		_ = provider.Shutdown(context.Background())
	})
	return rec
}

func attrMap(kvs []attribute.KeyValue) map[string]string {
	m := make(map[string]string, len(kvs))
	for _, kv := range kvs {
		m[string(kv.Key)] = kv.Value.Emit()
	}
	return m
}

func TestServiceName(t *testing.T) {
	assert.Equal(t, DefaultServiceName, Config{}.serviceName())
	assert.Equal(t, "smb-edge", Config{ServiceName: "smb-edge"}.serviceName())
}

func TestSampleRatio(t *testing.T) {
	tests := []struct {
		in, want float64
	}{
		{-1, 0},
		{0, 0},
		{0.25, 0.25},
		{1, 1},
		{7, 1},
	}
	for _, tt := range tests {
		if got := (Config{SampleRate: tt.in}).sampleRatio(); got != tt.want {
			t.Errorf("sampleRatio(%v) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestInitDisabled(t *testing.T) {
	ctx := context.Background()
	shutdown, err := Init(ctx, Config{Endpoint: "localhost:4317", SampleRate: 1})
	require.NoError(t, err)
	require.NotNil(t, shutdown)

	assert.NoError(t, shutdown(ctx))
	assert.False(t, IsEnabled())
}

func TestTracerReturnsNoOp(t *testing.T) {
	setTracer(nil, false)

	tr := Tracer()
	require.NotNil(t, tr)

	ctx, span := StartSpan(context.Background(), "noop")
	defer span.End()
	assert.Equal(t, "", TraceID(ctx))
	assert.Equal(t, "", SpanID(ctx))
}

func TestRecordErrorWithoutSpan(t *testing.T) {
	ctx := context.Background()
	require.NotPanics(t, func() {
		RecordError(ctx, nil)
		RecordError(ctx, errors.New("test error"))
	})
}

// ============================================================================
// Recorded spans
// ============================================================================

func TestStartSMBSpan(t *testing.T) {
	rec := recordSpans(t)

	ctx, span := StartSMBSpan(context.Background(), "SESSION_SETUP", 7, 0x1234, SMBStatus(0xC0000016))
	assert.True(t, IsEnabled())
	assert.NotEmpty(t, TraceID(ctx))
	assert.NotEmpty(t, SpanID(ctx))
	RecordError(ctx, errors.New("boom"))
	span.End()

	ended := rec.Ended()
	require.Len(t, ended, 1)
	s := ended[0]
	assert.Equal(t, "smb.SESSION_SETUP", s.Name())
	assert.Equal(t, codes.Error, s.Status().Code)

	attrs := attrMap(s.Attributes())
	assert.Equal(t, "smb2", attrs[AttrProtocol])
	assert.Equal(t, "SESSION_SETUP", attrs[AttrSMBCommand])
	assert.Equal(t, "7", attrs[AttrSMBMessageID])
	assert.Equal(t, "0x0000000000001234", attrs[AttrSMBSessionID])
	assert.Equal(t, "0xc0000016", attrs[AttrSMBStatus])
}

func TestStartAuthSpan_Nested(t *testing.T) {
	rec := recordSpans(t)

	ctx, parent := StartSMBSpan(context.Background(), "SESSION_SETUP", 1, 0)
	_, child := StartAuthSpan(ctx, "ntlm", NTLMPhase("authenticate"), Username("alice"))
	child.End()
	parent.End()

	ended := rec.Ended()
	require.Len(t, ended, 2)
	assert.Equal(t, SpanSMBAuth, ended[0].Name())
	assert.Equal(t, ended[1].SpanContext().SpanID(), ended[0].Parent().SpanID())

	attrs := attrMap(ended[0].Attributes())
	assert.Equal(t, "ntlm", attrs[AttrAuthMechanism])
	assert.Equal(t, "authenticate", attrs[AttrNTLMPhase])
	assert.Equal(t, "alice", attrs[AttrUsername])
}

func TestAttributeHelpers(t *testing.T) {
	tests := []struct {
		name string
		attr attribute.KeyValue
		key  string
		want string
	}{
		{"ClientIP", ClientIP("192.168.1.100"), AttrClientIP, "192.168.1.100"},
		{"ClientAddr", ClientAddr("192.168.1.100:445"), AttrClientAddr, "192.168.1.100:445"},
		{"SMBCommand", SMBCommand("NEGOTIATE"), AttrSMBCommand, "NEGOTIATE"},
		{"SMBDialect", SMBDialect(dialect("3.1.1")), AttrSMBDialect, "3.1.1"},
		{"SMBCredits", SMBCredits(31), AttrSMBCredits, "31"},
		{"SMBCompound", SMBCompound(true), AttrSMBCompound, "true"},
		{"AuthOutcome", AuthOutcome("success"), AttrAuthOutcome, "success"},
		{"NTLMFlags", NTLMFlags(0x62888035), AttrNTLMFlags, "0x62888035"},
		{"Domain", Domain("CORP"), AttrDomain, "CORP"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.key, string(tt.attr.Key))
			assert.Equal(t, tt.want, tt.attr.Value.Emit())
		})
	}
}

func TestProfiling(t *testing.T) {
	shutdown, err := InitProfiling(ProfilingConfig{Enabled: false})
	require.NoError(t, err)
	assert.NoError(t, shutdown())
	assert.False(t, IsProfilingEnabled())

	_, err = InitProfiling(ProfilingConfig{Enabled: true, ProfileTypes: []string{"bogus"}})
	assert.Error(t, err)
	assert.False(t, IsProfilingEnabled())

	assert.True(t, ValidProfileType("inuse_space"))
	assert.False(t, ValidProfileType("heap"))
}
