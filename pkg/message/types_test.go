package message

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnvelopeRoundTrip(t *testing.T) {
	payload := TelemetryPayload{
		Service:   "scoring-engine",
		Operation: "getScore",
		Timestamp: 1700000000,
		LatencyMs: 42.5,
		Success:   true,
	}

	msg, err := New("dashboard_api", "scoring-engine", "telemetry_sample", payload)
	require.NoError(t, err)

	assert.NotEmpty(t, msg.Header.MessageID)
	assert.Equal(t, "dashboard_api", msg.Header.Producer)
	assert.Equal(t, "telemetry_sample", msg.Metadata.DataType)
	require.NoError(t, msg.Validate(), "新建消息应通过完整性校验")

	jsonStr, err := msg.ToJSON()
	require.NoError(t, err)

	parsed, err := FromJSON(jsonStr)
	require.NoError(t, err)
	assert.NoError(t, parsed.Validate(), "序列化往返后校验和应保持一致")
	assert.Equal(t, msg.Header.MessageID, parsed.Header.MessageID)
}

func TestEnvelopeTamperDetected(t *testing.T) {
	msg, err := New("dashboard_api", "scoring-engine", "telemetry_sample", TelemetryPayload{Service: "svc"})
	require.NoError(t, err)

	msg.Metadata.Provider = "tampered"
	assert.ErrorIs(t, msg.Validate(), ErrInvalidChecksum)
}

func TestEnvelopeSetEnvReseals(t *testing.T) {
	msg, err := New("dashboard_api", "scoring-engine", "telemetry_sample", TelemetryPayload{Service: "svc"})
	require.NoError(t, err)

	msg.SetEnv("prod")
	assert.Equal(t, "prod", msg.Metadata.Env)
	assert.NoError(t, msg.Validate(), "SetEnv 后校验和应重新计算")
}

func TestEnvelopeMissingFields(t *testing.T) {
	msg := &Envelope{}
	assert.ErrorIs(t, msg.Validate(), ErrInvalidFormat)
}

func TestFromJSONMalformed(t *testing.T) {
	_, err := FromJSON("{not json")
	assert.ErrorIs(t, err, ErrInvalidFormat)
}

func TestStreamNames(t *testing.T) {
	assert.Equal(t, "stream:telemetry:samples", StreamName("telemetry_sample"))
	assert.Equal(t, "stream:telemetry:health", StreamName("health_snapshot"))
	assert.Equal(t, "stream:unknown", StreamName("whatever"))
}
