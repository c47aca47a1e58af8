package validate

import (
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fixedNow = time.Date(2026, 8, 28, 12, 0, 0, 0, time.UTC)

func newTestValidator() *Validator {
	v := NewValidator()
	v.now = func() time.Time { return fixedNow }
	return v
}

// validChainRecord 构造一条通过全部结构规则的链上记录
func validChainRecord() map[string]interface{} {
	return map[string]interface{}{
		"txHash":      "0x" + "ab12cd34ef56ab12cd34ef56ab12cd34ef56ab12cd34ef56ab12cd34ef56ab12",
		"blockNumber": 18999999,
		"timestamp":   fixedNow.Add(-24 * time.Hour).Unix(),
		"from":        "0xf39fd6e51aad88f6f4ce6ab8827279cfffb92266",
		"to":          "0x70997970c51812dc3a010c7d01b50e0d17dc79c8",
		"verified":    true,
	}
}

func mustJSON(t *testing.T, v interface{}) json.RawMessage {
	t.Helper()
	raw, err := json.Marshal(v)
	require.NoError(t, err)
	return raw
}

func TestValidateEmptyPayload(t *testing.T) {
	v := newTestValidator()

	result, err := v.Validate(nil, "chain-indexer", DomainBlockchain)
	require.Error(t, err)

	var unavailable *SourceUnavailableError
	require.ErrorAs(t, err, &unavailable)
	assert.Equal(t, "chain-indexer", unavailable.Source)
	assert.False(t, result.IsValid)
	assert.False(t, result.IsReal)
}

func TestValidateMalformedJSON(t *testing.T) {
	v := newTestValidator()

	_, err := v.Validate(json.RawMessage("{not json"), "chain-indexer", DomainGeneric)

	var validation *ValidationError
	require.ErrorAs(t, err, &validation)
	assert.Contains(t, validation.Violations, "payload is not valid JSON")
}

func TestValidateBlockchainRecordPasses(t *testing.T) {
	v := newTestValidator()

	result, err := v.Validate(mustJSON(t, validChainRecord()), "chain-indexer", DomainBlockchain)
	require.NoError(t, err)
	assert.True(t, result.IsValid)
	assert.True(t, result.IsReal)
	assert.Empty(t, result.Errors)
}

func TestValidateBlockchainStructuralRules(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(record map[string]interface{})
		violation string
	}{
		{
			"交易哈希缺失",
			func(r map[string]interface{}) { delete(r, "txHash") },
			"transaction hash must be 32-byte hex",
		},
		{
			"交易哈希长度错误",
			func(r map[string]interface{}) { r["txHash"] = "0xab12" },
			"transaction hash must be 32-byte hex",
		},
		{
			"区块号为负",
			func(r map[string]interface{}) { r["blockNumber"] = -1 },
			"block number must be a positive integer",
		},
		{
			"区块号非整数",
			func(r map[string]interface{}) { r["blockNumber"] = 18999999.5 },
			"block number must be a positive integer",
		},
		{
			"时间戳在未来",
			func(r map[string]interface{}) { r["timestamp"] = fixedNow.Add(time.Hour).Unix() },
			"timestamp is in the future",
		},
		{
			"时间戳超过一年",
			func(r map[string]interface{}) { r["timestamp"] = fixedNow.Add(-400 * 24 * time.Hour).Unix() },
			"timestamp is older than one year",
		},
		{
			"记录未经确认",
			func(r map[string]interface{}) { r["verified"] = false },
			"record is not verified",
		},
	}

	v := newTestValidator()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			record := validChainRecord()
			tt.mutate(record)

			_, err := v.Validate(mustJSON(t, record), "chain-indexer", DomainBlockchain)

			var validation *ValidationError
			require.ErrorAs(t, err, &validation)
			assert.Contains(t, validation.Violations, tt.violation)
		})
	}
}

// validModelOutput 构造一条通过全部结构规则的模型输出
func validModelOutput() map[string]interface{} {
	return map[string]interface{}{
		"source":      "ml-models",
		"modelType":   "gradient_boost",
		"generatedAt": fixedNow.Add(-10 * time.Minute).Unix(),
		"confidence":  87.3,
		"prediction":  712.0,
	}
}

func TestValidateModelOutputPasses(t *testing.T) {
	v := newTestValidator()

	result, err := v.Validate(mustJSON(t, validModelOutput()), "ml-models", DomainModelOutput)
	require.NoError(t, err)
	assert.True(t, result.IsReal)
}

func TestValidateModelOutputStructuralRules(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(record map[string]interface{})
		violation string
	}{
		{
			"来源标签缺失",
			func(r map[string]interface{}) { delete(r, "source") },
			"source tag is missing",
		},
		{
			"模型类型缺失",
			func(r map[string]interface{}) { delete(r, "modelType") },
			"model type tag is missing",
		},
		{
			"输出超过一小时",
			func(r map[string]interface{}) { r["generatedAt"] = fixedNow.Add(-2 * time.Hour).Unix() },
			"model output is older than one hour",
		},
		{
			"置信度超出范围",
			func(r map[string]interface{}) { r["confidence"] = 120.0 },
			"confidence must be within [0,100]",
		},
	}

	v := newTestValidator()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			record := validModelOutput()
			tt.mutate(record)

			_, err := v.Validate(mustJSON(t, record), "ml-models", DomainModelOutput)

			var validation *ValidationError
			require.ErrorAs(t, err, &validation)
			assert.Contains(t, validation.Violations, tt.violation)
		})
	}
}

func TestValidatePlaceholderConfidence(t *testing.T) {
	v := newTestValidator()

	for _, confidence := range []float64{0.5, 0.75, 0.9, 1.0} {
		record := validModelOutput()
		record["confidence"] = confidence

		_, err := v.Validate(mustJSON(t, record), "ml-models", DomainModelOutput)

		var synthetic *SyntheticDataError
		require.ErrorAs(t, err, &synthetic, "置信度 %v 应命中占位值", confidence)
		assert.Contains(t, synthetic.Indicators, "confidence matches a known placeholder value")
	}
}

func TestValidateRoundPrediction(t *testing.T) {
	v := newTestValidator()

	record := validModelOutput()
	record["prediction"] = 700.0

	_, err := v.Validate(mustJSON(t, record), "ml-models", DomainModelOutput)

	var synthetic *SyntheticDataError
	require.ErrorAs(t, err, &synthetic)
	assert.Contains(t, synthetic.Indicators, "prediction is a round multiple of 100")
}

func TestValidateSyntheticMarkers(t *testing.T) {
	v := newTestValidator()

	_, err := v.Validate(json.RawMessage(`{"name":"Mock Provider","value":1}`), "market-data", DomainGeneric)

	var synthetic *SyntheticDataError
	require.ErrorAs(t, err, &synthetic)
	assert.Contains(t, synthetic.Indicators, `payload contains marker "mock"`)
}

func TestValidatePlaceholderIdentifiers(t *testing.T) {
	v := newTestValidator()

	tests := []struct {
		name    string
		payload string
	}{
		{"全零地址", `{"wallet":"0x0000000000000000000000000000000000000000"}`},
		{"占位id", `{"id":"123","value":42}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := v.Validate(json.RawMessage(tt.payload), "market-data", DomainGeneric)

			var synthetic *SyntheticDataError
			require.ErrorAs(t, err, &synthetic)
		})
	}
}

func TestValidateRepeatedArrayElements(t *testing.T) {
	v := newTestValidator()

	_, err := v.Validate(json.RawMessage(`{"scores":[7,7,7,7,7,7]}`), "scoring-engine", DomainGeneric)

	var synthetic *SyntheticDataError
	require.ErrorAs(t, err, &synthetic)
	assert.Contains(t, synthetic.Indicators, "array of repeated identical elements")
}

func TestValidateUniformTimestampSpacing(t *testing.T) {
	v := newTestValidator()

	base := fixedNow.Add(-time.Hour).Unix()
	payload := fmt.Sprintf(`{"points":[%d,%d,%d,%d]}`, base, base+600, base+1200, base+1800)

	_, err := v.Validate(json.RawMessage(payload), "scoring-engine", DomainGeneric)

	var synthetic *SyntheticDataError
	require.ErrorAs(t, err, &synthetic)
	assert.Contains(t, synthetic.Indicators, "timestamps with perfectly uniform spacing")

	// 间距不均匀的真实序列不应命中
	organic := fmt.Sprintf(`{"points":[%d,%d,%d,%d]}`, base, base+613, base+1187, base+1902)
	result, err := v.Validate(json.RawMessage(organic), "scoring-engine", DomainGeneric)
	require.NoError(t, err)
	assert.True(t, result.IsReal)
}

func TestValidateStructuralBeforeHeuristics(t *testing.T) {
	v := newTestValidator()

	// 同时存在结构违规与合成标记时，结构错误优先
	record := validChainRecord()
	record["verified"] = false
	record["note"] = "mock data"

	_, err := v.Validate(mustJSON(t, record), "chain-indexer", DomainBlockchain)

	var validation *ValidationError
	require.ErrorAs(t, err, &validation)
}
