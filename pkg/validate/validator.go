// Package validate 在数据抵达调用方之前执行"禁止合成数据"策略：
// 先按领域检查结构规则，再做通用的占位数据启发式扫描。
// 未通过校验的数据只会以三种带类型的错误之一暴露，绝不静默回退到占位值。
package validate

import (
	"encoding/json"
	"regexp"
	"time"

	"chainscore/pkg/logger"
)

// Domain 载荷所属的数据领域，决定应用哪组结构规则
type Domain string

const (
	// DomainBlockchain 区块链索引器返回的链上记录
	DomainBlockchain Domain = "blockchain"
	// DomainModelOutput 模型服务返回的推理结果
	DomainModelOutput Domain = "model_output"
	// DomainGeneric 无领域结构规则，仅执行启发式扫描
	DomainGeneric Domain = "generic"
)

const (
	maxRecordAge    = 365 * 24 * time.Hour // 链上记录时间戳的最大年龄
	maxModelOutputs = time.Hour            // 模型输出的最大年龄
)

var txHashPattern = regexp.MustCompile(`^0x[0-9a-fA-F]{64}$`)

// 已知的占位置信度值。真实数据恰好等于这些值时会被误判，
// 这是源头策略的已知代价，保持原样而不是放宽。
var placeholderConfidences = []float64{0.5, 0.75, 0.8, 0.85, 0.9, 0.95, 1.0}

// Validator 数据真实性校验器
type Validator struct {
	now func() time.Time
	log *logger.Entry
}

// NewValidator 创建校验器
func NewValidator() *Validator {
	return &Validator{
		now: time.Now,
		log: logger.WithComponent("Validator"),
	}
}

// Validate 校验一个载荷。返回 Result 以及三种类型错误之一：
// *SourceUnavailableError 载荷为空、*ValidationError 结构规则未通过、
// *SyntheticDataError 启发式命中。调用方必须显式分支处理。
func (v *Validator) Validate(payload json.RawMessage, source string, domain Domain) (*Result, error) {
	result := &Result{
		Source:    source,
		Timestamp: v.now(),
		Errors:    []string{},
	}

	if len(payload) == 0 {
		return result, &SourceUnavailableError{Source: source}
	}

	var decoded interface{}
	if err := json.Unmarshal(payload, &decoded); err != nil {
		result.Errors = append(result.Errors, "payload is not valid JSON")
		return result, &ValidationError{Source: source, Violations: result.Errors}
	}

	var violations, indicators []string

	switch domain {
	case DomainBlockchain:
		violations = v.checkBlockchainRecord(decoded)
	case DomainModelOutput:
		violations, indicators = v.checkModelOutput(decoded)
	}

	if len(violations) > 0 {
		result.Errors = violations
		v.log.Warnf("Structural validation failed for %s: %v", source, violations)
		return result, &ValidationError{Source: source, Violations: violations}
	}

	// 结构规则通过后，不分领域执行通用启发式扫描
	indicators = append(indicators, scanForSyntheticData(payload, decoded)...)
	if len(indicators) > 0 {
		result.Errors = indicators
		v.log.Warnf("Synthetic data detected from %s: %v", source, indicators)
		return result, &SyntheticDataError{Source: source, Indicators: indicators}
	}

	result.IsValid = true
	result.IsReal = true
	return result, nil
}

// checkBlockchainRecord 校验链上记录的结构规则
func (v *Validator) checkBlockchainRecord(decoded interface{}) []string {
	var violations []string

	record, ok := decoded.(map[string]interface{})
	if !ok {
		return []string{"blockchain record must be a JSON object"}
	}

	txHash, _ := stringField(record, "txHash", "transactionHash")
	if !txHashPattern.MatchString(txHash) {
		violations = append(violations, "transaction hash must be 32-byte hex")
	}

	blockNumber, ok := numberField(record, "blockNumber", "block_number")
	if !ok || blockNumber <= 0 || blockNumber != float64(int64(blockNumber)) {
		violations = append(violations, "block number must be a positive integer")
	}

	ts, ok := timeField(record, "timestamp")
	switch {
	case !ok:
		violations = append(violations, "timestamp is missing or unreadable")
	case ts.After(v.now()):
		violations = append(violations, "timestamp is in the future")
	case v.now().Sub(ts) > maxRecordAge:
		violations = append(violations, "timestamp is older than one year")
	}

	if verified, _ := record["verified"].(bool); !verified {
		violations = append(violations, "record is not verified")
	}

	return violations
}

// checkModelOutput 校验模型输出的结构规则，并收集可疑值指示
func (v *Validator) checkModelOutput(decoded interface{}) (violations, indicators []string) {
	record, ok := decoded.(map[string]interface{})
	if !ok {
		return []string{"model output must be a JSON object"}, nil
	}

	if source, _ := stringField(record, "source"); source == "" {
		violations = append(violations, "source tag is missing")
	}
	if modelType, _ := stringField(record, "modelType", "model_type"); modelType == "" {
		violations = append(violations, "model type tag is missing")
	}

	ts, ok := timeField(record, "generatedAt", "generated_at")
	switch {
	case !ok:
		violations = append(violations, "generation timestamp is missing or unreadable")
	case v.now().Sub(ts) > maxModelOutputs:
		violations = append(violations, "model output is older than one hour")
	}

	confidence, ok := numberField(record, "confidence")
	if !ok || confidence < 0 || confidence > 100 {
		violations = append(violations, "confidence must be within [0,100]")
	} else {
		for _, placeholder := range placeholderConfidences {
			if confidence == placeholder {
				indicators = append(indicators, "confidence matches a known placeholder value")
				break
			}
		}
	}

	if prediction, ok := numberField(record, "prediction", "score"); ok {
		if prediction != 0 && prediction == float64(int64(prediction)) && int64(prediction)%100 == 0 {
			indicators = append(indicators, "prediction is a round multiple of 100")
		}
	}

	return violations, indicators
}

// stringField 依次尝试多个字段名读取字符串
func stringField(record map[string]interface{}, keys ...string) (string, bool) {
	for _, key := range keys {
		if s, ok := record[key].(string); ok {
			return s, true
		}
	}
	return "", false
}

// numberField 依次尝试多个字段名读取数值
func numberField(record map[string]interface{}, keys ...string) (float64, bool) {
	for _, key := range keys {
		if n, ok := record[key].(float64); ok {
			return n, true
		}
	}
	return 0, false
}

// timeField 读取时间戳字段，接受 Unix 秒或 RFC3339 字符串
func timeField(record map[string]interface{}, keys ...string) (time.Time, bool) {
	for _, key := range keys {
		switch value := record[key].(type) {
		case float64:
			if value > 0 {
				return time.Unix(int64(value), 0), true
			}
		case string:
			if ts, err := time.Parse(time.RFC3339, value); err == nil {
				return ts, true
			}
		}
	}
	return time.Time{}, false
}
