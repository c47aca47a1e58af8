package validate

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strings"
)

// 合成数据的典型标记词，对序列化后的载荷做大小写不敏感扫描
var syntheticMarkers = []string{
	"mock", "fake", "test", "dummy", "placeholder",
	"demo", "sample", "stub", "synthetic",
}

// 已知的占位标识符与地址
var placeholderIdentifiers = []string{
	"0x0000000000000000000000000000000000000000",
	"0x1234567890123456789012345678901234567890",
}

// 启发式判定数组重复的最小长度
const repeatedElementThreshold = 5

// 疑似 Unix 时间戳的数值下限 (2001-09-09)
const timestampFloor = 1e9

// scanForSyntheticData 对载荷执行通用启发式扫描，返回命中的指示列表。
// 扫描是模糊的，可能把恰好规整的真实数据误判为占位数据。
func scanForSyntheticData(raw json.RawMessage, decoded interface{}) []string {
	var indicators []string

	serialized := strings.ToLower(string(raw))
	for _, marker := range syntheticMarkers {
		if strings.Contains(serialized, marker) {
			indicators = append(indicators, fmt.Sprintf("payload contains marker %q", marker))
		}
	}

	for _, id := range placeholderIdentifiers {
		if strings.Contains(serialized, id) {
			indicators = append(indicators, fmt.Sprintf("payload contains placeholder identifier %s", id))
		}
	}

	indicators = append(indicators, walkValue(decoded)...)
	return indicators
}

// walkValue 递归遍历解码后的载荷，检查数组形态的启发式规则
func walkValue(value interface{}) []string {
	var indicators []string

	switch v := value.(type) {
	case map[string]interface{}:
		if id, ok := v["id"].(string); ok && (id == "123" || id == "test-id") {
			indicators = append(indicators, fmt.Sprintf("placeholder id %q", id))
		}
		for _, child := range v {
			indicators = append(indicators, walkValue(child)...)
		}
	case []interface{}:
		if len(v) > repeatedElementThreshold && allElementsEqual(v) {
			indicators = append(indicators, "array of repeated identical elements")
		}
		if uniformTimestampSpacing(v) {
			indicators = append(indicators, "timestamps with perfectly uniform spacing")
		}
		for _, child := range v {
			indicators = append(indicators, walkValue(child)...)
		}
	}

	return indicators
}

func allElementsEqual(values []interface{}) bool {
	for i := 1; i < len(values); i++ {
		if !reflect.DeepEqual(values[i], values[0]) {
			return false
		}
	}
	return true
}

// uniformTimestampSpacing 判断数值数组是否为完全等距的时间戳序列
func uniformTimestampSpacing(values []interface{}) bool {
	if len(values) < 3 {
		return false
	}

	numbers := make([]float64, 0, len(values))
	for _, v := range values {
		n, ok := v.(float64)
		if !ok || n < timestampFloor {
			return false
		}
		numbers = append(numbers, n)
	}

	spacing := numbers[1] - numbers[0]
	if spacing == 0 {
		return false
	}
	for i := 2; i < len(numbers); i++ {
		if numbers[i]-numbers[i-1] != spacing {
			return false
		}
	}
	return true
}
