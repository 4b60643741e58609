package upload

import (
	"fmt"
	"strconv"

	"github.com/bytedance/sonic"
)

// MaxMetaBytes meta 部分允许的最大字节数.
const MaxMetaBytes = 64 << 10

var metaAPI = sonic.Config{UseNumber: true}.Froze()

// ParseMetadata 解析 meta 部分：必须是 JSON 对象，值为字符串、数字、布尔或 null.
// 非字符串标量会被转换为字符串，嵌套对象与数组视为无效.
func ParseMetadata(raw []byte) (map[string]string, error) {
	out := map[string]string{}

	if len(raw) == 0 {
		return out, nil
	}

	if len(raw) > MaxMetaBytes {
		return nil, fmt.Errorf("meta exceeds %d bytes", MaxMetaBytes)
	}

	var obj map[string]any
	if err := metaAPI.Unmarshal(raw, &obj); err != nil {
		return nil, fmt.Errorf("meta must be a JSON object: %w", err)
	}

	for k, v := range obj {
		switch val := v.(type) {
		case string:
			out[k] = val
		case bool:
			out[k] = strconv.FormatBool(val)
		case nil:
			out[k] = ""
		case map[string]any, []any:
			return nil, fmt.Errorf("meta field %q must be a string, number or boolean", k)
		default:
			out[k] = fmt.Sprint(val)
		}
	}

	return out, nil
}
