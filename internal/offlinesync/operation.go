package offlinesync

import (
	"bytes"
	"encoding/json"
	"strings"

	"noiton/internal/pkg/timeutil"
)

// UnmarshalJSON 逐条宽松解码操作。
//
// 单条操作的格式问题只影响该条结果，不会让整批请求失败：
// 数字 op_id 按字面值保存，无法解析的 timestamp 视为未提供，
// 不是对象的元素标记为无效并在处理时报错。
func (op *Operation) UnmarshalJSON(data []byte) error {
	var raw struct {
		OpID      json.RawMessage `json:"op_id"`
		OpType    json.RawMessage `json:"op_type"`
		Entity    json.RawMessage `json:"entity"`
		Payload   json.RawMessage `json:"payload"`
		Timestamp json.RawMessage `json:"timestamp"`
	}
	*op = Operation{}
	if err := json.Unmarshal(data, &raw); err != nil {
		op.malformed = true
		return nil
	}
	op.OpID = looseString(raw.OpID)
	op.OpType = looseString(raw.OpType)
	op.Entity = looseString(raw.Entity)
	op.Payload = raw.Payload
	if len(raw.Timestamp) > 0 {
		var ts timeutil.Time
		if err := ts.UnmarshalJSON(raw.Timestamp); err != nil {
			op.badTimestamp = true
		} else if !ts.IsZero() {
			op.Timestamp = &ts
		}
	}
	return nil
}

// looseString 取出字符串值；数字等标量保留其 JSON 字面值，null 与对象返回空串。
func looseString(raw json.RawMessage) string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	switch raw[0] {
	case '{', '[':
		return ""
	}
	return strings.TrimSpace(string(raw))
}
