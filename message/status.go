package message

import "strings"

// ParseStatus 从一条完整消息中提取状态响应视图。
//
// 消息形如 `TAG SP STATUS [SP [CODE] SP] TEXT` 或
// `* SP STATUS [SP [CODE] SP] TEXT`。第一个片段（标签或 "*"）仍在
// Parts[0] 中，但不参与解析；ParseStatus 只看 Parts[1:] 加上 ResponseCode。
//
// 如果消息的第二个片段不是已知的状态词，ok 返回 false。
func ParseStatus(m *Message) (StatusResponse, bool) {
	word := m.StatusWord()
	if !isKnownStatusWord(word) {
		return StatusResponse{}, false
	}

	sr := StatusResponse{Type: StatusResponseType(word)}

	if len(m.ResponseCode) > 0 {
		atoms := make([]string, 0, len(m.ResponseCode))
		for _, p := range m.ResponseCode {
			if p.Kind == KindString {
				atoms = append(atoms, string(p.Bytes))
			}
		}
		sr.Code = strings.Join(atoms, " ")
	}

	if len(m.Parts) > 2 {
		texts := make([]string, 0, len(m.Parts)-2)
		for _, p := range m.Parts[2:] {
			if p.Kind == KindString {
				texts = append(texts, string(p.Bytes))
			}
		}
		sr.Text = strings.Join(texts, " ")
	}

	return sr, true
}

// IsContinuation 报告 m 是否是一个 "+" 续行请求。分词器对 "+" 没有特殊
// 处理：它按普通原子读入，所以一个续行会表现为一条 Tag() 为 "+" 的
// 普通 Message。发出字面量或驱动 SASL 交互的任务会等待这个信号，而
// 不是等待带标签的完成响应。
func IsContinuation(m *Message) bool {
	return string(m.Tag()) == "+"
}

// ContinuationText 返回续行请求中的自由文本部分（例如 AUTHENTICATE
// 交互里的 base64 挑战）。
func ContinuationText(m *Message) string {
	if len(m.Parts) < 2 {
		return ""
	}
	parts := make([]string, 0, len(m.Parts)-1)
	for _, p := range m.Parts[1:] {
		if p.Kind == KindString {
			parts = append(parts, string(p.Bytes))
		}
	}
	return strings.Join(parts, " ")
}

func isKnownStatusWord(word string) bool {
	switch StatusResponseType(word) {
	case StatusOK, StatusNo, StatusBad, StatusBye, StatusPreAuth:
		return true
	default:
		return false
	}
}
