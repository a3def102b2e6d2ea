// Package message 定义会话核心在解析器与任务之间传递的结构化响应。
//
// Message 只是若干 Part 的有序序列，外加一个可选的响应代码序列；它本身
// 不做任何 IMAP 语义解释——语义解释（区分问候、状态完成、未标记数据）
// 由 statemachine 和 session 包完成。
package message

import (
	"bytes"
	"fmt"
	"strings"
)

// PartKind 区分 Part 的三种线路形式。
type PartKind int

const (
	// KindString 是原子或带引号的字符串。
	KindString PartKind = iota
	// KindList 是一个括号列表，保留其中嵌套子列表的树结构。
	KindList
	// KindLiteral 是 {N}CRLF 引入的定长字面量。
	KindLiteral
)

func (k PartKind) String() string {
	switch k {
	case KindString:
		return "string"
	case KindList:
		return "list"
	case KindLiteral:
		return "literal"
	default:
		return fmt.Sprintf("PartKind(%d)", int(k))
	}
}

// ListItem 是括号列表中的一项，要么是一个原子/带引号字符串（Atom 非
// nil，Sub 为 nil），要么是一个嵌套的括号列表（Sub 非 nil，代表该嵌套
// 列表的项，可能为空切片）。调用方应先查 IsList，再决定取 Atom 还是
// 递归处理 Sub。
type ListItem struct {
	Atom []byte
	Sub  []ListItem
}

// IsList 报告该项本身是否是一个嵌套列表而不是原子。
func (i ListItem) IsList() bool { return i.Sub != nil }

// Part 是消息中的一个带类型的片段。List 只在 Kind == KindList 时有效，
// Bytes 只在 Kind 为 KindString 或 KindLiteral 时有效。
//
// 保留線上顺序：调用方按 Parts 的下标顺序处理片段。
type Part struct {
	Kind  PartKind
	Bytes []byte
	List  []ListItem
}

// String 构造一个 KindString 片段。
func String(b []byte) Part { return Part{Kind: KindString, Bytes: b} }

// List 构造一个 KindList 片段，保留嵌套结构的项序列。
func List(items []ListItem) Part { return Part{Kind: KindList, List: items} }

// Atom 构造一个叶子 ListItem。
func Atom(b []byte) ListItem { return ListItem{Atom: b} }

// SubList 构造一个嵌套列表 ListItem。
func SubList(items []ListItem) ListItem { return ListItem{Sub: items} }

// Literal 构造一个 KindLiteral 片段。
func Literal(b []byte) Part { return Part{Kind: KindLiteral, Bytes: b} }

// Message 是一个完整的 IMAP 响应：有序的 Part 序列，加上可选的响应代码。
//
// 响应代码部分保存 `[...]` 段内部的原子；它们与 Parts 分开存放，因为它们
// 在 wire 上出现的位置（状态词之后、自由文本之前）与其余的解析逻辑不同。
type Message struct {
	Parts        []Part
	ResponseCode []Part
}

// IsUntagged 报告消息的第一个片段是否为 "*"（未标记响应）。
func (m *Message) IsUntagged() bool {
	if len(m.Parts) == 0 {
		return false
	}
	p := m.Parts[0]
	return p.Kind == KindString && bytes.Equal(p.Bytes, []byte("*"))
}

// Tag 返回标记响应的标签（第一个片段），如果消息是未标记的则返回空。
func (m *Message) Tag() []byte {
	if len(m.Parts) == 0 || m.IsUntagged() {
		return nil
	}
	if m.Parts[0].Kind != KindString {
		return nil
	}
	return m.Parts[0].Bytes
}

// StatusWord 返回状态码词（第二个片段，OK/NO/BAD/BYE/PREAUTH），大写形式；
// 如果消息不足两个片段或第二片段不是字符串片段，返回空串。
func (m *Message) StatusWord() string {
	if len(m.Parts) < 2 || m.Parts[1].Kind != KindString {
		return ""
	}
	return strings.ToUpper(string(m.Parts[1].Bytes))
}

// StatusResponseType 是通用状态响应类型。
type StatusResponseType string

// 状态响应类型，见 RFC 3501 §7.1。
const (
	StatusOK      StatusResponseType = "OK"
	StatusNo      StatusResponseType = "NO"
	StatusBad     StatusResponseType = "BAD"
	StatusBye     StatusResponseType = "BYE"
	StatusPreAuth StatusResponseType = "PREAUTH"
)

// IsStatus 报告 s 是否是四种状态完成词之一（不含 PREAUTH，PREAUTH 只出现
// 在问候中）。
func IsStatus(s string) bool {
	switch StatusResponseType(s) {
	case StatusOK, StatusNo, StatusBad, StatusBye:
		return true
	default:
		return false
	}
}

// StatusResponse 是从一条 Message 中提取出的状态响应视图。
type StatusResponse struct {
	Type StatusResponseType
	Code string // 响应代码原子，如 READ-WRITE、UIDVALIDITY 等，可能为空
	Text string
}

// Error 由状态响应中的 NO/BAD/BYE 触发，实现 error 接口。
type Error StatusResponse

var _ error = (*Error)(nil)

func (err *Error) Error() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "imap: %v", err.Type)
	if err.Code != "" {
		fmt.Fprintf(&sb, " [%v]", err.Code)
	}
	text := err.Text
	if text == "" {
		text = "<unknown>"
	}
	fmt.Fprintf(&sb, " %v", text)
	return sb.String()
}
