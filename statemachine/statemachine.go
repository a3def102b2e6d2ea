// Package statemachine 实现 IMAP 会话的四态状态机。
//
// 状态机本身不做 I/O、不持有传输句柄；它只消费“已标记完成的响应属于
// 哪个被跟踪的标签”这一事实，并据此产出下一个状态。会话核心负责把
// 转换结果应用回自己的字段（当前邮箱名等）。
package statemachine

import "fmt"

// State 是会话的协议级状态。
type State int

const (
	Disconnected State = iota
	NotAuthenticated
	Authenticated
	Selected
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case NotAuthenticated:
		return "not authenticated"
	case Authenticated:
		return "authenticated"
	case Selected:
		return "selected"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// TrackedTags 是会话记住的、完成时会驱动状态转换的三个标签。空字符串
// 表示未跟踪。
type TrackedTags struct {
	AuthTag   string // LOGIN / AUTHENTICATE
	SelectTag string // SELECT / EXAMINE
	CloseTag  string // CLOSE
}

// Event 描述驱动一次状态转换尝试的输入：收到的响应类型、它的标签
// （空表示未标记）、以及状态类型词。
type Event struct {
	Tag        string
	StatusWord string // "OK" | "NO" | "BAD" | "BYE" | "PREAUTH"
}

// Outcome 是 Apply 的结果。
type Outcome struct {
	Next                 State
	ClearAuthTag         bool
	ClearSelectTag       bool
	ClearCloseTag        bool
	SetMailboxToUpcoming bool // 只有从 upcomingMailBox 提交为 currentMailBox 时为 true
	ClearMailbox         bool
	CloseTransport       bool // 非 OK 问候：调用方应关闭传输
	SaveGreeting         bool // 问候文本应当被会话保存
}

// Apply 按照转换表计算下一个状态与副作用。它是纯函数：不修改
// tags，调用方根据 Outcome 里的 Clear* 字段自行清除。
//
// 未标记的 BYE 在这里被识别但不驱动任何转换（"记录并忽略"，后续的
// 断线才是真正的状态转换来源），调用方应单独记录日志。
func Apply(current State, tags TrackedTags, ev Event) Outcome {
	untagged := ev.Tag == ""

	if untagged && ev.StatusWord == "BYE" {
		return Outcome{Next: current}
	}

	switch current {
	case Disconnected:
		if !untagged {
			return Outcome{Next: current}
		}
		switch ev.StatusWord {
		case "OK":
			return Outcome{Next: NotAuthenticated, SaveGreeting: true}
		case "PREAUTH":
			return Outcome{Next: Authenticated, SaveGreeting: true}
		default:
			return Outcome{Next: current, CloseTransport: true}
		}

	case NotAuthenticated:
		if !untagged && ev.Tag == tags.AuthTag && ev.StatusWord == "OK" {
			return Outcome{Next: Authenticated, ClearAuthTag: true}
		}
		return Outcome{Next: current}

	case Authenticated:
		if !untagged && ev.Tag == tags.SelectTag && ev.StatusWord == "OK" {
			return Outcome{Next: Selected, ClearSelectTag: true, SetMailboxToUpcoming: true}
		}
		return Outcome{Next: current}

	case Selected:
		if !untagged && ev.Tag == tags.SelectTag {
			if ev.StatusWord == "OK" {
				return Outcome{Next: Selected, ClearSelectTag: true, SetMailboxToUpcoming: true}
			}
			return Outcome{Next: Authenticated, ClearSelectTag: true, ClearMailbox: true}
		}
		if !untagged && ev.Tag == tags.CloseTag && ev.StatusWord == "OK" {
			return Outcome{Next: Authenticated, ClearCloseTag: true, ClearMailbox: true}
		}
		return Outcome{Next: current}
	}

	return Outcome{Next: current}
}
