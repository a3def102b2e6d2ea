// Package job 收集驱动具体 IMAP 命令的 Job 实现，每一个都通过
// session.Session 运转。这些类型都不属于会话核心的一部分：它们只使用
// Job/JobHost 协作者契约，和任何外部调用方能用到的接口完全一样。
package job

import (
	"errors"
	"strings"
)

// ErrConnectionLost 会在命令完成之前 transport 断开时，传给该任务的完成
// 回调。
var ErrConnectionLost = errors.New("job: connection lost before completion")

// quote 生成一个 IMAP 带引号字符串，转义语法允许出现在其中的两个字符
// （反斜杠和双引号）。需要这么做的名字（邮箱名、凭据）来自可能含有其中
// 任一字符的 Go 字符串。
func quote(s string) string {
	var b strings.Builder
	b.WriteByte('"')
	for _, r := range s {
		if r == '"' || r == '\\' {
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	b.WriteByte('"')
	return b.String()
}
