package job

import (
	"strconv"
	"strings"

	"github.com/luhaoyun888/imapsession/message"
	"github.com/luhaoyun888/imapsession/session"
)

// MailboxStatus 汇总一次 SELECT/EXAMINE 交互中，服务器关于刚打开的这个
// 邮箱所报告的不带标签数据。
type MailboxStatus struct {
	Exists      int
	Recent      int
	UIDValidity uint32
	UIDNext     uint32
	Flags       []string
	PermanentOK bool
	ReadWrite   bool
}

// SelectJob 驱动 SELECT（或只读的 EXAMINE），累积服务器在带标签的完成
// 响应之前发来的不带标签的 EXISTS/RECENT/FLAGS/OK[...] 数据。
type SelectJob struct {
	mailbox  string
	readOnly bool
	status   MailboxStatus
	done     func(MailboxStatus, error)

	host session.JobHost
}

// NewSelectJob 构造一个以读写方式选中 mailbox 的任务。
func NewSelectJob(mailbox string, done func(MailboxStatus, error)) *SelectJob {
	return &SelectJob{mailbox: mailbox, done: done}
}

// NewExamineJob 是 NewSelectJob 的只读版本。
func NewExamineJob(mailbox string, done func(MailboxStatus, error)) *SelectJob {
	return &SelectJob{mailbox: mailbox, readOnly: true, done: done}
}

var _ session.Job = (*SelectJob)(nil)

func (j *SelectJob) DoStart(host session.JobHost) {
	j.host = host
	command := "SELECT"
	if j.readOnly {
		command = "EXAMINE"
	}
	host.SendCommand(command, []byte(quote(j.mailbox)))
}

func (j *SelectJob) HandleResponse(msg *message.Message) {
	if msg.IsUntagged() {
		j.observeUntagged(msg)
		return
	}

	status, ok := message.ParseStatus(msg)
	if !ok {
		return
	}

	if status.Type == message.StatusOK {
		j.status.ReadWrite = strings.EqualFold(status.Code, "READ-WRITE") || !j.readOnly
	}

	var err error
	if status.Type != message.StatusOK {
		e := message.Error(status)
		err = &e
	}
	if j.done != nil {
		j.done(j.status, err)
	}
	j.host.Done()
}

// observeUntagged 处理 "* N EXISTS/RECENT"、"* FLAGS (...)" 以及带响应码
// 的 "* OK [...]" 这几种不带标签的形态。"* FLAGS (...)" 的线路形式是三个
// Part："*"、"FLAGS"、括号列表，而不是把列表直接放在 Parts[1]。
func (j *SelectJob) observeUntagged(msg *message.Message) {
	if len(msg.Parts) < 3 {
		return
	}

	if msg.Parts[1].Kind == message.KindString && strings.EqualFold(string(msg.Parts[1].Bytes), "FLAGS") &&
		msg.Parts[2].Kind == message.KindList {
		j.status.Flags = atomsToStrings(msg.Parts[2].List)
	} else if msg.Parts[2].Kind == message.KindString {
		word := strings.ToUpper(string(msg.Parts[2].Bytes))
		if n, err := strconv.Atoi(string(msg.Parts[1].Bytes)); err == nil {
			switch word {
			case "EXISTS":
				j.status.Exists = n
			case "RECENT":
				j.status.Recent = n
			}
		}
	}

	if len(msg.ResponseCode) > 0 {
		j.observeResponseCode(msg.ResponseCode)
	}
}

// observeResponseCode 解析 UIDVALIDITY/UIDNEXT/PERMANENTFLAGS 响应码。
func (j *SelectJob) observeResponseCode(code []message.Part) {
	if len(code) == 0 || code[0].Kind != message.KindString {
		return
	}
	switch strings.ToUpper(string(code[0].Bytes)) {
	case "UIDVALIDITY":
		if len(code) > 1 {
			if v, err := strconv.ParseUint(string(code[1].Bytes), 10, 32); err == nil {
				j.status.UIDValidity = uint32(v)
			}
		}
	case "UIDNEXT":
		if len(code) > 1 {
			if v, err := strconv.ParseUint(string(code[1].Bytes), 10, 32); err == nil {
				j.status.UIDNext = uint32(v)
			}
		}
	case "PERMANENTFLAGS":
		j.status.PermanentOK = true
	}
}

// atomsToStrings 把一个括号列表的顶层项转换成字符串切片，跳过嵌套的
// 子列表（顶层是原子序列的场景，如 FLAGS、LIST 的属性，不会出现嵌套）。
func atomsToStrings(items []message.ListItem) []string {
	out := make([]string, 0, len(items))
	for _, it := range items {
		if it.IsList() {
			continue
		}
		out = append(out, string(it.Atom))
	}
	return out
}

func (j *SelectJob) ConnectionLost()          { j.report(ErrConnectionLost) }
func (j *SelectJob) SetSocketError(err error) { j.report(err) }

func (j *SelectJob) report(err error) {
	if j.done != nil {
		j.done(j.status, err)
	}
}
