package job

import (
	"strings"

	"github.com/luhaoyun888/imapsession/message"
	"github.com/luhaoyun888/imapsession/session"
)

// MailboxInfo 是 LIST 响应中的一条记录。
type MailboxInfo struct {
	Name      string
	Delimiter string
	Attrs     []string
}

// ListJob 驱动 LIST reference mailbox，把返回的每个邮箱名都通过会话的
// MailboxCodec 解码，让调用方看到的始终是 Unicode 名字。
type ListJob struct {
	reference string
	pattern   string
	codec     session.MailboxCodec

	results []MailboxInfo
	done    func([]MailboxInfo, error)

	host session.JobHost
}

// NewListJob 构造一个任务，列出相对于 reference、匹配 pattern 的邮箱
// （两者都是线路形式；传 "" 和 "*" 列出全部）。codec 可以是 nil，此时
// 名字会按服务器发来的原样返回。
func NewListJob(reference, pattern string, codec session.MailboxCodec, done func([]MailboxInfo, error)) *ListJob {
	return &ListJob{reference: reference, pattern: pattern, codec: codec, done: done}
}

var _ session.Job = (*ListJob)(nil)

func (j *ListJob) DoStart(host session.JobHost) {
	j.host = host
	args := quote(j.reference) + " " + quote(j.pattern)
	host.SendCommand("LIST", []byte(args))
}

func (j *ListJob) HandleResponse(msg *message.Message) {
	if msg.IsUntagged() {
		j.observeUntagged(msg)
		return
	}

	status, ok := message.ParseStatus(msg)
	if !ok {
		return
	}
	var err error
	if status.Type != message.StatusOK {
		e := message.Error(status)
		err = &e
	}
	if j.done != nil {
		j.done(j.results, err)
	}
	j.host.Done()
}

// observeUntagged 处理 "* LIST (attrs) delim name"。格式不对的条目
// （部分太少、部分类型不对）会被悄悄跳过：对调用方来说，一份不完整的
// 列表比整个任务中止更有用。
func (j *ListJob) observeUntagged(msg *message.Message) {
	if len(msg.Parts) < 4 {
		return
	}
	if msg.Parts[1].Kind != message.KindString || !strings.EqualFold(string(msg.Parts[1].Bytes), "LIST") {
		return
	}

	info := MailboxInfo{}
	if msg.Parts[2].Kind == message.KindList {
		info.Attrs = atomsToStrings(msg.Parts[2].List)
	}
	if msg.Parts[3].Kind == message.KindString {
		info.Delimiter = string(msg.Parts[3].Bytes)
	}
	if len(msg.Parts) > 4 && msg.Parts[4].Kind == message.KindString {
		wire := string(msg.Parts[4].Bytes)
		if j.codec != nil {
			if decoded, err := j.codec.Decode(wire); err == nil {
				wire = decoded
			}
		}
		info.Name = wire
	}
	j.results = append(j.results, info)
}

func (j *ListJob) ConnectionLost()          { j.report(ErrConnectionLost) }
func (j *ListJob) SetSocketError(err error) { j.report(err) }

func (j *ListJob) report(err error) {
	if j.done != nil {
		j.done(j.results, err)
	}
}
