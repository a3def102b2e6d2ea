package job

import (
	"bytes"
	"strconv"
	"strings"

	emmessage "github.com/emersion/go-message"

	"github.com/luhaoyun888/imapsession/message"
	"github.com/luhaoyun888/imapsession/session"
)

// FetchedMessage 是一条 "* N FETCH (...)" 响应，按请求的数据项所能
// 允许的程度解码。
type FetchedMessage struct {
	SeqNum uint32
	UID    uint32
	Flags  []string

	// 只有当 fetch 请求了带头部的数据项（RFC822.HEADER、RFC822、
	// BODY[]、BODY[HEADER] ……）且 go-message 能解析时，Subject/From/
	// Date 才会被填充。
	Subject string
	From    string
	Date    string

	// Raw 按 FETCH 数据项名称为键，保留这个解码器没有专门识别的每一个
	// 属性，好让请求了 FetchJob 不解析的内容的调用方也能拿到它。
	Raw map[string][]byte
}

// FetchJob 对一个序号或 UID 集合驱动一次 FETCH 命令，为每条不带标签的
// 响应累积一个 FetchedMessage。
type FetchJob struct {
	set     string
	items   string
	byUID   bool
	results []FetchedMessage
	done    func([]FetchedMessage, error)

	host session.JobHost
}

// NewFetchJob 为序号集合构造一个抓取 items（如
// "(FLAGS RFC822.HEADER)"）的任务。
func NewFetchJob(set, items string, done func([]FetchedMessage, error)) *FetchJob {
	return &FetchJob{set: set, items: items, done: done}
}

// NewUIDFetchJob 是 UID FETCH 版本。
func NewUIDFetchJob(set, items string, done func([]FetchedMessage, error)) *FetchJob {
	return &FetchJob{set: set, items: items, byUID: true, done: done}
}

var _ session.Job = (*FetchJob)(nil)

func (j *FetchJob) DoStart(host session.JobHost) {
	j.host = host
	command := "FETCH"
	if j.byUID {
		command = "UID FETCH"
	}
	host.SendCommand(command, []byte(j.set+" "+j.items))
}

func (j *FetchJob) HandleResponse(msg *message.Message) {
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

// observeUntagged 解析 "* N FETCH (k1 v1 k2 v2 ...)"。不符合这个形态的
// 响应会被跳过而不是当成致命错误：其他不带标签的数据（EXISTS、
// EXPUNGE）可能穿插着到来。
func (j *FetchJob) observeUntagged(msg *message.Message) {
	if len(msg.Parts) < 4 {
		return
	}
	if msg.Parts[2].Kind != message.KindString || !strings.EqualFold(string(msg.Parts[2].Bytes), "FETCH") {
		return
	}
	if msg.Parts[3].Kind != message.KindList {
		return
	}

	seq, _ := strconv.ParseUint(string(msg.Parts[1].Bytes), 10, 32)
	fm := FetchedMessage{SeqNum: uint32(seq), Raw: map[string][]byte{}}

	// items 的每个键都是一个原子，但值既可能是原子（"UID 42"）也可能是
	// 一个嵌套列表（FLAGS 的值就是 "(\Seen \Answered)"）。按 ListItem
	// 而非按扁平字节切片配对，嵌套值本身只占一个下标，键值不会因为值
	// 展开出的元素个数而错位。
	items := msg.Parts[3].List
	for i := 0; i+1 < len(items); i += 2 {
		keyItem, val := items[i], items[i+1]
		if keyItem.IsList() {
			continue
		}
		key := strings.ToUpper(string(keyItem.Atom))

		switch {
		case key == "UID" && !val.IsList():
			if v, err := strconv.ParseUint(string(val.Atom), 10, 32); err == nil {
				fm.UID = uint32(v)
			}
		case key == "FLAGS" && val.IsList():
			fm.Flags = atomsToStrings(val.Sub)
		case val.IsList():
			// 目前没有为其他列表值的数据项提供解析；Raw 只保存字节
			// 切片，无法承载一个嵌套列表，故直接跳过。
		default:
			if strings.HasPrefix(key, "RFC822") || strings.HasPrefix(key, "BODY[") {
				j.decodeHeader(&fm, val.Atom)
			}
			fm.Raw[key] = val.Atom
		}
	}

	j.results = append(j.results, fm)
}

// decodeHeader 把一个带头部的字面量喂给 go-message，取出大多数调用方
// 实际会用到的那几个字段，省得他们为这么常见的事自己去解析 MIME。
func (j *FetchJob) decodeHeader(fm *FetchedMessage, raw []byte) {
	entity, err := emmessage.Read(bytes.NewReader(raw))
	if err != nil {
		return
	}
	if subject, err := entity.Header.Text("Subject"); err == nil {
		fm.Subject = subject
	}
	if from, err := entity.Header.Text("From"); err == nil {
		fm.From = from
	}
	fm.Date = entity.Header.Get("Date")
}

func (j *FetchJob) ConnectionLost()          { j.report(ErrConnectionLost) }
func (j *FetchJob) SetSocketError(err error) { j.report(err) }

func (j *FetchJob) report(err error) {
	if j.done != nil {
		j.done(j.results, err)
	}
}
