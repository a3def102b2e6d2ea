package job

import (
	"github.com/luhaoyun888/imapsession/message"
	"github.com/luhaoyun888/imapsession/session"
)

// CloseJob 驱动 CLOSE，它既会清除带 \Deleted 标记的消息，也会离开当前
// 选中的邮箱。
type CloseJob struct {
	done func(error)
	host session.JobHost
}

// NewCloseJob 构造一个关闭当前选中邮箱的任务。
func NewCloseJob(done func(error)) *CloseJob {
	return &CloseJob{done: done}
}

var _ session.Job = (*CloseJob)(nil)

func (j *CloseJob) DoStart(host session.JobHost) {
	j.host = host
	host.SendCommand("CLOSE", nil)
}

func (j *CloseJob) HandleResponse(msg *message.Message) {
	if msg.IsUntagged() {
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
		j.done(err)
	}
	j.host.Done()
}

func (j *CloseJob) ConnectionLost()          { j.report(ErrConnectionLost) }
func (j *CloseJob) SetSocketError(err error) { j.report(err) }

func (j *CloseJob) report(err error) {
	if j.done != nil {
		j.done(err)
	}
}
