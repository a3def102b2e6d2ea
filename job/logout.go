package job

import (
	"github.com/luhaoyun888/imapsession/message"
	"github.com/luhaoyun888/imapsession/session"
)

// LogoutJob 驱动 LOGOUT。服务器会先回一个不带标签的 BYE，紧接着是带
// 标签的 OK；LogoutJob 只需要那个带标签的完成响应，因为 transport
// 随后会自己关闭（会话自身的 EventDisconnected 处理会单独注意到这点）。
type LogoutJob struct {
	done func(error)
	host session.JobHost
}

// NewLogoutJob 构造一个干净地结束会话的任务。
func NewLogoutJob(done func(error)) *LogoutJob {
	return &LogoutJob{done: done}
}

var _ session.Job = (*LogoutJob)(nil)

func (j *LogoutJob) DoStart(host session.JobHost) {
	j.host = host
	host.SendCommand("LOGOUT", nil)
}

func (j *LogoutJob) HandleResponse(msg *message.Message) {
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

// ConnectionLost 对 LogoutJob 而言不是失败：连接消失正是 LOGOUT
// 本来要求的结果。
func (j *LogoutJob) ConnectionLost() {
	if j.done != nil {
		j.done(nil)
	}
}

func (j *LogoutJob) SetSocketError(err error) {
	if j.done != nil {
		j.done(err)
	}
}
