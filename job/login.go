package job

import (
	"golang.org/x/text/secure/precis"

	"github.com/luhaoyun888/imapsession/message"
	"github.com/luhaoyun888/imapsession/session"
)

// LoginJob 驱动一次普通的 LOGIN 命令。
type LoginJob struct {
	username string
	password string
	done     func(error)

	host session.JobHost
}

// NewLoginJob 构造一个用用户名/密码登录的任务，结果出来后恰好调用一次
// done。
func NewLoginJob(username, password string, done func(error)) *LoginJob {
	return &LoginJob{username: username, password: password, done: done}
}

var _ session.Job = (*LoginJob)(nil)

func (j *LoginJob) DoStart(host session.JobHost) {
	j.host = host

	// 对两个字段都做 SASLprep；映射不干净的用户名或密码（未分配码位、
	// 双向文本冲突）按原样发送，而不是在任务连服务器都没到达之前就
	// 让它失败。
	u, err := precis.UsernameCaseMapped.String(j.username)
	if err != nil {
		u = j.username
	}
	p, err := precis.OpaqueString.String(j.password)
	if err != nil {
		p = j.password
	}

	args := quote(u) + " " + quote(p)
	host.SendCommand("LOGIN", []byte(args))
}

func (j *LoginJob) HandleResponse(msg *message.Message) {
	if msg.IsUntagged() {
		// 搭载在登录响应上的不带标签数据（例如 CAPABILITY）；
		// LoginJob 对此无需采取任何动作。
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

// ConnectionLost 和 SetSocketError 是失败路径的通知：会话已经把这个
// 任务出队了，所以两者都不通过 JobHost.Done 回报。
func (j *LoginJob) ConnectionLost()          { j.report(ErrConnectionLost) }
func (j *LoginJob) SetSocketError(err error) { j.report(err) }

func (j *LoginJob) report(err error) {
	if j.done != nil {
		j.done(err)
	}
}
