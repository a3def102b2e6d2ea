package job

import (
	"encoding/base64"

	"github.com/emersion/go-sasl"
	"golang.org/x/text/secure/precis"

	"github.com/luhaoyun888/imapsession/message"
	"github.com/luhaoyun888/imapsession/session"
)

// AuthenticateJob 通过一个 go-sasl 客户端驱动 AUTHENTICATE 命令，把
// 服务器 "+" 续行中的每个 base64 挑战喂给该机制，再把它的响应原样以
// 一行 base64 写回去。
type AuthenticateJob struct {
	mechanism string
	client    sasl.Client
	done      func(error)

	host session.JobHost
}

// NewAuthenticatePlain 为 SASL PLAIN 构造一个 AuthenticateJob。
func NewAuthenticatePlain(identity, username, password string, done func(error)) *AuthenticateJob {
	u, err := precis.UsernameCaseMapped.String(username)
	if err != nil {
		u = username
	}
	p, err := precis.OpaqueString.String(password)
	if err != nil {
		p = password
	}
	return &AuthenticateJob{
		mechanism: "PLAIN",
		client:    sasl.NewPlainClient(identity, u, p),
		done:      done,
	}
}

// NewAuthenticateJob 围绕一个任意的 go-sasl 客户端构造 AuthenticateJob，
// 供调用方自己构造的机制使用（OAUTHBEARER、XOAUTH2、go-sasl 后续增加的
// 各种 SCRAM 变体）。
func NewAuthenticateJob(mechanism string, client sasl.Client, done func(error)) *AuthenticateJob {
	return &AuthenticateJob{mechanism: mechanism, client: client, done: done}
}

var _ session.Job = (*AuthenticateJob)(nil)

func (j *AuthenticateJob) DoStart(host session.JobHost) {
	j.host = host

	_, ir, err := j.client.Start()
	if err != nil {
		j.finish(err)
		return
	}

	if ir == nil {
		host.SendCommand("AUTHENTICATE", []byte(j.mechanism))
		return
	}
	encoded := base64.StdEncoding.EncodeToString(ir)
	host.SendCommand("AUTHENTICATE", []byte(j.mechanism+" "+encoded))
}

func (j *AuthenticateJob) HandleResponse(msg *message.Message) {
	if message.IsContinuation(msg) {
		j.handleChallenge(msg)
		return
	}
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
	j.finish(err)
}

func (j *AuthenticateJob) handleChallenge(msg *message.Message) {
	text := message.ContinuationText(msg)

	var challenge []byte
	if text != "" {
		decoded, err := base64.StdEncoding.DecodeString(text)
		if err != nil {
			j.finish(err)
			return
		}
		challenge = decoded
	}

	response, err := j.client.Next(challenge)
	if err != nil {
		j.finish(err)
		return
	}

	// 空的非 nil 响应仍然需要占一行：RFC 3501 要求用一个裸的 CRLF
	// 来回应一个无话可说的挑战。
	encoded := base64.StdEncoding.EncodeToString(response)
	j.host.SendData([]byte(encoded + "\r\n"))
}

// finish 在任务仍是当前任务时结束它：无论结果是成功还是任务自己检测到
// 的失败，都总是通过 JobHost.Done 回报。
func (j *AuthenticateJob) finish(err error) {
	if j.done != nil {
		j.done(err)
	}
	j.host.Done()
}

// ConnectionLost 和 SetSocketError 是失败路径的通知：会话已经把这个
// 任务出队了。
func (j *AuthenticateJob) ConnectionLost()          { j.report(ErrConnectionLost) }
func (j *AuthenticateJob) SetSocketError(err error) { j.report(err) }

func (j *AuthenticateJob) report(err error) {
	if j.done != nil {
		j.done(err)
	}
}
