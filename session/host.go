package session

import "strings"

// sessionJobHost 是 Job 在成为当前任务期间看到的 JobHost。它自己不持有
// 任何状态，每个方法都只是转发给拥有它的 Session，由 Session 的锁保护。
type sessionJobHost struct {
	s *Session
}

func (h *sessionJobHost) SendCommand(command string, args []byte) string {
	return h.s.sendCommand(command, args)
}

func (h *sessionJobHost) SendData(b []byte) {
	h.s.sendData(b)
}

func (h *sessionJobHost) Done() {
	h.s.jobDone()
}

// sendCommand 分配下一个标签，如果谓词是状态机需要跟踪的那几种就记住
// 它，格式化命令行并写出。
func (s *Session) sendCommand(command string, args []byte) string {
	s.mu.Lock()
	s.tagCounter++
	tag := fmtTag(s.tagCounter)

	switch strings.ToUpper(command) {
	case "LOGIN", "AUTHENTICATE":
		s.tags.AuthTag = tag
	case "SELECT", "EXAMINE":
		s.tags.SelectTag = tag
		s.upcomingMailbox = decodeMailboxArg(args, s.codec)
	case "CLOSE":
		s.tags.CloseTag = tag
	}
	s.mu.Unlock()

	line := formatCommand(tag, command, args)
	s.wirelog.Send(tag, line)
	s.currentTransport().Write(line)
	s.restartTimer()
	return tag
}

func (s *Session) sendData(b []byte) {
	s.wirelog.Send("(literal)", b)
	s.currentTransport().Write(b)
	s.restartTimer()
}

// jobDone 把当前任务摘除，并（如果有的话）启动下一个。
func (s *Session) jobDone() {
	s.mu.Lock()
	s.current = nil
	n := s.queueSizeLocked()
	cb := s.onJobQueueSizeChanged
	s.mu.Unlock()

	if cb != nil {
		cb(n)
	}
	s.startNext()
}
