package session

import (
	"github.com/luhaoyun888/imapsession/internal/transport"
	"github.com/luhaoyun888/imapsession/message"
	"github.com/luhaoyun888/imapsession/statemachine"
)

// handleTransportEvent 在 pump goroutine 上，对 transport.Events() 观察
// 到的每一个值调用一次。
func (s *Session) handleTransportEvent(ev transport.Event) {
	switch ev.Kind {
	case transport.EventConnected:
		s.mu.Lock()
		s.transportConnected = true
		pending, awaiting := s.pendingFallbackVersion, s.awaitingFallbackConnect
		s.awaitingFallbackConnect = false
		s.mu.Unlock()
		s.restartTimer()
		if awaiting {
			// 这是回退阶梯内部的明文重连，不是一次新会话——不驱动任务
			// 队列，直接接着用下一级版本重试握手。
			_ = s.currentTransport().StartClientTLS(s.host, tlsConfigForVersion(pending))
			return
		}
		s.startNext()

	case transport.EventReadyRead:
		s.parser.Feed(ev.Data)
		s.restartTimer()
		s.drainParser()

	case transport.EventBytesWritten:
		// 除了 sendCommand 已经做过的计时器重置之外，没有别的事要做。

	case transport.EventEncrypted:
		s.mu.Lock()
		s.fallbackActive = false
		cb := s.onEncryptionResult
		s.mu.Unlock()
		if cb != nil {
			cb(true, "tls")
		}

	case transport.EventSSLHandshakeError:
		s.mu.Lock()
		sslCb := s.onSSLErrors
		active := s.fallbackActive
		s.mu.Unlock()
		if sslCb != nil {
			sslCb(ev.Diagnostic)
		}
		if active && s.retryTLSFallback() {
			return
		}
		s.mu.Lock()
		s.fallbackActive = false
		encCb := s.onEncryptionResult
		s.mu.Unlock()
		if encCb != nil {
			encCb(false, "")
		}

	case transport.EventError:
		s.stopTimer()
		s.mu.Lock()
		s.transportConnected = false
		s.mu.Unlock()
		s.failAll(ev.Err)
		_ = s.currentTransport().Close()

	case transport.EventDisconnected:
		s.stopTimer()
		s.mu.Lock()
		prev := s.state
		s.transportConnected = false
		s.mu.Unlock()
		s.transitionTo(statemachine.Disconnected)
		s.failAll(nil)
		if prev == statemachine.Disconnected {
			s.mu.Lock()
			cb := s.onConnectionFailed
			s.mu.Unlock()
			if cb != nil {
				cb()
			}
		}
	}
}

// drainParser 取出当前已缓冲的每一条完整响应，按线路顺序逐条路由。
func (s *Session) drainParser() {
	for {
		msg, raw, ok, err := s.parser.Next()
		if err != nil {
			// 一条格式错误的响应是不可恢复的：字节流已经不能再被信任
			// 能正确地为后续响应分帧。
			s.stopTimer()
			s.failAll(err)
			_ = s.currentTransport().Close()
			return
		}
		if !ok {
			return
		}
		s.route(msg, raw)
	}
}

// route 对被跟踪标签上的状态响应执行状态机转换，然后总是把消息转发给
// 当前任务。未标记的 BYE 会记一条日志；没有当前任务、也不是状态响应的
// 消息会记一条警告。
func (s *Session) route(msg *message.Message, raw []byte) {
	tagBytes := msg.Tag()
	word := msg.StatusWord()

	handled := true
	if msg.IsUntagged() && (message.IsStatus(word) || word == string(message.StatusPreAuth)) {
		if word == string(message.StatusBye) {
			s.log.Info("server sent an untagged BYE")
		}
		s.applyStatus("", word, msg)
	} else if len(tagBytes) > 0 && message.IsStatus(word) {
		s.applyStatus(string(tagBytes), word, msg)
	} else {
		handled = false
	}

	s.wirelog.Recv(string(tagBytes), raw)

	s.mu.Lock()
	job := s.current
	s.mu.Unlock()
	if job != nil {
		job.HandleResponse(msg)
	} else if !handled {
		s.log.WithField("tag", string(tagBytes)).Warn("response arrived with no current job")
	}
}

// applyStatus 为一条带标签或不带标签的状态响应运行一次状态机，并施加
// Outcome 描述的每一个副作用。
func (s *Session) applyStatus(tag, word string, msg *message.Message) {
	s.mu.Lock()
	prev := s.state
	tags := s.tags
	outcome := statemachine.Apply(prev, tags, statemachine.Event{Tag: tag, StatusWord: word})

	s.state = outcome.Next
	if outcome.ClearAuthTag {
		s.tags.AuthTag = ""
	}
	if outcome.ClearSelectTag {
		s.tags.SelectTag = ""
	}
	if outcome.ClearCloseTag {
		s.tags.CloseTag = ""
	}
	if outcome.SetMailboxToUpcoming {
		s.currentMailbox = s.upcomingMailbox
		s.haveMailbox = true
	}
	if outcome.ClearMailbox {
		s.currentMailbox = ""
		s.haveMailbox = false
	}
	if outcome.SaveGreeting {
		s.serverGreeting = greetingText(msg)
	}
	stateCb := s.onStateChanged
	s.mu.Unlock()

	if outcome.Next != prev && prev == statemachine.Disconnected {
		s.wirelog.Enable()
	}
	if stateCb != nil && outcome.Next != prev {
		stateCb(outcome.Next, prev)
	}
	if outcome.CloseTransport {
		_ = s.currentTransport().Close()
	}
}

// transitionTo 强制切换到某个状态（用于断连这条边——状态机的转换表本身
// 不会驱动它，因为状态机只对状态响应做出反应）。
func (s *Session) transitionTo(next statemachine.State) {
	s.mu.Lock()
	prev := s.state
	s.state = next
	s.haveMailbox = false
	s.currentMailbox = ""
	s.tags = statemachine.TrackedTags{}
	cb := s.onStateChanged
	s.mu.Unlock()

	if cb != nil && next != prev {
		cb(next, prev)
	}
}
