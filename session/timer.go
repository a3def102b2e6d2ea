package session

import "time"

func newTimer(d time.Duration) *time.Timer { return time.NewTimer(d) }

// restartTimer 重新武装不活动计时器，遵循"先排空再重置"的模式——计时器
// 可能已经在重置发生的同时触发过了。
func (s *Session) restartTimer() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.timeout < 0 {
		s.stopTimerLocked()
		return
	}

	if s.timer == nil {
		s.timer = newTimer(s.timeout)
		return
	}
	if !s.timer.Stop() {
		select {
		case <-s.timer.C:
		default:
		}
	}
	s.timer.Reset(s.timeout)
}

func (s *Session) stopTimer() {
	s.mu.Lock()
	s.stopTimerLocked()
	s.mu.Unlock()
}

func (s *Session) stopTimerLocked() {
	if s.timer != nil {
		s.timer.Stop()
	}
}

// handleInactivityTimeout 在配置的超时时间内双向都没有流量时触发：关闭
// transport，并对当前任务和队列里的每一个任务调用
// SetSocketError(ErrTransport)（意外断开走的是 ConnectionLost）。会话状态
// 在这里不改变。
func (s *Session) handleInactivityTimeout() {
	s.stopTimer()
	s.mu.Lock()
	s.transportConnected = false
	s.mu.Unlock()
	_ = s.currentTransport().Close()
	s.failAll(ErrTransport)
}
