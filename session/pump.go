package session

import "time"

// pump 是会话唯一的事件循环 goroutine。只有它会调用
// handleTransportEvent 或 handleInactivityTimeout，这正是 Job 的回调
// 可以假设自己永远不会被 Session 其余部分并发打扰的原因。
func (s *Session) pump() {
	for {
		s.mu.Lock()
		var timerC <-chan time.Time
		if s.timer != nil {
			timerC = s.timer.C
		}
		s.mu.Unlock()

		events := s.currentTransport().Events()

		select {
		case ev, ok := <-events:
			if !ok {
				return
			}
			s.handleTransportEvent(ev)
		case <-timerC:
			s.handleInactivityTimeout()
		case <-s.closed:
			return
		}
	}
}
