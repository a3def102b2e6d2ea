package session

// startNext 把队首任务标记为 current，并递给它 JobHost；如果已经有任务
// 在跑、队列是空的，或者 socket 还没连上，就什么都不做。在队列可能
// 发生变化的地方（AddJob、jobDone、EventConnected）随时调用都是安全的。
func (s *Session) startNext() {
	s.mu.Lock()
	if s.current != nil || len(s.queue) == 0 || !s.transportConnected {
		s.mu.Unlock()
		return
	}
	job := s.queue[0]
	s.queue = s.queue[1:]
	s.current = job
	s.mu.Unlock()

	job.DoStart(&sessionJobHost{s: s})
}

// failAll 通知每一个曾经进过队列的任务——当前的和还在等待的——连接已经
// 没了，然后清空队列。每个任务只会收到 ConnectionLost 或
// SetSocketError 中的一个，绝不会两个都收到，之后也不会再收到
// HandleResponse。
func (s *Session) failAll(socketErr error) {
	s.mu.Lock()
	jobs := make([]Job, 0, len(s.queue)+1)
	if s.current != nil {
		jobs = append(jobs, s.current)
	}
	jobs = append(jobs, s.queue...)
	s.current = nil
	s.queue = nil
	cb := s.onJobQueueSizeChanged
	s.mu.Unlock()

	if cb != nil {
		cb(0)
	}

	for _, job := range jobs {
		if socketErr != nil {
			job.SetSocketError(socketErr)
		} else {
			job.ConnectionLost()
		}
	}
}
