package session

import "github.com/luhaoyun888/imapsession/message"

// Job 是外部调用方实现的协作者契约，用来通过 Session 驱动一条 IMAP
// 命令。
//
// 一个任务只会走到唯一的终结结果：要么它自己识别到完成后调用
// host.Done()（正常路径，从 HandleResponse 触发），要么会话调用它的
// ConnectionLost 或 SetSocketError（失败路径，因为 transport 已经没了）。
// 失败路径里会话已经把任务从队列中摘除；任务不应该再回调 host.Done()。
type Job interface {
	// DoStart 在这个任务成为当前任务时被调用一次。它应当同步调用
	// host.SendCommand（以及需要延续行的命令要调用 host.SendData），
	// 或者安排稍后调用——两种方式都可以，因为 Session 从 DoStart 返回
	// 那一刻起就已经把它当作 current。
	DoStart(host JobHost)

	// HandleResponse 在这个任务是当前任务期间，交付一条已解析的响应。
	// 响应按线路上的顺序到达；任务调用 host.Done 之后不会再收到
	// HandleResponse。
	HandleResponse(msg *message.Message)

	// ConnectionLost 在 transport 断开时被调用，交付给这个任务和所有还
	// 排在队列里、尚未开始的任务——每一个都恰好收到一次 ConnectionLost
	// 或 SetSocketError 中的一个，绝不会两个都收到。
	ConnectionLost()

	// SetSocketError 是同一种通知的另一种形式，对应还没到彻底断开程度
	// 的 transport 错误（比如一次写失败）。
	SetSocketError(err error)
}

// JobHost 是 Job 用来回话拥有它的 Session 的接口。只能在 Job 接口自身
// 的回调内部同步调用这些方法——它们本来就跑在 Session 的事件泵
// goroutine 上，任务这边不需要再做任何同步。
type JobHost interface {
	// SendCommand 格式化 "TAG SP command [SP args] CRLF"，写入
	// transport，并返回分配到的标签。
	SendCommand(command string, args []byte) string

	// SendData 原样写入字节（例如一个非同步字面量的正文），不做任何
	// 帧封装。
	SendData(b []byte)

	// Done 表示正常完成：不论成功与否，这个任务都结束了，应当被摘除
	// 并换上下一个任务。
	Done()
}
