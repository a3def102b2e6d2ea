// Package wirelog 实现环境变量驱动的线路日志。
//
// 设置 IMAPSESSION_WIRELOG=<path> 会让会话核心把发送的每一字节命令与
// 收到的每一条响应都记录下来——但只在离开 Disconnected 状态之后才开始，
// 避免记录问候前握手阶段可能夹带凭证的噪音。
package wirelog

import (
	"os"
	"sync"

	"github.com/sirupsen/logrus"
)

const envVar = "IMAPSESSION_WIRELOG"

// Sink 是一个状态受限的写入器：只有在 Enable 之后，Send/Recv 才会真正
// 写日志，这样问候前的握手阶段永远不会被记录。
type Sink struct {
	mu      sync.Mutex
	logger  *logrus.Logger
	file    *os.File
	enabled bool
}

// New 检查环境变量，如果设置了则打开日志文件；否则返回一个不做任何事
// 的 Sink（保持调用方代码无分支）。
func New() *Sink {
	path := os.Getenv(envVar)
	if path == "" {
		return &Sink{}
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		// 打不开日志文件不是致命错误：会话应当照常工作，只是没有线路日志。
		return &Sink{}
	}

	logger := logrus.New()
	logger.SetOutput(f)
	// Send/Recv 以 Debug 级别写入；默认的 Info 级别会把它们全部丢弃。
	logger.SetLevel(logrus.DebugLevel)
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	return &Sink{logger: logger, file: f}
}

// Enable 打开日志门；在会话离开 Disconnected 状态时调用一次。
func (s *Sink) Enable() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.enabled = true
}

func (s *Sink) active() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.enabled && s.logger != nil
}

// Send 记录一次向服务器写出的字节。
func (s *Sink) Send(tag string, b []byte) {
	if !s.active() {
		return
	}
	s.logger.WithFields(logrus.Fields{"dir": "send", "tag": tag, "bytes": len(b)}).Debug(string(b))
}

// Recv 记录一条被解析出来的响应。
func (s *Sink) Recv(tag string, b []byte) {
	if !s.active() {
		return
	}
	s.logger.WithFields(logrus.Fields{"dir": "recv", "tag": tag, "bytes": len(b)}).Debug(string(b))
}

// Close 关闭底层文件（若有）。
func (s *Sink) Close() error {
	if s.file == nil {
		return nil
	}
	return s.file.Close()
}
