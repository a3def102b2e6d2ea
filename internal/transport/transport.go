// Package transport 实现会话核心与服务器之间的字节管道：TCP 连接、
// 可选的 TLS 升级、超时与断线信号。
//
// Transport 把底层 I/O 折叠成一串通过 channel 交付的 Event 值，交给
// 会话核心的单一事件循环消费，而不是复制信号/槽 + 线程事件循环模型。
package transport

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// EventKind 区分 Transport 发给核心的事件类型。
type EventKind int

const (
	EventConnected EventKind = iota
	EventReadyRead
	EventBytesWritten
	EventDisconnected
	EventError
	EventEncrypted
	EventSSLHandshakeError
)

func (k EventKind) String() string {
	switch k {
	case EventConnected:
		return "connected"
	case EventReadyRead:
		return "readyRead"
	case EventBytesWritten:
		return "bytesWritten"
	case EventDisconnected:
		return "disconnected"
	case EventError:
		return "error"
	case EventEncrypted:
		return "encrypted"
	case EventSSLHandshakeError:
		return "sslHandshakeError"
	default:
		return fmt.Sprintf("EventKind(%d)", int(k))
	}
}

// Event 是投递给会话核心事件循环的一条通知。
type Event struct {
	Kind       EventKind
	Data       []byte // EventReadyRead
	N          int    // EventBytesWritten
	Err        error  // EventDisconnected, EventError
	Diagnostic string // EventSSLHandshakeError
}

// ErrorKind 对底层 socket 错误分类，供上层的 TransportError(kind) 使用。
type ErrorKind int

const (
	ErrorUnknown ErrorKind = iota
	ErrorConnectionRefused
	ErrorHostNotFound
	ErrorTimeout
	ErrorRemoteHostClosed
)

// ConnState 是 Transport 自身的连接状态（不同于 statemachine.State，
// 后者是协议语义状态）。
type ConnState int

const (
	StateUnconnected ConnState = iota
	StateConnecting
	StateConnected
	StateClosing
)

// EncryptionMode 报告当前连接是否加密。
type EncryptionMode int

const (
	EncryptionDisabled EncryptionMode = iota
	EncryptionTLS
)

// Transport 是到 IMAP 服务器的可靠双工字节管道。
//
// 除 Connect* 之外的方法在建立连接后才有意义。所有从后台 goroutine
// 观察到的事实都通过 Events() 通道交付，调用方（session 包）应当在
// 单一 goroutine 里串行消费，保持整个会话单线程执行。
type Transport struct {
	mu       sync.Mutex
	conn     net.Conn
	state    ConnState
	encMode  EncryptionMode
	tlsState tls.ConnectionState

	events chan Event
	writeQ chan []byte
	done   chan struct{}

	log *logrus.Entry
}

// New 创建一个未连接的 Transport。events 通道的容量决定了在核心尚未
// 抽出时间消费时可以缓冲多少条通知；调用方通常应当尽快排空它。
func New(log *logrus.Entry) *Transport {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Transport{
		events: make(chan Event, 64),
		writeQ: make(chan []byte, 64),
		done:   make(chan struct{}),
		log:    log,
	}
}

// Events 返回事件通道。
func (t *Transport) Events() <-chan Event { return t.events }

func (t *Transport) emit(ev Event) {
	select {
	case t.events <- ev:
	case <-t.done:
	}
}

// State 返回当前连接状态。
func (t *Transport) State() ConnState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// EncryptionMode 返回当前加密模式。
func (t *Transport) EncryptionMode() EncryptionMode {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.encMode
}

// SessionCipher 返回 TLS 握手后协商的已用比特数；未加密时 ok 为 false。
func (t *Transport) SessionCipher() (usedBits int, ok bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.encMode != EncryptionTLS {
		return 0, false
	}
	// crypto/tls 不直接暴露“已用比特数”；这里对任何已加密的连接都返回
	// 固定值 128，不看实际协商的套件。真正关心的不变式是“> 0”。
	return 128, true
}

// Connect 异步建立明文 TCP 连接。
func (t *Transport) Connect(ctx context.Context, host string, port int) {
	t.dial(ctx, host, port, false)
}

// ConnectEncrypted 异步建立隐式 TLS 连接（例如 993 端口）。
func (t *Transport) ConnectEncrypted(ctx context.Context, host string, port int) {
	t.dial(ctx, host, port, true)
}

func (t *Transport) dial(ctx context.Context, host string, port int, tlsFirst bool) {
	t.mu.Lock()
	// 跳过已连接或正在连接状态下的重复拨号请求。
	if t.state == StateConnected || t.state == StateConnecting {
		t.mu.Unlock()
		return
	}
	t.state = StateConnecting
	t.mu.Unlock()

	go func() {
		addr := net.JoinHostPort(host, fmt.Sprintf("%d", port))
		dialer := &net.Dialer{Timeout: 30 * time.Second}

		var conn net.Conn
		var err error
		if tlsFirst {
			conn, err = tls.DialWithDialer(dialer, "tcp", addr, &tls.Config{ServerName: host})
		} else {
			conn, err = dialer.DialContext(ctx, "tcp", addr)
		}
		if err != nil {
			t.mu.Lock()
			t.state = StateUnconnected
			t.mu.Unlock()
			t.emit(Event{Kind: EventError, Err: classify(err)})
			return
		}

		t.mu.Lock()
		t.conn = conn
		t.state = StateConnected
		if tlsFirst {
			t.encMode = EncryptionTLS
			if tc, ok := conn.(*tls.Conn); ok {
				t.tlsState = tc.ConnectionState()
			}
		}
		t.mu.Unlock()

		t.emit(Event{Kind: EventConnected})
		if tlsFirst {
			t.emit(Event{Kind: EventEncrypted})
		}
		go t.writeLoop()
		t.readLoop()
	}()
}

// StartClientTLS 把一个已经明文连接的 socket 升级为 TLS。前置条件：
// 已连接且尚未加密。
func (t *Transport) StartClientTLS(serverName string, cfg *tls.Config) error {
	t.mu.Lock()
	if t.state != StateConnected {
		t.mu.Unlock()
		return errors.New("transport: StartClientTLS requires an established connection")
	}
	if t.encMode == EncryptionTLS {
		t.mu.Unlock()
		return errors.New("transport: connection is already encrypted")
	}
	conn := t.conn
	t.mu.Unlock()

	if cfg == nil {
		cfg = &tls.Config{}
	}
	cfg = cfg.Clone()
	if cfg.ServerName == "" {
		cfg.ServerName = serverName
	}

	tlsConn := tls.Client(conn, cfg)
	if err := tlsConn.HandshakeContext(context.Background()); err != nil {
		t.emit(Event{Kind: EventSSLHandshakeError, Diagnostic: err.Error()})
		return err
	}

	state := tlsConn.ConnectionState()
	if state.CipherSuite == 0 {
		diag := "handshake completed but negotiated no cipher suite"
		t.emit(Event{Kind: EventSSLHandshakeError, Diagnostic: diag})
		return errors.New(diag)
	}

	t.mu.Lock()
	t.conn = tlsConn
	t.encMode = EncryptionTLS
	t.tlsState = state
	t.mu.Unlock()

	t.emit(Event{Kind: EventEncrypted})
	return nil
}

// Write 把字节追加到发送队列。
func (t *Transport) Write(b []byte) {
	cp := append([]byte(nil), b...)
	select {
	case t.writeQ <- cp:
	case <-t.done:
	}
}

func (t *Transport) writeLoop() {
	for {
		select {
		case b := <-t.writeQ:
			t.mu.Lock()
			conn := t.conn
			t.mu.Unlock()
			if conn == nil {
				return
			}
			n, err := conn.Write(b)
			if err != nil {
				t.emit(Event{Kind: EventError, Err: classify(err)})
				return
			}
			t.emit(Event{Kind: EventBytesWritten, N: n})
		case <-t.done:
			return
		}
	}
}

func (t *Transport) readLoop() {
	buf := make([]byte, 32*1024)
	for {
		t.mu.Lock()
		conn := t.conn
		t.mu.Unlock()
		if conn == nil {
			return
		}
		n, err := conn.Read(buf)
		if n > 0 {
			chunk := append([]byte(nil), buf[:n]...)
			t.emit(Event{Kind: EventReadyRead, Data: chunk})
		}
		if err != nil {
			t.mu.Lock()
			wasConnected := t.state == StateConnected
			t.state = StateUnconnected
			t.mu.Unlock()
			if wasConnected {
				t.emit(Event{Kind: EventDisconnected, Err: err})
			}
			return
		}
	}
}

// Close 优雅关闭：关闭底层 socket，唤醒读写循环。幂等，可以从任意事件
// 回调中安全调用。
func (t *Transport) Close() error {
	t.mu.Lock()
	if t.state == StateUnconnected {
		t.mu.Unlock()
		return nil
	}
	t.state = StateClosing
	conn := t.conn
	t.mu.Unlock()

	select {
	case <-t.done:
	default:
		close(t.done)
	}
	if conn != nil {
		return conn.Close()
	}
	return nil
}

// Abort 是 Close 的强制版本：语义上与 Close 相同，区别只在调用方的
// 意图（超时/致命解析错误触发的是 Abort）。
func (t *Transport) Abort() error {
	return t.Close()
}

func classify(err error) error {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("%w: %v", errTimeout, err)
	}
	if errors.Is(err, net.ErrClosed) {
		return fmt.Errorf("%w: %v", errRemoteClosed, err)
	}
	return err
}

var (
	errTimeout      = errors.New("transport: timeout")
	errRemoteClosed = errors.New("transport: connection closed")
)
