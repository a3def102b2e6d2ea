// Package session 实现单个 IMAP 会话的任务队列、标签分配器、写入泵、
// 响应路由与连接生命周期。
//
// Session 是流解析器、状态机与任务队列汇合的地方：它拥有一个 Transport
// 和一个 parser.StreamParser，也是唯一会修改 statemachine.State 的组件。
//
// 并发模型：所有可变状态都由一把互斥锁保护，一个后台 goroutine 统一
// 消费 transport 事件与不活动计时器；对外暴露的方法可以从任意 goroutine
// 调用。
package session

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/luhaoyun888/imapsession/internal/transport"
	"github.com/luhaoyun888/imapsession/internal/wirelog"
	"github.com/luhaoyun888/imapsession/message"
	"github.com/luhaoyun888/imapsession/parser"
	"github.com/luhaoyun888/imapsession/statemachine"
)

// MailboxCodec 在邮箱名的线路形式（mUTF-7，可能带引号）与 Session 对外
// 暴露的 Unicode 名称之间做编解码。核心只依赖这个接口；默认实现在同级
// 的 mutf7 包里。
type MailboxCodec interface {
	Decode(wire string) (string, error)
	Encode(name string) string
}

// passthroughCodec 在调用方没有提供 MailboxCodec 时使用，不做任何转换——
// 对纯 ASCII 邮箱名足够了，也让不想引入 mutf7 包的测试可以直接用。
type passthroughCodec struct{}

func (passthroughCodec) Decode(wire string) (string, error) { return wire, nil }
func (passthroughCodec) Encode(name string) string          { return name }

// Options 配置一个 Session。零值即可用：不覆盖超时（默认 30s）、
// passthrough 邮箱编解码器。线路日志不在这里配置，只由环境变量
// IMAPSESSION_WIRELOG 控制。
type Options struct {
	// Timeout 是不活动超时；0 表示"使用 30s 默认值"，负数表示彻底关闭
	// 计时器。
	Timeout time.Duration

	MailboxCodec MailboxCodec

	Logger *logrus.Logger
}

const defaultTimeout = 30 * time.Second

// Session 管理与一台 IMAP 服务器之间的一次会话。
type Session struct {
	host string
	port int

	transport *transport.Transport
	parser    *parser.StreamParser
	wirelog   *wirelog.Sink
	codec     MailboxCodec
	log       *logrus.Entry

	closed    chan struct{}
	closeOnce sync.Once

	mu sync.Mutex

	state statemachine.State
	tags  statemachine.TrackedTags

	tagCounter uint64

	queue   []Job
	current Job

	transportConnected bool

	// tlsFallback 记录 TLS 版本回退阶梯已经试到哪一级；只有请求
	// ProtocolAny 时才会用到。fallbackActive 标记当前是否处于一次
	// "任意版本"尝试的中途，awaitingFallbackConnect/pendingFallbackVersion
	// 记住重连明文 socket 之后要接着用哪个版本重试握手。
	tlsFallback             transport.FallbackState
	fallbackActive          bool
	awaitingFallbackConnect bool
	pendingFallbackVersion  uint16

	upcomingMailbox string
	currentMailbox  string
	haveMailbox     bool

	serverGreeting string
	userName       string

	timeout time.Duration
	timer   *time.Timer

	onStateChanged        func(next, prev statemachine.State)
	onJobQueueSizeChanged func(n int)
	onConnectionFailed    func()
	onSSLErrors           func(diagnostic string)
	onEncryptionResult    func(success bool, version string)
}

// New 构造一个绑定到 host:port 的 Session，不做任何 I/O；调用 Connect
// 或 ConnectEncrypted 才会真正启动 transport。
func New(host string, port int, opts Options) *Session {
	logger := opts.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	logEntry := logger.WithField("component", "imapsession")

	codec := opts.MailboxCodec
	if codec == nil {
		codec = passthroughCodec{}
	}

	timeout := opts.Timeout
	if timeout == 0 {
		timeout = defaultTimeout
	}

	s := &Session{
		host:      host,
		port:      port,
		transport: transport.New(logEntry),
		parser:    parser.New(),
		wirelog:   wirelog.New(),
		codec:     codec,
		log:       logEntry,
		closed:    make(chan struct{}),
		state:     statemachine.Disconnected,
		timeout:   timeout,
	}
	go s.pump()
	return s
}

// Connect 建立明文 TCP 连接。
func (s *Session) Connect() {
	s.transport.Connect(bgCtx(), s.host, s.port)
}

// ConnectEncrypted 建立隐式 TLS 连接（例如 993 端口）。
func (s *Session) ConnectEncrypted() {
	s.transport.ConnectEncrypted(bgCtx(), s.host, s.port)
}

// currentTransport 取出当前的 Transport 指针。TLS 版本回退阶梯会在一次
// 握手失败后换掉整个 Transport 实例（明文重连），所以除了构造函数之外
// 都要通过这个方法访问，而不是直接读字段。
func (s *Session) currentTransport() *transport.Transport {
	s.mu.Lock()
	t := s.transport
	s.mu.Unlock()
	return t
}

// StartClientTLS 按 STARTTLS 流程升级一个已经明文连接的 socket。应当由
// 专门的 StartTLS 任务在观察到其完成响应之后调用。
//
// protocolVersion 为 ProtocolAny 时触发 TLS 版本回退阶梯：本次调用只
// 启动阶梯的第一级，握手失败后 handleTransportEvent 会自动重连明文
// socket 并尝试下一级，直到成功或阶梯用尽。
func (s *Session) StartClientTLS(protocolVersion uint16) error {
	t := s.currentTransport()

	if protocolVersion != ProtocolAny {
		s.mu.Lock()
		s.fallbackActive = false
		s.mu.Unlock()
		return t.StartClientTLS(s.host, tlsConfigForVersion(protocolVersion))
	}

	s.mu.Lock()
	s.fallbackActive = true
	version, ok := s.tlsFallback.NextVersion()
	s.mu.Unlock()
	if !ok {
		return errors.New("session: TLS fallback ladder exhausted")
	}
	return t.StartClientTLS(s.host, tlsConfigForVersion(version))
}

// AddJob 把 job 加入队列。可以从任意 goroutine 调用。
func (s *Session) AddJob(job Job) {
	s.mu.Lock()
	s.queue = append(s.queue, job)
	n := s.queueSizeLocked()
	cb := s.onJobQueueSizeChanged
	s.mu.Unlock()

	if cb != nil {
		cb(n)
	}
	s.startNext()
}

// JobQueueSize 返回排队中的数量，加上当前正在执行的那一个（如果有）。
func (s *Session) JobQueueSize() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.queueSizeLocked()
}

func (s *Session) queueSizeLocked() int {
	n := len(s.queue)
	if s.current != nil {
		n++
	}
	return n
}

// State 返回当前协议层的会话状态。
func (s *Session) State() statemachine.State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Close 关闭 transport 并停止会话的事件泵。可以从任意 goroutine 调用
// 任意次数。
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		close(s.closed)
	})
	return s.currentTransport().Close()
}

// SetTimeout 以秒为单位设置不活动超时；<= 0 表示关闭。
func (s *Session) SetTimeout(seconds int) {
	s.mu.Lock()
	if seconds <= 0 {
		s.timeout = -1
	} else {
		s.timeout = time.Duration(seconds) * time.Second
	}
	s.mu.Unlock()
}

// Timeout 以秒为单位返回当前的不活动超时；关闭时返回一个负数。
func (s *Session) Timeout() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.timeout < 0 {
		return -1
	}
	return int(s.timeout / time.Second)
}

func (s *Session) HostName() string { return s.host }
func (s *Session) Port() int        { return s.port }

func (s *Session) UserName() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.userName
}

// ReportUserName 让 Login/Authenticate 任务在确认命令成功后记录自己
// 使用的用户名。可选：不调用它的任务只是让 UserName() 保持为空。
func (s *Session) ReportUserName(name string) {
	s.mu.Lock()
	s.userName = name
	s.mu.Unlock()
}

func (s *Session) ServerGreeting() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.serverGreeting
}

// SelectedMailBox 返回当前选中邮箱的 Unicode 名称，以及是否真的选中了
// 一个邮箱。
func (s *Session) SelectedMailBox() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.currentMailbox, s.haveMailbox
}

// OnStateChanged 注册 stateChanged(new, old) 观察者。
func (s *Session) OnStateChanged(fn func(next, prev statemachine.State)) {
	s.mu.Lock()
	s.onStateChanged = fn
	s.mu.Unlock()
}

// OnJobQueueSizeChanged 注册 jobQueueSizeChanged(n) 观察者。
func (s *Session) OnJobQueueSizeChanged(fn func(n int)) {
	s.mu.Lock()
	s.onJobQueueSizeChanged = fn
	s.mu.Unlock()
}

// OnConnectionFailed 注册 connectionFailed 观察者。
func (s *Session) OnConnectionFailed(fn func()) {
	s.mu.Lock()
	s.onConnectionFailed = fn
	s.mu.Unlock()
}

// OnSSLErrors 注册 sslErrors(diagnostic) 观察者。
func (s *Session) OnSSLErrors(fn func(diagnostic string)) {
	s.mu.Lock()
	s.onSSLErrors = fn
	s.mu.Unlock()
}

// OnEncryptionNegotiationResult 注册
// encryptionNegotiationResult(success, versionOrUnknown) 观察者。
func (s *Session) OnEncryptionNegotiationResult(fn func(success bool, version string)) {
	s.mu.Lock()
	s.onEncryptionResult = fn
	s.mu.Unlock()
}

// 会话包导出的错误。ErrTransport 在不活动超时时通过 SetSocketError 交给
// 任务；ErrUnexpectedDisconnect 已声明，但本包中没有任何路径会交付它
// （意外断开通过 ConnectionLost 通知，不带错误值）。
var (
	ErrTransport            = errors.New("session: transport error")
	ErrUnexpectedDisconnect = errors.New("session: unexpected disconnect")
)

func formatCommand(tag, command string, args []byte) []byte {
	var buf bytes.Buffer
	buf.WriteString(tag)
	buf.WriteByte(' ')
	buf.WriteString(command)
	if len(args) > 0 {
		buf.WriteByte(' ')
		buf.Write(args)
	}
	buf.WriteString("\r\n")
	return buf.Bytes()
}

func greetingText(m *message.Message) string {
	if len(m.Parts) < 2 {
		return ""
	}
	parts := make([]string, 0, len(m.Parts)-1)
	for _, p := range m.Parts[1:] {
		if p.Kind == message.KindString {
			parts = append(parts, string(p.Bytes))
		}
	}
	return strings.Join(parts, " ")
}

func decodeMailboxArg(args []byte, codec MailboxCodec) string {
	s := strings.TrimSpace(string(args))
	// SELECT/EXAMINE 参数可能带引号；核心只需要剥掉引号，不需要完整的
	// 词法分析（真正的转义处理属于 Job 的编码职责）。
	s = strings.Trim(s, `"`)
	decoded, err := codec.Decode(s)
	if err != nil {
		return s
	}
	return decoded
}

func fmtTag(n uint64) string {
	return fmt.Sprintf("A%06d", n)
}
