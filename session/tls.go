package session

import (
	"context"
	"crypto/tls"

	"github.com/luhaoyun888/imapsession/internal/transport"
)

// bgCtx 是交给 Transport.Connect/ConnectEncrypted 的 context。Session
// 有自己独立的生命周期（Close），与任何调用方的 context 无关，所以总是
// 用 context.Background 拨号。
func bgCtx() context.Context { return context.Background() }

// ProtocolAny 是传给 StartClientTLS 的哨兵值："任意版本"，触发
// internal/transport.FallbackLadder 描述的那条依次尝试 TLS1.2/1.1/1.0
// 的回退阶梯，而不是钉死在某一个版本上。取值故意落在所有真实
// crypto/tls 版本号（最高到 TLS1.3 的 0x0304）之外。
const ProtocolAny uint16 = 0xFFFF

// retryTLSFallback 在回退阶梯激活时，于一次握手失败后被调用：取出阶梯
// 里下一个未尝试的版本，换一个全新的 Transport 明文重连，记下等
// EventConnected 到来后要接着尝试的版本。返回 false 表示阶梯已经用尽，
// 调用方应当把这次失败当成最终结果上报。
func (s *Session) retryTLSFallback() bool {
	s.mu.Lock()
	version, ok := s.tlsFallback.NextVersion()
	if !ok {
		s.fallbackActive = false
		s.mu.Unlock()
		return false
	}
	s.pendingFallbackVersion = version
	s.awaitingFallbackConnect = true
	s.transport = transport.New(s.log)
	t := s.transport
	s.mu.Unlock()

	t.Connect(bgCtx(), s.host, s.port)
	return true
}

// tlsConfigForVersion 构造一个精确钉死在某个 TLS 版本上的 tls.Config，
// 用于回退阶梯的单一级别。传 0 会让 MinVersion 和 MaxVersion 都不设置，
// 交给 crypto/tls 协商自己的默认范围。
func tlsConfigForVersion(version uint16) *tls.Config {
	if version == 0 {
		return &tls.Config{}
	}
	return &tls.Config{
		MinVersion: version,
		MaxVersion: version,
	}
}
