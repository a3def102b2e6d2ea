package transport

import "crypto/tls"

// FallbackLadder 按顺序列出调用方请求"任意版本"时依次尝试的 TLS 版本。
// crypto/tls 从未实现过 SSL2/SSL3（标准库里没有，且早已被判定不安全）；
// 历史设计里的五级阶梯被收窄成 crypto/tls 实际能尝试的三级 TLS。
var FallbackLadder = []uint16{
	tls.VersionTLS12,
	tls.VersionTLS11,
	tls.VersionTLS10,
}

// FallbackState 记录一次连接建立过程中阶梯的哪些级别已经试过。它故意
// 不支持半途重置：一次阶梯用尽就是永久用尽，调用方若想再从头走一遍
// "任意版本"，只能新建一个 Session。
type FallbackState struct {
	attempted uint8 // 位集合，第 i 位置位表示 FallbackLadder[i] 已尝试过
	exhausted bool
}

// NextVersion 返回下一个未尝试的级别和 true；若已经全部尝试过（或阶梯
// 本身已耗尽），返回 (0, false)。
func (f *FallbackState) NextVersion() (uint16, bool) {
	if f.exhausted {
		return 0, false
	}
	for i, v := range FallbackLadder {
		if f.attempted&(1<<uint(i)) == 0 {
			f.attempted |= 1 << uint(i)
			if i == len(FallbackLadder)-1 {
				f.exhausted = true
			}
			return v, true
		}
	}
	f.exhausted = true
	return 0, false
}

// Exhausted 报告阶梯是否已经全部尝试过。
func (f *FallbackState) Exhausted() bool { return f.exhausted }
