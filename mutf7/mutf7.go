// Package mutf7 提供邮箱名编解码的默认实现（"modified UTF-7"，RFC 3501
// §5.1.3）。
//
// 会话核心本身只依赖一个小接口（session.MailboxCodec）；这个包是那个
// 接口之外的协作者，供需要人类可读邮箱名的调用方使用。算法本身改写自
// 公开实现里常见的移位/反移位状态机（这里参照 mjl-mox 的
// imapserver/utf7.go 思路重写，命名与结构均未照抄），编码前用
// golang.org/x/text/unicode/norm 做一次 NFC 归一化，与该库校验邮箱名
// 规范形式时使用的手法一致。
package mutf7

import (
	"encoding/base64"
	"errors"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// Codec 把包级别的 Encode/Decode 函数适配成 session.MailboxCodec，
// 这样 Session 就能直接拿 mutf7.Codec{} 作为它的 Options.MailboxCodec。
type Codec struct{}

func (Codec) Decode(wire string) (string, error) { return Decode(wire) }
func (Codec) Encode(name string) string          { return Encode(name) }

const alphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789+,"

var b64 = base64.NewEncoding(alphabet).WithPadding(base64.NoPadding)

var (
	ErrSuperfluousShift  = errors.New("mutf7: superfluous shift")
	ErrUnfinishedShift   = errors.New("mutf7: unfinished shift sequence")
	ErrBadModifiedBase64 = errors.New("mutf7: invalid modified base64")
)

// Encode 把一个 Unicode 邮箱名转成 mUTF-7 线路形式。输入先做 NFC
// 归一化，避免同一个可见名称因组合字符顺序不同而编码出两种线路串。
func Encode(name string) string {
	name = norm.NFC.String(name)

	var out strings.Builder
	var pending []uint16
	flushShift := func() {
		if len(pending) == 0 {
			return
		}
		raw := make([]byte, 0, len(pending)*2)
		for _, u := range pending {
			raw = append(raw, byte(u>>8), byte(u))
		}
		out.WriteByte('&')
		out.WriteString(b64.EncodeToString(raw))
		out.WriteByte('-')
		pending = nil
	}

	for _, r := range name {
		if r >= 0x20 && r <= 0x7e {
			flushShift()
			if r == '&' {
				out.WriteString("&-")
			} else {
				out.WriteRune(r)
			}
			continue
		}
		if r > 0xffff {
			// mUTF-7 编码的是 UTF-16 code unit；用代理对表示。
			r -= 0x10000
			hi := uint16(0xd800 + (r >> 10))
			lo := uint16(0xdc00 + (r & 0x3ff))
			pending = append(pending, hi, lo)
			continue
		}
		pending = append(pending, uint16(r))
	}
	flushShift()
	return out.String()
}

// Decode 把线路上的 mUTF-7 字符串转回 Unicode。
func Decode(s string) (string, error) {
	var out strings.Builder
	shifted := false
	var b64buf strings.Builder
	lastUnshift := -2
	shiftStart := 0

	runes := []rune(s)
	for i, c := range runes {
		if !shifted {
			if c == '&' {
				shifted = true
				shiftStart = i
				continue
			}
			out.WriteRune(c)
			continue
		}

		if c != '-' {
			b64buf.WriteRune(c)
			continue
		}

		shifted = false
		if b64buf.Len() == 0 {
			out.WriteByte('&')
			continue
		}
		// 两段非空的移位序列紧挨着（中间没有任何字符）是合规编码器不会
		// 产生的形式；"&-" 表示的 '&' 字符不算移位序列。
		if shiftStart == lastUnshift+1 {
			return "", ErrSuperfluousShift
		}
		lastUnshift = i

		decoded, err := decodeShiftedRun(b64buf.String())
		if err != nil {
			return "", err
		}
		out.WriteString(decoded)
		b64buf.Reset()
	}

	if shifted {
		if b64buf.Len() == 0 {
			return "", ErrUnfinishedShift
		}
		decoded, err := decodeShiftedRun(b64buf.String())
		if err != nil {
			return "", err
		}
		out.WriteString(decoded)
	}

	return out.String(), nil
}

func decodeShiftedRun(encoded string) (string, error) {
	raw, err := b64.DecodeString(encoded)
	if err != nil {
		return "", ErrBadModifiedBase64
	}
	if len(raw)%2 != 0 {
		return "", ErrBadModifiedBase64
	}

	units := make([]uint16, len(raw)/2)
	for i := range units {
		units[i] = uint16(raw[2*i])<<8 | uint16(raw[2*i+1])
	}

	var out strings.Builder
	for i := 0; i < len(units); i++ {
		u := units[i]
		switch {
		case u >= 0xd800 && u <= 0xdbff:
			if i+1 >= len(units) || units[i+1] < 0xdc00 || units[i+1] > 0xdfff {
				return "", ErrBadModifiedBase64
			}
			lo := units[i+1]
			r := (rune(u-0xd800) << 10) + rune(lo-0xdc00) + 0x10000
			out.WriteRune(r)
			i++
		default:
			out.WriteRune(rune(u))
		}
	}
	return out.String(), nil
}
