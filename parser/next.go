package parser

import "github.com/luhaoyun888/imapsession/message"

// Next 尝试从已缓冲的字节中组装出一条完整响应。
//
// 返回值：
//   - (msg, raw, true, nil)  一条完整响应已经组装完毕，缓冲区已经
//     TrimBuffer；raw 是这条响应在线路上的原始字节（含结尾 CRLF），
//     调用方通常拿它喂给线路日志。
//   - (nil, nil, false, nil) 数据不足，缓冲区保持原状（游标已回滚到调用前）。
//   - (nil, nil, false, err) 结构性错误（ParserFault），调用方应视为致命并中止传输。
//
// Next 内部完成 SaveState / RestoreState / TrimBuffer 的全部动作：
// saveState、按谓词分派解码、insufficientData 则 restoreState、
// 否则 trimBuffer。
func (p *StreamParser) Next() (*message.Message, []byte, bool, error) {
	p.SaveState()
	start := p.pos

	msg, err := p.assemble()
	if err != nil {
		return nil, nil, false, err
	}
	if p.InsufficientData() {
		p.RestoreState()
		return nil, nil, false, nil
	}
	raw := append([]byte(nil), p.buf[start:p.pos]...)
	p.TrimBuffer()
	return msg, raw, true, nil
}

func (p *StreamParser) assemble() (*message.Message, error) {
	msg := &message.Message{}

	first := true
	for {
		if !first {
			if p.AtCommandEnd() {
				p.consumeCRLF()
				return msg, nil
			}
			if p.InsufficientData() {
				return nil, nil
			}
			r := p.rest()
			if len(r) == 0 {
				p.markInsufficient()
				return nil, nil
			}
			if r[0] != ' ' {
				return nil, &ParserFault{Reason: "expected SP or CRLF between parts", Offset: p.pos}
			}
			p.pos++
		}
		first = false

		if p.HasResponseCode() {
			if err := p.readResponseCode(msg); err != nil {
				return nil, err
			}
			if p.InsufficientData() {
				return nil, nil
			}
			continue
		}

		part, ok, err := p.readPart()
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, nil
		}
		msg.Parts = append(msg.Parts, part)
	}
}

// readPart 分派到 list / literal / string 三种 token 形状之一。
func (p *StreamParser) readPart() (message.Part, bool, error) {
	switch {
	case p.HasList():
		items, ok, err := p.ReadParenthesizedList()
		if err != nil || !ok {
			return message.Part{}, ok, err
		}
		return message.List(items), true, nil

	case p.HasLiteral():
		lit, ok, err := p.readFullLiteral()
		if err != nil || !ok {
			return message.Part{}, ok, err
		}
		return message.Literal(lit), true, nil

	case p.HasString():
		b, ok, err := p.ReadString()
		if err != nil || !ok {
			return message.Part{}, ok, err
		}
		return message.String(b), true, nil

	default:
		if p.InsufficientData() {
			return message.Part{}, false, nil
		}
		return message.Part{}, false, &ParserFault{Reason: "unrecognized token", Offset: p.pos}
	}
}

// readFullLiteral 循环调用 ReadLiteralPart 直到 AtLiteralEnd，拼出完整的
// 字面量。上层的 Job 消费者若需要真正的分块传输，应绕过 assemble 直接
// 驱动 ReadLiteralPart（会话核心不这样做：它把整条响应当一个单元路由给
// 当前任务）。
func (p *StreamParser) readFullLiteral() ([]byte, bool, error) {
	var out []byte
	for {
		chunk, ok, err := p.ReadLiteralPart()
		if err != nil {
			return nil, false, err
		}
		if !ok {
			return nil, false, nil
		}
		out = append(out, chunk...)
		if p.AtLiteralEnd() {
			p.finishLiteral()
			return out, true, nil
		}
	}
}

// readResponseCode 消费 "[" ... "]" 段，把内部的 token 追加到
// msg.ResponseCode。
func (p *StreamParser) readResponseCode(msg *message.Message) error {
	p.pos++ // 消费 '['

	first := true
	for {
		if p.AtResponseCodeEnd() {
			p.pos++ // 消费 ']'
			return nil
		}
		if p.InsufficientData() {
			return nil
		}
		if !first {
			r := p.rest()
			if len(r) == 0 {
				p.markInsufficient()
				return nil
			}
			if r[0] == ' ' {
				p.pos++
			}
		}
		first = false

		if p.AtResponseCodeEnd() {
			p.pos++
			return nil
		}

		part, ok, err := p.readPart()
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
		msg.ResponseCode = append(msg.ResponseCode, part)
	}
}
