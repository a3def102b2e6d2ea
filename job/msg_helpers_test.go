package job

import "github.com/luhaoyun888/imapsession/message"

func taggedStatus(tag, word, text string, code ...string) *message.Message {
	m := &message.Message{Parts: []message.Part{
		message.String([]byte(tag)),
		message.String([]byte(word)),
	}}
	if text != "" {
		m.Parts = append(m.Parts, message.String([]byte(text)))
	}
	for _, c := range code {
		m.ResponseCode = append(m.ResponseCode, message.String([]byte(c)))
	}
	return m
}

func untaggedNumeric(n string, word string) *message.Message {
	return &message.Message{Parts: []message.Part{
		message.String([]byte("*")),
		message.String([]byte(n)),
		message.String([]byte(word)),
	}}
}

// untaggedFlags builds the genuine "* FLAGS (...)" wire shape: three
// Parts ("*", "FLAGS", the parenthesized list), matching what
// parser.StreamParser actually emits.
func untaggedFlags(flags ...string) *message.Message {
	items := make([]message.ListItem, len(flags))
	for i, f := range flags {
		items[i] = message.Atom([]byte(f))
	}
	return &message.Message{Parts: []message.Part{
		message.String([]byte("*")),
		message.String([]byte("FLAGS")),
		message.List(items),
	}}
}

func untaggedResponseCode(code ...string) *message.Message {
	m := &message.Message{Parts: []message.Part{
		message.String([]byte("*")),
		message.String([]byte("OK")),
		message.String([]byte("info")),
	}}
	for _, c := range code {
		m.ResponseCode = append(m.ResponseCode, message.String([]byte(c)))
	}
	return m
}

func continuation(text string) *message.Message {
	return &message.Message{Parts: []message.Part{
		message.String([]byte("+")),
		message.String([]byte(text)),
	}}
}
