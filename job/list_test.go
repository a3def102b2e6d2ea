package job

import (
	"testing"

	"github.com/luhaoyun888/imapsession/message"
)

type upperCodec struct{}

func (upperCodec) Decode(wire string) (string, error) { return "decoded:" + wire, nil }
func (upperCodec) Encode(name string) string           { return name }

func listEntry(attrs []string, delim, name string) *message.Message {
	items := make([]message.ListItem, len(attrs))
	for i, a := range attrs {
		items[i] = message.Atom([]byte(a))
	}
	return &message.Message{Parts: []message.Part{
		message.String([]byte("*")),
		message.String([]byte("LIST")),
		message.List(items),
		message.String([]byte(delim)),
		message.String([]byte(name)),
	}}
}

func TestListJobDecodesMailboxNames(t *testing.T) {
	host := &fakeHost{}
	var gotResults []MailboxInfo
	var gotErr error
	j := NewListJob("", "*", upperCodec{}, func(results []MailboxInfo, err error) {
		gotResults = results
		gotErr = err
	})

	j.DoStart(host)
	cmd := host.commands[0]
	if cmd.command != "LIST" {
		t.Fatalf("command = %q, want LIST", cmd.command)
	}
	if string(cmd.args) != `"" "*"` {
		t.Errorf("args = %q, want %q", cmd.args, `"" "*"`)
	}

	j.HandleResponse(listEntry([]string{`\Noselect`}, "/", "Sent&AOEA-Items"))
	j.HandleResponse(taggedStatus(cmd.tag, "OK", "LIST completed"))

	if gotErr != nil {
		t.Fatalf("done err = %v, want nil", gotErr)
	}
	if len(gotResults) != 1 {
		t.Fatalf("results = %+v, want 1 entry", gotResults)
	}
	got := gotResults[0]
	if got.Delimiter != "/" {
		t.Errorf("Delimiter = %q, want /", got.Delimiter)
	}
	if len(got.Attrs) != 1 || got.Attrs[0] != `\Noselect` {
		t.Errorf("Attrs = %v", got.Attrs)
	}
	if got.Name != "decoded:Sent&AOEA-Items" {
		t.Errorf("Name = %q, want the codec-decoded name", got.Name)
	}
	if host.doneCalls != 1 {
		t.Errorf("host.Done() called %d times, want 1", host.doneCalls)
	}
}

func TestListJobWithoutCodecKeepsWireName(t *testing.T) {
	host := &fakeHost{}
	var gotResults []MailboxInfo
	j := NewListJob("", "*", nil, func(results []MailboxInfo, err error) { gotResults = results })

	j.DoStart(host)
	cmd := host.commands[0]
	j.HandleResponse(listEntry(nil, ".", "INBOX"))
	j.HandleResponse(taggedStatus(cmd.tag, "OK", "LIST completed"))

	if len(gotResults) != 1 || gotResults[0].Name != "INBOX" {
		t.Fatalf("results = %+v, want a single INBOX entry", gotResults)
	}
}

func TestListJobSkipsNonListUntagged(t *testing.T) {
	host := &fakeHost{}
	var gotResults []MailboxInfo
	j := NewListJob("", "*", nil, func(results []MailboxInfo, err error) { gotResults = results })
	j.DoStart(host)
	cmd := host.commands[0]

	j.HandleResponse(untaggedNumeric("3", "EXISTS"))
	j.HandleResponse(taggedStatus(cmd.tag, "OK", "LIST completed"))

	if len(gotResults) != 0 {
		t.Errorf("results = %+v, want none (EXISTS is not a LIST entry)", gotResults)
	}
}
