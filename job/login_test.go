package job

import (
	"errors"
	"testing"
)

func TestLoginJobSendsQuotedCredentials(t *testing.T) {
	host := &fakeHost{}
	var gotErr error
	called := false
	j := NewLoginJob("alice", `p"ss`, func(err error) {
		called = true
		gotErr = err
	})

	j.DoStart(host)
	if len(host.commands) != 1 {
		t.Fatalf("expected one SendCommand call, got %d", len(host.commands))
	}
	cmd := host.commands[0]
	if cmd.command != "LOGIN" {
		t.Errorf("command = %q, want LOGIN", cmd.command)
	}
	want := `"alice" "p\"ss"`
	if string(cmd.args) != want {
		t.Errorf("args = %q, want %q", cmd.args, want)
	}

	j.HandleResponse(taggedStatus(cmd.tag, "OK", "LOGIN completed"))
	if !called || gotErr != nil {
		t.Fatalf("done callback = (%v, %v), want (true, nil)", called, gotErr)
	}
	if host.doneCalls != 1 {
		t.Errorf("host.Done() called %d times, want 1", host.doneCalls)
	}
}

func TestLoginJobFailure(t *testing.T) {
	host := &fakeHost{}
	var gotErr error
	j := NewLoginJob("bob", "wrong", func(err error) { gotErr = err })

	j.DoStart(host)
	tag := host.lastTag()
	j.HandleResponse(taggedStatus(tag, "NO", "invalid credentials"))

	if gotErr == nil {
		t.Fatal("expected an error for a NO response")
	}
	if host.doneCalls != 1 {
		t.Errorf("host.Done() called %d times, want 1", host.doneCalls)
	}
}

func TestLoginJobConnectionLostDoesNotCallHostDone(t *testing.T) {
	host := &fakeHost{}
	var gotErr error
	j := NewLoginJob("alice", "secret", func(err error) { gotErr = err })
	j.DoStart(host)

	j.ConnectionLost()

	if !errors.Is(gotErr, ErrConnectionLost) {
		t.Errorf("done callback err = %v, want ErrConnectionLost", gotErr)
	}
	if host.doneCalls != 0 {
		t.Errorf("host.Done() called after ConnectionLost, want 0 calls")
	}
}
