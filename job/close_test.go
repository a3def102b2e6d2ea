package job

import (
	"errors"
	"testing"
)

func TestCloseJobCompletes(t *testing.T) {
	host := &fakeHost{}
	var gotErr error
	called := false
	j := NewCloseJob(func(err error) {
		called = true
		gotErr = err
	})

	j.DoStart(host)
	cmd := host.commands[0]
	if cmd.command != "CLOSE" || len(cmd.args) != 0 {
		t.Fatalf("command = %q %q, want CLOSE with no args", cmd.command, cmd.args)
	}

	j.HandleResponse(taggedStatus(cmd.tag, "OK", "CLOSE completed"))
	if !called || gotErr != nil {
		t.Fatalf("done callback = (%v, %v), want (true, nil)", called, gotErr)
	}
	if host.doneCalls != 1 {
		t.Errorf("host.Done() called %d times, want 1", host.doneCalls)
	}
}

func TestCloseJobConnectionLost(t *testing.T) {
	host := &fakeHost{}
	var gotErr error
	j := NewCloseJob(func(err error) { gotErr = err })
	j.DoStart(host)

	j.ConnectionLost()

	if !errors.Is(gotErr, ErrConnectionLost) {
		t.Errorf("err = %v, want ErrConnectionLost", gotErr)
	}
	if host.doneCalls != 0 {
		t.Errorf("host.Done() called after ConnectionLost, want 0 calls")
	}
}
