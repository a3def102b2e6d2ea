package session

import (
	"errors"
	"net"
	"strconv"
	"testing"
	"time"

	"github.com/luhaoyun888/imapsession/message"
	"github.com/luhaoyun888/imapsession/statemachine"
)

// fakeJob is a minimal Job test double: it records every response it
// sees and every terminal notification, and lets the test script what
// DoStart sends.
type fakeJob struct {
	onStart func(host JobHost)

	host      JobHost
	responses chan *message.Message
	lost      chan struct{}
	sockErr   chan error
	done      chan struct{}
}

func newFakeJob(onStart func(host JobHost)) *fakeJob {
	return &fakeJob{
		onStart:   onStart,
		responses: make(chan *message.Message, 16),
		lost:      make(chan struct{}, 1),
		sockErr:   make(chan error, 1),
		done:      make(chan struct{}, 1),
	}
}

func (f *fakeJob) DoStart(host JobHost) {
	f.host = host
	f.onStart(host)
}

func (f *fakeJob) HandleResponse(m *message.Message) {
	f.responses <- m
	if _, ok := message.ParseStatus(m); ok {
		f.host.Done()
		f.done <- struct{}{}
	}
}

func (f *fakeJob) ConnectionLost()          { f.lost <- struct{}{} }
func (f *fakeJob) SetSocketError(err error) { f.sockErr <- err }

func newLoopbackServer(t *testing.T) (net.Listener, string, int) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("net.Listen: %v", err)
	}
	host, portStr, err := net.SplitHostPort(ln.Addr().String())
	if err != nil {
		t.Fatalf("SplitHostPort: %v", err)
	}
	port, _ := strconv.Atoi(portStr)
	return ln, host, port
}

func waitState(t *testing.T, s *Session, want statemachine.State) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if s.State() == want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for state %v, have %v", want, s.State())
}

func TestGreetingTransitionsToNotAuthenticated(t *testing.T) {
	ln, host, port := newLoopbackServer(t)
	defer ln.Close()

	accepted := make(chan net.Conn, 1)
	go func() {
		conn, err := ln.Accept()
		if err == nil {
			accepted <- conn
		}
	}()

	s := New(host, port, Options{})
	defer s.Close()
	s.Connect()

	conn := <-accepted
	defer conn.Close()

	conn.Write([]byte("* OK IMAP4rev1 Service Ready\r\n"))

	waitState(t, s, statemachine.NotAuthenticated)
	if got := s.ServerGreeting(); got != "OK IMAP4rev1 Service Ready" {
		t.Errorf("ServerGreeting() = %q, want %q", got, "OK IMAP4rev1 Service Ready")
	}
}

func TestLoginRoundTrip(t *testing.T) {
	ln, host, port := newLoopbackServer(t)
	defer ln.Close()

	accepted := make(chan net.Conn, 1)
	go func() {
		conn, err := ln.Accept()
		if err == nil {
			accepted <- conn
		}
	}()

	s := New(host, port, Options{})
	defer s.Close()
	s.Connect()

	conn := <-accepted
	defer conn.Close()
	conn.Write([]byte("* OK ready\r\n"))
	waitState(t, s, statemachine.NotAuthenticated)

	var tag string
	job := newFakeJob(func(host JobHost) {
		tag = host.SendCommand("LOGIN", []byte(`alice secret`))
	})
	s.AddJob(job)

	buf := make([]byte, 256)
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	n, err := conn.Read(buf)
	if err != nil {
		t.Fatalf("server read: %v", err)
	}
	line := string(buf[:n])
	if want := "LOGIN alice secret\r\n"; len(line) < len(want) || line[len(tag)+1:] != want {
		t.Errorf("server received %q, want tag+%q", line, want)
	}

	conn.Write([]byte(tag + " OK LOGIN completed\r\n"))

	select {
	case <-job.done:
	case m := <-job.responses:
		if m.StatusWord() != "OK" {
			t.Errorf("unexpected response before done: %+v", m)
		}
		<-job.done
	case <-time.After(5 * time.Second):
		t.Fatal("job never observed completion via HandleResponse")
	}

	waitState(t, s, statemachine.Authenticated)
}

func TestSelectThenClose(t *testing.T) {
	ln, host, port := newLoopbackServer(t)
	defer ln.Close()

	accepted := make(chan net.Conn, 1)
	go func() {
		conn, err := ln.Accept()
		if err == nil {
			accepted <- conn
		}
	}()

	s := New(host, port, Options{})
	defer s.Close()
	s.Connect()

	conn := <-accepted
	defer conn.Close()
	conn.Write([]byte("* PREAUTH already authenticated\r\n"))
	waitState(t, s, statemachine.Authenticated)

	var selectTag string
	selectJob := newFakeJob(func(host JobHost) {
		selectTag = host.SendCommand("SELECT", []byte(`"INBOX"`))
	})
	s.AddJob(selectJob)

	buf := make([]byte, 256)
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	conn.Read(buf)

	conn.Write([]byte("* 4 EXISTS\r\n"))
	conn.Write([]byte(selectTag + " OK [READ-WRITE] SELECT completed\r\n"))

	waitState(t, s, statemachine.Selected)
	if mbox, ok := s.SelectedMailBox(); !ok || mbox != "INBOX" {
		t.Fatalf("SelectedMailBox() = (%q, %v), want (INBOX, true)", mbox, ok)
	}

	var closeTag string
	closeJob := newFakeJob(func(host JobHost) {
		closeTag = host.SendCommand("CLOSE", nil)
	})
	s.AddJob(closeJob)

	conn.Read(buf)
	conn.Write([]byte(closeTag + " OK CLOSE completed\r\n"))

	waitState(t, s, statemachine.Authenticated)
	if _, ok := s.SelectedMailBox(); ok {
		t.Errorf("SelectedMailBox() still reports a mailbox after CLOSE")
	}
}

func TestFragmentedLiteralDeliveredWhole(t *testing.T) {
	ln, host, port := newLoopbackServer(t)
	defer ln.Close()

	accepted := make(chan net.Conn, 1)
	go func() {
		conn, err := ln.Accept()
		if err == nil {
			accepted <- conn
		}
	}()

	s := New(host, port, Options{})
	defer s.Close()
	s.Connect()

	conn := <-accepted
	defer conn.Close()
	conn.Write([]byte("* OK ready\r\n"))
	waitState(t, s, statemachine.NotAuthenticated)

	job := newFakeJob(func(host JobHost) {
		host.SendCommand("FETCH", []byte("1 (BODY[])"))
	})
	s.AddJob(job)

	buf := make([]byte, 256)
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	conn.Read(buf)

	// Split the literal announcement and its body across several writes.
	conn.Write([]byte("* 1 FETCH (BODY[] {5}\r\n"))
	time.Sleep(10 * time.Millisecond)
	conn.Write([]byte("hel"))
	time.Sleep(10 * time.Millisecond)
	conn.Write([]byte("lo)\r\n"))

	select {
	case m := <-job.responses:
		lit := m.Parts[len(m.Parts)-1]
		if lit.Kind != message.KindList {
			t.Fatalf("expected the FETCH data as a list part, got %+v", m.Parts)
		}
		if len(lit.List) < 2 || lit.List[1].IsList() || string(lit.List[1].Atom) != "hello" {
			t.Errorf("literal body = %+v, want the last item to be %q", lit.List, "hello")
		}
	case <-time.After(5 * time.Second):
		t.Fatal("job never received the fragmented FETCH response")
	}
}

func TestUnexpectedDisconnectMidCommand(t *testing.T) {
	ln, host, port := newLoopbackServer(t)
	defer ln.Close()

	accepted := make(chan net.Conn, 1)
	go func() {
		conn, err := ln.Accept()
		if err == nil {
			accepted <- conn
		}
	}()

	s := New(host, port, Options{})
	defer s.Close()
	s.Connect()

	conn := <-accepted
	conn.Write([]byte("* OK ready\r\n"))
	waitState(t, s, statemachine.NotAuthenticated)

	job := newFakeJob(func(host JobHost) {
		host.SendCommand("NOOP", nil)
	})
	s.AddJob(job)

	buf := make([]byte, 256)
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	conn.Read(buf)

	conn.Close()

	select {
	case <-job.lost:
	case <-time.After(5 * time.Second):
		t.Fatal("job never received ConnectionLost after the server closed the socket")
	}

	waitState(t, s, statemachine.Disconnected)
}

func TestConnectionFailedFiresOnPreGreetingDisconnect(t *testing.T) {
	ln, host, port := newLoopbackServer(t)
	defer ln.Close()

	accepted := make(chan net.Conn, 1)
	go func() {
		conn, err := ln.Accept()
		if err == nil {
			accepted <- conn
		}
	}()

	s := New(host, port, Options{})
	defer s.Close()

	failed := make(chan struct{}, 1)
	s.OnConnectionFailed(func() { failed <- struct{}{} })

	s.Connect()

	conn := <-accepted
	conn.Close() // no greeting ever sent; state stays Disconnected

	select {
	case <-failed:
	case <-time.After(5 * time.Second):
		t.Fatal("OnConnectionFailed never fired for a disconnect before any greeting")
	}

	waitState(t, s, statemachine.Disconnected)
}

func TestConnectionFailedDoesNotFireAfterGreeting(t *testing.T) {
	ln, host, port := newLoopbackServer(t)
	defer ln.Close()

	accepted := make(chan net.Conn, 1)
	go func() {
		conn, err := ln.Accept()
		if err == nil {
			accepted <- conn
		}
	}()

	s := New(host, port, Options{})
	defer s.Close()

	failed := make(chan struct{}, 1)
	s.OnConnectionFailed(func() { failed <- struct{}{} })

	s.Connect()

	conn := <-accepted
	conn.Write([]byte("* OK ready\r\n"))
	waitState(t, s, statemachine.NotAuthenticated)

	conn.Close()

	waitState(t, s, statemachine.Disconnected)

	select {
	case <-failed:
		t.Fatal("OnConnectionFailed fired even though the session had already left Disconnected")
	case <-time.After(200 * time.Millisecond):
	}
}

func TestInactivityTimeoutFailsCurrentJob(t *testing.T) {
	ln, host, port := newLoopbackServer(t)
	defer ln.Close()

	accepted := make(chan net.Conn, 1)
	go func() {
		conn, err := ln.Accept()
		if err == nil {
			accepted <- conn
		}
	}()

	s := New(host, port, Options{Timeout: 50 * time.Millisecond})
	defer s.Close()
	s.Connect()

	conn := <-accepted
	defer conn.Close()
	conn.Write([]byte("* OK ready\r\n"))
	waitState(t, s, statemachine.NotAuthenticated)

	job := newFakeJob(func(host JobHost) {
		host.SendCommand("NOOP", nil)
	})
	s.AddJob(job)

	select {
	case err := <-job.sockErr:
		if !errors.Is(err, ErrTransport) {
			t.Errorf("SetSocketError err = %v, want ErrTransport", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("inactivity timeout never fired")
	}
}
