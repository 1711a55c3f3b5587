// Package testutil provides an in-memory chat server for connection and bot
// tests.
package testutil

import (
	"bufio"
	"context"
	"net"
	"strings"
	"sync"
	"testing"
	"time"
)

const waitTimeout = 2 * time.Second

// FakeChatServer hands out net.Pipe transports. Each dial opens a new
// ChatSession whose received lines can be asserted on.
type FakeChatServer struct {
	t *testing.T

	mu       sync.Mutex
	sessions []*ChatSession
	dialErr  error

	dialed chan *ChatSession
}

func NewFakeChatServer(t *testing.T) *FakeChatServer {
	t.Helper()
	s := &FakeChatServer{
		t:      t,
		dialed: make(chan *ChatSession, 16),
	}
	t.Cleanup(s.closeAll)
	return s
}

// FailDials makes every following dial return err.
func (s *FakeChatServer) FailDials(err error) {
	s.mu.Lock()
	s.dialErr = err
	s.mu.Unlock()
}

func (s *FakeChatServer) DialContext(ctx context.Context, _, _ string) (net.Conn, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	if s.dialErr != nil {
		err := s.dialErr
		s.mu.Unlock()
		return nil, err
	}
	client, server := net.Pipe()
	session := newChatSession(server)
	s.sessions = append(s.sessions, session)
	s.mu.Unlock()

	s.dialed <- session
	return client, nil
}

// NextSession waits for the next dial.
func (s *FakeChatServer) NextSession(t *testing.T) *ChatSession {
	t.Helper()
	select {
	case session := <-s.dialed:
		return session
	case <-time.After(waitTimeout):
		t.Fatalf("no connection dialed within %s", waitTimeout)
		return nil
	}
}

func (s *FakeChatServer) closeAll() {
	s.mu.Lock()
	sessions := append([]*ChatSession(nil), s.sessions...)
	s.mu.Unlock()
	for _, session := range sessions {
		session.Close()
	}
}

// ChatSession is the server side of one dialed transport.
type ChatSession struct {
	conn  net.Conn
	lines chan string
	done  chan struct{}
	once  sync.Once
}

func newChatSession(conn net.Conn) *ChatSession {
	c := &ChatSession{
		conn:  conn,
		lines: make(chan string, 256),
		done:  make(chan struct{}),
	}
	go c.readLoop()
	return c
}

func (c *ChatSession) readLoop() {
	defer close(c.done)
	defer close(c.lines)
	r := bufio.NewReader(c.conn)
	for {
		line, err := r.ReadString('\n')
		if err != nil {
			return
		}
		c.lines <- strings.TrimRight(line, "\r\n")
	}
}

// Expect fails unless the next line the client wrote equals want.
func (c *ChatSession) Expect(t *testing.T, want string) {
	t.Helper()
	select {
	case got, ok := <-c.lines:
		if !ok {
			t.Fatalf("connection closed while waiting for %q", want)
		}
		if got != want {
			t.Fatalf("got line %q, want %q", got, want)
		}
	case <-time.After(waitTimeout):
		t.Fatalf("timed out waiting for %q", want)
	}
}

// Next returns the next line the client wrote.
func (c *ChatSession) Next(t *testing.T) string {
	t.Helper()
	select {
	case got, ok := <-c.lines:
		if !ok {
			t.Fatal("connection closed while waiting for a line")
		}
		return got
	case <-time.After(waitTimeout):
		t.Fatal("timed out waiting for a line")
		return ""
	}
}

// ExpectHandshake consumes the four handshake lines.
func (c *ChatSession) ExpectHandshake(t *testing.T, token, nick, channel string) {
	t.Helper()
	c.Expect(t, "CAP REQ :twitch.tv/tags twitch.tv/commands twitch.tv/membership")
	c.Expect(t, "PASS oauth:"+token)
	c.Expect(t, "NICK "+nick)
	c.Expect(t, "JOIN #"+channel)
}

// ExpectSilence fails if the client writes any line within d.
func (c *ChatSession) ExpectSilence(t *testing.T, d time.Duration) {
	t.Helper()
	select {
	case got, ok := <-c.lines:
		if ok {
			t.Fatalf("unexpected line %q", got)
		}
	case <-time.After(d):
	}
}

// Write sends a protocol line to the client. It blocks until the client
// reads it.
func (c *ChatSession) Write(t *testing.T, line string) {
	t.Helper()
	if err := c.conn.SetWriteDeadline(time.Now().Add(waitTimeout)); err != nil {
		t.Fatalf("set write deadline: %v", err)
	}
	if _, err := c.conn.Write([]byte(line + "\r\n")); err != nil {
		t.Fatalf("write %q: %v", line, err)
	}
}

// Close drops the connection from the server side and waits for the reader.
func (c *ChatSession) Close() {
	c.once.Do(func() {
		_ = c.conn.Close()
	})
	<-c.done
}
