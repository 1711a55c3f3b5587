package twitchadapter

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"berryBot/internal/domain"
	"berryBot/internal/testutil"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func newTestConn(t *testing.T) (*Conn, *testutil.ChatSession) {
	t.Helper()
	server := testutil.NewFakeChatServer(t)
	conn := NewConn(Config{
		Nickname:    "BerryBot",
		Token:       "secret",
		Channel:     "#Foo",
		ReadBackoff: 20 * time.Millisecond,
		Dialer:      server,
	}, zerolog.Nop())

	require.NoError(t, conn.Connect(context.Background()))
	session := server.NextSession(t)
	session.ExpectHandshake(t, "secret", "berrybot", "foo")
	require.Equal(t, StateAuthenticated, conn.State())
	return conn, session
}

type runResult struct {
	err  error
	done chan struct{}
}

func startRun(t *testing.T, conn *Conn, handler MessageHandler) (context.CancelFunc, *runResult) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	res := &runResult{done: make(chan struct{})}
	go func() {
		defer close(res.done)
		res.err = conn.Run(ctx, handler)
	}()
	t.Cleanup(func() {
		cancel()
		<-res.done
	})
	return cancel, res
}

func (r *runResult) wait(t *testing.T) error {
	t.Helper()
	select {
	case <-r.done:
		return r.err
	case <-time.After(2 * time.Second):
		t.Fatal("run loop did not return")
		return nil
	}
}

func TestConnectFailsOnDial(t *testing.T) {
	server := testutil.NewFakeChatServer(t)
	server.FailDials(errors.New("refused"))
	conn := NewConn(Config{Nickname: "bot", Token: "t", Channel: "foo", Dialer: server}, zerolog.Nop())

	err := conn.Connect(context.Background())
	require.ErrorIs(t, err, domain.ErrConnection)
	assert.Equal(t, StateFaulted, conn.State())
}

func TestConnectRequiresCredentials(t *testing.T) {
	conn := NewConn(Config{Channel: "foo"}, zerolog.Nop())
	require.ErrorIs(t, conn.Connect(context.Background()), domain.ErrConnection)
	assert.Equal(t, StateDisconnected, conn.State())
}

func TestFormatTokenKeepsExistingPrefix(t *testing.T) {
	assert.Equal(t, "oauth:abc", formatToken("abc"))
	assert.Equal(t, "oauth:abc", formatToken(" oauth:abc "))
}

func TestRunAnswersKeepalive(t *testing.T) {
	conn, session := newTestConn(t)
	cancel, res := startRun(t, conn, nil)

	session.Write(t, "PING :tmi.twitch.tv")
	session.Expect(t, "PONG :tmi.twitch.tv")
	assert.Equal(t, StateListening, conn.State())

	cancel()
	require.NoError(t, res.wait(t))
}

func TestRunHandsMessagesInArrivalOrder(t *testing.T) {
	conn, session := newTestConn(t)

	got := make(chan domain.ChatMessage, 8)
	handler := func(ctx context.Context, msg domain.ChatMessage) error {
		got <- msg
		return nil
	}
	cancel, res := startRun(t, conn, handler)

	for i := 0; i < 3; i++ {
		session.Write(t, fmt.Sprintf("@display-name=Alice;user-id=7 :alice!alice@alice.tmi.twitch.tv PRIVMSG #foo :message %d", i))
	}
	for i := 0; i < 3; i++ {
		select {
		case msg := <-got:
			assert.Equal(t, fmt.Sprintf("message %d", i), msg.Text)
			assert.Equal(t, "Alice", msg.Username)
			assert.Equal(t, "7", msg.UserID)
			assert.Equal(t, "foo", msg.Channel)
		case <-time.After(2 * time.Second):
			t.Fatalf("message %d not handled", i)
		}
	}

	cancel()
	require.NoError(t, res.wait(t))
}

func TestRunProcessesOneMessageAtATime(t *testing.T) {
	conn, session := newTestConn(t)

	var mu sync.Mutex
	inFlight, maxInFlight := 0, 0
	handled := make(chan struct{}, 8)
	handler := func(ctx context.Context, msg domain.ChatMessage) error {
		mu.Lock()
		inFlight++
		if inFlight > maxInFlight {
			maxInFlight = inFlight
		}
		mu.Unlock()
		time.Sleep(10 * time.Millisecond)
		mu.Lock()
		inFlight--
		mu.Unlock()
		handled <- struct{}{}
		return nil
	}
	cancel, res := startRun(t, conn, handler)

	for i := 0; i < 4; i++ {
		session.Write(t, ":alice!alice@alice.tmi.twitch.tv PRIVMSG #foo :hi")
	}
	for i := 0; i < 4; i++ {
		<-handled
	}
	mu.Lock()
	assert.Equal(t, 1, maxInFlight)
	mu.Unlock()

	cancel()
	require.NoError(t, res.wait(t))
}

func TestRunAnswersKeepaliveBeforeSlowHandler(t *testing.T) {
	conn, session := newTestConn(t)

	release := make(chan struct{})
	defer close(release)
	handler := func(ctx context.Context, msg domain.ChatMessage) error {
		select {
		case <-release:
		case <-ctx.Done():
		}
		return nil
	}
	startRun(t, conn, handler)

	session.Write(t, ":alice!alice@alice.tmi.twitch.tv PRIVMSG #foo :slow\r\nPING :tmi.twitch.tv")
	session.Expect(t, "PONG :tmi.twitch.tv")
}

func TestRunDropsOversizedLines(t *testing.T) {
	conn, session := newTestConn(t)
	got := make(chan string, 4)
	handler := func(ctx context.Context, msg domain.ChatMessage) error {
		got <- msg.Text
		return nil
	}
	startRun(t, conn, handler)

	session.Write(t, ":alice!alice@alice.tmi.twitch.tv PRIVMSG #foo :"+strings.Repeat("x", 2*MaxLineLength))
	session.Write(t, "PING :tmi.twitch.tv")
	session.Expect(t, "PONG :tmi.twitch.tv")

	session.Write(t, ":alice!alice@alice.tmi.twitch.tv PRIVMSG #foo :after")
	select {
	case text := <-got:
		assert.Equal(t, "after", text)
	case <-time.After(2 * time.Second):
		t.Fatal("message after oversized line not handled")
	}
}

func TestRunSkipsMalformedFramesAndHandlerErrors(t *testing.T) {
	conn, session := newTestConn(t)

	got := make(chan string, 8)
	handler := func(ctx context.Context, msg domain.ChatMessage) error {
		got <- msg.Text
		if msg.Text == "boom" {
			return fmt.Errorf("pipeline: %w", domain.ErrClassifier)
		}
		return nil
	}
	cancel, res := startRun(t, conn, handler)

	session.Write(t, ":alice!alice@alice.tmi.twitch.tv PRIVMSG #foo")
	session.Write(t, ":alice!alice@alice.tmi.twitch.tv PRIVMSG #foo :boom")
	session.Write(t, ":alice!alice@alice.tmi.twitch.tv PRIVMSG #foo :after")

	assert.Equal(t, "boom", <-got)
	assert.Equal(t, "after", <-got)

	cancel()
	require.NoError(t, res.wait(t))
}

func TestRunFaultsOnServerClose(t *testing.T) {
	conn, session := newTestConn(t)
	_, res := startRun(t, conn, nil)

	session.Close()

	err := res.wait(t)
	require.ErrorIs(t, err, domain.ErrConnection)
	assert.Equal(t, StateFaulted, conn.State())

	conn.Disconnect()
	assert.Equal(t, StateFaulted, conn.State())
}

func TestRunRequiresAuthenticatedConnection(t *testing.T) {
	conn := NewConn(Config{Channel: "foo"}, zerolog.Nop())
	err := conn.Run(context.Background(), nil)
	assert.ErrorIs(t, err, domain.ErrConnection)
}

func TestSendWritesOneLine(t *testing.T) {
	conn, session := newTestConn(t)

	require.NoError(t, conn.Send(context.Background(), "hello\r\nPRIVMSG #other :spam"))
	session.Expect(t, "PRIVMSG #foo :hello PRIVMSG #other :spam")

	require.NoError(t, conn.Send(context.Background(), "   "))
	session.ExpectSilence(t, 50*time.Millisecond)
}

func TestConcurrentSendsDoNotInterleave(t *testing.T) {
	conn, session := newTestConn(t)

	const senders = 16
	var wg sync.WaitGroup
	for i := 0; i < senders; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			assert.NoError(t, conn.Send(context.Background(), fmt.Sprintf("line %02d", i)))
		}(i)
	}

	seen := make(map[string]bool)
	for i := 0; i < senders; i++ {
		line := session.Next(t)
		assert.Regexp(t, `^PRIVMSG #foo :line \d\d$`, line)
		seen[line] = true
	}
	wg.Wait()
	assert.Len(t, seen, senders)
}

func TestDisconnectIsIdempotent(t *testing.T) {
	conn, session := newTestConn(t)

	conn.Disconnect()
	session.Expect(t, "PART #foo")
	assert.Equal(t, StateDisconnected, conn.State())

	conn.Disconnect()
	assert.Equal(t, StateDisconnected, conn.State())

	err := conn.Send(context.Background(), "late")
	assert.ErrorIs(t, err, domain.ErrConnection)
}
