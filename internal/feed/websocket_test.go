package feed

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/i474232898/bike-tracker/internal/tracking"
)

type feedServer struct {
	*httptest.Server
	token   chan string
	subs    chan tracking.SubscribeMessage
	release chan struct{}
}

// newFeedServer accepts one websocket, records the subscription, pushes a
// text and a binary frame, then waits for release before closing.
func newFeedServer(t *testing.T) *feedServer {
	fs := &feedServer{
		token:   make(chan string, 1),
		subs:    make(chan tracking.SubscribeMessage, 1),
		release: make(chan struct{}),
	}
	upgrader := websocket.Upgrader{}
	fs.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fs.token <- r.URL.Query().Get("token")
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer ws.Close()

		var sub tracking.SubscribeMessage
		if err := ws.ReadJSON(&sub); err != nil {
			return
		}
		fs.subs <- sub

		_ = ws.WriteMessage(websocket.TextMessage, []byte("55.7,12.5,ts"))
		_ = ws.WriteMessage(websocket.BinaryMessage, []byte("1,2,bin"))
		<-fs.release
	}))
	t.Cleanup(func() {
		close(fs.release)
		fs.Close()
	})
	return fs
}

func wsURL(s *httptest.Server) string {
	return "ws" + strings.TrimPrefix(s.URL, "http")
}

func TestDialerSubscribesAndReceives(t *testing.T) {
	srv := newFeedServer(t)

	d, err := NewDialer(Config{URL: wsURL(srv.Server), Token: "secret"})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, err := d.Dial(ctx)
	require.NoError(t, err)
	defer conn.Close()

	assert.Equal(t, "secret", <-srv.token)

	require.NoError(t, conn.Send(ctx, tracking.NewSubscribeMessage("gps_data")))
	assert.Equal(t, tracking.SubscribeMessage{Command: "subscribe", Channels: []string{"gps_data"}}, <-srv.subs)

	f, err := conn.Receive()
	require.NoError(t, err)
	assert.Equal(t, tracking.Frame{Data: []byte("55.7,12.5,ts")}, f)

	f, err = conn.Receive()
	require.NoError(t, err)
	assert.Equal(t, tracking.Frame{Binary: true, Data: []byte("1,2,bin")}, f)
}

func TestCloseUnblocksReceive(t *testing.T) {
	srv := newFeedServer(t)

	d, err := NewDialer(Config{URL: wsURL(srv.Server)})
	require.NoError(t, err)

	conn, err := d.Dial(context.Background())
	require.NoError(t, err)
	require.NoError(t, conn.Send(context.Background(), tracking.NewSubscribeMessage("gps_data")))
	<-srv.subs

	// Drain the two pushed frames; the next Receive blocks.
	_, err = conn.Receive()
	require.NoError(t, err)
	_, err = conn.Receive()
	require.NoError(t, err)

	errCh := make(chan error, 1)
	go func() {
		_, err := conn.Receive()
		errCh <- err
	}()

	time.Sleep(50 * time.Millisecond)
	require.NoError(t, conn.Close())
	_ = conn.Close()

	select {
	case err := <-errCh:
		assert.Error(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Receive did not return after Close")
	}
}

func TestNewDialerValidation(t *testing.T) {
	_, err := NewDialer(Config{})
	assert.Error(t, err)

	_, err = NewDialer(Config{URL: "http://example.com/feed"})
	assert.Error(t, err)

	d, err := NewDialer(Config{URL: "wss://example.com/app?x=1", Token: "abc"})
	require.NoError(t, err)
	assert.Contains(t, d.url, "token=abc")
	assert.Contains(t, d.url, "x=1")
	assert.Equal(t, "wss://example.com/app?x=1", d.Endpoint())
}

func TestDialFailure(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	d, err := NewDialer(Config{URL: wsURL(srv), DialTimeout: time.Second})
	require.NoError(t, err)

	_, err = d.Dial(context.Background())
	assert.Error(t, err)
}
