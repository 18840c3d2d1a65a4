package tracking

import "context"

// SubscribeMessage is the control message sent once a feed connection opens.
type SubscribeMessage struct {
	Command  string   `json:"command"`
	Channels []string `json:"channels"`
}

// NewSubscribeMessage declares interest in the given channels.
func NewSubscribeMessage(channels ...string) SubscribeMessage {
	return SubscribeMessage{Command: "subscribe", Channels: channels}
}

// Feed opens duplex connections to the telemetry feed.
type Feed interface {
	Dial(ctx context.Context) (FeedConn, error)
}

// FeedConn is one open feed connection. Receive blocks until a frame
// arrives or the connection fails; Close unblocks a pending Receive.
type FeedConn interface {
	Send(ctx context.Context, msg SubscribeMessage) error
	Receive() (Frame, error)
	Close() error
}
