package client

import (
	"net"
	"net/http"

	"github.com/Hubmakerlabs/reflectr/pkg/context"
	"github.com/Hubmakerlabs/reflectr/pkg/nostr/envelopes/okenvelope"
	"github.com/Hubmakerlabs/reflectr/pkg/nostr/event"
)

// When instantiating relay connections, some options may be passed.

// Option is the type of the argument passed for that.
type Option interface {
	IsRelayOption()
}

// WithEventHandler receives every EVENT that arrives on any subscription of
// the connection. It runs on the read goroutine and must not block for long.
type WithEventHandler func(subID string, ev *event.T)

func (_ WithEventHandler) IsRelayOption() {}

// WithEOSEHandler is told when a subscription has caught up with stored
// events.
type WithEOSEHandler func(subID string)

func (_ WithEOSEHandler) IsRelayOption() {}

// WithNoticeHandler just takes notices and is expected to do something with
// them. when not given, defaults to logging the notices.
type WithNoticeHandler func(notice string)

func (_ WithNoticeHandler) IsRelayOption() {}

// WithClosedHandler is told when the relay ends a subscription.
type WithClosedHandler func(subID, reason string)

func (_ WithClosedHandler) IsRelayOption() {}

// WithOKHandler receives the relay's verdict on published events.
type WithOKHandler func(env *okenvelope.T)

func (_ WithOKHandler) IsRelayOption() {}

// WithParseErrorHandler receives messages that could not be decoded, with
// the error. When not given they are logged at debug level.
type WithParseErrorHandler func(err error, message []byte)

func (_ WithParseErrorHandler) IsRelayOption() {}

// WithDialer replaces the direct TCP dial, e.g. with a SOCKS proxy.
type WithDialer func(c context.T, network, addr string) (net.Conn, error)

func (_ WithDialer) IsRelayOption() {}

// WithRequestHeader sets headers sent with the websocket handshake.
type WithRequestHeader http.Header

func (_ WithRequestHeader) IsRelayOption() {}

var (
	_ Option = (WithEventHandler)(nil)
	_ Option = (WithEOSEHandler)(nil)
	_ Option = (WithNoticeHandler)(nil)
	_ Option = (WithClosedHandler)(nil)
	_ Option = (WithOKHandler)(nil)
	_ Option = (WithParseErrorHandler)(nil)
	_ Option = (WithDialer)(nil)
	_ Option = (WithRequestHeader)(nil)
)
