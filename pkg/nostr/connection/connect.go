// Package connection is the client side websocket transport to a relay,
// with permessage-deflate when the relay offers it.
package connection

import (
	"bytes"
	"compress/flate"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"sync"

	"github.com/Hubmakerlabs/reflectr/pkg/context"
	"github.com/Hubmakerlabs/reflectr/pkg/slog"
	"github.com/gobwas/httphead"
	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsflate"
	"github.com/gobwas/ws/wsutil"
)

var log, chk = slog.New(os.Stderr)

// MaxMessageSize is the write buffer size for outbound frames.
const MaxMessageSize = 512 * 1024

// NetDial opens the underlying network connection, for example through a
// SOCKS proxy. Nil means a direct dial.
type NetDial func(c context.T, network, addr string) (net.Conn, error)

type C struct {
	Conn              net.Conn
	enableCompression bool
	controlHandler    wsutil.FrameHandlerFunc
	flateReader       *wsflate.Reader
	reader            *wsutil.Reader
	flateWriter       *wsflate.Writer
	writer            *wsutil.Writer
	msgState          *wsflate.MessageState
	// writeMx keeps control frame replies from interleaving with data frames.
	writeMx sync.Mutex
}

func NewConnection(c context.T, url string, requestHeader http.Header,
	dial NetDial) (connection *C, err error) {

	dialer := ws.Dialer{
		Header: ws.HandshakeHeaderHTTP(requestHeader),
		Extensions: []httphead.Option{
			wsflate.DefaultParameters.Option(),
		},
	}
	if dial != nil {
		dialer.NetDial = dial
	}
	conn, _, hs, err := dialer.Dial(c, url)
	if chk.D(err) {
		return nil, fmt.Errorf("failed to dial: %w", err)
	}
	enableCompression := false
	state := ws.StateClientSide
	for _, extension := range hs.Extensions {
		if string(extension.Name) == wsflate.ExtensionName {
			enableCompression = true
			state |= ws.StateExtended
			break
		}
	}
	connection = &C{Conn: conn, enableCompression: enableCompression}
	// reader
	var msgState wsflate.MessageState
	if enableCompression {
		msgState.SetCompressed(true)
		connection.flateReader = wsflate.NewReader(nil,
			func(r io.Reader) wsflate.Decompressor {
				return flate.NewReader(r)
			})
	}
	connection.controlHandler = connection.handleControl
	connection.reader = &wsutil.Reader{
		Source:         conn,
		State:          state,
		OnIntermediate: connection.controlHandler,
		CheckUTF8:      false,
		Extensions: []wsutil.RecvExtension{
			&msgState,
		},
	}
	// writer
	if enableCompression {
		connection.flateWriter = wsflate.NewWriter(nil,
			func(w io.Writer) wsflate.Compressor {
				fw, ferr := flate.NewWriter(w, 4)
				if chk.D(ferr) {
					log.E.F("failed to create flate writer: %v", ferr)
				}
				return fw
			})
	}
	connection.writer = wsutil.NewWriterSize(conn, state, ws.OpText,
		MaxMessageSize)
	connection.writer.SetExtensions(&msgState)
	connection.msgState = &msgState
	return
}

// handleControl answers pings and close frames. The reply is assembled
// first and written in one piece under the write lock.
func (c *C) handleControl(h ws.Header, r io.Reader) (err error) {
	buf := new(bytes.Buffer)
	err = wsutil.ControlFrameHandler(buf, ws.StateClientSide)(h, r)
	if buf.Len() > 0 {
		c.writeMx.Lock()
		_, werr := c.Conn.Write(buf.Bytes())
		c.writeMx.Unlock()
		if err == nil {
			err = werr
		}
	}
	return
}

func (c *C) WriteMessage(data []byte) (err error) {
	c.writeMx.Lock()
	defer c.writeMx.Unlock()
	if c.msgState.IsCompressed() && c.enableCompression {
		c.flateWriter.Reset(c.writer)
		if _, err = io.Copy(c.flateWriter, bytes.NewReader(data)); chk.D(err) {
			return fmt.Errorf("failed to write message: %w", err)
		}
		if err = c.flateWriter.Close(); chk.D(err) {
			return fmt.Errorf("failed to close flate writer: %w", err)
		}
	} else {
		if _, err = io.Copy(c.writer, bytes.NewReader(data)); chk.D(err) {
			return fmt.Errorf("failed to write message: %w", err)
		}
	}
	if err = c.writer.Flush(); chk.D(err) {
		return fmt.Errorf("failed to flush writer: %w", err)
	}
	return nil
}

// Ping writes a ping control frame.
func (c *C) Ping() (err error) {
	c.writeMx.Lock()
	defer c.writeMx.Unlock()
	return wsutil.WriteClientMessage(c.Conn, ws.OpPing, nil)
}

func (c *C) ReadMessage(cx context.T, buf io.Writer) (err error) {
	for {
		select {
		case <-cx.Done():
			return errors.New("context canceled")
		default:
		}
		var h ws.Header
		h, err = c.reader.NextFrame()
		if chk.D(err) {
			chk.D(c.Conn.Close())
			return fmt.Errorf("failed to advance frame: %w", err)
		}
		if h.OpCode.IsControl() {
			if err = c.controlHandler(h, c.reader); chk.D(err) {
				return fmt.Errorf("failed to handle control frame: %w", err)
			}
		} else if h.OpCode == ws.OpBinary ||
			h.OpCode == ws.OpText {
			break
		}
		if err = c.reader.Discard(); chk.D(err) {
			return fmt.Errorf("failed to discard: %w", err)
		}
	}
	if c.msgState.IsCompressed() && c.enableCompression {
		c.flateReader.Reset(c.reader)
		if _, err = io.Copy(buf, c.flateReader); chk.D(err) {
			return fmt.Errorf("failed to read message: %w", err)
		}
	} else {
		if _, err = io.Copy(buf, c.reader); chk.D(err) {
			return fmt.Errorf("failed to read message: %w", err)
		}
	}
	return nil
}

func (c *C) Close() (err error) {
	return c.Conn.Close()
}
