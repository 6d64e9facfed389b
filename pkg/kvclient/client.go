// Package kvclient implements the client half of spec.md §4.8: one TCP
// connection, sequential request/response over the codec package's wire
// format.
package kvclient

import (
	"bufio"
	"net"

	"github.com/goerzh/kvs/pkg/codec"
	"github.com/goerzh/kvs/pkg/kverrors"
)

// Client holds one open connection to a kvs server.
type Client struct {
	conn net.Conn
	r    *bufio.Reader
	w    *bufio.Writer
	dec  *codec.Decoder
	enc  *codec.Encoder
}

// Connect dials addr ("host:port") and returns a ready Client.
func Connect(addr string) (*Client, error) {
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		return nil, kverrors.NewIo(err)
	}
	r := bufio.NewReader(conn)
	w := bufio.NewWriter(conn)
	return &Client{
		conn: conn,
		r:    r,
		w:    w,
		dec:  codec.NewDecoder(r),
		enc:  codec.NewEncoder(w),
	}, nil
}

// Close closes the underlying connection.
func (c *Client) Close() error {
	return c.conn.Close()
}

func (c *Client) roundTrip(req codec.Request) (codec.Response, error) {
	if err := c.enc.EncodeRequest(req); err != nil {
		return codec.Response{}, err
	}
	if err := c.w.Flush(); err != nil {
		return codec.Response{}, kverrors.NewIo(err)
	}
	resp, err := c.dec.DecodeResponse()
	if err != nil {
		return codec.Response{}, err
	}
	return resp, nil
}

// Set stores key -> value.
func (c *Client) Set(key, value string) error {
	resp, err := c.roundTrip(codec.Request{Op: codec.OpSet, Key: key, Value: value})
	if err != nil {
		return err
	}
	if !resp.Ok {
		return kverrors.NewProtocol(resp.Err)
	}
	return nil
}

// Get returns the value for key, and ok=false if the server reports the key
// absent (Ok(None)).
func (c *Client) Get(key string) (string, bool, error) {
	resp, err := c.roundTrip(codec.Request{Op: codec.OpGet, Key: key})
	if err != nil {
		return "", false, err
	}
	if !resp.Ok {
		return "", false, kverrors.NewProtocol(resp.Err)
	}
	if resp.Value == nil {
		return "", false, nil
	}
	return *resp.Value, true, nil
}

// Remove deletes key. A server Err("Key not found") response surfaces as a
// kverrors.ProtocolError wrapping that message.
func (c *Client) Remove(key string) error {
	resp, err := c.roundTrip(codec.Request{Op: codec.OpRemove, Key: key})
	if err != nil {
		return err
	}
	if !resp.Ok {
		return kverrors.NewProtocol(resp.Err)
	}
	return nil
}
