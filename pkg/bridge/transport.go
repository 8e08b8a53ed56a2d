// Package bridge implements the RPC call layer between this process
// and the out-of-process database driver. The bridge answers exactly
// one reply per request, in request order; everything above this
// package treats it as a black-box request/reply channel.
package bridge

import (
	"encoding/json"
	"io"
	"net"
	"sync"
)

// Request is one call frame on the wire. Args hold JSON-encodable
// values; nil args are sent as JSON null, which the driver reads as
// "no filter" for the *-info calls.
type Request struct {
	ID     string `json:"id"`
	Method Method `json:"method"`
	Args   []any  `json:"args"`
}

// Reply is one answer frame. A non-empty Error is a driver-level
// failure carried in a valid reply; it is not a transport fault.
type Reply struct {
	ID    string `json:"id"`
	Value any    `json:"value"`
	Error string `json:"error,omitempty"`
}

// Transport is a request/reply channel to the driver bridge. Send and
// Recv may be called from different goroutines; Send is safe for
// concurrent use. Close terminates the channel and causes pending Recv
// calls to fail.
type Transport interface {
	Send(Request) error
	Recv() (Reply, error)
	Close() error
}

// Pipe frames requests and replies as line-delimited JSON over any
// byte stream: a spawned driver's stdio, a unix socket, or a TCP
// connection.
type Pipe struct {
	rwc io.ReadWriteCloser
	dec *json.Decoder

	wmu sync.Mutex
	enc *json.Encoder
}

// NewPipe wraps rwc in a Pipe transport. The Pipe owns rwc and closes
// it on Close.
func NewPipe(rwc io.ReadWriteCloser) *Pipe {
	return &Pipe{
		rwc: rwc,
		dec: json.NewDecoder(rwc),
		enc: json.NewEncoder(rwc),
	}
}

// Dial connects to a driver bridge listening on a TCP address.
func Dial(addr string) (*Pipe, error) {
	c, err := net.Dial("tcp", addr)
	if err != nil {
		return nil, &TransportError{Op: "dial " + addr, Err: err}
	}
	return NewPipe(c), nil
}

// Send writes one request frame.
func (p *Pipe) Send(req Request) error {
	p.wmu.Lock()
	defer p.wmu.Unlock()
	if err := p.enc.Encode(req); err != nil {
		return &TransportError{Op: "send " + string(req.Method), Err: err}
	}
	return nil
}

// Recv reads the next reply frame. A decode failure, including EOF
// when the driver process dies, is a TransportError.
func (p *Pipe) Recv() (Reply, error) {
	var rep Reply
	if err := p.dec.Decode(&rep); err != nil {
		return Reply{}, &TransportError{Op: "recv", Err: err}
	}
	return rep, nil
}

// Close terminates the underlying stream.
func (p *Pipe) Close() error {
	return p.rwc.Close()
}

var _ Transport = (*Pipe)(nil)
