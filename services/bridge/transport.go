package bridge

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
)

// Transport is a pluggable link dialler/owner.
type Transport interface {
	Open(ctx context.Context) (io.ReadWriteCloser, error)
	String() string
}

type transportFactory func(TransportConfig) (Transport, error)

var (
	regMu     sync.RWMutex
	registry  = map[string]transportFactory{}
	errNoDial = errors.New("UARTDial not implemented")
)

// RegisterTransport allows external packages to add transports (eg. "ws").
func RegisterTransport(name string, f transportFactory) {
	regMu.Lock()
	defer regMu.Unlock()
	registry[name] = f
}

func newTransport(cfg TransportConfig) (Transport, error) {
	regMu.RLock()
	f, ok := registry[cfg.Type]
	regMu.RUnlock()
	if ok {
		return f(cfg)
	}
	switch cfg.Type {
	case "uart":
		return newUARTTransport(cfg)
	case "tcp":
		return newTCPTransport(cfg)
	default:
		return nil, fmt.Errorf("unknown transport type: %q", cfg.Type)
	}
}

// -----------------------------------------------------------------------------
// UART
// -----------------------------------------------------------------------------

// UARTDial is injected by platform code (eg. in main).
// It must open and return an io.ReadWriteCloser over the configured UART.
var UARTDial func(ctx context.Context, u UARTConfig) (io.ReadWriteCloser, error)

type uartTransport struct {
	cfg UARTConfig
}

func newUARTTransport(cfg TransportConfig) (Transport, error) {
	if cfg.UART == nil {
		return nil, errors.New("uart transport requires uart config")
	}
	return &uartTransport{cfg: *cfg.UART}, nil
}

func (u *uartTransport) Open(ctx context.Context) (io.ReadWriteCloser, error) {
	if UARTDial == nil {
		return nil, errNoDial
	}
	return UARTDial(ctx, u.cfg)
}

func (u *uartTransport) String() string { return "uart" }

// -----------------------------------------------------------------------------
// TCP
// -----------------------------------------------------------------------------

type tcpTransport struct {
	cfg TCPConfig
}

func newTCPTransport(cfg TransportConfig) (Transport, error) {
	if cfg.TCP == nil || (cfg.TCP.Listen == "") == (cfg.TCP.Dial == "") {
		return nil, errors.New("tcp transport requires exactly one of listen or dial")
	}
	return &tcpTransport{cfg: *cfg.TCP}, nil
}

// Open dials the peer, or listens and accepts a single peer. The listener
// is closed once a peer is accepted or ctx ends.
func (t *tcpTransport) Open(ctx context.Context) (io.ReadWriteCloser, error) {
	if t.cfg.Dial != "" {
		var d net.Dialer
		return d.DialContext(ctx, "tcp", t.cfg.Dial)
	}
	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", t.cfg.Listen)
	if err != nil {
		return nil, err
	}
	stop := context.AfterFunc(ctx, func() { _ = ln.Close() })
	defer stop()
	defer ln.Close()
	c, err := ln.Accept()
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, err
	}
	return c, nil
}

func (t *tcpTransport) String() string {
	if t.cfg.Dial != "" {
		return "tcp->" + t.cfg.Dial
	}
	return "tcp<-" + t.cfg.Listen
}
