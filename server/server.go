// Package server implements a server for the frame protocol: reflective
// service registration, a middleware chain, parallel request handling, and
// graceful shutdown.
//
//	Accept conn → handleConn (one reader goroutine per conn)
//	  → per request: go handleRequest
//	    → decode → middleware chain → businessHandler (reflect.Call) → encode → write
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"reflect"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"callproxy/codec"
	"callproxy/failure"
	"callproxy/message"
	"callproxy/middleware"
	"callproxy/protocol"
	"callproxy/registry"

	"github.com/coreos/go-semver/semver"
	"go.uber.org/zap"
)

// Server serves registered services over the frame protocol.
type Server struct {
	log         *zap.Logger
	serviceMap  map[string]*service
	middlewares []middleware.Middleware
	handler     middleware.HandlerFunc
	wg          sync.WaitGroup // in-flight requests
	shutdown    atomic.Bool

	μ             sync.Mutex
	listener      net.Listener
	conns         map[net.Conn]struct{}
	registry      registry.Registry
	advertiseAddr string
	version       string
	ready         chan struct{}
}

// NewServer creates a server with no services. A nil log discards output.
func NewServer(log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	return &Server{
		log:        log,
		serviceMap: make(map[string]*service),
		conns:      make(map[net.Conn]struct{}),
		ready:      make(chan struct{}),
	}
}

// Register registers the exported methods of rcvr under its type name.
func (svr *Server) Register(rcvr any) error { return svr.RegisterName("", rcvr) }

// RegisterName registers the exported methods of rcvr under name.
func (svr *Server) RegisterName(name string, rcvr any) error {
	svc, err := newService(name, rcvr)
	if err != nil {
		return err
	}
	svr.serviceMap[svc.name] = svc
	return nil
}

// SetVersion sets the semantic version announced with every service.
func (svr *Server) SetVersion(v string) error {
	if _, err := semver.NewVersion(v); err != nil {
		return fmt.Errorf("server: %w", err)
	}
	svr.μ.Lock()
	defer svr.μ.Unlock()
	svr.version = v
	return nil
}

// Use appends a middleware; middlewares run in the order added.
func (svr *Server) Use(mw middleware.Middleware) {
	svr.middlewares = append(svr.middlewares, mw)
}

// Serve listens on address and serves until Shutdown. If reg is not nil,
// every registered service is announced at advertiseAddr.
func (svr *Server) Serve(network, address, advertiseAddr string, reg registry.Registry) error {
	ln, err := net.Listen(network, address)
	if err != nil {
		return err
	}
	return svr.ServeListener(ln, advertiseAddr, reg)
}

// ServeListener is like Serve on an existing listener.
func (svr *Server) ServeListener(ln net.Listener, advertiseAddr string, reg registry.Registry) error {
	svr.handler = middleware.Chain(svr.middlewares...)(svr.businessHandler)

	svr.μ.Lock()
	svr.listener = ln
	svr.registry = reg
	svr.advertiseAddr = advertiseAddr
	version := svr.version
	close(svr.ready)
	svr.μ.Unlock()

	if reg != nil {
		for name := range svr.serviceMap {
			inst := registry.ServiceInstance{Addr: advertiseAddr, Version: version}
			if err := reg.Register(context.Background(), name, inst, registry.DefaultTTL); err != nil {
				return fmt.Errorf("register %s: %w", name, err)
			}
		}
	}

	for {
		conn, err := ln.Accept()
		if err != nil {
			if svr.shutdown.Load() {
				return nil
			}
			return err
		}
		svr.μ.Lock()
		svr.conns[conn] = struct{}{}
		svr.μ.Unlock()
		go svr.handleConn(conn)
	}
}

// Addr waits until the server is listening and returns its address.
func (svr *Server) Addr() net.Addr {
	<-svr.ready
	return svr.listener.Addr()
}

// handleConn reads frames sequentially and handles each request on its own
// goroutine. Responses share a per-connection write lock.
func (svr *Server) handleConn(conn net.Conn) {
	defer func() {
		svr.μ.Lock()
		delete(svr.conns, conn)
		svr.μ.Unlock()
		conn.Close()
	}()
	// Handlers see ctx cancelled once the connection is gone.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	writeMu := new(sync.Mutex)
	for {
		header, body, err := protocol.Decode(conn)
		if err != nil {
			return
		}
		if header.MsgType != protocol.MsgTypeRequest {
			continue
		}
		svr.wg.Add(1)
		go svr.handleRequest(ctx, header, body, conn, writeMu)
	}
}

func (svr *Server) handleRequest(ctx context.Context, header *protocol.Header, body []byte, conn net.Conn, writeMu *sync.Mutex) {
	defer svr.wg.Done()

	c := codec.GetCodec(header.CodecType)
	var req message.RPCMessage
	var resp *message.RPCMessage
	if err := c.Decode(body, &req); err != nil {
		resp = &message.RPCMessage{Error: "malformed request: " + err.Error(), ErrorKind: string(failure.KindFault)}
	} else {
		resp = svr.handler(codecContext(ctx, header.CodecType), &req)
	}

	out, err := c.Encode(resp)
	if err != nil {
		svr.log.Error("encode response", zap.String("method", req.ServiceMethod), zap.Error(err))
		out, _ = c.Encode(&message.RPCMessage{Error: "encode response: " + err.Error(), ErrorKind: string(failure.KindFault)})
	}

	writeMu.Lock()
	defer writeMu.Unlock()
	reply := protocol.Header{CodecType: header.CodecType, MsgType: protocol.MsgTypeResponse, Seq: header.Seq}
	if err := protocol.Encode(conn, &reply, out); err != nil {
		svr.log.Debug("write response", zap.Uint32("seq", header.Seq), zap.Error(err))
	}
}

// Shutdown withdraws the services from the registry, stops accepting, waits
// up to timeout for in-flight requests, then closes all connections.
func (svr *Server) Shutdown(timeout time.Duration) error {
	svr.μ.Lock()
	reg, ln := svr.registry, svr.listener
	svr.μ.Unlock()

	if reg != nil {
		for name := range svr.serviceMap {
			if err := reg.Deregister(context.Background(), name, svr.advertiseAddr); err != nil {
				svr.log.Warn("deregister", zap.String("service", name), zap.Error(err))
			}
		}
	}

	// Set the flag before closing so Serve sees the Accept error as intended.
	svr.shutdown.Store(true)
	if ln != nil {
		ln.Close()
	}

	done := make(chan struct{})
	go func() {
		svr.wg.Wait()
		close(done)
	}()
	var err error
	select {
	case <-done:
	case <-time.After(timeout):
		err = errors.New("server: timeout waiting for in-flight requests")
	}

	svr.μ.Lock()
	for conn := range svr.conns {
		conn.Close()
	}
	svr.μ.Unlock()
	return err
}

type codecKey struct{}

func codecContext(ctx context.Context, ct codec.CodecType) context.Context {
	return context.WithValue(ctx, codecKey{}, ct)
}

// businessHandler dispatches "Service.Method" to a registered service.
func (svr *Server) businessHandler(ctx context.Context, req *message.RPCMessage) *message.RPCMessage {
	fail := func(kind failure.Kind, format string, args ...any) *message.RPCMessage {
		return &message.RPCMessage{ServiceMethod: req.ServiceMethod, Error: fmt.Sprintf(format, args...), ErrorKind: string(kind)}
	}

	serviceName, methodName, ok := strings.Cut(req.ServiceMethod, ".")
	if !ok {
		return fail(failure.KindFault, "invalid service method %q", req.ServiceMethod)
	}
	svc := svr.serviceMap[serviceName]
	if svc == nil {
		return fail(failure.KindFault, "unknown service %q", serviceName)
	}
	mt := svc.method[methodName]
	if mt == nil {
		return fail(failure.KindFault, "unknown method %q", req.ServiceMethod)
	}

	ct, _ := ctx.Value(codecKey{}).(codec.CodecType)
	pc := codec.PayloadCodec(ct)

	argv := reflect.New(mt.ArgType)
	replyv := reflect.New(mt.ReplyType)
	if len(req.Payload) != 0 {
		if err := pc.Decode(req.Payload, argv.Interface()); err != nil {
			return fail(failure.KindFault, "decode arguments: %v", err)
		}
	}

	if err := svc.call(ctx, mt, argv, replyv); err != nil {
		kind, _ := failure.KindOf(err)
		return &message.RPCMessage{ServiceMethod: req.ServiceMethod, Error: errorText(err), ErrorKind: string(kind)}
	}

	payload, err := pc.Encode(replyv.Interface())
	if err != nil {
		return fail(failure.KindFault, "encode reply: %v", err)
	}
	return &message.RPCMessage{ServiceMethod: req.ServiceMethod, Payload: payload}
}

// errorText is the message sent for err; a *failure.Failure sends only its
// message, since the kind travels separately.
func errorText(err error) string {
	text := err.Error()
	var f *failure.Failure
	if errors.As(err, &f) && f == err {
		text = f.Message
	}
	if text == "" {
		text = "unknown error"
	}
	return text
}
