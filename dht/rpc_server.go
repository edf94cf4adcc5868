package dht

import (
	"context"
	"expvar"
	"net"
	"net/http"
	"net/rpc"
	"strconv"
	"sync"
	"time"

	"github.com/cenkalti/dhtcrawler/internal/logger"
	"github.com/powerman/rpc-codec/jsonrpc2"
)

type rpcServer struct {
	rpcServer  *rpc.Server
	httpServer http.Server
	log        logger.Logger

	m    sync.Mutex
	addr net.Addr
	done chan struct{}
}

func newRPCServer(n *Node) *rpcServer {
	h := &rpcHandler{node: n}
	srv := rpc.NewServer()
	_ = srv.RegisterName("DHT", h)

	mux := http.NewServeMux()
	mux.Handle("/debug/vars", expvar.Handler())
	mux.Handle("/", jsonrpc2.HTTPHandler(srv))

	return &rpcServer{
		rpcServer: srv,
		httpServer: http.Server{
			Handler:           mux,
			ReadHeaderTimeout: 10 * time.Second,
		},
		log: logger.New("rpc server"),
	}
}

func (s *rpcServer) Start(host string, port int) error {
	addr := net.JoinHostPort(host, strconv.Itoa(port))
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	s.m.Lock()
	s.addr = listener.Addr()
	s.done = make(chan struct{})
	s.m.Unlock()

	s.log.Infoln("RPC server is listening on", listener.Addr().String())

	go func() {
		defer close(s.done)
		err := s.httpServer.Serve(listener)
		if err == http.ErrServerClosed {
			return
		}
		s.log.Errorln("rpc server stopped:", err)
	}()

	return nil
}

// Addr returns the listening address. Nil before Start.
func (s *rpcServer) Addr() net.Addr {
	s.m.Lock()
	defer s.m.Unlock()
	return s.addr
}

func (s *rpcServer) Stop(timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	err := s.httpServer.Shutdown(ctx)
	s.m.Lock()
	done := s.done
	s.m.Unlock()
	if done != nil {
		<-done
	}
	return err
}

// RPCAddr returns the address of the control RPC server or nil if it is not running.
func (n *Node) RPCAddr() net.Addr {
	if n.rpc == nil {
		return nil
	}
	return n.rpc.Addr()
}
