// Package rpc exposes the Runtime over net/rpc (spec.md §6's "binary framed
// RPC"). Protocol Buffers codegen is explicitly out of scope (spec.md §1),
// so this uses the standard library's gob-framed net/rpc instead of gRPC —
// grounded on the pack's remote-procedure-call example, whose Server type
// this mirrors: register-by-name, accept loop in a goroutine, channel-based
// graceful shutdown.
package rpc

import (
	"fmt"
	"log/slog"
	"net"
	"net/rpc"

	"github.com/ariacomputecompany/quiltc/internal/runtimed"
)

// ConfigureNodeSubnetArgs, InjectRouteArgs and RemoveRouteArgs are the
// net/rpc argument types for the three Runtime operations named in spec.md
// §4.3 and §6; all three reply with Reply.
type ConfigureNodeSubnetArgs struct {
	Subnet string
}

type InjectRouteArgs struct {
	Destination  string
	ViaInterface string
}

type RemoveRouteArgs struct {
	Destination string
}

// Reply is shared by all three methods: the in-band {success, error} result
// shape spec.md §6 calls for, since net/rpc surfaces transport failures
// separately via the call's own error return.
type Reply struct {
	Success bool
	Error   string
}

// Service is the net/rpc-registered object. Its method set is the Runtime's
// RPC surface; net/rpc requires exactly this signature shape (exported
// method, two pointer args, single error return).
type Service struct {
	rt *runtimed.Runtime
}

func NewService(rt *runtimed.Runtime) *Service {
	return &Service{rt: rt}
}

func (s *Service) ConfigureNodeSubnet(args *ConfigureNodeSubnetArgs, reply *Reply) error {
	ok, errMsg := s.rt.ConfigureNodeSubnet(args.Subnet)
	reply.Success, reply.Error = ok, errMsg
	return nil
}

func (s *Service) InjectRoute(args *InjectRouteArgs, reply *Reply) error {
	ok, errMsg := s.rt.InjectRoute(args.Destination, args.ViaInterface)
	reply.Success, reply.Error = ok, errMsg
	return nil
}

func (s *Service) RemoveRoute(args *RemoveRouteArgs, reply *Reply) error {
	ok, errMsg := s.rt.RemoveRoute(args.Destination)
	reply.Success, reply.Error = ok, errMsg
	return nil
}

// Server listens on a fixed address and serves the Runtime's net/rpc
// service until Shutdown is called.
type Server struct {
	listener net.Listener
	closing  chan chan error
}

// Listen binds addr and registers svc under the RPC name "Runtime".
func Listen(addr string, svc *Service) (*Server, error) {
	server := rpc.NewServer()
	if err := server.RegisterName("Runtime", svc); err != nil {
		return nil, fmt.Errorf("register runtime rpc service: %w", err)
	}

	l, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listen %s: %w", addr, err)
	}

	s := &Server{listener: l, closing: make(chan chan error)}
	go s.serveLoop(server)
	return s, nil
}

func (s *Server) Addr() string { return s.listener.Addr().String() }

func (s *Server) serveLoop(server *rpc.Server) {
	accepting := make(chan bool, 1)
	serving := make(chan net.Conn, 1)
	accepting <- true
	shutdown := false
	for {
		select {
		case errCh := <-s.closing:
			shutdown = true
			errCh <- s.listener.Close()
			return
		case <-accepting:
			go func() {
				conn, err := s.listener.Accept()
				if err != nil {
					if !shutdown {
						slog.Error("runtime rpc accept failed", "err", err)
					}
					return
				}
				serving <- conn
			}()
		case conn := <-serving:
			go server.ServeConn(conn)
			accepting <- true
		}
	}
}

// Shutdown gracefully stops accepting new connections.
func (s *Server) Shutdown() error {
	errCh := make(chan error)
	s.closing <- errCh
	return <-errCh
}
