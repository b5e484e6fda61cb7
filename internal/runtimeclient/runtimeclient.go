// Package runtimeclient is the Agent's net/rpc client for the Runtime
// service (spec.md §4.2, §4.3, §6). Grounded on the pack's
// remote-procedure-call example's plugin.Client: dial lazily, reuse the
// connection across calls, and re-dial after a call fails or times out.
// Every outbound call carries a deadline
// (spec.md §6 "each outbound RPC has a per-call timeout"), matching
// controlclient's use of an http.Client timeout for the Controller leg.
package runtimeclient

import (
	"fmt"
	"net"
	"net/rpc"
	"sync"
	"time"

	runtimerpc "github.com/ariacomputecompany/quiltc/internal/runtimed/rpc"
)

type Client struct {
	addr    string
	timeout time.Duration

	mu   sync.Mutex
	conn *rpc.Client
}

func New(addr string, timeout time.Duration) *Client {
	return &Client{addr: addr, timeout: timeout}
}

func (c *Client) dial() (*rpc.Client, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn != nil {
		return c.conn, nil
	}
	netConn, err := net.DialTimeout("tcp", c.addr, c.timeout)
	if err != nil {
		return nil, fmt.Errorf("dial runtime rpc %s: %w", c.addr, err)
	}
	conn := rpc.NewClient(netConn)
	c.conn = conn
	return conn, nil
}

// ConfigureNodeSubnet calls Runtime.ConfigureNodeSubnet.
func (c *Client) ConfigureNodeSubnet(subnet string) (success bool, errMsg string, err error) {
	var reply runtimerpc.Reply
	if err := c.call("Runtime.ConfigureNodeSubnet", &runtimerpc.ConfigureNodeSubnetArgs{Subnet: subnet}, &reply); err != nil {
		return false, "", err
	}
	return reply.Success, reply.Error, nil
}

// InjectRoute calls Runtime.InjectRoute.
func (c *Client) InjectRoute(destination, viaInterface string) (success bool, errMsg string, err error) {
	var reply runtimerpc.Reply
	args := &runtimerpc.InjectRouteArgs{Destination: destination, ViaInterface: viaInterface}
	if err := c.call("Runtime.InjectRoute", args, &reply); err != nil {
		return false, "", err
	}
	return reply.Success, reply.Error, nil
}

// RemoveRoute calls Runtime.RemoveRoute.
func (c *Client) RemoveRoute(destination string) (success bool, errMsg string, err error) {
	var reply runtimerpc.Reply
	if err := c.call("Runtime.RemoveRoute", &runtimerpc.RemoveRouteArgs{Destination: destination}, &reply); err != nil {
		return false, "", err
	}
	return reply.Success, reply.Error, nil
}

// call invokes method asynchronously via rpc.Client.Go so a hung Runtime
// can't block the Agent's reconciliation loop past c.timeout; on timeout
// the connection is dropped so the next call re-dials rather than waiting
// on a call that may still complete late.
func (c *Client) call(method string, args, reply any) error {
	conn, err := c.dial()
	if err != nil {
		return err
	}

	call := conn.Go(method, args, reply, make(chan *rpc.Call, 1))
	select {
	case <-time.After(c.timeout):
		c.dropConn(conn)
		return fmt.Errorf("runtime rpc %s: timed out after %s", method, c.timeout)
	case res := <-call.Done:
		if res.Error != nil {
			c.dropConn(conn)
			return fmt.Errorf("runtime rpc %s: %w", method, res.Error)
		}
		return nil
	}
}

// dropConn discards conn if it is still the client's current connection, so
// a broken or timed-out call doesn't wedge this Client permanently.
func (c *Client) dropConn(conn *rpc.Client) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == conn {
		c.conn = nil
	}
}

func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return nil
	}
	err := c.conn.Close()
	c.conn = nil
	return err
}
