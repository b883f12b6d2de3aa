//go:build !windows

package ipc

import (
	"net"
	"os"
	"path/filepath"
)

// DefaultAddr is the socket path used when no control address is configured.
func DefaultAddr() string {
	return filepath.Join(os.TempDir(), "loopcap.sock")
}

func Listen(addr string) (net.Listener, error) {
	if addr == "" {
		return nil, os.ErrInvalid
	}
	_ = os.Remove(addr)
	return net.Listen("unix", addr)
}

func Dial(addr string) (net.Conn, error) {
	if addr == "" {
		return nil, os.ErrInvalid
	}
	return net.Dial("unix", addr)
}
