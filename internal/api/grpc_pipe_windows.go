//go:build windows

package api

import (
	"net"
	"strings"

	"github.com/Microsoft/go-winio"
)

func listenGRPC(addr string) (net.Listener, error) {
	if path, ok := strings.CutPrefix(addr, "npipe:"); ok {
		return winio.ListenPipe(path, nil)
	}
	return net.Listen("tcp", addr)
}
