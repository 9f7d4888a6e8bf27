package netutil

import (
	"errors"
	"fmt"
	"net"
)

// ErrNoAddr is returned when neither the preferred address nor any
// candidate can be bound.
var ErrNoAddr = errors.New("netutil: no available bind addresses")

// Listen binds preferred, or the first free candidate when autoFallback is
// set. Returning the listener itself avoids a probe-then-bind race.
func Listen(preferred string, candidates []string, autoFallback bool) (net.Listener, error) {
	if preferred != "" {
		ln, err := net.Listen("tcp", preferred)
		if err == nil {
			return ln, nil
		}
		if !autoFallback {
			return nil, fmt.Errorf("netutil: preferred bind address in use: %s: %w", preferred, err)
		}
	}

	for _, addr := range candidates {
		if addr == preferred {
			continue
		}
		if ln, err := net.Listen("tcp", addr); err == nil {
			return ln, nil
		}
	}
	return nil, ErrNoAddr
}

// IsAddrAvailable reports whether addr can be listened on right now.
func IsAddrAvailable(addr string) bool {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return false
	}
	_ = ln.Close()
	return true
}
