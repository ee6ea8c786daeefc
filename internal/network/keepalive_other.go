//go:build !linux

package network

import (
	"net"
	"time"
)

// Probe interval and count are left at the platform defaults; the idle
// period is still applied through SetKeepAlivePeriod.
func setKeepAliveProbes(conn *net.TCPConn, idle, interval time.Duration, count int) error {
	return nil
}
