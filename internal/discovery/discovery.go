// Package discovery advertises and finds control endpoints on the local
// network over mDNS.
package discovery

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/grandcat/zeroconf"

	"github.com/KentvTran/ftp-from-scratch-to-aws/internal/config"
	"github.com/KentvTran/ftp-from-scratch-to-aws/internal/errors"
)

const domain = "local."

// Endpoint is a server found on the network
type Endpoint struct {
	Instance string
	Host     string
	Port     int
	Text     []string
}

// Address returns host:port suitable for the client's --connect flag
func (e Endpoint) Address() string {
	return net.JoinHostPort(e.Host, strconv.Itoa(e.Port))
}

// Advertise registers the control endpoint on port. The returned function
// withdraws the record.
func Advertise(port int, root string) (func(), error) {
	hostname, err := os.Hostname()
	if err != nil {
		return nil, errors.NewNetworkError("hostname", "", err)
	}

	text := []string{"txtv=1", "root=" + root}
	server, err := zeroconf.Register(hostname, config.ServiceType, domain, port, text, nil)
	if err != nil {
		return nil, errors.NewNetworkError("mdns_register", fmt.Sprintf("%s:%d", hostname, port), err)
	}

	slog.Info("Advertising control endpoint", "instance", hostname, "service", config.ServiceType, "port", port)
	return server.Shutdown, nil
}

// Browse collects servers that answer within wait
func Browse(ctx context.Context, wait time.Duration) ([]Endpoint, error) {
	resolver, err := zeroconf.NewResolver(nil)
	if err != nil {
		return nil, errors.NewNetworkError("mdns_resolver", domain, err)
	}

	ctx, cancel := context.WithTimeout(ctx, wait)
	defer cancel()

	var (
		mu        sync.Mutex
		endpoints []Endpoint
	)
	entries := make(chan *zeroconf.ServiceEntry)
	go func(results <-chan *zeroconf.ServiceEntry) {
		for entry := range results {
			if ep, ok := endpointFromEntry(entry); ok {
				mu.Lock()
				endpoints = append(endpoints, ep)
				mu.Unlock()
			}
		}
	}(entries)

	if err := resolver.Browse(ctx, config.ServiceType, domain, entries); err != nil {
		return nil, errors.NewNetworkError("mdns_browse", config.ServiceType, err)
	}

	<-ctx.Done()

	mu.Lock()
	defer mu.Unlock()
	return append([]Endpoint(nil), endpoints...), nil
}

func endpointFromEntry(entry *zeroconf.ServiceEntry) (Endpoint, bool) {
	if entry == nil || entry.Port == 0 {
		return Endpoint{}, false
	}

	var host string
	switch {
	case len(entry.AddrIPv4) > 0:
		host = entry.AddrIPv4[0].String()
	case len(entry.AddrIPv6) > 0:
		host = entry.AddrIPv6[0].String()
	case entry.HostName != "":
		host = strings.TrimSuffix(entry.HostName, ".")
	default:
		return Endpoint{}, false
	}

	return Endpoint{
		Instance: entry.Instance,
		Host:     host,
		Port:     entry.Port,
		Text:     entry.Text,
	}, true
}
