// Package discovery advertises and finds ferry relays on the local network
// via mDNS. Only the endpoint location goes into the TXT record; tokens are
// never broadcast.
package discovery

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/grandcat/zeroconf"
)

const serviceType = "_ferry._tcp"

// Advertiser represents an active mDNS advertisement.
type Advertiser struct {
	server *zeroconf.Server
}

// Service describes a discovered relay endpoint.
type Service struct {
	Name  string
	IP    net.IP
	Port  int
	Path  string
	WSURL string
}

// Advertise publishes the relay over mDNS.
// path is the websocket endpoint path including the leading slash.
func Advertise(instance, path string, ip net.IP, port int) (*Advertiser, error) {
	if ip == nil {
		return nil, fmt.Errorf("ip is required")
	}

	txt := []string{
		"path=" + path,
		"ip=" + ip.String(),
	}

	srv, err := zeroconf.Register(instance, serviceType, "local.", port, txt, nil)
	if err != nil {
		return nil, err
	}

	return &Advertiser{server: srv}, nil
}

// Close stops advertising.
func (a *Advertiser) Close() {
	if a != nil && a.server != nil {
		a.server.Shutdown()
	}
}

// Browse discovers relays via mDNS, collecting responses until timeout.
func Browse(ctx context.Context, timeout time.Duration) ([]Service, error) {
	resolver, err := zeroconf.NewResolver(nil)
	if err != nil {
		return nil, err
	}

	entries := make(chan *zeroconf.ServiceEntry)
	results := []Service{}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for e := range entries {
			if len(e.AddrIPv4) == 0 {
				continue
			}
			ip := e.AddrIPv4[0]
			path := attr(e, "path")
			if path == "" {
				path = "/ws"
			}
			results = append(results, Service{
				Name:  e.Instance,
				IP:    ip,
				Port:  e.Port,
				Path:  path,
				WSURL: fmt.Sprintf("ws://%s:%d%s", ip.String(), e.Port, path),
			})
		}
	}()

	err = resolver.Browse(ctx, serviceType, "local.", entries)
	if err != nil && !errors.Is(err, context.DeadlineExceeded) {
		return nil, err
	}

	<-ctx.Done()

	// zeroconf closes the entries channel when Browse returns.
	<-done

	return results, nil
}

func attr(e *zeroconf.ServiceEntry, key string) string {
	prefix := key + "="
	for _, t := range e.Text {
		if strings.HasPrefix(t, prefix) {
			return t[len(prefix):]
		}
	}
	return ""
}
