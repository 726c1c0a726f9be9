// Package discovery advertises and finds signaling services on the local
// network over mDNS.
package discovery

import (
	"context"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"

	"github.com/grandcat/zeroconf"
	"github.com/sirupsen/logrus"
)

const (
	domain   = "local."
	pathText = "path="
)

type Service struct {
	Instance string
	Host     string
	Port     int
	Path     string
}

// URL is the websocket address of the service.
func (s Service) URL() string {
	path := s.Path
	if path == "" {
		path = "/ws"
	}
	return "ws://" + net.JoinHostPort(s.Host, strconv.Itoa(s.Port)) + path
}

// Advertise registers the service until the returned shutdown is called.
func Advertise(service string, port int, logger *logrus.Logger) (func(), error) {
	host, _ := os.Hostname()
	server, err := zeroconf.Register(
		fmt.Sprintf("connectsphere-%s", host),
		service,
		domain,
		port,
		[]string{"txtv=0", pathText + "/ws"},
		nil,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to register mDNS service: %w", err)
	}
	logger.Infof("mDNS service registered: %s on port %d", service, port)
	return server.Shutdown, nil
}

// Browse returns the first service found before ctx is done.
func Browse(ctx context.Context, service string, logger *logrus.Logger) (Service, error) {
	resolver, err := zeroconf.NewResolver(nil)
	if err != nil {
		return Service{}, fmt.Errorf("failed to initialize mDNS resolver: %w", err)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	entries := make(chan *zeroconf.ServiceEntry)
	if err := resolver.Browse(ctx, service, domain, entries); err != nil {
		return Service{}, fmt.Errorf("failed to browse for mDNS services: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return Service{}, fmt.Errorf("no %s service found: %w", service, ctx.Err())
		case entry, ok := <-entries:
			if !ok {
				return Service{}, fmt.Errorf("no %s service found", service)
			}
			if svc, ok := fromEntry(entry); ok {
				logger.Infof("mDNS discovered signaling service %s at %s", svc.Instance, svc.URL())
				return svc, nil
			}
		}
	}
}

func fromEntry(entry *zeroconf.ServiceEntry) (Service, bool) {
	if entry == nil {
		return Service{}, false
	}

	svc := Service{Instance: entry.Instance, Port: entry.Port}
	switch {
	case len(entry.AddrIPv4) > 0:
		svc.Host = entry.AddrIPv4[0].String()
	case len(entry.AddrIPv6) > 0:
		svc.Host = entry.AddrIPv6[0].String()
	case entry.HostName != "":
		svc.Host = strings.TrimSuffix(entry.HostName, ".")
	default:
		return Service{}, false
	}

	for _, txt := range entry.Text {
		if strings.HasPrefix(txt, pathText) {
			svc.Path = strings.TrimPrefix(txt, pathText)
		}
	}
	return svc, true
}
