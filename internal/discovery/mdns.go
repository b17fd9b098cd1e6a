package discovery

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"

	"github.com/grandcat/zeroconf"
)

const (
	Service = "_peershare._udp"
	Domain  = "local."
)

var ErrNotFound = errors.New("no tracker found on the local network")

// Advertiser keeps a tracker announced over mDNS until Shutdown.
type Advertiser struct {
	server *zeroconf.Server
}

// Advertise announces a tracker control port under the given instance name
// on every interface.
func Advertise(instance string, port int) (*Advertiser, error) {
	server, err := zeroconf.Register(instance, Service, Domain, port, []string{"txtv=1"}, nil)
	if err != nil {
		return nil, fmt.Errorf("registering mDNS service: %w", err)
	}
	return &Advertiser{server: server}, nil
}

func (a *Advertiser) Shutdown() {
	a.server.Shutdown()
}

// Lookup browses for a tracker until one answers or ctx is done and returns
// its control address as host:port.
func Lookup(ctx context.Context) (string, error) {
	resolver, err := zeroconf.NewResolver()
	if err != nil {
		return "", fmt.Errorf("creating mDNS resolver: %w", err)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	entries := make(chan *zeroconf.ServiceEntry)
	if err := resolver.Browse(ctx, Service, Domain, entries); err != nil {
		return "", fmt.Errorf("browsing for %s: %w", Service, err)
	}

	for {
		select {
		case entry, ok := <-entries:
			if !ok {
				return "", ErrNotFound
			}
			if addr, ok := entryAddr(entry); ok {
				return addr, nil
			}
		case <-ctx.Done():
			return "", ErrNotFound
		}
	}
}

// entryAddr prefers IPv4 since the tracker listens on udp4.
func entryAddr(e *zeroconf.ServiceEntry) (string, bool) {
	if e == nil || e.Port <= 0 {
		return "", false
	}

	var ip net.IP
	switch {
	case len(e.AddrIPv4) > 0:
		ip = e.AddrIPv4[0]
	case len(e.AddrIPv6) > 0:
		ip = e.AddrIPv6[0]
	default:
		return "", false
	}
	return net.JoinHostPort(ip.String(), strconv.Itoa(e.Port)), true
}
