package net

import (
	"context"
	"fmt"
	"net"
	"os"
	"time"

	"github.com/hashicorp/mdns"
)

const ServiceType = "_canvasboard._tcp"

// Advertise announces a mirror hub on port. Shut the server down to stop.
func Advertise(port int) (*mdns.Server, error) {
	host, err := os.Hostname()
	if err != nil {
		return nil, fmt.Errorf("could not get hostname: %w", err)
	}
	var ips []net.IP
	if ip, err := OutgoingIP(); err == nil {
		ips = []net.IP{net.ParseIP(ip)}
	}

	service, err := mdns.NewMDNSService(host, ServiceType, "", "", port, ips, []string{"CanvasBoard"})
	if err != nil {
		return nil, fmt.Errorf("failed to create mDNS service: %w", err)
	}
	server, err := mdns.NewServer(&mdns.Config{Zone: service})
	if err != nil {
		return nil, fmt.Errorf("failed to start mDNS server: %w", err)
	}
	return server, nil
}

// Browse looks for hubs until timeout or ctx is done and returns their
// host:port addresses.
func Browse(ctx context.Context, timeout time.Duration) ([]string, error) {
	entries := make(chan *mdns.ServiceEntry, 8)
	var found []string
	done := make(chan struct{})
	go func() {
		defer close(done)
		for e := range entries {
			if addr := entryAddr(e); addr != "" {
				found = append(found, addr)
			}
		}
	}()

	if dl, ok := ctx.Deadline(); ok {
		timeout = min(timeout, time.Until(dl))
	}
	err := mdns.Query(&mdns.QueryParam{
		Service:     ServiceType,
		Domain:      "local",
		Timeout:     timeout,
		Entries:     entries,
		DisableIPv6: true,
	})
	close(entries)
	<-done
	if err != nil {
		return nil, fmt.Errorf("browse %s: %w", ServiceType, err)
	}
	return found, nil
}

func entryAddr(e *mdns.ServiceEntry) string {
	if e == nil || e.AddrV4 == nil || e.Port == 0 {
		return ""
	}
	return net.JoinHostPort(e.AddrV4.String(), fmt.Sprint(e.Port))
}
