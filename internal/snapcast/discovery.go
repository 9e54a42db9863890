package snapcast

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/grandcat/zeroconf"
)

const mdnsService = "_snapcast-jsonrpc._tcp"

// Discover browses mDNS for a Snapcast JSON-RPC endpoint and returns the
// first host:port found within timeout.
func Discover(ctx context.Context, timeout time.Duration) (string, error) {
	resolver, err := zeroconf.NewResolver(nil)
	if err != nil {
		return "", fmt.Errorf("snapcast: mdns resolver: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	entries := make(chan *zeroconf.ServiceEntry)
	if err := resolver.Browse(ctx, mdnsService, "local.", entries); err != nil {
		return "", fmt.Errorf("snapcast: mdns browse: %w", err)
	}

	for entry := range entries {
		if entry == nil || len(entry.AddrIPv4) == 0 {
			continue
		}
		addr := fmt.Sprintf("%s:%d", entry.AddrIPv4[0], entry.Port)
		slog.Info("snapcast: discovered server", "instance", entry.Instance, "address", addr)
		return addr, nil
	}
	return "", fmt.Errorf("snapcast: no server found within %s", timeout)
}
