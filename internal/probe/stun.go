package probe

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/pion/stun/v3"
)

const (
	NATTypeUnknown          = "unknown"
	NATTypeSymmetric        = "symmetric"
	NATTypeConeOrRestricted = "cone_or_restricted"
)

// STUNChecker probes reachability with a STUN binding request. Useful when
// the health endpoint is not HTTP-reachable (captive portals, proxies) or
// when the caller wants a transport-level answer.
type STUNChecker struct {
	Servers []string
	Timeout time.Duration
}

// NewSTUNChecker builds a checker over the given STUN servers. The first
// server to answer decides the RTT.
func NewSTUNChecker(servers []string, timeout time.Duration) *STUNChecker {
	return &STUNChecker{Servers: servers, Timeout: timeout}
}

func (c *STUNChecker) Name() string { return "stun" }

// Check issues a binding request against each server until one answers.
func (c *STUNChecker) Check(ctx context.Context) (time.Duration, error) {
	if len(c.Servers) == 0 {
		return 0, fmt.Errorf("no STUN servers configured")
	}

	var lastErr error
	for _, server := range c.Servers {
		start := time.Now()
		if _, err := bindingRequest(ctx, server, c.Timeout); err != nil {
			lastErr = err
			continue
		}
		return time.Since(start), nil
	}
	return 0, lastErr
}

// MappedAddresses queries every server and returns the observed mapped
// addresses, for NAT classification.
func (c *STUNChecker) MappedAddresses(ctx context.Context) ([]string, error) {
	addrs := make([]string, 0, len(c.Servers))
	var lastErr error
	for _, server := range c.Servers {
		addr, err := bindingRequest(ctx, server, c.Timeout)
		if err != nil {
			lastErr = err
			continue
		}
		addrs = append(addrs, addr)
	}
	if len(addrs) == 0 {
		if lastErr == nil {
			lastErr = fmt.Errorf("STUN probe failed")
		}
		return nil, lastErr
	}
	return addrs, nil
}

// Classify infers NAT type by comparing mapped addresses from multiple servers.
func Classify(addrs []string) string {
	if len(addrs) < 2 {
		return NATTypeUnknown
	}
	first := addrs[0]
	for _, addr := range addrs[1:] {
		if addr != first {
			return NATTypeSymmetric
		}
	}
	return NATTypeConeOrRestricted
}

func bindingRequest(ctx context.Context, server string, timeout time.Duration) (string, error) {
	uriStr := strings.TrimSpace(server)
	if uriStr == "" {
		return "", fmt.Errorf("empty STUN server")
	}
	if !strings.HasPrefix(uriStr, "stun:") {
		uriStr = "stun:" + uriStr
	}

	uri, err := stun.ParseURI(uriStr)
	if err != nil {
		return "", err
	}

	client, err := stun.DialURI(uri, &stun.DialConfig{})
	if err != nil {
		return "", err
	}
	defer client.Close()

	msg := stun.MustBuild(stun.TransactionID, stun.BindingRequest)
	result := make(chan stun.XORMappedAddress, 1)
	fail := make(chan error, 1)

	go func() {
		var addr stun.XORMappedAddress
		err := client.Do(msg, func(res stun.Event) {
			if res.Error != nil {
				fail <- res.Error
				return
			}
			if err := addr.GetFrom(res.Message); err != nil {
				fail <- err
				return
			}
			result <- addr
		})
		if err != nil {
			fail <- err
		}
	}()

	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	select {
	case addr := <-result:
		return addr.String(), nil
	case err := <-fail:
		return "", err
	case <-ctx.Done():
		return "", ctx.Err()
	}
}
