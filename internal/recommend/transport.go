package recommend

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"
)

// guardedTransport refuses connections to loopback, private and
// link-local ranges. Applied when the recommendation base URL comes from
// operator configuration that may be attacker-influenced.
var guardedTransport = &http.Transport{
	DialContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
		dialer := &net.Dialer{Timeout: 5 * time.Second}
		conn, err := dialer.DialContext(ctx, network, addr)
		if err != nil {
			return nil, err
		}

		host, _, _ := net.SplitHostPort(conn.RemoteAddr().String())
		ip := net.ParseIP(host)
		if ip == nil {
			conn.Close()
			return nil, fmt.Errorf("failed to parse remote IP for %q", addr)
		}

		if ip.IsLoopback() || ip.IsPrivate() || ip.IsLinkLocalUnicast() {
			conn.Close()
			return nil, fmt.Errorf("access to private IP %s is denied", ip)
		}

		return conn, nil
	},
}

// WithSSRFGuard restricts outbound calls to public addresses.
func WithSSRFGuard() ClientOption {
	return func(c *Client) {
		c.httpClient = &http.Client{
			Timeout:   c.httpClient.Timeout,
			Transport: guardedTransport,
		}
	}
}
