package probe

import (
	"context"
	"fmt"
	"net"
	"time"
)

// Prober sends a single measurement probe and reports the round-trip
// time. A timeout or unreachable target is returned as an error and
// counted by the caller as a loss sample, not a monitoring failure.
type Prober interface {
	Probe(ctx context.Context, target string) (time.Duration, error)
}

// UDPProber measures round-trip time against a UDP echo responder on
// the far side of a path. It needs no special privileges.
type UDPProber struct {
	// Payload sent with each probe. Defaults to a small marker.
	Payload []byte
}

// NewUDPProber creates a UDP prober with the default payload.
func NewUDPProber() *UDPProber {
	return &UDPProber{Payload: []byte("meshroute-probe")}
}

// Probe sends one datagram to target (host:port) and waits for any
// response until the context deadline.
func (u *UDPProber) Probe(ctx context.Context, target string) (time.Duration, error) {
	var dialer net.Dialer
	conn, err := dialer.DialContext(ctx, "udp", target)
	if err != nil {
		return 0, fmt.Errorf("dial %s: %w", target, err)
	}
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		if err := conn.SetDeadline(deadline); err != nil {
			return 0, err
		}
	}

	start := time.Now()
	if _, err := conn.Write(u.Payload); err != nil {
		return 0, fmt.Errorf("write %s: %w", target, err)
	}

	buf := make([]byte, 64)
	if _, err := conn.Read(buf); err != nil {
		return 0, fmt.Errorf("read %s: %w", target, err)
	}

	return time.Since(start), nil
}
