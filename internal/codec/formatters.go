package codec

import (
	"fmt"
	"net"
	"net/netip"
	"time"
)

// FormatIPv4 formats a 4-byte IPv4 address.
func FormatIPv4(b []byte) (string, any, error) {
	if len(b) != 4 {
		return "", nil, fmt.Errorf("IPv4 address needs 4 bytes, got %d", len(b))
	}
	addr := netip.AddrFrom4([4]byte(b))
	return addr.String(), addr.String(), nil
}

// FormatIPv6 formats a 16-byte IPv6 address.
func FormatIPv6(b []byte) (string, any, error) {
	if len(b) != 16 {
		return "", nil, fmt.Errorf("IPv6 address needs 16 bytes, got %d", len(b))
	}
	addr := netip.AddrFrom16([16]byte(b))
	return addr.String(), addr.String(), nil
}

// FormatMAC formats a 6-byte hardware address.
func FormatMAC(b []byte) (string, any, error) {
	if len(b) != 6 {
		return "", nil, fmt.Errorf("MAC address needs 6 bytes, got %d", len(b))
	}
	s := net.HardwareAddr(b).String()
	return s, s, nil
}

// FormatDuration formats a big-endian seconds counter of 1 to 8 bytes.
func FormatDuration(b []byte) (string, any, error) {
	if len(b) == 0 || len(b) > 8 {
		return "", nil, fmt.Errorf("duration needs 1 to 8 bytes, got %d", len(b))
	}
	var v uint64
	for _, x := range b {
		v = v<<8 | uint64(x)
	}
	d := time.Duration(v) * time.Second
	return fmt.Sprintf("%d s (%s)", v, d), v, nil
}
