//go:build !linux

package can

import "fmt"

// DialSocketCAN is only available on Linux.
func DialSocketCAN(ifname string) (Transport, error) {
	return nil, fmt.Errorf("%w: socketcan %q", ErrUnsupported, ifname)
}
