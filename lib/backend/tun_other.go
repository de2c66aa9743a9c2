//go:build !linux && !darwin

package backend

import (
	"fmt"

	"golang.zx2c4.com/wireguard/tun"
)

// tunFromFD is unsupported on this platform; callers fall back to the
// netstack device by passing a negative descriptor.
func tunFromFD(fd, mtu int) (tun.Device, error) {
	return nil, fmt.Errorf("host tun descriptors are not supported on this platform")
}
