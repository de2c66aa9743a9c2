//go:build linux || darwin

package backend

import (
	"fmt"
	"os"

	"golang.zx2c4.com/wireguard/tun"
)

// tunFromFD adopts a host-provided TUN descriptor. The engine owns the
// descriptor from here on; closing the device closes it.
func tunFromFD(fd, mtu int) (tun.Device, error) {
	file := os.NewFile(uintptr(fd), "/dev/net/tun")
	if file == nil {
		return nil, fmt.Errorf("invalid tun descriptor %d", fd)
	}
	dev, err := tun.CreateTUNFromFile(file, mtu)
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("adopting tun descriptor %d: %w", fd, err)
	}
	return dev, nil
}
