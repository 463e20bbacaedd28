// Package power answers whether the system currently runs on AC or battery.
package power

import (
	"os"
	"path/filepath"
	"strings"
)

// Source is the active power source
type Source string

const (
	AC      Source = "ac"
	Battery Source = "battery"
)

// FromOnline maps a line-power Online flag to a power source
func FromOnline(online bool) Source {
	if online {
		return AC
	}

	return Battery
}

func (s Source) String() string {
	return string(s)
}

// DefaultSupplyGlob matches the line power supply nodes in sysfs
const DefaultSupplyGlob = "/sys/class/power_supply/AC*/online"

// Detect reads the line power state from sysfs. Systems without a matching
// supply node (desktops, VMs) are assumed to be on AC.
func Detect(supplyGlob string) Source {
	if supplyGlob == "" {
		supplyGlob = DefaultSupplyGlob
	}

	paths, err := filepath.Glob(supplyGlob)
	if err != nil {
		return AC
	}

	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			continue
		}

		return FromOnline(strings.TrimSpace(string(data)) == "1")
	}

	return AC
}
