package compute

import (
	"fmt"
	"sort"
	"strings"

	"k8s.io/klog/v2"

	"github.com/forcegl/forcegl/drivers"
)

// VendorPolicy is an ordered list of preferred-vendor substrings. A device
// whose vendor string contains any of them sorts ahead of every device that
// matches none, regardless of raw rank. This reproduces a driver-quality
// bias observed in production layouts and is deliberate selection policy,
// not an optimization.
type VendorPolicy []string

// DefaultVendorPolicy prefers NVIDIA hardware, whose compute drivers have
// been the most reliable for long-running layout sessions.
var DefaultVendorPolicy = VendorPolicy{"NVIDIA"}

// Match reports whether the vendor string contains any preferred token.
// Matching is case-insensitive.
func (p VendorPolicy) Match(vendor string) bool {
	v := strings.ToLower(vendor)
	for _, token := range p {
		if strings.Contains(v, strings.ToLower(token)) {
			return true
		}
	}
	return false
}

// Device is the immutable descriptor of one enumerated compute device.
type Device struct {
	Platform string
	Vendor   string
	Name     string
	Class    drivers.Class

	// Rank is the product of the device's per-dimension maximum concurrent
	// work-item counts, a proxy for raw parallel capacity.
	Rank int64

	// SharingSupported reports whether contexts on this device can alias
	// renderer-owned memory.
	SharingSupported bool

	handle drivers.Device
}

func (d *Device) String() string {
	return fmt.Sprintf("%s %q (%s, rank %d)", d.Class, d.Name, d.Vendor, d.Rank)
}

// Enumerate lists the devices of the driver's first platform that pass the
// class filter, ordered best-first: descending by Rank, with
// preferred-vendor devices ahead of all others. A nil policy falls back to
// DefaultVendorPolicy.
//
// It fails with ErrNoPlatform when the driver sees no platform, and with
// ErrNoDevice when the first platform has no device of the requested class.
func Enumerate(drv drivers.Driver, filter drivers.Class, policy VendorPolicy) ([]*Device, error) {
	if policy == nil {
		policy = DefaultVendorPolicy
	}
	platforms, err := drv.Platforms()
	if err != nil {
		return nil, err
	}
	if len(platforms) == 0 {
		return nil, ErrNoPlatform
	}
	handles, err := platforms[0].Devices(filter)
	if err != nil {
		return nil, err
	}
	if len(handles) == 0 {
		return nil, ErrNoDevice
	}

	list := make([]*Device, 0, len(handles))
	for _, h := range handles {
		info := h.Info()
		list = append(list, &Device{
			Platform:         info.Platform,
			Vendor:           info.Vendor,
			Name:             info.Name,
			Class:            info.Class,
			Rank:             workItemRank(info.MaxWorkItemSizes),
			SharingSupported: info.SurfaceSharing,
			handle:           h,
		})
	}
	sort.SliceStable(list, func(i, j int) bool {
		pi, pj := policy.Match(list[i].Vendor), policy.Match(list[j].Vendor)
		if pi != pj {
			return pi
		}
		return list[i].Rank > list[j].Rank
	})
	if klog.V(1).Enabled() {
		for i, d := range list {
			klog.Infof("device %d: %s", i, d)
		}
	}
	return list, nil
}

// workItemRank computes the ranking metric as the product of the
// per-dimension maximum work-item counts. Devices that report no dimensions
// rank zero.
func workItemRank(sizes []int64) int64 {
	if len(sizes) == 0 {
		return 0
	}
	rank := int64(1)
	for _, s := range sizes {
		rank *= s
	}
	return rank
}
