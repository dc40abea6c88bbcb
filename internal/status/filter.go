package status

import (
	"fmt"
	"net/netip"
	"strings"

	"go4.org/netipx"
)

// FilterNetworks keeps records whose address lies in any of networks.
// Entries may be prefixes ("10.8.0.0/24") or single addresses. No networks keeps everything.
func FilterNetworks(records []Record, networks []string) ([]Record, error) {
	if len(networks) == 0 {
		return records, nil
	}
	var builder netipx.IPSetBuilder
	for _, raw := range networks {
		entry := strings.TrimSpace(raw)
		if entry == "" {
			continue
		}
		if strings.Contains(entry, "/") {
			prefix, err := netip.ParsePrefix(entry)
			if err != nil {
				return nil, fmt.Errorf("invalid network %q: %w", entry, err)
			}
			builder.AddPrefix(prefix.Masked())
			continue
		}
		addr, err := netip.ParseAddr(entry)
		if err != nil {
			return nil, fmt.Errorf("invalid network %q: %w", entry, err)
		}
		builder.Add(addr.Unmap())
	}
	set, err := builder.IPSet()
	if err != nil {
		return nil, err
	}

	filtered := make([]Record, 0, len(records))
	for _, record := range records {
		addr, err := netip.ParseAddr(record.Address)
		if err != nil {
			continue
		}
		if set.Contains(addr.Unmap()) {
			filtered = append(filtered, record)
		}
	}
	return filtered, nil
}
