package connection

import "sort"

// ScannedDevice is one ephemeral scan result. The whole list is replaced
// on every scan.
type ScannedDevice struct {
	ID               string   `json:"id"`
	Name             string   `json:"name"`
	RSSI             int      `json:"rssi"`
	Connectable      bool     `json:"connectable"`
	AddressType      string   `json:"address_type"`
	Services         []string `json:"services"`
	ManufacturerData []string `json:"manufacturer_data"`
	ServiceData      []string `json:"service_data"`
}

// sortScanned orders scan results for display: named devices first in
// reverse-lexicographic order, then unnamed devices by descending signal
// strength.
func sortScanned(devices []ScannedDevice) {
	sort.SliceStable(devices, func(i, j int) bool {
		a, b := devices[i], devices[j]
		switch {
		case a.Name != "" && b.Name != "":
			return a.Name > b.Name
		case a.Name != "":
			return true
		case b.Name != "":
			return false
		default:
			return a.RSSI > b.RSSI
		}
	})
}
