// Package discovery implements mDNS/DNS-SD advertisement and browsing for
// SolarLink accessories.
//
// # Accessory Discovery (_solarlink._tcp)
//
// An accessory advertises one instance on its link port. The instance name
// is the accessory name, falling back to SolarLink-<id prefix>.
// TXT records:
//
//	id     accessory identifier (UUID)
//	rssi   signal strength hint in dBm
//	model  model name
//	name   user-visible name (optional)
//	svc    comma-separated 16-bit service type hints, hex
//	cfg    1 once an owner exists, else 0
//
// The cfg record is updated in place when the accessory is set up or
// reset, so centrals can list unclaimed accessories without connecting.
package discovery
