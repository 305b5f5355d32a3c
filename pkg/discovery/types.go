package discovery

import (
	"errors"
	"net"
	"strconv"
	"time"

	"github.com/google/uuid"
)

const (
	// ServiceType is the DNS-SD service type of an accessory.
	ServiceType = "_solarlink._tcp"

	// Domain is the mDNS domain.
	Domain = "local"

	// DefaultPort is the default link port.
	DefaultPort = 7368
)

// TXT record keys.
const (
	TXTKeyID         = "id"
	TXTKeyRSSI       = "rssi"
	TXTKeyModel      = "model"
	TXTKeyName       = "name"
	TXTKeyServices   = "svc"
	TXTKeyConfigured = "cfg"
)

const (
	// BrowseTimeout is the default timeout for Find.
	BrowseTimeout = 10 * time.Second

	// DefaultTTL is the DNS record TTL used when none is configured.
	DefaultTTL = 120 * time.Second

	// MaxInstanceNameLen is the DNS label limit.
	MaxInstanceNameLen = 63

	// MaxTXTRecordSize is the maximum total TXT record size.
	MaxTXTRecordSize = 400
)

// Discovery errors.
var (
	ErrInvalidTXTRecord    = errors.New("invalid TXT record format")
	ErrMissingRequired     = errors.New("missing required field")
	ErrTXTTooLarge         = errors.New("TXT records exceed size limit")
	ErrInstanceNameTooLong = errors.New("instance name exceeds 63 characters")
	ErrNotFound            = errors.New("accessory not found")
	ErrNotAdvertising      = errors.New("not advertising")
)

// AccessoryInfo is what an accessory announces about itself.
type AccessoryInfo struct {
	ID    uuid.UUID
	Name  string
	Model string

	// RSSI is a signal strength hint in dBm. Zero is omitted.
	RSSI int

	// Services lists the types of the published services.
	Services []uuid.UUID

	Configured bool

	// Port is the link port. Zero selects DefaultPort.
	Port uint16
}

// AccessoryService is an accessory found by a Browser. Addresses from all
// interfaces the announcement arrived on are merged.
type AccessoryService struct {
	AccessoryInfo

	InstanceName string
	Host         string
	Addresses    []string
}

// Addr returns a dialable host:port using the first known address, or the
// host name when no address was resolved.
func (s *AccessoryService) Addr() string {
	host := s.Host
	if len(s.Addresses) > 0 {
		host = s.Addresses[0]
	}
	return net.JoinHostPort(host, strconv.Itoa(int(s.Port)))
}
