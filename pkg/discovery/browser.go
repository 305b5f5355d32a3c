package discovery

import (
	"context"
	"net"
	"slices"
	"sync"
	"time"

	"github.com/enbility/zeroconf/v3"
	"github.com/google/uuid"
)

// Browser finds accessories on the local network.
type Browser interface {
	// Browse streams accessories as they are found. The channel is closed
	// when ctx is cancelled or Stop is called.
	Browse(ctx context.Context) (<-chan *AccessoryService, error)

	// Find returns the accessory with the given identifier.
	Find(ctx context.Context, id uuid.UUID) (*AccessoryService, error)

	// Stop stops all active browsing operations.
	Stop()
}

// BrowserConfig configures browser behavior.
type BrowserConfig struct {
	// BrowseTimeout bounds Find when ctx has no deadline.
	// Default: 10 seconds.
	BrowseTimeout time.Duration

	// Interface specifies which network interface to use.
	// Empty string means all interfaces.
	Interface string
}

// MDNSBrowser implements Browser using zeroconf.
type MDNSBrowser struct {
	config BrowserConfig

	mu      sync.Mutex
	stopped bool
	cancels []context.CancelFunc
}

// NewMDNSBrowser creates a new mDNS browser.
func NewMDNSBrowser(config BrowserConfig) *MDNSBrowser {
	if config.BrowseTimeout <= 0 {
		config.BrowseTimeout = BrowseTimeout
	}
	return &MDNSBrowser{config: config}
}

// Browse implements Browser. Announcements of the same instance on several
// interfaces are merged into one result; an accessory is emitted again
// only after all its addresses were withdrawn.
func (b *MDNSBrowser) Browse(ctx context.Context) (<-chan *AccessoryService, error) {
	ctx, cancel := context.WithCancel(ctx)
	b.mu.Lock()
	if b.stopped {
		b.mu.Unlock()
		cancel()
		return nil, context.Canceled
	}
	b.cancels = append(b.cancels, cancel)
	b.mu.Unlock()

	out := make(chan *AccessoryService)
	entries := make(chan *zeroconf.ServiceEntry)
	removed := make(chan *zeroconf.ServiceEntry)

	go func() {
		defer close(out)

		agg := newAggregator()
		for {
			select {
			case entry, ok := <-entries:
				if !ok {
					return
				}
				svc := serviceFromEntry(entry)
				if svc == nil || !agg.add(svc) {
					continue
				}
				select {
				case out <- svc:
				case <-ctx.Done():
					return
				}

			case entry, ok := <-removed:
				if !ok {
					continue
				}
				agg.remove(entry.Instance, entryAddresses(entry))

			case <-ctx.Done():
				return
			}
		}
	}()

	go func() {
		_ = zeroconf.Browse(ctx, ServiceType, Domain, entries, removed, b.options()...)
	}()

	return out, nil
}

// Find implements Browser.
func (b *MDNSBrowser) Find(ctx context.Context, id uuid.UUID) (*AccessoryService, error) {
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, b.config.BrowseTimeout)
		defer cancel()
	}

	results, err := b.Browse(ctx)
	if err != nil {
		return nil, err
	}
	for {
		select {
		case svc, ok := <-results:
			if !ok {
				return nil, ErrNotFound
			}
			if svc.ID == id {
				return svc, nil
			}
		case <-ctx.Done():
			return nil, ErrNotFound
		}
	}
}

// Stop implements Browser.
func (b *MDNSBrowser) Stop() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.stopped = true
	for _, cancel := range b.cancels {
		cancel()
	}
	b.cancels = nil
}

func (b *MDNSBrowser) options() []zeroconf.ClientOption {
	var opts []zeroconf.ClientOption
	if b.config.Interface != "" {
		if iface, err := net.InterfaceByName(b.config.Interface); err == nil {
			opts = append(opts, zeroconf.SelectIfaces([]net.Interface{*iface}))
		}
	}
	return opts
}

func serviceFromEntry(entry *zeroconf.ServiceEntry) *AccessoryService {
	return newAccessoryService(entry.Instance, entry.HostName, entry.Port, entry.Text, entryAddresses(entry))
}

func entryAddresses(entry *zeroconf.ServiceEntry) []string {
	addrs := make([]string, 0, len(entry.AddrIPv4)+len(entry.AddrIPv6))
	for _, ip := range entry.AddrIPv4 {
		addrs = append(addrs, ip.String())
	}
	for _, ip := range entry.AddrIPv6 {
		addrs = append(addrs, ip.String())
	}
	return addrs
}

// newAccessoryService builds a result from an announcement. It returns nil
// when the TXT records do not describe an accessory.
func newAccessoryService(instance, host string, port int, text []string, addrs []string) *AccessoryService {
	info, err := DecodeTXT(StringsToTXTRecords(text))
	if err != nil {
		return nil
	}
	info.Port = uint16(port)

	return &AccessoryService{
		AccessoryInfo: *info,
		InstanceName:  instance,
		Host:          host,
		Addresses:     addrs,
	}
}

// aggregator merges announcements by instance name.
type aggregator struct {
	services map[string]*AccessoryService
}

func newAggregator() *aggregator {
	return &aggregator{services: make(map[string]*AccessoryService)}
}

// add records svc and reports whether it is a new instance. Addresses of a
// known instance are merged into the stored copy; svc itself is not retained.
func (a *aggregator) add(svc *AccessoryService) bool {
	existing, found := a.services[svc.InstanceName]
	if !found {
		stored := *svc
		stored.Addresses = slices.Clone(svc.Addresses)
		a.services[svc.InstanceName] = &stored
		return true
	}
	for _, addr := range svc.Addresses {
		if !slices.Contains(existing.Addresses, addr) {
			existing.Addresses = append(existing.Addresses, addr)
		}
	}
	return false
}

// remove drops addrs from an instance and forgets it once none remain.
func (a *aggregator) remove(instance string, addrs []string) {
	existing, found := a.services[instance]
	if !found {
		return
	}
	existing.Addresses = slices.DeleteFunc(existing.Addresses, func(addr string) bool {
		return slices.Contains(addrs, addr)
	})
	if len(existing.Addresses) == 0 {
		delete(a.services, instance)
	}
}

var _ Browser = (*MDNSBrowser)(nil)
