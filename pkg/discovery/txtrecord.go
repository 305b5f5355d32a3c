package discovery

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/solarlink/solarlink-go/pkg/profile"
)

// TXTRecordMap is a map of TXT record key-value pairs.
type TXTRecordMap map[string]string

// EncodeTXT creates the TXT records for an accessory announcement.
func EncodeTXT(info *AccessoryInfo) (TXTRecordMap, error) {
	txt := make(TXTRecordMap)

	txt[TXTKeyID] = info.ID.String()
	txt[TXTKeyModel] = info.Model
	txt[TXTKeyServices] = encodeServices(info.Services)
	txt[TXTKeyConfigured] = "0"
	if info.Configured {
		txt[TXTKeyConfigured] = "1"
	}

	if info.Name != "" {
		txt[TXTKeyName] = info.Name
	}
	if info.RSSI != 0 {
		txt[TXTKeyRSSI] = strconv.Itoa(info.RSSI)
	}

	size := 0
	for k, v := range txt {
		// length byte, key, '=', value
		size += 1 + len(k) + 1 + len(v)
	}
	if size > MaxTXTRecordSize {
		return nil, fmt.Errorf("%w: %d bytes", ErrTXTTooLarge, size)
	}
	return txt, nil
}

// DecodeTXT parses the TXT records of an accessory announcement.
func DecodeTXT(txt TXTRecordMap) (*AccessoryInfo, error) {
	info := &AccessoryInfo{}

	idStr, ok := txt[TXTKeyID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrMissingRequired, TXTKeyID)
	}
	id, err := uuid.Parse(idStr)
	if err != nil {
		return nil, fmt.Errorf("%w: id %q", ErrInvalidTXTRecord, idStr)
	}
	info.ID = id

	info.Model, ok = txt[TXTKeyModel]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrMissingRequired, TXTKeyModel)
	}

	cfg, ok := txt[TXTKeyConfigured]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrMissingRequired, TXTKeyConfigured)
	}
	switch cfg {
	case "0":
	case "1":
		info.Configured = true
	default:
		return nil, fmt.Errorf("%w: cfg %q", ErrInvalidTXTRecord, cfg)
	}

	info.Services, err = parseServices(txt[TXTKeyServices])
	if err != nil {
		return nil, err
	}

	if s, ok := txt[TXTKeyRSSI]; ok {
		rssi, err := strconv.Atoi(s)
		if err != nil {
			return nil, fmt.Errorf("%w: rssi %q", ErrInvalidTXTRecord, s)
		}
		info.RSSI = rssi
	}
	info.Name = txt[TXTKeyName]

	return info, nil
}

// encodeServices renders the 16-bit suffixes of the service types. Types
// outside the accessory base are skipped.
func encodeServices(types []uuid.UUID) string {
	strs := make([]string, 0, len(types))
	for _, t := range types {
		if short, ok := profile.ShortID(t); ok {
			strs = append(strs, fmt.Sprintf("%04x", short))
		}
	}
	return strings.Join(strs, ",")
}

func parseServices(s string) ([]uuid.UUID, error) {
	if s == "" {
		return nil, nil
	}

	parts := strings.Split(s, ",")
	types := make([]uuid.UUID, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		n, err := strconv.ParseUint(p, 16, 16)
		if err != nil {
			return nil, fmt.Errorf("%w: invalid service hint %q", ErrInvalidTXTRecord, p)
		}
		types = append(types, profile.TypeFor(uint16(n)))
	}
	return types, nil
}

// TXTRecordsToStrings converts a TXTRecordMap to sorted "key=value" strings.
func TXTRecordsToStrings(txt TXTRecordMap) []string {
	result := make([]string, 0, len(txt))
	for k, v := range txt {
		result = append(result, k+"="+v)
	}
	sort.Strings(result)
	return result
}

// StringsToTXTRecords parses a slice of "key=value" strings into a TXTRecordMap.
func StringsToTXTRecords(strs []string) TXTRecordMap {
	txt := make(TXTRecordMap)
	for _, s := range strs {
		k, v, found := strings.Cut(s, "=")
		if found {
			txt[k] = v
		} else if k != "" {
			// Key without value (boolean flag)
			txt[k] = ""
		}
	}
	return txt
}

// InstanceName returns the DNS-SD instance name of an accessory.
func InstanceName(info *AccessoryInfo) string {
	name := info.Name
	if name == "" {
		name = "SolarLink-" + info.ID.String()[:8]
	}
	if len(name) > MaxInstanceNameLen {
		name = name[:MaxInstanceNameLen]
	}
	return name
}
