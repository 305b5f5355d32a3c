package interactive

import (
	"cmp"
	"encoding/hex"
	"fmt"
	"io"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/solarlink/solarlink-go/pkg/attribute"
	"github.com/solarlink/solarlink-go/pkg/credential"
	"github.com/solarlink/solarlink-go/pkg/discovery"
	"github.com/solarlink/solarlink-go/pkg/profile"
	"github.com/solarlink/solarlink-go/pkg/session"
)

// formatValue renders an attribute value for the terminal.
func formatValue(v attribute.Value) string {
	switch v.Format() {
	case attribute.FormatBool:
		b, _ := v.AsBool()
		return strconv.FormatBool(b)
	case attribute.FormatUint8, attribute.FormatUint16, attribute.FormatUint32, attribute.FormatUint64:
		n, _ := v.AsUint()
		return strconv.FormatUint(n, 10)
	case attribute.FormatInt32, attribute.FormatInt64:
		n, _ := v.AsInt()
		return strconv.FormatInt(n, 10)
	case attribute.FormatFloat32:
		f, _ := v.AsFloat()
		return strconv.FormatFloat(f, 'g', -1, 32)
	case attribute.FormatFloat64:
		f, _ := v.AsFloat()
		return strconv.FormatFloat(f, 'g', -1, 64)
	case attribute.FormatString:
		s, _ := v.AsString()
		return strconv.Quote(s)
	case attribute.FormatUUID:
		id, _ := v.AsUUID()
		return id.String()
	case attribute.FormatData:
		b, _ := v.AsData()
		if len(b) == 0 {
			return "(empty)"
		}
		return hex.EncodeToString(b)
	case attribute.FormatList:
		items, _ := v.Items()
		parts := make([]string, len(items))
		for i, it := range items {
			parts[i] = formatValue(it)
		}
		return "[" + strings.Join(parts, ", ") + "]"
	}
	return "(unset)"
}

// printServices lists the cached services and attributes in handle order.
func printServices(w io.Writer, cache *session.Cache) {
	type group struct {
		service uuid.UUID
		attrs   []attribute.AttributeInfo
	}
	var groups []group
	for _, svc := range cache.Services() {
		attrs := cache.Attributes(svc)
		slices.SortFunc(attrs, func(a, b attribute.AttributeInfo) int { return cmp.Compare(a.Handle, b.Handle) })
		groups = append(groups, group{svc, attrs})
	}
	slices.SortFunc(groups, func(a, b group) int {
		if len(a.attrs) == 0 || len(b.attrs) == 0 {
			return cmp.Compare(len(a.attrs), len(b.attrs))
		}
		return cmp.Compare(a.attrs[0].Handle, b.attrs[0].Handle)
	})

	for _, g := range groups {
		fmt.Fprintln(w, profile.Name(g.service))
		for _, a := range g.attrs {
			fmt.Fprintf(w, "  %-18s %-8s %-24s [handle %d]\n", profile.Name(a.Type), a.Format, a.Properties, a.Handle)
		}
	}
}

func printRoster(w io.Writer, items []credential.Item) {
	if len(items) == 0 {
		fmt.Fprintln(w, "No credentials")
		return
	}
	fmt.Fprintf(w, "%-36s  %-20s %-6s %s\n", "ID", "Name", "Perm", "State")
	fmt.Fprintln(w, strings.Repeat("-", 74))
	for _, it := range items {
		state := "confirmed"
		if it.Pending() {
			state = "pending"
		}
		fmt.Fprintf(w, "%-36s  %-20s %-6s %s\n", it.ID(), it.Name(), it.Permission(), state)
	}
}

func printAccessory(w io.Writer, idx int, svc *discovery.AccessoryService) {
	configured := "unconfigured"
	if svc.Configured {
		configured = "configured"
	}
	fmt.Fprintf(w, "  %d. %s (%s, %s)\n", idx, svc.InstanceName, svc.Model, configured)
	fmt.Fprintf(w, "     id:      %s\n", svc.ID)
	fmt.Fprintf(w, "     address: %s  rssi: %d\n", svc.Addr(), svc.RSSI)
}

// parseTTL parses an invitation lifetime. An empty string never expires.
func parseTTL(s string, now time.Time) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return time.Time{}, err
	}
	if d <= 0 {
		return time.Time{}, fmt.Errorf("lifetime must be positive, got %s", d)
	}
	return now.Add(d), nil
}
