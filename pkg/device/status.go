package device

import (
	"fmt"
	"strconv"
	"strings"
)

// Status is the parsed general status (QPIGS) of the inverter.
type Status struct {
	GridVoltage             float64
	GridFrequency           float64
	OutputVoltage           float64
	OutputFrequency         float64
	OutputApparentPower     uint16
	OutputActivePower       uint16
	OutputLoadPercent       uint8
	BusVoltage              uint16
	BatteryVoltage          float64
	BatteryChargingCurrent  uint16
	BatteryCapacity         uint8
	HeatsinkTemperature     int16
	PVInputCurrent          float64
	PVInputVoltage          float64
	SCCBatteryVoltage       float64
	BatteryDischargeCurrent uint16
	Flags                   StatusFlags

	// PVChargingPower is only reported by newer firmware.
	PVChargingPower uint16
}

// Charging reports whether the battery is being charged.
func (s Status) Charging() bool {
	return s.BatteryChargingCurrent > 0
}

// OutputOn reports whether the AC outlet is powered.
func (s Status) OutputOn() bool {
	return s.OutputVoltage > 0
}

// StatusFlags is the eight character device status bit field of QPIGS,
// most significant bit first.
type StatusFlags uint8

// Status flag bits.
const (
	FlagACChargingOn StatusFlags = 1 << iota
	FlagSCCChargingOn
	FlagChargingOn
	FlagBatteryVoltageSteady
	FlagLoadOn
	FlagSCCFirmwareUpdated
	FlagConfigurationChanged
	FlagSBUPriority
)

// Has reports whether f is set.
func (s StatusFlags) Has(f StatusFlags) bool { return s&f != 0 }

// minStatusFields is the number of fields every firmware reports.
const minStatusFields = 17

// ParseGeneralStatus parses a QPIGS response.
func ParseGeneralStatus(resp string) (Status, error) {
	b, err := body(resp)
	if err != nil {
		return Status{}, err
	}
	fields := strings.Fields(b)
	if len(fields) < minStatusFields {
		return Status{}, fmt.Errorf("%w: general status has %d fields, want at least %d",
			ErrIncompatibleDevice, len(fields), minStatusFields)
	}

	p := fieldParser{fields: fields}
	s := Status{
		GridVoltage:             p.float(0),
		GridFrequency:           p.float(1),
		OutputVoltage:           p.float(2),
		OutputFrequency:         p.float(3),
		OutputApparentPower:     uint16(p.uint(4, 16)),
		OutputActivePower:       uint16(p.uint(5, 16)),
		OutputLoadPercent:       uint8(p.uint(6, 8)),
		BusVoltage:              uint16(p.uint(7, 16)),
		BatteryVoltage:          p.float(8),
		BatteryChargingCurrent:  uint16(p.uint(9, 16)),
		BatteryCapacity:         uint8(p.uint(10, 8)),
		HeatsinkTemperature:     int16(p.int(11, 16)),
		PVInputCurrent:          p.float(12),
		PVInputVoltage:          p.float(13),
		SCCBatteryVoltage:       p.float(14),
		BatteryDischargeCurrent: uint16(p.uint(15, 16)),
		Flags:                   StatusFlags(p.bits(16)),
	}
	if len(fields) > 19 {
		s.PVChargingPower = uint16(p.uint(19, 16))
	}
	if p.err != nil {
		return Status{}, p.err
	}
	return s, nil
}

// fieldParser records the first parse error so the status can be built in
// one expression.
type fieldParser struct {
	fields []string
	err    error
}

func (p *fieldParser) fail(i int, err error) {
	if p.err == nil {
		p.err = fmt.Errorf("%w: general status field %d %q: %v", ErrIncompatibleDevice, i, p.fields[i], err)
	}
}

func (p *fieldParser) float(i int) float64 {
	v, err := strconv.ParseFloat(p.fields[i], 64)
	if err != nil {
		p.fail(i, err)
	}
	return v
}

func (p *fieldParser) uint(i, bitSize int) uint64 {
	v, err := strconv.ParseUint(p.fields[i], 10, bitSize)
	if err != nil {
		p.fail(i, err)
	}
	return v
}

func (p *fieldParser) int(i, bitSize int) int64 {
	v, err := strconv.ParseInt(p.fields[i], 10, bitSize)
	if err != nil {
		p.fail(i, err)
	}
	return v
}

func (p *fieldParser) bits(i int) uint64 {
	if len(p.fields[i]) != 8 {
		p.fail(i, fmt.Errorf("want 8 bits"))
		return 0
	}
	v, err := strconv.ParseUint(p.fields[i], 2, 8)
	if err != nil {
		p.fail(i, err)
	}
	return v
}
