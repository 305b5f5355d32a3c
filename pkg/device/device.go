package device

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Device errors.
var (
	ErrIncompatibleDevice = errors.New("incompatible device")
	ErrTimeout            = errors.New("device query timed out")
	ErrUnknownCommand     = fmt.Errorf("%w: unknown command", ErrIncompatibleDevice)
)

// Well-known queries.
const (
	QueryProtocolID    = "QPI"
	QuerySerialNumber  = "QID"
	QueryMode          = "QMOD"
	QueryGeneralStatus = "QPIGS"
)

// DefaultQueryTimeout bounds a single query when the caller sets none.
const DefaultQueryTimeout = 5 * time.Second

// Device sends a query and returns the raw response line.
type Device interface {
	Query(ctx context.Context, command string) (string, error)
}

// Query runs command on d with timeout. A timeout surfaces as ErrTimeout
// and any other failure as ErrIncompatibleDevice.
func Query(ctx context.Context, d Device, command string, timeout time.Duration) (string, error) {
	if timeout <= 0 {
		timeout = DefaultQueryTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type result struct {
		resp string
		err  error
	}
	done := make(chan result, 1)
	go func() {
		resp, err := d.Query(ctx, command)
		done <- result{resp, err}
	}()

	select {
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return "", fmt.Errorf("%w: %s", ErrTimeout, command)
		}
		return "", ctx.Err()
	case r := <-done:
		switch {
		case r.err == nil:
			return r.resp, nil
		case errors.Is(r.err, context.DeadlineExceeded):
			return "", fmt.Errorf("%w: %s", ErrTimeout, command)
		case errors.Is(r.err, ErrIncompatibleDevice), errors.Is(r.err, context.Canceled):
			return "", r.err
		default:
			return "", fmt.Errorf("%w: %s: %v", ErrIncompatibleDevice, command, r.err)
		}
	}
}

// body strips the response marker and line terminator.
func body(resp string) (string, error) {
	resp = strings.TrimRight(resp, "\r\n\x00 ")
	if !strings.HasPrefix(resp, "(") {
		return "", fmt.Errorf("%w: response %q has no marker", ErrIncompatibleDevice, resp)
	}
	return resp[1:], nil
}

// ParseProtocolID parses a QPI response such as "(PI30".
func ParseProtocolID(resp string) (uint32, error) {
	b, err := body(resp)
	if err != nil {
		return 0, err
	}
	digits, ok := strings.CutPrefix(b, "PI")
	if !ok {
		return 0, fmt.Errorf("%w: protocol id %q", ErrIncompatibleDevice, b)
	}
	n, err := strconv.ParseUint(digits, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("%w: protocol id %q", ErrIncompatibleDevice, b)
	}
	return uint32(n), nil
}

// ParseSerialNumber parses a QID response.
func ParseSerialNumber(resp string) (string, error) {
	b, err := body(resp)
	if err != nil {
		return "", err
	}
	if b == "" {
		return "", fmt.Errorf("%w: empty serial number", ErrIncompatibleDevice)
	}
	return b, nil
}

// Mode is the inverter operating mode reported by QMOD.
type Mode byte

// Operating modes.
const (
	ModePowerOn     Mode = 'P'
	ModeStandby     Mode = 'S'
	ModeLine        Mode = 'L'
	ModeBattery     Mode = 'B'
	ModeFault       Mode = 'F'
	ModePowerSaving Mode = 'H'
)

// String returns the mode name.
func (m Mode) String() string {
	switch m {
	case ModePowerOn:
		return "power-on"
	case ModeStandby:
		return "standby"
	case ModeLine:
		return "line"
	case ModeBattery:
		return "battery"
	case ModeFault:
		return "fault"
	case ModePowerSaving:
		return "power-saving"
	default:
		return fmt.Sprintf("Mode(%c)", m)
	}
}

func (m Mode) valid() bool {
	switch m {
	case ModePowerOn, ModeStandby, ModeLine, ModeBattery, ModeFault, ModePowerSaving:
		return true
	}
	return false
}

// ParseMode parses a QMOD response such as "(B".
func ParseMode(resp string) (Mode, error) {
	b, err := body(resp)
	if err != nil {
		return 0, err
	}
	if len(b) != 1 {
		return 0, fmt.Errorf("%w: mode %q", ErrIncompatibleDevice, b)
	}
	m := Mode(b[0])
	if !m.valid() {
		return 0, fmt.Errorf("%w: mode %q", ErrIncompatibleDevice, b)
	}
	return m, nil
}
