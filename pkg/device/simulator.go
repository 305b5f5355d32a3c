package device

import (
	"context"
	"fmt"
	"maps"
	"sync"
)

// Canned responses of a PI30 inverter running on battery.
const (
	SimulatedProtocolID    = "(PI30"
	SimulatedSerialNumber  = "(92631807100358"
	SimulatedMode          = "(B"
	SimulatedGeneralStatus = "(001.0 00.0 229.0 60.0 0000 0000 000 350 24.83 005 045 0422 0006 024.5 24.89 00000 10010110 00 03 00157 000"
)

// Simulator is a Device that answers from a table of canned responses.
// It is safe for concurrent use.
type Simulator struct {
	mu        sync.RWMutex
	responses map[string]string
	queries   int
}

// NewSimulator returns a Simulator preloaded with the PI30 responses.
func NewSimulator() *Simulator {
	return &Simulator{
		responses: map[string]string{
			QueryProtocolID:    SimulatedProtocolID,
			QuerySerialNumber:  SimulatedSerialNumber,
			QueryMode:          SimulatedMode,
			QueryGeneralStatus: SimulatedGeneralStatus,
		},
	}
}

// Set replaces the response to command.
func (s *Simulator) Set(command, response string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.responses[command] = response
}

// Responses returns a copy of the response table.
func (s *Simulator) Responses() map[string]string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return maps.Clone(s.responses)
}

// Queries returns how many queries were answered.
func (s *Simulator) Queries() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.queries
}

// Query implements Device.
func (s *Simulator) Query(ctx context.Context, command string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	resp, ok := s.responses[command]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownCommand, command)
	}
	s.queries++
	return resp, nil
}

var _ Device = (*Simulator)(nil)
