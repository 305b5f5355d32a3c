//go:build tools

package tools

// Pins mockery in go.mod so `go run github.com/vektra/mockery/v2` uses the
// same version everywhere. Mocks in this module are hand-maintained in the
// mockery style and can be regenerated with it.
import (
	_ "github.com/vektra/mockery/v2"
)
