package wazero

import (
	"fmt"

	"github.com/reglet-dev/valbridge/domain/ports"
	"github.com/tetratelabs/wazero/api"
)

// api.Memory already provides the byte and little-endian accessors the
// bridge needs.
var _ ports.Memory = api.Memory(nil)

// GuestMemory returns the linear memory exported by mod.
func GuestMemory(mod api.Module) (ports.Memory, error) {
	mem := mod.Memory()
	if mem == nil {
		return nil, fmt.Errorf("module %q does not export a memory", mod.Name())
	}
	return mem, nil
}
