package capture

import (
	"context"
)

// Source is an asynchronous audio producer. Start begins filling the cell
// with capture bursts and returns once the device is running; a failure to
// start is a fatal fault for the node (there is nothing useful to transmit
// without capture). Stop releases the device.
type Source interface {
	Start(ctx context.Context, cell *Cell) error
	Stop() error
}
