package portspawn

import "github.com/dutlab/portspawn/internal/core/spawn"

// Match holds a successful expect result: the full matched bytes and
// any capture groups, addressable by index or by name.
type Match = spawn.Match

// ReceiveCallback observes raw chunks as the reader drains them. It is
// invoked on the reader goroutine, so it must not block and must not
// call back into the port.
type ReceiveCallback = spawn.ReceiveCallback
