package kernsim

import "errors"

// ErrHalted is returned by a harness that stopped on a fatal allocator fault.
var ErrHalted = errors.New("kernel halted")
