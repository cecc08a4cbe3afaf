package portspawn

import (
	"time"

	"github.com/dutlab/portspawn/internal/core/endpoint"
)

// Endpoint is the raw byte transport a Port drains and writes to.
// Implementations include serial devices, shell processes, and wrapped
// streams; any transport satisfying this interface can back a Port.
type Endpoint interface {
	// ReadBytes returns whatever bytes are available, blocking for at
	// most timeout. A (nil, nil) return means the endpoint stayed
	// quiet; an error means it is no longer usable.
	ReadBytes(timeout time.Duration) ([]byte, error)

	// WriteBytes sends data to the endpoint.
	WriteBytes(data []byte) error
}

// Kind classifies the transport behind an endpoint.
type Kind = endpoint.Kind

const (
	KindUnknown = endpoint.KindUnknown
	KindSerial  = endpoint.KindSerial
	KindShell   = endpoint.KindShell
	KindStream  = endpoint.KindStream
)
