// Package usb owns the raw USB handle of an RTL2832U dongle and exposes
// register-sized control transfers and bulk IQ reads. It carries no policy.
package usb

import (
	"context"
	"time"
)

const (
	VendorRealtek = 0x0bda

	ProductRTL2838 = 0x2838
	ProductRTL2832 = 0x2832

	// EndpointIQ is the bulk-in endpoint address carrying raw u8 IQ bytes.
	EndpointIQ = 0x81

	DefaultTimeout = 5000 * time.Millisecond
)

// Link is the transport used by the register driver and stream engine.
type Link interface {
	ControlWrite(reqType, req uint8, value, index uint16, data []byte) error
	ControlRead(reqType, req uint8, value, index uint16, n int) ([]byte, error)
	// BulkRead performs one bulk transfer into buf. It never reports
	// success with zero bytes; a transfer with no data is an IoTimeout.
	BulkRead(ctx context.Context, buf []byte, timeout time.Duration) (int, error)
	// Close releases the claimed interface. It is idempotent.
	Close() error
}

// Products lists the product ids accepted for VendorRealtek.
var Products = []uint16{ProductRTL2838, ProductRTL2832}
