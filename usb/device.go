package usb

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/gousb"

	"github.com/chzchzchz/rtlrx/sdrerr"
)

type Options struct {
	// ControlTimeout bounds each control transfer.
	ControlTimeout time.Duration
	// Config is the USB configuration number, 1 when zero.
	Config int
	// Interface forces an interface number; -1 selects the first
	// vendor-specific interface.
	Interface int
}

func DefaultOptions() Options {
	return Options{ControlTimeout: DefaultTimeout, Config: 1, Interface: -1}
}

// DeviceLink is a Link backed by libusb through gousb.
type DeviceLink struct {
	id   string
	ctx  *gousb.Context
	dev  *gousb.Device
	cfg  *gousb.Config
	intf *gousb.Interface
	in   *gousb.InEndpoint

	closeOnce sync.Once
	closeErr  error
}

// Open finds the device, selects its vendor-specific interface and claims it.
func Open(vid, pid uint16, opts Options) (*DeviceLink, error) {
	if opts.ControlTimeout <= 0 {
		opts.ControlTimeout = DefaultTimeout
	}
	if opts.Config == 0 {
		opts.Config = 1
	}
	l := &DeviceLink{
		id:  fmt.Sprintf("rtl2832u %04x:%04x", vid, pid),
		ctx: gousb.NewContext(),
	}
	if err := l.open(gousb.ID(vid), gousb.ID(pid), opts); err != nil {
		l.Close()
		return nil, err
	}
	return l, nil
}

func (l *DeviceLink) open(vid, pid gousb.ID, opts Options) error {
	dev, err := l.ctx.OpenDeviceWithVIDPID(vid, pid)
	if err != nil {
		return openErr(l.id, err)
	}
	if dev == nil {
		return sdrerr.New(sdrerr.DeviceNotFound, l.id, nil)
	}
	l.dev = dev
	dev.ControlTimeout = opts.ControlTimeout
	if err := dev.SetAutoDetach(true); err != nil {
		log.Printf("[WARN] %s: kernel driver auto-detach: %v", l.id, err)
	}

	intfNum := opts.Interface
	if intfNum < 0 {
		if intfNum, err = vendorInterface(dev.Desc, opts.Config); err != nil {
			return sdrerr.New(sdrerr.ClaimFailed, l.id, err)
		}
	}
	if l.cfg, err = dev.Config(opts.Config); err != nil {
		return openErr(l.id, err)
	}
	// libusb reports an interface held elsewhere as busy.
	if l.intf, err = l.cfg.Interface(intfNum, 0); err != nil {
		return openErr(l.id, err)
	}
	if l.in, err = l.intf.InEndpoint(EndpointIQ & 0x0f); err != nil {
		return sdrerr.New(sdrerr.ClaimFailed, l.id, err)
	}
	log.Printf("[INFO] opened %s interface %d", l.id, intfNum)
	return nil
}

func vendorInterface(desc *gousb.DeviceDesc, cfgNum int) (int, error) {
	cfg, ok := desc.Configs[cfgNum]
	if !ok {
		return 0, fmt.Errorf("no configuration %d", cfgNum)
	}
	for _, intf := range cfg.Interfaces {
		for _, alt := range intf.AltSettings {
			if alt.Class == gousb.ClassVendorSpec {
				return intf.Number, nil
			}
		}
	}
	return 0, errors.New("no vendor-specific interface")
}

func (l *DeviceLink) String() string { return l.id }

func (l *DeviceLink) ControlWrite(reqType, req uint8, value, index uint16, data []byte) error {
	n, err := l.dev.Control(reqType, req, value, index, data)
	if err != nil {
		return xferErr("usb control write", err)
	}
	if n != len(data) {
		return sdrerr.Errorf(sdrerr.IoError, "usb control write", "short write %d/%d", n, len(data))
	}
	return nil
}

func (l *DeviceLink) ControlRead(reqType, req uint8, value, index uint16, n int) ([]byte, error) {
	buf := make([]byte, n)
	got, err := l.dev.Control(reqType, req, value, index, buf)
	if err != nil {
		return nil, xferErr("usb control read", err)
	}
	if got != n {
		return nil, sdrerr.Errorf(sdrerr.IoError, "usb control read", "short read %d/%d", got, n)
	}
	return buf, nil
}

func (l *DeviceLink) BulkRead(ctx context.Context, buf []byte, timeout time.Duration) (int, error) {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	rctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	n, err := l.in.ReadContext(rctx, buf)
	if err != nil {
		if ctx.Err() != nil {
			return n, ctx.Err()
		}
		if errors.Is(rctx.Err(), context.DeadlineExceeded) {
			return n, sdrerr.New(sdrerr.IoTimeout, "usb bulk read", err)
		}
		return n, xferErr("usb bulk read", err)
	}
	if n == 0 {
		return 0, sdrerr.New(sdrerr.IoTimeout, "usb bulk read", errors.New("no data"))
	}
	return n, nil
}

func (l *DeviceLink) Close() error {
	l.closeOnce.Do(func() {
		if l.intf != nil {
			l.intf.Close()
		}
		if l.cfg != nil {
			if err := l.cfg.Close(); err != nil && l.closeErr == nil {
				l.closeErr = err
			}
		}
		if l.dev != nil {
			if err := l.dev.Close(); err != nil && l.closeErr == nil {
				l.closeErr = err
			}
		}
		if err := l.ctx.Close(); err != nil && l.closeErr == nil {
			l.closeErr = err
		}
		if l.dev != nil {
			log.Printf("[INFO] closed %s", l.id)
		}
	})
	return l.closeErr
}

func openErr(id string, err error) error {
	switch {
	case errors.Is(err, gousb.ErrorAccess):
		return sdrerr.New(sdrerr.PermissionDenied, id, err)
	case errors.Is(err, gousb.ErrorBusy):
		return sdrerr.New(sdrerr.ClaimFailed, id, err)
	case errors.Is(err, gousb.ErrorNotFound), errors.Is(err, gousb.ErrorNoDevice):
		return sdrerr.New(sdrerr.DeviceNotFound, id, err)
	}
	return sdrerr.New(sdrerr.IoError, id, err)
}

func xferErr(context string, err error) error {
	switch {
	case errors.Is(err, gousb.ErrorTimeout), errors.Is(err, gousb.TransferTimedOut):
		return sdrerr.New(sdrerr.IoTimeout, context, err)
	case errors.Is(err, gousb.ErrorAccess):
		return sdrerr.New(sdrerr.PermissionDenied, context, err)
	}
	return sdrerr.New(sdrerr.IoError, context, err)
}

// DeviceInfo describes an attached dongle.
type DeviceInfo struct {
	Bus     int    `json:"bus"`
	Address int    `json:"address"`
	Vendor  uint16 `json:"vendor"`
	Product uint16 `json:"product"`
	Speed   string `json:"speed"`
}

// ListDevices returns attached devices matching VendorRealtek and Products.
func ListDevices() ([]DeviceInfo, error) {
	ctx := gousb.NewContext()
	defer ctx.Close()
	var ret []DeviceInfo
	devs, err := ctx.OpenDevices(func(desc *gousb.DeviceDesc) bool {
		if desc.Vendor != VendorRealtek {
			return false
		}
		for _, p := range Products {
			if desc.Product == gousb.ID(p) {
				ret = append(ret, DeviceInfo{
					Bus:     desc.Bus,
					Address: desc.Address,
					Vendor:  uint16(desc.Vendor),
					Product: uint16(desc.Product),
					Speed:   desc.Speed.String(),
				})
			}
		}
		return false
	})
	for _, d := range devs {
		d.Close()
	}
	if err != nil {
		return ret, openErr("usb list", err)
	}
	return ret, nil
}
