package radio

import (
	"errors"

	"github.com/chzchzchz/rtlrx/sdrerr"
	"github.com/chzchzchz/rtlrx/usb"
)

const (
	reqTypeWrite = 0x40
	reqTypeRead  = 0xc0
	reqRegister  = 0x01

	// tunerSelector prefixes tuner writes and is wValue for tuner reads.
	tunerSelector = 0x02
)

func writeReg(l usb.Link, r Register, v byte) error {
	var err error
	if r.Block == BlockTuner {
		err = l.ControlWrite(reqTypeWrite, reqRegister, 0, uint16(r.Addr), []byte{tunerSelector, v})
	} else {
		err = l.ControlWrite(reqTypeWrite, reqRegister, 0, uint16(r.Addr), []byte{v})
	}
	return regErr(r, err)
}

func readReg(l usb.Link, r Register) (byte, error) {
	var value uint16
	if r.Block == BlockTuner {
		value = tunerSelector
	}
	b, err := l.ControlRead(reqTypeRead, reqRegister, value, uint16(r.Addr), 1)
	if err != nil {
		return 0, regErr(r, err)
	}
	return b[0], nil
}

// regWrite is one queued register write.
type regWrite struct {
	r Register
	v byte
}

func writeRegs(l usb.Link, ws []regWrite) error {
	for _, w := range ws {
		if err := writeReg(l, w.r, w.v); err != nil {
			return err
		}
	}
	return nil
}

// regErr puts the register into the error context, keeping the link's kind.
func regErr(r Register, err error) error {
	if err == nil {
		return nil
	}
	var e *sdrerr.Error
	if errors.As(err, &e) {
		ctx := r.String()
		if e.Context != "" {
			ctx += " " + e.Context
		}
		return &sdrerr.Error{Kind: e.Kind, Context: ctx, Err: e.Err}
	}
	return sdrerr.New(sdrerr.IoError, r.String(), err)
}
