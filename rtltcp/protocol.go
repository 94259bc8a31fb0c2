// Package rtltcp serves the receiver over the rtl_tcp wire protocol and
// dials other rtl_tcp servers. The server sends a 12 byte dongle header
// then raw u8 IQ; clients send 5 byte commands.
package rtltcp

import "github.com/bemasher/rtltcp"

const DefaultAddress = "127.0.0.1:1234"

// TunerR820T is the header tuner code of the R820T.
const TunerR820T rtltcp.Tuner = 5

var dongleMagic = [4]byte{'R', 'T', 'L', '0'}

// command is the client to server message, big endian on the wire.
type command struct {
	Command   uint8
	Parameter uint32
}

// Command codes, numbered as in rtl_tcp.c.
const (
	cmdCenterFreq = iota + 1
	cmdSampleRate
	cmdTunerGainMode
	cmdTunerGain
	cmdFreqCorrection
	cmdTunerIfGain
	cmdTestMode
	cmdAGCMode
	cmdDirectSampling
	cmdOffsetTuning
	cmdRTLXtalFreq
	cmdTunerXtalFreq
	cmdGainByIndex
)
