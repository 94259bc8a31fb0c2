package radio

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/chzchzchz/rtlrx/sdrerr"
	"github.com/chzchzchz/rtlrx/usb"
)

const (
	MinFreqHz = 24000000
	MaxFreqHz = 1766000000

	MinSampleRate = 225001
	MaxSampleRate = 3200000

	XtalHz = 28800000

	// MaxPPM bounds the crystal correction either way.
	MaxPPM = 1000

	// pllRefHz is the PLL comparison frequency derived from the crystal.
	pllRefHz = XtalHz / 4

	resetDelay = 10 * time.Millisecond
)

// TunerState mirrors what has been written to the hardware.
type TunerState struct {
	FrequencyHz  uint32 `json:"frequency_hz"`
	SampleRateHz uint32 `json:"sample_rate"`
	GainTenthDb  int    `json:"gain_tenth_db"`
	AutoGain     bool   `json:"auto_gain"`
	// PPM is the crystal error; positive when it runs fast.
	PPM int `json:"ppm"`
}

func DefaultTunerState() TunerState {
	return TunerState{FrequencyHz: 100000000, SampleRateHz: 2048000, AutoGain: true}
}

// Executor runs link operations so they never overlap a bulk transfer.
type Executor interface {
	Exec(fn func(usb.Link) error) error
}

// Driver translates tuning intents into register writes. State fields are
// only updated after the writes for them succeed.
type Driver struct {
	x     Executor
	sleep func(time.Duration)

	mu          sync.Mutex
	state       TunerState
	initialized atomic.Bool
}

func NewDriver(x Executor) *Driver {
	return &Driver{x: x, sleep: time.Sleep, state: DefaultTunerState()}
}

func (d *Driver) Tuner() TunerState {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state
}

func (d *Driver) Initialized() bool { return d.initialized.Load() }

func ValidFrequency(hz uint32) bool { return hz >= MinFreqHz && hz <= MaxFreqHz }

func ValidSampleRate(rate uint32) bool {
	return !((rate <= 225000) || (rate > 3200000) ||
		((rate > 300000) && (rate <= 900000)))
}

func checkFrequency(hz uint32) error {
	if !ValidFrequency(hz) {
		return sdrerr.New(sdrerr.InvalidParameter, "frequency", ErrFrequencyOutOfRange)
	}
	return nil
}

func checkSampleRate(rate uint32) error {
	if !ValidSampleRate(rate) {
		return sdrerr.New(sdrerr.InvalidParameter, "sample rate", ErrRateOutOfRange)
	}
	return nil
}

func ValidGain(tenthDb int) bool { return tenthDb >= 0 && tenthDb <= maxGain() }

func ValidPPM(ppm int) bool { return ppm >= -MaxPPM && ppm <= MaxPPM }

func checkPPM(ppm int) error {
	if !ValidPPM(ppm) {
		return sdrerr.New(sdrerr.InvalidParameter, "frequency correction", ErrPPMOutOfRange)
	}
	return nil
}

// CorrectedFrequency is the nominal-crystal frequency to program so a
// crystal off by ppm lands on hz.
func CorrectedFrequency(hz uint32, ppm int) uint32 {
	return uint32((uint64(hz)*1e6 + uint64(1e6+ppm)/2) / uint64(1e6+ppm))
}

func checkGain(tenthDb int) error {
	if !ValidGain(tenthDb) {
		return sdrerr.New(sdrerr.InvalidParameter, "gain", ErrGainOutOfRange)
	}
	return nil
}

// PLL computes the integer divider and 16-bit fraction for hz.
func PLL(hz uint32) (n, frac uint16) {
	vco := uint64(hz) * 4
	n64 := vco / pllRefHz
	rem := vco % pllRefHz
	return uint16(n64), uint16((rem << 16) / pllRefHz)
}

func frequencyWrites(hz uint32, ppm int) []regWrite {
	n, frac := PLL(CorrectedFrequency(hz, ppm))
	return []regWrite{
		{regPLLNHi, byte(n >> 8)},
		{regPLLNLo, byte(n)},
		{regPLLFracHi, byte(frac >> 8)},
		{regPLLFracLo, byte(frac)},
		{regTunerCtrl, tunerSyn | tunerXtal},
	}
}

// RateDivider is the demodulator decimation for rate.
func RateDivider(rate uint32) uint16 { return uint16(XtalHz / rate) }

func sampleRateWrites(rate uint32) []regWrite {
	div := RateDivider(rate)
	return []regWrite{{regRateHi, byte(div >> 8)}, {regRateLo, byte(div)}}
}

func manualGainWrites(tenthDb int) []regWrite {
	lna, mixer, _ := gainIndices(tenthDb)
	return []regWrite{
		{regTunerLNA, lnaManual | (lna & gainIdxMask)},
		{regTunerMixer, mixer & gainIdxMask},
	}
}

func autoGainWrites() []regWrite {
	return []regWrite{{regTunerLNA, 0}, {regTunerMixer, mixerAutoAGC}}
}

func (d *Driver) write(ws []regWrite) error {
	return d.x.Exec(func(l usb.Link) error { return writeRegs(l, ws) })
}

func (d *Driver) SetFrequency(hz uint32) error {
	if err := checkFrequency(hz); err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.write(frequencyWrites(hz, d.state.PPM)); err != nil {
		return err
	}
	d.state.FrequencyHz = hz
	return nil
}

// SetFreqCorrection reprograms the PLL for the current frequency with the
// new crystal correction.
func (d *Driver) SetFreqCorrection(ppm int) error {
	if err := checkPPM(ppm); err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if ppm == d.state.PPM {
		return nil
	}
	if err := d.write(frequencyWrites(d.state.FrequencyHz, ppm)); err != nil {
		return err
	}
	d.state.PPM = ppm
	return nil
}

// SetGain disables auto gain and programs the nearest LNA/mixer step pair.
func (d *Driver) SetGain(tenthDb int) error {
	if err := checkGain(tenthDb); err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.write(manualGainWrites(tenthDb)); err != nil {
		return err
	}
	d.state.GainTenthDb, d.state.AutoGain = tenthDb, false
	return nil
}

// SetAutoGain enables the tuner AGC, replacing any manual gain fields.
// Disabling restores the last manual gain.
func (d *Driver) SetAutoGain(enabled bool) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	ws := autoGainWrites()
	if !enabled {
		ws = manualGainWrites(d.state.GainTenthDb)
	}
	if err := d.write(ws); err != nil {
		return err
	}
	d.state.AutoGain = enabled
	return nil
}

func (d *Driver) SetSampleRate(rate uint32) error {
	if err := checkSampleRate(rate); err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.write(sampleRateWrites(rate)); err != nil {
		return err
	}
	d.state.SampleRateHz = rate
	return nil
}

// Reset pulses the demod soft reset and quiesces interrupts and GPIO.
func (d *Driver) Reset() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.x.Exec(d.reset)
}

func (d *Driver) reset(l usb.Link) error {
	if err := writeReg(l, regDemodCtl, demodSoftReset); err != nil {
		return err
	}
	d.sleep(resetDelay)
	return writeRegs(l, []regWrite{
		{regDemodCtl, 0},
		{regDemodSysinte, 0},
		{regDemodGPO, 0},
		{regDemodGPI, 0},
	})
}

// Init resets the chips and programs ts in full. Parameters are checked
// before anything is written.
func (d *Driver) Init(ts TunerState) error {
	if err := checkFrequency(ts.FrequencyHz); err != nil {
		return err
	}
	if err := checkSampleRate(ts.SampleRateHz); err != nil {
		return err
	}
	if !ts.AutoGain {
		if err := checkGain(ts.GainTenthDb); err != nil {
			return err
		}
	}
	if err := checkPPM(ts.PPM); err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.initialized.Store(false)
	err := d.x.Exec(func(l usb.Link) error {
		if err := d.reset(l); err != nil {
			return err
		}
		if err := writeReg(l, regTunerCtrl, 0); err != nil {
			return err
		}
		d.sleep(resetDelay)
		if err := writeReg(l, regTunerCtrl, tunerXtal); err != nil {
			return err
		}
		ws := append(sampleRateWrites(ts.SampleRateHz), frequencyWrites(ts.FrequencyHz, ts.PPM)...)
		if ts.AutoGain {
			ws = append(ws, autoGainWrites()...)
		} else {
			ws = append(ws, manualGainWrites(ts.GainTenthDb)...)
		}
		return writeRegs(l, ws)
	})
	if err != nil {
		return err
	}
	d.state = ts
	d.initialized.Store(true)
	return nil
}

// ReadRegister reads a register by its RegisterMap name.
func (d *Driver) ReadRegister(name string) (v byte, err error) {
	r, ok := RegisterMap[name]
	if !ok {
		return 0, sdrerr.Errorf(sdrerr.InvalidParameter, "register", "unknown register %q", name)
	}
	err = d.x.Exec(func(l usb.Link) (err error) {
		v, err = readReg(l, r)
		return err
	})
	return v, err
}

func (d *Driver) Info() SDRHWInfo {
	ts := d.Tuner()
	return SDRHWInfo{
		Id:            "rtl2832u/r820t",
		MinHz:         MinFreqHz,
		MaxHz:         MaxFreqHz,
		MinSampleRate: MinSampleRate,
		MaxSampleRate: MaxSampleRate,
		Gains:         Gains(),
		SDRFormat: SDRFormat{
			BitDepth:   8,
			CenterHz:   uint64(ts.FrequencyHz),
			SampleRate: ts.SampleRateHz,
		},
		Tuner: ts,
	}
}
