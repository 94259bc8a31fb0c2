package radio

import (
	"fmt"
	"sort"
)

// Block selects which chip a register lives on.
type Block uint8

const (
	BlockDemod Block = iota
	BlockTuner
)

func (b Block) String() string {
	if b == BlockTuner {
		return "tuner"
	}
	return "demod"
}

type Register struct {
	Name  string
	Block Block
	Addr  uint8
}

func (r Register) String() string {
	return fmt.Sprintf("%s reg 0x%02x (%s)", r.Block, r.Addr, r.Name)
}

// RegisterMap is the only source of register addresses.
var RegisterMap = map[string]Register{
	"demod.ctl":      {"demod.ctl", BlockDemod, 0x00},
	"demod.sysinte":  {"demod.sysinte", BlockDemod, 0x01},
	"demod.sysints":  {"demod.sysints", BlockDemod, 0x02},
	"demod.gpo":      {"demod.gpo", BlockDemod, 0x19},
	"demod.gpi":      {"demod.gpi", BlockDemod, 0x1a},
	"demod.srate_hi": {"demod.srate_hi", BlockDemod, 0x9f},
	"demod.srate_lo": {"demod.srate_lo", BlockDemod, 0xa0},

	"tuner.lna":         {"tuner.lna", BlockTuner, 0x05},
	"tuner.ctrl":        {"tuner.ctrl", BlockTuner, 0x06},
	"tuner.mixer":       {"tuner.mixer", BlockTuner, 0x07},
	"tuner.pll_n_hi":    {"tuner.pll_n_hi", BlockTuner, 0x14},
	"tuner.pll_n_lo":    {"tuner.pll_n_lo", BlockTuner, 0x15},
	"tuner.pll_frac_hi": {"tuner.pll_frac_hi", BlockTuner, 0x16},
	"tuner.pll_frac_lo": {"tuner.pll_frac_lo", BlockTuner, 0x17},
}

var (
	regDemodCtl     = RegisterMap["demod.ctl"]
	regDemodSysinte = RegisterMap["demod.sysinte"]
	regDemodGPO     = RegisterMap["demod.gpo"]
	regDemodGPI     = RegisterMap["demod.gpi"]
	regRateHi       = RegisterMap["demod.srate_hi"]
	regRateLo       = RegisterMap["demod.srate_lo"]

	regTunerLNA   = RegisterMap["tuner.lna"]
	regTunerCtrl  = RegisterMap["tuner.ctrl"]
	regTunerMixer = RegisterMap["tuner.mixer"]
	regPLLNHi     = RegisterMap["tuner.pll_n_hi"]
	regPLLNLo     = RegisterMap["tuner.pll_n_lo"]
	regPLLFracHi  = RegisterMap["tuner.pll_frac_hi"]
	regPLLFracLo  = RegisterMap["tuner.pll_frac_lo"]
)

// Demod control bits.
const demodSoftReset = 0x10

// Tuner ctrl bits.
const (
	tunerXtal = 0x10
	tunerSyn  = 0x40

	lnaManual    = 0x10
	mixerAutoAGC = 0x10
	gainIdxMask  = 0x0f
)

// RegisterNames returns the register names in sorted order.
func RegisterNames() []string {
	names := make([]string, 0, len(RegisterMap))
	for k := range RegisterMap {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}
