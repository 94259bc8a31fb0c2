package radio

// R820T LNA and mixer gain increments per step, in tenths of a dB.
var (
	lnaGainSteps   = [16]int{0, 9, 13, 40, 38, 13, 31, 22, 26, 31, 26, 14, 19, 5, 35, 13}
	mixerGainSteps = [16]int{0, 5, 10, 10, 19, 9, 10, 25, 17, 10, 8, 16, 13, 6, 3, -8}
)

// gainIndices walks LNA then mixer steps until the sum reaches tenthDb.
func gainIndices(tenthDb int) (lna, mixer uint8, total int) {
	for i := 0; i < len(lnaGainSteps)-1; i++ {
		if total >= tenthDb {
			break
		}
		lna++
		total += lnaGainSteps[lna]
		if total >= tenthDb {
			break
		}
		mixer++
		total += mixerGainSteps[mixer]
	}
	return lna, mixer, total
}

// Gains lists the distinct gains reachable by the step walk, ascending.
func Gains() []int {
	gains, total := []int{0}, 0
	for i := 1; i < len(lnaGainSteps); i++ {
		for _, step := range []int{lnaGainSteps[i], mixerGainSteps[i]} {
			total += step
			if total > gains[len(gains)-1] {
				gains = append(gains, total)
			}
		}
	}
	return gains
}

func maxGain() int {
	g := Gains()
	return g[len(g)-1]
}
