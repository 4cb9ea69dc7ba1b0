package rtpstream

import (
	"fmt"
	"strings"
)

const (
	PTComfortNoise    uint8 = 13
	PTComfortNoiseOld uint8 = 19 // reserved, used for CN by older stacks
	ptFirstDynamic    uint8 = 96

	telephoneEvent = "telephone-event"
)

// IsComfortNoise reports whether pt carries comfort noise.
func IsComfortNoise(pt uint8) bool {
	return pt == PTComfortNoise || pt == PTComfortNoiseOld
}

// staticClockRates holds RFC 3551 clock rates for PT 0-95. Zero means
// unassigned or unknown.
var staticClockRates = func() (rates [ptFirstDynamic]uint32) {
	for _, pt := range []uint8{0, 1, 2, 3, 4, 5, 7, 8, 9, 12, 13, 15, 18, 19} {
		rates[pt] = 8000
	}
	rates[6] = 16000
	rates[10] = 44100
	rates[11] = 44100
	rates[16] = 11025
	rates[17] = 22050
	for _, pt := range []uint8{14, 25, 26, 28, 31, 32, 33, 34} {
		rates[pt] = 90000
	}
	return rates
}()

var staticNames = map[uint8]string{
	0: "g711U", 3: "GSM", 4: "G723", 5: "DVI4-8000", 6: "DVI4-16000",
	7: "LPC", 8: "g711A", 9: "G722", 10: "L16-Stereo", 11: "L16-Mono",
	12: "QCELP", 13: "CN", 14: "MPA", 15: "G728", 16: "DVI4-11025",
	17: "DVI4-22050", 18: "g729", 19: "CN-old", 25: "CelB", 26: "JPEG",
	28: "NV", 31: "H261", 32: "MPV", 33: "MP2T", 34: "H263",
}

// dynamicClockRates maps encoding names of dynamic payload types to their
// clock rate. Lookup is a case-insensitive longest-prefix match.
var dynamicClockRates = []struct {
	name string
	rate uint32
}{
	{"AMR", 8000},
	{"AMR-WB", 16000},
	{"BV16", 8000},
	{"BV32", 16000},
	{"CN", 8000},
	{"DV", 90000},
	{"EVRC", 8000},
	{"EVRC0", 8000},
	{"EVRC1", 8000},
	{"EVRCB", 8000},
	{"EVRCB0", 8000},
	{"EVRCB1", 8000},
	{"EVRCWB", 16000},
	{"EVRCWB0", 16000},
	{"EVRCWB1", 16000},
	{"EVS", 16000},
	{"G7221", 16000},
	{"G726-16", 8000},
	{"G726-24", 8000},
	{"G726-32", 8000},
	{"G726-40", 8000},
	{"G729D", 8000},
	{"G729E", 8000},
	{"GSM-EFR", 8000},
	{"H263-1998", 90000},
	{"H263-2000", 90000},
	{"H264", 90000},
	{"MP4V-ES", 90000},
	{"opus", 48000},
	{"RED", 1000},
	{"SPEEX", 8000},
	{"theora", 90000},
	{"VDVI", 8000},
	{"VP8", 90000},
	{"VP9", 90000},
}

// ClockRate returns the media clock rate for a payload type. Static types
// use the RFC 3551 table. Dynamic types prefer the rate announced by
// signaling, then the encoding-name table. A telephone-event payload has
// no media clock: rate is 0 and event is true.
func ClockRate(pt uint8, name string, announced uint32) (rate uint32, event bool) {
	if pt < ptFirstDynamic {
		return staticClockRates[pt], false
	}
	if strings.EqualFold(name, telephoneEvent) {
		return 0, true
	}
	if announced != 0 {
		return announced, false
	}
	best := -1
	for _, e := range dynamicClockRates {
		if len(e.name) > len(name) || len(e.name) <= best {
			continue
		}
		if strings.EqualFold(name[:len(e.name)], e.name) {
			best = len(e.name)
			rate = e.rate
		}
	}
	return rate, false
}

// PayloadTypeName returns the display name of a payload type, preferring
// the name announced by signaling.
func PayloadTypeName(pt uint8, announced string) string {
	if announced != "" {
		return announced
	}
	if name, ok := staticNames[pt]; ok {
		return name
	}
	return fmt.Sprintf("Unknown(%d)", pt)
}
