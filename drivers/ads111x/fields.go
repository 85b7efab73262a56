package ads111x

import "time"

// Status is the operational status bit. Reads report whether a conversion
// is in progress; a write of Busy starts a single-shot conversion.
type Status uint8

const (
	StatusBusy Status = iota
	StatusNotBusy
)

// Mux selects the input pair: positive input first, negative second.
type Mux uint8

const (
	MuxAIN0AIN1 Mux = iota
	MuxAIN0AIN3
	MuxAIN1AIN3
	MuxAIN2AIN3
	MuxAIN0GND
	MuxAIN1GND
	MuxAIN2GND
	MuxAIN3GND
)

// Gain selects the programmable amplifier full-scale range.
type Gain uint8

const (
	Gain6_144V Gain = iota // gain 2/3
	Gain4_096V             // gain 1
	Gain2_048V             // gain 2
	Gain1_024V             // gain 4
	Gain0_512V             // gain 8
	Gain0_256V             // gain 16
)

// Mode selects continuous conversion or single-shot/power-down.
type Mode uint8

const (
	ModeContinuous Mode = iota
	ModeSingle
)

// DataRate is the conversion rate in samples per second.
type DataRate uint8

const (
	Rate8SPS DataRate = iota
	Rate16SPS
	Rate32SPS
	Rate64SPS
	Rate128SPS
	Rate250SPS
	Rate475SPS
	Rate860SPS
)

// CompMode selects a traditional or window comparator.
type CompMode uint8

const (
	CompTraditional CompMode = iota
	CompWindow
)

// CompPolarity is the active level of the ALERT/RDY pin.
type CompPolarity uint8

const (
	CompActiveLow CompPolarity = iota
	CompActiveHigh
)

// CompLatch selects whether ALERT/RDY latches until the result is read.
type CompLatch uint8

const (
	CompNonLatching CompLatch = iota
	CompLatching
)

// CompQueue is the number of successive threshold crossings before
// ALERT/RDY asserts, or Disable to leave the pin high-impedance.
type CompQueue uint8

const (
	CompAssertAfterOne CompQueue = iota
	CompAssertAfterTwo
	CompAssertAfterFour
	CompDisable
)

// Field tables. Patterns are the chip's documented encodings.

var statusField = field[Status]{name: "status", mask: maskStatus, table: []pattern[Status]{
	{StatusBusy, 0},
	{StatusNotBusy, 1 << 15},
}}

var muxField = field[Mux]{name: "mux", mask: maskMux, table: []pattern[Mux]{
	{MuxAIN0AIN1, 0b000 << 12},
	{MuxAIN0AIN3, 0b001 << 12},
	{MuxAIN1AIN3, 0b010 << 12},
	{MuxAIN2AIN3, 0b011 << 12},
	{MuxAIN0GND, 0b100 << 12},
	{MuxAIN1GND, 0b101 << 12},
	{MuxAIN2GND, 0b110 << 12},
	{MuxAIN3GND, 0b111 << 12},
}}

var gainField = field[Gain]{name: "gain", mask: maskGain, table: []pattern[Gain]{
	{Gain6_144V, 0b000 << 9},
	{Gain4_096V, 0b001 << 9},
	{Gain2_048V, 0b010 << 9},
	{Gain1_024V, 0b011 << 9},
	{Gain0_512V, 0b100 << 9},
	{Gain0_256V, 0b101 << 9},
}}

var modeField = field[Mode]{name: "mode", mask: maskMode, table: []pattern[Mode]{
	{ModeContinuous, 0},
	{ModeSingle, 1 << 8},
}}

var dataRateField = field[DataRate]{name: "data_rate", mask: maskDataRate, table: []pattern[DataRate]{
	{Rate8SPS, 0b000 << 5},
	{Rate16SPS, 0b001 << 5},
	{Rate32SPS, 0b010 << 5},
	{Rate64SPS, 0b011 << 5},
	{Rate128SPS, 0b100 << 5},
	{Rate250SPS, 0b101 << 5},
	{Rate475SPS, 0b110 << 5},
	{Rate860SPS, 0b111 << 5},
}}

var compModeField = field[CompMode]{name: "comp_mode", mask: maskCompMode, table: []pattern[CompMode]{
	{CompTraditional, 0},
	{CompWindow, 1 << 4},
}}

var compPolarityField = field[CompPolarity]{name: "comp_polarity", mask: maskCompPolarity, table: []pattern[CompPolarity]{
	{CompActiveLow, 0},
	{CompActiveHigh, 1 << 3},
}}

var compLatchField = field[CompLatch]{name: "comp_latch", mask: maskCompLatch, table: []pattern[CompLatch]{
	{CompNonLatching, 0},
	{CompLatching, 1 << 2},
}}

var compQueueField = field[CompQueue]{name: "comp_queue", mask: maskCompQueue, table: []pattern[CompQueue]{
	{CompAssertAfterOne, 0b00},
	{CompAssertAfterTwo, 0b01},
	{CompAssertAfterFour, 0b10},
	{CompDisable, 0b11},
}}

// layouts lists the fields in register order, most significant first.
var layouts = []layout{
	statusField.layout(),
	muxField.layout(),
	gainField.layout(),
	modeField.layout(),
	dataRateField.layout(),
	compModeField.layout(),
	compPolarityField.layout(),
	compLatchField.layout(),
	compQueueField.layout(),
}

func init() {
	if err := checkLayout(layouts, maskDefined); err != nil {
		panic("ads111x: " + err.Error())
	}
	if maskDefined != 0xFFFF {
		panic("ads111x: configuration register not fully covered")
	}
}

// Valid reports whether the value is a declared variant.
func (s Status) Valid() bool       { return statusField.valid(s) }
func (m Mux) Valid() bool          { return muxField.valid(m) }
func (g Gain) Valid() bool         { return gainField.valid(g) }
func (m Mode) Valid() bool         { return modeField.valid(m) }
func (r DataRate) Valid() bool     { return dataRateField.valid(r) }
func (c CompMode) Valid() bool     { return compModeField.valid(c) }
func (p CompPolarity) Valid() bool { return compPolarityField.valid(p) }
func (l CompLatch) Valid() bool    { return compLatchField.valid(l) }
func (q CompQueue) Valid() bool    { return compQueueField.valid(q) }

var fullScale = [...]float32{6.144, 4.096, 2.048, 1.024, 0.512, 0.256}

// FullScale returns the positive full-scale input in volts.
func (g Gain) FullScale() float32 {
	if int(g) < len(fullScale) {
		return fullScale[g]
	}
	return 0
}

var spsTable = [...]int{8, 16, 32, 64, 128, 250, 475, 860}

// SamplesPerSecond returns the nominal conversion rate.
func (r DataRate) SamplesPerSecond() int {
	if int(r) < len(spsTable) {
		return spsTable[r]
	}
	return 0
}

// ConversionTime is the nominal duration of one conversion, rounded up to
// the next microsecond.
func (r DataRate) ConversionTime() time.Duration {
	sps := r.SamplesPerSecond()
	if sps == 0 {
		return 0
	}
	us := (1_000_000 + sps - 1) / sps
	return time.Duration(us) * time.Microsecond
}

var (
	statusNames   = [...]string{"busy", "not_busy"}
	muxNames      = [...]string{"ain0_ain1", "ain0_ain3", "ain1_ain3", "ain2_ain3", "ain0_gnd", "ain1_gnd", "ain2_gnd", "ain3_gnd"}
	gainNames     = [...]string{"6.144V", "4.096V", "2.048V", "1.024V", "0.512V", "0.256V"}
	modeNames     = [...]string{"continuous", "single"}
	rateNames     = [...]string{"8sps", "16sps", "32sps", "64sps", "128sps", "250sps", "475sps", "860sps"}
	compModeNames = [...]string{"traditional", "window"}
	polarityNames = [...]string{"active_low", "active_high"}
	latchNames    = [...]string{"non_latching", "latching"}
	queueNames    = [...]string{"assert_after_one", "assert_after_two", "assert_after_four", "disable"}
)

func name(names []string, v uint8) string {
	if int(v) < len(names) {
		return names[v]
	}
	return "invalid"
}

func (s Status) String() string       { return name(statusNames[:], uint8(s)) }
func (m Mux) String() string          { return name(muxNames[:], uint8(m)) }
func (g Gain) String() string         { return name(gainNames[:], uint8(g)) }
func (m Mode) String() string         { return name(modeNames[:], uint8(m)) }
func (r DataRate) String() string     { return name(rateNames[:], uint8(r)) }
func (c CompMode) String() string     { return name(compModeNames[:], uint8(c)) }
func (p CompPolarity) String() string { return name(polarityNames[:], uint8(p)) }
func (l CompLatch) String() string    { return name(latchNames[:], uint8(l)) }
func (q CompQueue) String() string    { return name(queueNames[:], uint8(q)) }

// ParseMux maps a name as printed by Mux.String back to its variant.
func ParseMux(s string) (Mux, bool) { return lookup[Mux](muxNames[:], s) }

// ParseGain accepts the names printed by Gain.String, with or without the
// trailing "V".
func ParseGain(s string) (Gain, bool) {
	if g, ok := lookup[Gain](gainNames[:], s); ok {
		return g, true
	}
	return lookup[Gain](gainNames[:], s+"V")
}

// DataRateFor returns the variant for a samples-per-second figure.
func DataRateFor(sps int) (DataRate, bool) {
	for i, v := range spsTable {
		if v == sps {
			return DataRate(i), true
		}
	}
	return 0, false
}

func lookup[T ~uint8](names []string, s string) (T, bool) {
	for i, n := range names {
		if n == s {
			return T(i), true
		}
	}
	return 0, false
}
