package ads111x

// I2C addressing. The upper four bits are fixed by the family; the low
// three are strapped on the ADDR pin.
const (
	AddressDefault = 0x48 // ADDR tied to GND

	addrClassMask    = 0b1111000
	addrClassPattern = 0b1001000
)

// Register pointer values (first byte of every transaction).
const (
	regConversion    = 0b00 // R, int16 big-endian
	regConfig        = 0b01 // R/W
	regLowThreshold  = 0b10 // W, int16 big-endian
	regHighThreshold = 0b11 // W, int16 big-endian
)

// Field masks of the configuration register.
const (
	maskStatus       uint16 = 1 << 15
	maskMux          uint16 = 0b111 << 12
	maskGain         uint16 = 0b111 << 9
	maskMode         uint16 = 1 << 8
	maskDataRate     uint16 = 0b111 << 5
	maskCompMode     uint16 = 1 << 4
	maskCompPolarity uint16 = 1 << 3
	maskCompLatch    uint16 = 1 << 2
	maskCompQueue    uint16 = 0b11

	maskDefined = maskStatus | maskMux | maskGain | maskMode | maskDataRate |
		maskCompMode | maskCompPolarity | maskCompLatch | maskCompQueue
)

// rawFullScale is the positive full-scale count used for scaling.
const rawFullScale = 32767

// ValidAddress reports whether addr belongs to the family's address class.
func ValidAddress(addr uint16) bool {
	return addr <= 0x7F && addr&addrClassMask == addrClassPattern
}

// Scale converts a raw conversion result to volts for the given gain.
// The negative end is one count wider than the positive end; -32768 scales
// slightly past -FullScale and is left that way.
func Scale(raw int16, g Gain) float32 {
	return float32(raw) / rawFullScale * g.FullScale()
}
