package escpos

// TestPattern returns a two-band calibration print for a printer that is
// width dots wide: one solid black band, then a band of alternating black
// and white columns.
func TestPattern(width int) []byte {
	bpl := (width + 7) / 8
	if bpl <= 0 {
		bpl = 48
	}

	out := Initialize()
	out = append(out, bandHeader(bpl)...)
	for i := 0; i < bpl*3; i++ {
		out = append(out, 0xFF)
	}
	out = append(out, LF)

	out = append(out, bandHeader(bpl)...)
	for i := 0; i < bpl; i++ {
		v := byte(0x00)
		if i%2 == 0 {
			v = 0xFF
		}
		out = append(out, v, v, v)
	}
	return append(out, LF)
}
