package camera

// Frame is a single grayscale frame from the monitoring camera. The capture
// collaborator converts whatever the device yields to 8-bit gray before
// handing it over; obstruction detection only needs luminance.
type Frame struct {
	Pix    []uint8
	Width  int
	Height int
}

// Brightness is the mean pixel value, 0..255.
func (f Frame) Brightness() float64 {
	if len(f.Pix) == 0 {
		return 0
	}
	var sum uint64
	for _, p := range f.Pix {
		sum += uint64(p)
	}
	return float64(sum) / float64(len(f.Pix))
}
