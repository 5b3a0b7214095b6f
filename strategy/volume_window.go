package strategy

// volumeWindow keeps a rolling window of recent tick volumes and exposes the
// lightweight statistics the volume filter needs without re-scanning bars.
type volumeWindow struct {
	max int
	buf []float64
}

func newVolumeWindow(max int) *volumeWindow {
	if max <= 0 {
		max = 20
	}
	return &volumeWindow{max: max}
}

func (w *volumeWindow) Add(v float64) {
	w.buf = append(w.buf, v)
	if len(w.buf) > w.max {
		w.buf = w.buf[len(w.buf)-w.max:]
	}
}

func (w *volumeWindow) Len() int {
	return len(w.buf)
}

func (w *volumeWindow) Last() float64 {
	if len(w.buf) == 0 {
		return 0
	}
	return w.buf[len(w.buf)-1]
}

func (w *volumeWindow) Mean() float64 {
	if len(w.buf) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range w.buf {
		sum += v
	}
	return sum / float64(len(w.buf))
}
