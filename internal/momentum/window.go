package momentum

// window is a fixed-capacity ring of the most recent values.
type window struct {
	buf   []float64
	index int
	full  bool
}

func newWindow(capacity int) *window {
	if capacity < 1 {
		capacity = 1
	}
	return &window{buf: make([]float64, 0, capacity)}
}

func (w *window) push(v float64) {
	if !w.full {
		w.buf = append(w.buf, v)
		if len(w.buf) == cap(w.buf) {
			w.full = true
		}
		return
	}
	w.buf[w.index] = v
	w.index = (w.index + 1) % len(w.buf)
}

func (w *window) len() int { return len(w.buf) }

// last returns the newest value; ok is false when empty.
func (w *window) last() (float64, bool) {
	if len(w.buf) == 0 {
		return 0, false
	}
	if !w.full {
		return w.buf[len(w.buf)-1], true
	}
	return w.buf[(w.index+len(w.buf)-1)%len(w.buf)], true
}

// tail copies the newest n values, oldest first. n is capped at len.
func (w *window) tail(n int) []float64 {
	if n > len(w.buf) {
		n = len(w.buf)
	}
	if n <= 0 {
		return nil
	}
	out := make([]float64, n)
	start := len(w.buf) - n
	if w.full {
		start = w.index + start
	}
	for i := 0; i < n; i++ {
		out[i] = w.buf[(start+i)%len(w.buf)]
	}
	return out
}

func (w *window) values() []float64 { return w.tail(len(w.buf)) }
