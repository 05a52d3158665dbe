package audio

// Framer slices a continuous float32 capture stream into fixed-size encoded
// frames. Capture devices deliver blocks of whatever size the host prefers;
// the remainder of a block that does not fill a frame is carried into the next
// call to [Framer.Push].
//
// A Framer is owned by a single capture goroutine and is not safe for
// concurrent use.
type Framer struct {
	size int
	rate int
	buf  []float32
}

// NewFramer returns a Framer producing frames of size samples at rate Hz.
// A non-positive size selects [DefaultFrameSize].
func NewFramer(size, rate int) *Framer {
	if size <= 0 {
		size = DefaultFrameSize
	}
	return &Framer{size: size, rate: rate, buf: make([]float32, 0, size)}
}

// Size returns the number of samples per frame.
func (f *Framer) Size() int { return f.size }

// Push appends samples and returns every frame completed by them, in capture
// order. It returns nil when no frame is complete yet.
func (f *Framer) Push(samples []float32) []Frame {
	var frames []Frame
	for len(samples) > 0 {
		n := min(f.size-len(f.buf), len(samples))
		f.buf = append(f.buf, samples[:n]...)
		samples = samples[n:]
		if len(f.buf) == f.size {
			frames = append(frames, Encode(f.buf, f.rate))
			f.buf = f.buf[:0]
		}
	}
	return frames
}

// Pending returns the number of buffered samples not yet emitted.
func (f *Framer) Pending() int { return len(f.buf) }

// Reset discards any buffered samples.
func (f *Framer) Reset() { f.buf = f.buf[:0] }
