package resampler

import "io"

// sampleReader makes every Read return whole samples. A partial sample is
// held back until the rest of it arrives.
type sampleReader struct {
	r    io.Reader
	size int
	held []byte
}

func newSampleReader(r io.Reader, size int) *sampleReader {
	return &sampleReader{
		r:    r,
		size: size,
		held: make([]byte, 0, size-1),
	}
}

// Read returns a multiple of the sample size, or io.ErrUnexpectedEOF with
// the trailing partial sample when the source ends mid-sample.
func (sr *sampleReader) Read(p []byte) (int, error) {
	if len(p) < sr.size {
		return 0, io.ErrShortBuffer
	}
	p = p[:len(p)/sr.size*sr.size]
	n := copy(p, sr.held)
	sr.held = sr.held[:0]

	rn, err := sr.r.Read(p[n:])
	n += rn
	rem := n % sr.size
	if err != nil {
		if rem != 0 && err == io.EOF {
			return n, io.ErrUnexpectedEOF
		}
		return n, err
	}
	if rem != 0 {
		n -= rem
		sr.held = append(sr.held, p[n:n+rem]...)
	}
	return n, nil
}
