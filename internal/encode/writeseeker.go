package encode

import (
	"fmt"
	"io"
)

// bufferWriteSeeker is an in-memory io.WriteSeeker. The WAV encoder seeks
// back to patch chunk sizes on close, so a plain bytes.Buffer does not work.
type bufferWriteSeeker struct {
	buf []byte
	pos int
}

func (w *bufferWriteSeeker) Write(p []byte) (int, error) {
	end := w.pos + len(p)
	if end > cap(w.buf) {
		grown := make([]byte, len(w.buf), end+1024)
		copy(grown, w.buf)
		w.buf = grown
	}
	if end > len(w.buf) {
		w.buf = w.buf[:end]
	}
	copy(w.buf[w.pos:], p)
	w.pos = end
	return len(p), nil
}

func (w *bufferWriteSeeker) Seek(offset int64, whence int) (int64, error) {
	var abs int64
	switch whence {
	case io.SeekStart:
		abs = offset
	case io.SeekCurrent:
		abs = int64(w.pos) + offset
	case io.SeekEnd:
		abs = int64(len(w.buf)) + offset
	default:
		return 0, fmt.Errorf("invalid seek whence: %d", whence)
	}
	if abs < 0 {
		return 0, fmt.Errorf("negative seek position: %d", abs)
	}
	w.pos = int(abs)
	return abs, nil
}

func (w *bufferWriteSeeker) Bytes() []byte {
	return w.buf
}
