package frame

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

const (
	// HeaderSize is the size of the length prefix in bytes.
	HeaderSize = 4

	// MaxPayload limits a single frame payload (1 MiB).
	MaxPayload = 1 << 20

	// EOT is the end-of-transmission byte carried by the sentinel frame.
	EOT byte = 0x04
)

var (
	// ErrTooLarge is returned for frames whose declared length exceeds MaxPayload.
	ErrTooLarge = errors.New("frame: payload exceeds limit")

	// ErrEmpty is returned when writing a zero-length payload.
	ErrEmpty = errors.New("frame: empty payload")
)

var sentinel = []byte{EOT}

// IsSentinel reports whether payload is the end-of-transmission frame.
func IsSentinel(payload []byte) bool {
	return len(payload) == 1 && payload[0] == EOT
}

// Encode returns the wire form of payload.
func Encode(payload []byte) ([]byte, error) {
	if len(payload) == 0 {
		return nil, ErrEmpty
	}
	if len(payload) > MaxPayload {
		return nil, fmt.Errorf("%w: %d bytes", ErrTooLarge, len(payload))
	}
	out := make([]byte, HeaderSize+len(payload))
	binary.BigEndian.PutUint32(out[:HeaderSize], uint32(len(payload)))
	copy(out[HeaderSize:], payload)
	return out, nil
}

// Writer writes frames to an underlying writer.
type Writer struct {
	w io.Writer
}

// NewWriter creates a frame writer.
func NewWriter(w io.Writer) *Writer {
	return &Writer{w: w}
}

// WriteFrame writes one frame and returns the number of wire bytes written.
func (w *Writer) WriteFrame(payload []byte) (int, error) {
	buf, err := Encode(payload)
	if err != nil {
		return 0, err
	}
	return w.w.Write(buf)
}

// WriteSentinel writes the end-of-transmission frame.
func (w *Writer) WriteSentinel() error {
	_, err := w.WriteFrame(sentinel)
	return err
}

// Reader reads frames from an underlying reader.
type Reader struct {
	r *bufio.Reader
}

// NewReader creates a frame reader. If r is already a *bufio.Reader it is
// used directly so that bytes buffered by a line reader are not lost.
func NewReader(r io.Reader) *Reader {
	if br, ok := r.(*bufio.Reader); ok {
		return &Reader{r: br}
	}
	return &Reader{r: bufio.NewReader(r)}
}

// ReadFrame reads one frame and returns its payload.
func (r *Reader) ReadFrame() ([]byte, error) {
	var header [HeaderSize]byte
	if _, err := io.ReadFull(r.r, header[:]); err != nil {
		return nil, err
	}
	n := binary.BigEndian.Uint32(header[:])
	if n == 0 {
		return nil, ErrEmpty
	}
	if n > MaxPayload {
		return nil, fmt.Errorf("%w: %d bytes", ErrTooLarge, n)
	}
	payload := make([]byte, n)
	if _, err := io.ReadFull(r.r, payload); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, io.ErrUnexpectedEOF
		}
		return nil, err
	}
	return payload, nil
}

// Copy pipes frames from src to dst verbatim until the sentinel frame has
// been forwarded. It returns the number of frames copied, sentinel included.
func Copy(dst *Writer, src *Reader) (int, error) {
	count := 0
	for {
		payload, err := src.ReadFrame()
		if err != nil {
			return count, err
		}
		if _, err := dst.WriteFrame(payload); err != nil {
			return count, err
		}
		count++
		if IsSentinel(payload) {
			return count, nil
		}
	}
}
