// Package wavfile streams 16-bit PCM into a RIFF/WAVE file whose size fields
// are patched once the total length is known.
package wavfile

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"

	"github.com/Avicted/loopcap/internal/audio"
	"github.com/go-audio/riff"
)

const (
	// HeaderSize is the size of the canonical PCM header written at offset 0.
	HeaderSize = 44

	fmtChunkSize = 16
	formatPCM    = 1

	// MaxDataSize keeps the RIFF size field (HeaderSize-8+data) within uint32.
	MaxDataSize = math.MaxUint32 - (HeaderSize - 8)
)

var (
	ErrFinalized = errors.New("wav file already finalized")
	ErrTooLarge  = errors.New("wav data would exceed 4 GiB size fields")
)

// IOError reports a failure to create, write or patch the output file.
type IOError struct {
	Op   string
	Path string
	Err  error
}

func (e *IOError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

func (e *IOError) Unwrap() error {
	return e.Err
}

type header struct {
	RiffID        [4]byte
	RiffSize      uint32
	WaveID        [4]byte
	FmtID         [4]byte
	FmtSize       uint32
	AudioFormat   uint16
	Channels      uint16
	SampleRate    uint32
	ByteRate      uint32
	BlockAlign    uint16
	BitsPerSample uint16
	DataID        [4]byte
	DataSize      uint32
}

// EncodeHeader renders the 44-byte header for a stream of dataSize bytes in f.
func EncodeHeader(f audio.Format, dataSize uint32) []byte {
	h := header{
		RiffID:        riff.RiffID,
		RiffSize:      HeaderSize - 8 + dataSize,
		WaveID:        riff.WavFormatID,
		FmtID:         riff.FmtID,
		FmtSize:       fmtChunkSize,
		AudioFormat:   formatPCM,
		Channels:      uint16(f.Channels),
		SampleRate:    f.SampleRate,
		ByteRate:      f.ByteRate(),
		BlockAlign:    uint16(f.BlockAlign()),
		BitsPerSample: uint16(f.BitDepth),
		DataID:        riff.DataFormatID,
		DataSize:      dataSize,
	}
	var buf bytes.Buffer
	buf.Grow(HeaderSize)
	_ = binary.Write(&buf, binary.LittleEndian, &h)
	return buf.Bytes()
}

// Writer appends PCM bytes after a placeholder header.
type Writer struct {
	ws     io.WriteSeeker
	closer io.Closer
	path   string
	format audio.Format

	written   uint64
	finalized bool
	closed    bool
}

// Create creates (or truncates) path and writes the placeholder header. The
// file is removed again if the header cannot be written.
func Create(path string, f audio.Format) (*Writer, error) {
	file, err := os.Create(path)
	if err != nil {
		return nil, &IOError{Op: "create", Path: path, Err: err}
	}
	w, err := newWriter(file, file, path, f)
	if err != nil {
		_ = file.Close()
		_ = os.Remove(path)
		return nil, err
	}
	return w, nil
}

// NewWriter writes the placeholder header to ws. If ws is an io.Closer it is
// closed by Finalize and Close.
func NewWriter(ws io.WriteSeeker, f audio.Format) (*Writer, error) {
	closer, _ := ws.(io.Closer)
	return newWriter(ws, closer, "", f)
}

func newWriter(ws io.WriteSeeker, closer io.Closer, path string, f audio.Format) (*Writer, error) {
	if f.Float || f.BitDepth != audio.TargetBitDepth || f.Channels == 0 || f.SampleRate == 0 {
		return nil, &IOError{Op: "write header", Path: path, Err: fmt.Errorf("%w: %s", audio.ErrUnsupportedFormat, f)}
	}
	w := &Writer{ws: ws, closer: closer, path: path, format: f}
	if err := w.writeFull("write header", EncodeHeader(f, 0)); err != nil {
		return nil, err
	}
	return w, nil
}

func (w *Writer) Format() audio.Format {
	return w.format
}

// BytesWritten is the number of sample bytes appended so far.
func (w *Writer) BytesWritten() uint64 {
	return w.written
}

// Append writes p after the previously appended bytes. Any failure leaves the
// file unusable and is returned as *IOError.
func (w *Writer) Append(p []byte) error {
	if w.finalized || w.closed {
		return &IOError{Op: "append", Path: w.path, Err: ErrFinalized}
	}
	if len(p) == 0 {
		return nil
	}
	if w.written+uint64(len(p)) > MaxDataSize {
		return &IOError{Op: "append", Path: w.path, Err: ErrTooLarge}
	}
	if err := w.writeFull("append", p); err != nil {
		return err
	}
	w.written += uint64(len(p))
	return nil
}

// Finalize rewrites the header with the final sizes and closes the file.
// It may only be called once.
func (w *Writer) Finalize() error {
	if w.finalized || w.closed {
		return &IOError{Op: "finalize", Path: w.path, Err: ErrFinalized}
	}
	w.finalized = true

	if _, err := w.ws.Seek(0, io.SeekStart); err != nil {
		_ = w.close()
		return &IOError{Op: "seek", Path: w.path, Err: err}
	}
	if err := w.writeFull("patch header", EncodeHeader(w.format, uint32(w.written))); err != nil {
		_ = w.close()
		return err
	}
	return w.close()
}

// Close releases the file without patching the header. It is a no-op after
// Finalize.
func (w *Writer) Close() error {
	if w.finalized {
		return nil
	}
	return w.close()
}

func (w *Writer) close() error {
	if w.closed {
		return nil
	}
	w.closed = true
	if w.closer == nil {
		return nil
	}
	if err := w.closer.Close(); err != nil {
		return &IOError{Op: "close", Path: w.path, Err: err}
	}
	return nil
}

func (w *Writer) writeFull(op string, p []byte) error {
	n, err := w.ws.Write(p)
	if err == nil && n != len(p) {
		err = io.ErrShortWrite
	}
	if err != nil {
		return &IOError{Op: op, Path: w.path, Err: err}
	}
	return nil
}
