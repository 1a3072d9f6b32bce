// Package recording persists telemetry sessions as zstd-compressed,
// length-prefixed JSON frames so they can be replayed through the pipeline
// later at original or accelerated speed.
package recording

import (
	"bufio"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/klauspost/compress/zstd"

	"github.com/flightbus/simtel/pkg/domain"
)

const (
	fileMagic      = "SIMTELREC"
	formatVersion  = uint16(1)
	maxFrameLength = 1 << 20
)

// ErrBadFormat is returned when a file does not carry the recording magic
// or an understood version.
var ErrBadFormat = errors.New("not a telemetry recording")

// Header sits uncompressed at the front of every recording file.
type Header struct {
	SessionID string    `json:"session_id"`
	CreatedAt time.Time `json:"created_at"`
}

// Writer appends telemetry samples to a recording file. Not safe for
// concurrent use; the pipeline drives it from a single goroutine.
type Writer struct {
	f     *os.File
	zw    *zstd.Encoder
	buf   *bufio.Writer
	count int64
}

// NewWriter creates (truncating) the file at path and writes the header.
func NewWriter(path, sessionID string) (*Writer, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create recording: %w", err)
	}

	hdr, err := json.Marshal(Header{SessionID: sessionID, CreatedAt: time.Now().UTC()})
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("encode header: %w", err)
	}

	buf := bufio.NewWriter(f)
	if _, err := buf.WriteString(fileMagic); err != nil {
		f.Close()
		return nil, fmt.Errorf("write magic: %w", err)
	}
	scratch := make([]byte, 2)
	binary.BigEndian.PutUint16(scratch, formatVersion)
	if _, err := buf.Write(scratch); err != nil {
		f.Close()
		return nil, fmt.Errorf("write version: %w", err)
	}
	lenBuf := make([]byte, 4)
	binary.BigEndian.PutUint32(lenBuf, uint32(len(hdr)))
	if _, err := buf.Write(lenBuf); err != nil {
		f.Close()
		return nil, fmt.Errorf("write header length: %w", err)
	}
	if _, err := buf.Write(hdr); err != nil {
		f.Close()
		return nil, fmt.Errorf("write header: %w", err)
	}

	zw, err := zstd.NewWriter(buf, zstd.WithEncoderLevel(zstd.SpeedFastest))
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("init compressor: %w", err)
	}
	return &Writer{f: f, zw: zw, buf: buf}, nil
}

// Append writes one sample frame.
func (w *Writer) Append(s *domain.TelemetrySample) error {
	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("encode sample: %w", err)
	}
	if len(data) > maxFrameLength {
		return fmt.Errorf("sample frame too large: %d bytes", len(data))
	}
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(data)))
	if _, err := w.zw.Write(lenBuf[:]); err != nil {
		return fmt.Errorf("write frame length: %w", err)
	}
	if _, err := w.zw.Write(data); err != nil {
		return fmt.Errorf("write frame: %w", err)
	}
	w.count++
	return nil
}

// Count returns the number of samples appended so far.
func (w *Writer) Count() int64 {
	return w.count
}

// Close flushes the compressor and the file. The Writer is unusable
// afterward.
func (w *Writer) Close() error {
	if err := w.zw.Close(); err != nil {
		w.f.Close()
		return fmt.Errorf("close compressor: %w", err)
	}
	if err := w.buf.Flush(); err != nil {
		w.f.Close()
		return fmt.Errorf("flush recording: %w", err)
	}
	if err := w.f.Close(); err != nil {
		return fmt.Errorf("close recording: %w", err)
	}
	return nil
}

// Reader iterates the sample frames of a recording file.
type Reader struct {
	f      *os.File
	zr     *zstd.Decoder
	header Header
}

// NewReader opens path and validates magic, version and header.
func NewReader(path string) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open recording: %w", err)
	}

	br := bufio.NewReader(f)
	magic := make([]byte, len(fileMagic))
	if _, err := io.ReadFull(br, magic); err != nil || string(magic) != fileMagic {
		f.Close()
		return nil, ErrBadFormat
	}
	verBuf := make([]byte, 2)
	if _, err := io.ReadFull(br, verBuf); err != nil {
		f.Close()
		return nil, ErrBadFormat
	}
	if v := binary.BigEndian.Uint16(verBuf); v != formatVersion {
		f.Close()
		return nil, fmt.Errorf("%w: unsupported version %d", ErrBadFormat, v)
	}
	lenBuf := make([]byte, 4)
	if _, err := io.ReadFull(br, lenBuf); err != nil {
		f.Close()
		return nil, ErrBadFormat
	}
	hdrLen := binary.BigEndian.Uint32(lenBuf)
	if hdrLen > maxFrameLength {
		f.Close()
		return nil, ErrBadFormat
	}
	hdrData := make([]byte, hdrLen)
	if _, err := io.ReadFull(br, hdrData); err != nil {
		f.Close()
		return nil, ErrBadFormat
	}
	var hdr Header
	if err := json.Unmarshal(hdrData, &hdr); err != nil {
		f.Close()
		return nil, fmt.Errorf("%w: %v", ErrBadFormat, err)
	}

	zr, err := zstd.NewReader(br)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("init decompressor: %w", err)
	}
	return &Reader{f: f, zr: zr, header: hdr}, nil
}

// Header returns the recording metadata.
func (r *Reader) Header() Header {
	return r.header
}

// Next returns the next sample, or io.EOF at the end of the recording.
func (r *Reader) Next() (domain.TelemetrySample, error) {
	var s domain.TelemetrySample

	var lenBuf [4]byte
	if _, err := io.ReadFull(r.zr, lenBuf[:]); err != nil {
		if errors.Is(err, io.EOF) {
			return s, io.EOF
		}
		return s, fmt.Errorf("read frame length: %w", err)
	}
	frameLen := binary.BigEndian.Uint32(lenBuf[:])
	if frameLen > maxFrameLength {
		return s, fmt.Errorf("frame length %d exceeds limit", frameLen)
	}
	data := make([]byte, frameLen)
	if _, err := io.ReadFull(r.zr, data); err != nil {
		return s, fmt.Errorf("read frame: %w", err)
	}
	if err := json.Unmarshal(data, &s); err != nil {
		return s, fmt.Errorf("decode sample: %w", err)
	}
	return s, nil
}

// ReadAll drains the recording into a slice.
func (r *Reader) ReadAll() ([]domain.TelemetrySample, error) {
	var out []domain.TelemetrySample
	for {
		s, err := r.Next()
		if errors.Is(err, io.EOF) {
			return out, nil
		}
		if err != nil {
			return out, err
		}
		out = append(out, s)
	}
}

// Close releases the decoder and the file.
func (r *Reader) Close() error {
	r.zr.Close()
	if err := r.f.Close(); err != nil {
		return fmt.Errorf("close recording: %w", err)
	}
	return nil
}
