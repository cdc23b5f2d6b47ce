package wire

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/klauspost/compress/gzip"
)

// FrameHeaderSize is the fixed size of a Frame header in bytes: id(u32) +
// flags(u16) + reserved(u16) + payload_len(u32), little-endian (spec.md §6.1).
const FrameHeaderSize = 4 + 2 + 2 + 4

// Flag bits within Frame.Flags. Bit 0 (FlagGzip) is the one concrete use of
// the "reserved" flags field spec.md §3 leaves open: it marks a
// gzip-compressed JSON payload, decompressed with klauspost/compress/gzip —
// the same library the rest of this module's teacher lineage uses for fast
// layer decompression (see SPEC_FULL.md §2).
const (
	FlagGzip uint16 = 1 << 0
)

// Frame is a unit of wire transfer: an opaque JSON payload with a
// correlation id (spec.md §3).
type Frame struct {
	ID      uint32
	Flags   uint16
	Payload []byte
}

// ErrFrameTooLarge is returned by ReadFrame when payload_len exceeds maxPayload.
var ErrFrameTooLarge = fmt.Errorf("wire: frame payload exceeds maximum size")

// ReadFrame reads one frame from r, enforcing maxPayload (spec.md §4.2's
// "cap by a configurable maximum to avoid unbounded allocation", default
// 16 MiB). Returns io.EOF if the connection closed cleanly before any bytes
// of a new frame were read; returns io.ErrUnexpectedEOF for a partial header
// or payload.
func ReadFrame(r io.Reader, maxPayload uint32) (Frame, error) {
	var header [FrameHeaderSize]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		if err == io.EOF {
			return Frame{}, io.EOF
		}
		return Frame{}, io.ErrUnexpectedEOF
	}

	id := binary.LittleEndian.Uint32(header[0:4])
	flags := binary.LittleEndian.Uint16(header[4:6])
	// header[6:8] is the reserved field.
	payloadLen := binary.LittleEndian.Uint32(header[8:12])

	if payloadLen > maxPayload {
		// Still drain the declared length so the connection's framing stays
		// in sync for the caller to decide whether to close it.
		io.CopyN(io.Discard, r, int64(payloadLen))
		return Frame{}, ErrFrameTooLarge
	}

	payload := make([]byte, payloadLen)
	if payloadLen > 0 {
		if _, err := io.ReadFull(r, payload); err != nil {
			return Frame{}, io.ErrUnexpectedEOF
		}
	}

	if flags&FlagGzip != 0 {
		decoded, err := gunzip(payload)
		if err != nil {
			return Frame{}, fmt.Errorf("wire: decompress frame payload: %w", err)
		}
		payload = decoded
	}

	return Frame{ID: id, Flags: flags, Payload: payload}, nil
}

// WriteFrame writes f to w as a single framed message. compress requests
// gzip compression of the payload (used for large bulk-read/render-list
// responses per SPEC_FULL.md §2); the flag bit is only set when compression
// actually shrinks the payload.
func WriteFrame(w io.Writer, f Frame, compress bool) error {
	payload := f.Payload
	flags := f.Flags

	if compress {
		gz, err := gzipBytes(payload)
		if err == nil && len(gz) < len(payload) {
			payload = gz
			flags |= FlagGzip
		}
	}

	var buf bytes.Buffer
	buf.Grow(FrameHeaderSize + len(payload))

	var header [FrameHeaderSize]byte
	binary.LittleEndian.PutUint32(header[0:4], f.ID)
	binary.LittleEndian.PutUint16(header[4:6], flags)
	binary.LittleEndian.PutUint16(header[6:8], 0)
	binary.LittleEndian.PutUint32(header[8:12], uint32(len(payload)))

	buf.Write(header[:])
	buf.Write(payload)

	// A single Write call so concurrent writers on different connections
	// never interleave bytes from this frame (spec.md §4.2 step 4).
	_, err := w.Write(buf.Bytes())
	return err
}

func gzipBytes(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if _, err := zw.Write(data); err != nil {
		zw.Close()
		return nil, err
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func gunzip(data []byte) ([]byte, error) {
	zr, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer zr.Close()
	return io.ReadAll(zr)
}
