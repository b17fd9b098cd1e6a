package protocol

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

var (
	ErrFrameTooLarge   = errors.New("frame exceeds size limit")
	ErrMessageTooLarge = errors.New("message does not fit in a datagram")
)

// WriteFrame writes payload prefixed with its big-endian uint32 length.
func WriteFrame(w io.Writer, payload []byte) error {
	if len(payload) > MaxFrameSize {
		return fmt.Errorf("%w: %d bytes", ErrFrameTooLarge, len(payload))
	}

	buf := make([]byte, frameHeaderSize+len(payload))
	binary.BigEndian.PutUint32(buf, uint32(len(payload)))
	copy(buf[frameHeaderSize:], payload)

	_, err := w.Write(buf)
	return err
}

// ReadFrame reads one length-prefixed frame of at most limit bytes.
// A clean end of stream before the header returns io.EOF.
func ReadFrame(r io.Reader, limit int) ([]byte, error) {
	var header [frameHeaderSize]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return nil, err
	}

	msgLen := binary.BigEndian.Uint32(header[:])
	if int64(msgLen) > int64(limit) {
		return nil, fmt.Errorf("%w: %d > %d", ErrFrameTooLarge, msgLen, limit)
	}

	data := make([]byte, msgLen)
	if _, err := io.ReadFull(r, data); err != nil {
		return nil, err
	}
	return data, nil
}
