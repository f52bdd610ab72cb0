package codec

import (
	"encoding/binary"
	"fmt"
	"io"

	wcferrors "wcferry/pkg/errors"
)

// MaxFrameSize caps the declared frame length. A length prefix above this
// limit means the stream is desynchronized, not that a huge frame is coming.
const MaxFrameSize = 16 << 20

// tagSize is the size of the 16-bit tag that opens every frame body.
const tagSize = 2

// WriteFrame writes one frame: a 32-bit little-endian length prefix covering
// the tag and payload, then the tag, then the payload bytes.
func WriteFrame(w io.Writer, tag uint16, payload []byte) error {
	if len(payload) > MaxFrameSize-tagSize {
		return fmt.Errorf("%w: payload of %d bytes exceeds frame limit", wcferrors.ErrFormat, len(payload))
	}

	buf := make([]byte, 4+tagSize+len(payload))
	binary.LittleEndian.PutUint32(buf[0:4], uint32(tagSize+len(payload)))
	binary.LittleEndian.PutUint16(buf[4:6], tag)
	copy(buf[6:], payload)

	_, err := w.Write(buf)
	return err
}

// ReadFrame reads one frame and returns its tag and payload. A clean EOF at
// a frame boundary is reported as io.EOF; EOF inside a frame, a zero-length
// body, or an oversized length prefix are format errors.
func ReadFrame(r io.Reader) (uint16, []byte, error) {
	var prefix [4]byte
	if _, err := io.ReadFull(r, prefix[:]); err != nil {
		if err == io.EOF {
			return 0, nil, io.EOF
		}
		return 0, nil, fmt.Errorf("%w: truncated length prefix: %v", wcferrors.ErrFormat, err)
	}

	length := binary.LittleEndian.Uint32(prefix[:])
	if length < tagSize {
		return 0, nil, fmt.Errorf("%w: frame length %d below tag size", wcferrors.ErrFormat, length)
	}
	if length > MaxFrameSize {
		return 0, nil, fmt.Errorf("%w: frame length %d exceeds limit", wcferrors.ErrFormat, length)
	}

	body := make([]byte, length)
	if _, err := io.ReadFull(r, body); err != nil {
		return 0, nil, fmt.Errorf("%w: truncated frame body: %v", wcferrors.ErrFormat, err)
	}

	tag := binary.LittleEndian.Uint16(body[:tagSize])
	return tag, body[tagSize:], nil
}
