package media

import (
	"encoding/binary"
	"fmt"
	"io"
)

// HeaderSize is the length of the canonical WAV header the assets are
// expected to carry.
const HeaderSize = 44

// Header holds the fields parsed from a WAV header. Only the RIFF magic
// decides validity; the rest is informational and ends up in logs.
type Header struct {
	Channels      int
	SampleRate    int
	BitsPerSample int
	DataSize      int64
}

// ReadHeader consumes exactly HeaderSize bytes from r and parses them.
// A truncated or non-RIFF header fails with ErrInvalidFormat.
func ReadHeader(r io.Reader) (Header, error) {
	var buf [HeaderSize]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return Header{}, fmt.Errorf("%w: header truncated: %v", ErrInvalidFormat, err)
	}
	if string(buf[0:4]) != "RIFF" {
		return Header{}, fmt.Errorf("%w: missing RIFF magic", ErrInvalidFormat)
	}

	return Header{
		Channels:      int(binary.LittleEndian.Uint16(buf[22:24])),
		SampleRate:    int(binary.LittleEndian.Uint32(buf[24:28])),
		BitsPerSample: int(binary.LittleEndian.Uint16(buf[34:36])),
		DataSize:      int64(binary.LittleEndian.Uint32(buf[40:44])),
	}, nil
}
