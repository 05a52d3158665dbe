package audio

import (
	"encoding/base64"
	"encoding/binary"
	"errors"
	"fmt"
)

// ErrOddLength is returned when 16-bit PCM data has an odd number of bytes.
var ErrOddLength = errors.New("audio: odd byte count in 16-bit PCM")

// Encode converts float32 samples in [-1, 1] to a mono [Frame] at rate by
// linear scaling with 32768. Out-of-range input is clamped to the int16 range.
func Encode(samples []float32, rate int) Frame {
	out := make([]int16, len(samples))
	for i, s := range samples {
		out[i] = floatToInt16(s)
	}
	return Frame{Samples: out, SampleRate: rate, Channels: 1}
}

func floatToInt16(s float32) int16 {
	v := float64(s) * 32768
	if v > 32767 {
		return 32767
	}
	if v < -32768 {
		return -32768
	}
	return int16(v)
}

// DecodePCM16 converts little-endian 16-bit PCM to float32 samples in [-1, 1).
func DecodePCM16(pcm []byte) ([]float32, error) {
	if len(pcm)%2 != 0 {
		return nil, fmt.Errorf("%w: %d bytes", ErrOddLength, len(pcm))
	}
	out := make([]float32, len(pcm)/2)
	for i := range out {
		s := int16(binary.LittleEndian.Uint16(pcm[i*2:]))
		out[i] = float32(s) / 32768
	}
	return out, nil
}

// DecodeChunk returns the float32 samples carried by c according to its
// encoding.
func DecodeChunk(c Chunk) ([]float32, error) {
	pcm := c.Data
	switch c.Encoding {
	case EncodingPCM16Base64, "":
		buf := make([]byte, base64.StdEncoding.DecodedLen(len(c.Data)))
		n, err := base64.StdEncoding.Decode(buf, c.Data)
		if err != nil {
			return nil, fmt.Errorf("audio: base64: %w", err)
		}
		pcm = buf[:n]
	case EncodingPCM16:
	default:
		return nil, fmt.Errorf("audio: unsupported chunk encoding %q", c.Encoding)
	}
	if len(pcm) == 0 {
		return nil, errors.New("audio: empty chunk")
	}
	return DecodePCM16(pcm)
}
