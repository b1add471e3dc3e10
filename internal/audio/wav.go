package audio

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"time"
)

const (
	wavPCMFormat     = 1
	wavBitsPerSample = 16
)

var ErrInvalidWAV = errors.New("invalid WAV data")

// PCM is decoded audio mixed down to mono
type PCM struct {
	SampleRate int
	Channels   int
	Samples    []float32
}

// Duration returns the length of the decoded audio
func (p *PCM) Duration() time.Duration {
	if p.SampleRate <= 0 {
		return 0
	}
	return time.Duration(len(p.Samples)) * time.Second / time.Duration(p.SampleRate)
}

// EncodeWAV wraps little-endian 16-bit PCM in a RIFF/WAVE container
func EncodeWAV(pcm []byte, sampleRate, channels int) []byte {
	bytesPerFrame := channels * wavBitsPerSample / 8
	byteRate := sampleRate * bytesPerFrame

	var buf bytes.Buffer
	buf.Grow(44 + len(pcm))

	buf.WriteString("RIFF")
	binary.Write(&buf, binary.LittleEndian, uint32(36+len(pcm)))
	buf.WriteString("WAVE")

	buf.WriteString("fmt ")
	binary.Write(&buf, binary.LittleEndian, uint32(16))
	binary.Write(&buf, binary.LittleEndian, uint16(wavPCMFormat))
	binary.Write(&buf, binary.LittleEndian, uint16(channels))
	binary.Write(&buf, binary.LittleEndian, uint32(sampleRate))
	binary.Write(&buf, binary.LittleEndian, uint32(byteRate))
	binary.Write(&buf, binary.LittleEndian, uint16(bytesPerFrame))
	binary.Write(&buf, binary.LittleEndian, uint16(wavBitsPerSample))

	// data chunk
	buf.WriteString("data")
	binary.Write(&buf, binary.LittleEndian, uint32(len(pcm)))
	buf.Write(pcm)

	return buf.Bytes()
}

// DecodeWAV parses a 16-bit PCM WAV file
func DecodeWAV(data []byte) (*PCM, error) {
	if len(data) < 12 || string(data[0:4]) != "RIFF" || string(data[8:12]) != "WAVE" {
		return nil, fmt.Errorf("%w: missing RIFF/WAVE header", ErrInvalidWAV)
	}

	var (
		channels, bits int
		sampleRate     int
		format         uint16
		haveFmt        bool
		payload        []byte
	)

	for off := 12; off+8 <= len(data); {
		id := string(data[off : off+4])
		size := int(binary.LittleEndian.Uint32(data[off+4 : off+8]))
		body := off + 8
		end := body + size
		if end > len(data) {
			if id != "data" {
				return nil, fmt.Errorf("%w: truncated %q chunk", ErrInvalidWAV, id)
			}
			// streaming writers leave the data size unset
			end = len(data)
		}

		switch id {
		case "fmt ":
			if size < 16 {
				return nil, fmt.Errorf("%w: short fmt chunk", ErrInvalidWAV)
			}
			format = binary.LittleEndian.Uint16(data[body:])
			channels = int(binary.LittleEndian.Uint16(data[body+2:]))
			sampleRate = int(binary.LittleEndian.Uint32(data[body+4:]))
			bits = int(binary.LittleEndian.Uint16(data[body+14:]))
			haveFmt = true
		case "data":
			payload = data[body:end]
		}

		off = end
		if size%2 == 1 {
			off++
		}
	}

	if !haveFmt {
		return nil, fmt.Errorf("%w: missing fmt chunk", ErrInvalidWAV)
	}
	if format != wavPCMFormat || bits != wavBitsPerSample {
		return nil, fmt.Errorf("%w: unsupported encoding (format %d, %d bits)", ErrInvalidWAV, format, bits)
	}
	if channels < 1 {
		return nil, fmt.Errorf("%w: no channels", ErrInvalidWAV)
	}
	if payload == nil {
		return nil, fmt.Errorf("%w: missing data chunk", ErrInvalidWAV)
	}

	mono := PCM16ToFloat(payload)
	if channels > 1 {
		frames := len(mono) / channels
		mixed := make([]float32, frames)
		for i := 0; i < frames; i++ {
			var sum float32
			for c := 0; c < channels; c++ {
				sum += mono[i*channels+c]
			}
			mixed[i] = sum / float32(channels)
		}
		mono = mixed
	}

	return &PCM{SampleRate: sampleRate, Channels: channels, Samples: mono}, nil
}

// PCM16ToFloat converts little-endian 16-bit samples to [-1, 1]. A trailing
// odd byte is ignored.
func PCM16ToFloat(pcm []byte) []float32 {
	out := make([]float32, len(pcm)/2)
	for i := range out {
		v := int16(binary.LittleEndian.Uint16(pcm[2*i:]))
		out[i] = float32(v) / 32768
	}
	return out
}
