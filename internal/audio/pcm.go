package audio

import (
	"encoding/binary"
	"math"
)

// Frame is one capture callback's worth of interleaved float32 samples
type Frame struct {
	Samples    []float32
	SampleRate int
	Channels   int
}

// DecodeF32 interprets little-endian float32 bytes as delivered by the capture device
func DecodeF32(b []byte) []float32 {
	samples := make([]float32, len(b)/4)
	for i := range samples {
		samples[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return samples
}

// Mono returns the first channel of the frame
func (f Frame) Mono() []float32 {
	if f.Channels <= 1 {
		return f.Samples
	}
	out := make([]float32, len(f.Samples)/f.Channels)
	for i := range out {
		out[i] = f.Samples[i*f.Channels]
	}
	return out
}

// PCM16 converts the frame to little-endian signed 16-bit mono PCM at rate
func (f Frame) PCM16(rate int) []byte {
	return EncodePCM16(Resample(f.Mono(), f.SampleRate, rate))
}

// Resample linearly interpolates samples from one rate to another. The output
// holds round(len(in) * to / from) samples; positions past the last input
// sample hold the last value.
func Resample(in []float32, from, to int) []float32 {
	if from == to || from <= 0 || to <= 0 || len(in) == 0 {
		return in
	}

	n := int(math.Round(float64(len(in)) * float64(to) / float64(from)))
	out := make([]float32, n)
	step := float64(from) / float64(to)
	last := len(in) - 1

	for i := range out {
		pos := float64(i) * step
		idx := int(pos)
		if idx >= last {
			out[i] = in[last]
			continue
		}
		frac := float32(pos - float64(idx))
		out[i] = in[idx] + (in[idx+1]-in[idx])*frac
	}
	return out
}

// EncodePCM16 scales [-1, 1] samples to int16, clipping out-of-range values
func EncodePCM16(samples []float32) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		switch {
		case s > 1:
			s = 1
		case s < -1:
			s = -1
		}
		binary.LittleEndian.PutUint16(out[i*2:], uint16(int16(s*math.MaxInt16)))
	}
	return out
}

// DecodePCM16 reads little-endian int16 samples; a trailing odd byte is ignored
func DecodePCM16(b []byte) []int16 {
	samples := make([]int16, len(b)/2)
	for i := range samples {
		samples[i] = int16(binary.LittleEndian.Uint16(b[i*2:]))
	}
	return samples
}
