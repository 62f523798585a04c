package audio

import (
	"encoding/binary"
	"math"
)

// decodePCM decodes little-endian IEEE-754 float32 PCM, the wire
// format audio_data carries by default.
func decodePCM(data []byte) []float32 {
	n := len(data) / 4
	samples := make([]float32, n)
	for i := 0; i < n; i++ {
		bits := binary.LittleEndian.Uint32(data[i*4:])
		samples[i] = math.Float32frombits(bits)
	}
	return samples
}
