package tensor

import (
	"encoding/binary"

	"github.com/x448/float16"
)

// Half converts the tensor to IEEE 754 half-precision bits. The model
// boundary is half precision for fp16 checkpoints; everything upstream stays
// float32.
func (t *Tensor) Half() []uint16 {
	out := make([]uint16, len(t.Data))
	for i, v := range t.Data {
		out[i] = float16.Fromfloat32(v).Bits()
	}
	return out
}

// HalfBytes converts the tensor to raw little-endian fp16 bytes, the layout
// ONNX Runtime expects for float16 input tensors.
func (t *Tensor) HalfBytes() []byte {
	out := make([]byte, len(t.Data)*2)
	for i, v := range t.Data {
		binary.LittleEndian.PutUint16(out[i*2:], float16.Fromfloat32(v).Bits())
	}
	return out
}

// FromHalf widens fp16 bits into a float32 tensor.
func FromHalf(bits []uint16, shape ...int) *Tensor {
	data := make([]float32, len(bits))
	for i, b := range bits {
		data[i] = float16.Frombits(b).Float32()
	}
	return From(data, shape...)
}

// FromHalfBytes widens raw little-endian fp16 bytes into a float32 tensor.
func FromHalfBytes(raw []byte, shape ...int) *Tensor {
	data := make([]float32, len(raw)/2)
	for i := range data {
		data[i] = float16.Frombits(binary.LittleEndian.Uint16(raw[i*2:])).Float32()
	}
	return From(data, shape...)
}
