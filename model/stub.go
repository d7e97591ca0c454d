//go:build !ort

package model

import "errors"

// Load is only available when the binary is built with ONNX Runtime support.
func Load(dir string, device Device) (*Model, error) {
	return nil, errors.New("built without ONNX Runtime support (rebuild with -tags ort)")
}
