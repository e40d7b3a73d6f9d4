package loaders

import (
	"fmt"
	"io"
	"os"

	"github.com/spaghettifunk/anima-compute/engine/resources"
)

type BinaryLoader struct{}

// Load reads a SPIR-V binary and returns its words in Data as []uint32.
// params may carry a map[string]string with a "name" entry.
func (bl *BinaryLoader) Load(path string, assetType resources.ResourceType, params interface{}) (*resources.Resource, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	buf, err := io.ReadAll(f)
	if err != nil {
		return nil, err
	}
	if len(buf) == 0 || len(buf)%4 != 0 {
		return nil, fmt.Errorf("binary %s has size %d, expected a non-zero multiple of 4", path, len(buf))
	}

	res := bytesToBytecode(buf)

	name := ""
	if p, ok := params.(map[string]string); ok {
		name = p["name"]
	}

	return &resources.Resource{
		Name:     name,
		FullPath: path,
		DataSize: uint64(len(buf)),
		Data:     res,
	}, nil
}

func (bl *BinaryLoader) Unload(r *resources.Resource) error {
	r.Data = nil
	r.DataSize = 0
	return nil
}

func bytesToBytecode(b []byte) []uint32 {
	byteCode := make([]uint32, len(b)/4)
	for i := 0; i < len(byteCode); i++ {
		byteIndex := i * 4
		byteCode[i] = 0
		byteCode[i] |= uint32(b[byteIndex])
		byteCode[i] |= uint32(b[byteIndex+1]) << 8
		byteCode[i] |= uint32(b[byteIndex+2]) << 16
		byteCode[i] |= uint32(b[byteIndex+3]) << 24
	}

	return byteCode
}
