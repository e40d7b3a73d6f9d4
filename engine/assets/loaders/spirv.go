package loaders

import (
	"fmt"
	"math/bits"
	"sort"
)

const (
	SPIRVMagic        uint32 = 0x07230203
	spirvHeaderWords         = 5
	spirvSwappedMagic uint32 = 0x03022307

	opEntryPoint    uint32 = 15
	opExecutionMode uint32 = 16
	opDecorate      uint32 = 71

	executionModeLocalSize uint32 = 17

	decorationBinding       uint32 = 33
	decorationDescriptorSet uint32 = 34

	ExecutionModelGLCompute uint32 = 5
)

type SPIRVEntryPoint struct {
	Name           string
	ExecutionModel uint32
	ID             uint32
	// Zero when the module does not declare a literal LocalSize.
	LocalSize [3]uint32
}

type SPIRVBinding struct {
	ID      uint32
	Set     uint32
	Binding uint32
}

// SPIRVReflection is the part of a module's interface the host cares about.
type SPIRVReflection struct {
	Major, Minor uint32
	Bound        uint32
	EntryPoints  []SPIRVEntryPoint
	Bindings     []SPIRVBinding
}

func (r *SPIRVReflection) EntryPoint(name string) (*SPIRVEntryPoint, bool) {
	for i := range r.EntryPoints {
		if r.EntryPoints[i].Name == name {
			return &r.EntryPoints[i], true
		}
	}
	return nil, false
}

func (r *SPIRVReflection) HasBinding(set, binding uint32) bool {
	for _, b := range r.Bindings {
		if b.Set == set && b.Binding == binding {
			return true
		}
	}
	return false
}

// ReflectSPIRV walks the instruction stream of a SPIR-V module and collects
// entry points, their literal workgroup size and descriptor decorations.
// Modules stored with the opposite endianness are accepted.
func ReflectSPIRV(code []uint32) (*SPIRVReflection, error) {
	if len(code) < spirvHeaderWords {
		return nil, fmt.Errorf("spirv: module too short (%d words)", len(code))
	}

	switch code[0] {
	case SPIRVMagic:
	case spirvSwappedMagic:
		swapped := make([]uint32, len(code))
		for i, w := range code {
			swapped[i] = bits.ReverseBytes32(w)
		}
		code = swapped
	default:
		return nil, fmt.Errorf("spirv: bad magic number 0x%08x", code[0])
	}

	r := &SPIRVReflection{
		Major: (code[1] >> 16) & 0xff,
		Minor: (code[1] >> 8) & 0xff,
		Bound: code[3],
	}

	localSizes := map[uint32][3]uint32{}
	sets := map[uint32]uint32{}
	bindings := map[uint32]uint32{}

	for i := spirvHeaderWords; i < len(code); {
		wordCount := int(code[i] >> 16)
		opcode := code[i] & 0xffff
		if wordCount == 0 || i+wordCount > len(code) {
			return nil, fmt.Errorf("spirv: malformed instruction at word %d", i)
		}
		operands := code[i+1 : i+wordCount]

		switch opcode {
		case opEntryPoint:
			if len(operands) < 3 {
				return nil, fmt.Errorf("spirv: short OpEntryPoint at word %d", i)
			}
			name, _ := decodeLiteralString(operands[2:])
			r.EntryPoints = append(r.EntryPoints, SPIRVEntryPoint{
				Name:           name,
				ExecutionModel: operands[0],
				ID:             operands[1],
			})
		case opExecutionMode:
			if len(operands) >= 5 && operands[1] == executionModeLocalSize {
				localSizes[operands[0]] = [3]uint32{operands[2], operands[3], operands[4]}
			}
		case opDecorate:
			if len(operands) >= 3 {
				switch operands[1] {
				case decorationDescriptorSet:
					sets[operands[0]] = operands[2]
				case decorationBinding:
					bindings[operands[0]] = operands[2]
				}
			}
		}
		i += wordCount
	}

	for i := range r.EntryPoints {
		r.EntryPoints[i].LocalSize = localSizes[r.EntryPoints[i].ID]
	}

	for id, binding := range bindings {
		// an id with a binding but no set decoration lives in set 0
		r.Bindings = append(r.Bindings, SPIRVBinding{ID: id, Set: sets[id], Binding: binding})
	}
	sort.Slice(r.Bindings, func(a, b int) bool {
		if r.Bindings[a].Set != r.Bindings[b].Set {
			return r.Bindings[a].Set < r.Bindings[b].Set
		}
		return r.Bindings[a].Binding < r.Bindings[b].Binding
	})

	return r, nil
}

// decodeLiteralString reads a nul-terminated UTF-8 literal packed four bytes
// per word, low byte first, and returns it with the number of words used.
func decodeLiteralString(words []uint32) (string, int) {
	var buf []byte
	for i, w := range words {
		for shift := 0; shift < 32; shift += 8 {
			c := byte(w >> shift)
			if c == 0 {
				return string(buf), i + 1
			}
			buf = append(buf, c)
		}
	}
	return string(buf), len(words)
}
