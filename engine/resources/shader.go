package resources

type ShaderStage string

const (
	ShaderStageCompute ShaderStage = "compute"
)

type DescriptorType string

const (
	DescriptorTypeStorageBuffer DescriptorType = "storage_buffer"
	DescriptorTypeUniformBuffer DescriptorType = "uniform_buffer"
)

func (dt DescriptorType) Valid() bool {
	return dt == DescriptorTypeStorageBuffer || dt == DescriptorTypeUniformBuffer
}

type ShaderBinding struct {
	Set     uint32         `toml:"set"`
	Binding uint32         `toml:"binding"`
	Type    DescriptorType `toml:"type"`
}

/**
 * @brief Contents of a .shadercfg manifest. Paths are relative to the
 * assets directory.
 */
type ShaderConfig struct {
	Name       string          `toml:"name"`
	Stage      ShaderStage     `toml:"stage"`
	Source     string          `toml:"source"`
	Binary     string          `toml:"binary"`
	EntryPoint string          `toml:"entry_point"`
	LocalSize  [3]uint32       `toml:"local_size"`
	Bindings   []ShaderBinding `toml:"bindings"`
}

/**
 * @brief A compute shader ready to be turned into a pipeline: the compiled
 * blob plus the interface the host has to honour.
 */
type Shader struct {
	Name       string
	Stage      ShaderStage
	EntryPoint string
	LocalSize  [3]uint32
	Bindings   []ShaderBinding
	// SPIR-V words; empty when the binary has not been built yet.
	Code       []uint32
	SourcePath string
	BinaryPath string
}

func (s *Shader) HasCode() bool {
	return len(s.Code) > 0
}

// InvocationsPerGroup is the number of invocations in one workgroup.
func (s *Shader) InvocationsPerGroup() uint32 {
	return s.LocalSize[0] * s.LocalSize[1] * s.LocalSize[2]
}

// SetBindings returns the bindings of one descriptor set, in manifest order.
func (s *Shader) SetBindings(set uint32) []ShaderBinding {
	var out []ShaderBinding
	for _, b := range s.Bindings {
		if b.Set == set {
			out = append(out, b)
		}
	}
	return out
}
