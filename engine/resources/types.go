package resources

type ResourceType int

/** @brief Pre-defined resource types. */
const (
	/** @brief Files the asset manager does not index. */
	ResourceTypeNone ResourceType = iota
	/** @brief Binary resource type (compiled SPIR-V). */
	ResourceTypeBinary
	/** @brief Shader resource type (or more accurately shader config). */
	ResourceTypeShader
	/** @brief Shader source, compiled at build time. */
	ResourceTypeShaderSource
)

func (rt ResourceType) String() string {
	switch rt {
	case ResourceTypeBinary:
		return "binary"
	case ResourceTypeShader:
		return "shader"
	case ResourceTypeShaderSource:
		return "shader_source"
	default:
		return "none"
	}
}

/**
 * @brief A generic structure for a resource. All resource loaders
 * load data into these.
 */
type Resource struct {
	/** @brief The name of the resource. */
	Name string
	/** @brief The full file path of the resource. */
	FullPath string
	/** @brief The size of the resource data in bytes. */
	DataSize uint64
	/** @brief The resource data. */
	Data interface{}
}
