package vulkan

// TODO: drive these from RendererConfig instead of compile-time constants.
const (
	// Max number of simultaneously uploaded geometries.
	VULKAN_MAX_GEOMETRY_COUNT uint32 = 4096
	// Max number of descriptor bindings per set.
	VULKAN_SHADER_MAX_BINDINGS = 2
	// Default timeout for fence waits, one second in nanoseconds.
	VULKAN_FENCE_WAIT_TIMEOUT uint64 = 1_000_000_000
)
