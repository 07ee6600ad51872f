package renderer

import "github.com/spaghettifunk/anvil/engine/renderer/vulkan"

// RendererBackend is the surface a graphics API implementation exposes to the
// engine. Only the Vulkan backend exists today.
type RendererBackend interface {
	Initialize(appName string, appWidth, appHeight uint32) error
	Shutdown() error
	Resized(width, height uint16) error
	BeginFrame(deltaTime float64) error
	EndFrame(deltaTime float64) error
	CreateGeometry(vertexElementSize, vertexCount uint32, vertices []byte, indexElementSize, indexCount uint32, indices []byte) (*vulkan.VulkanGeometryData, error)
	CreateTexture(width, height uint32, pixels []byte) (*vulkan.VulkanImage, error)
}
