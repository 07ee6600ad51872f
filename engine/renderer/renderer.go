package renderer

import (
	"errors"
	"sync"

	"github.com/spaghettifunk/anvil/engine/config"
	"github.com/spaghettifunk/anvil/engine/core"
	"github.com/spaghettifunk/anvil/engine/platform"
	"github.com/spaghettifunk/anvil/engine/renderer/vulkan"
)

type RendererType uint8

const (
	Vulkan RendererType = iota
	DirectX
	Metal
	OpenGL
)

type Renderer struct {
	backend RendererBackend
}

var initRenderer sync.Once
var renderer *Renderer

func Initialize(cfg *config.RendererConfig, platform *platform.Platform) error {
	initRenderer.Do(func() {
		renderer = &Renderer{
			backend: vulkan.New(platform, cfg),
		}
	})
	return renderer.backend.Initialize(cfg.AppName, uint32(cfg.Width), uint32(cfg.Height))
}

func Shutdown() error {
	return renderer.backend.Shutdown()
}

func BeginFrame(deltaTime float64) error {
	return renderer.backend.BeginFrame(deltaTime)
}

func EndFrame(deltaTime float64) error {
	return renderer.backend.EndFrame(deltaTime)
}

func OnResize(width, height uint16) error {
	return renderer.backend.Resized(width, height)
}

// DrawFrame runs one begin/end cycle. A frame skipped for swapchain
// recreation is not an error; the caller simply tries again next tick.
func DrawFrame(deltaTime float64) error {
	if err := BeginFrame(deltaTime); err != nil {
		if errors.Is(err, core.ErrSwapchainBooting) {
			return nil
		}
		core.LogError(err.Error())
		return err
	}
	if err := EndFrame(deltaTime); err != nil {
		core.LogError("EndFrame failed. Application shutting down...")
		return err
	}
	return nil
}

func CreateGeometry(vertexElementSize, vertexCount uint32, vertices []byte, indexElementSize, indexCount uint32, indices []byte) (*vulkan.VulkanGeometryData, error) {
	return renderer.backend.CreateGeometry(vertexElementSize, vertexCount, vertices, indexElementSize, indexCount, indices)
}

func CreateTexture(width, height uint32, pixels []byte) (*vulkan.VulkanImage, error) {
	return renderer.backend.CreateTexture(width, height, pixels)
}
