package vulkan

import (
	"fmt"
	"math"
	"os"
	"runtime"
	"unsafe"

	"github.com/go-gl/glfw/v3.3/glfw"
	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/anvil/engine/config"
	"github.com/spaghettifunk/anvil/engine/core"
	"github.com/spaghettifunk/anvil/engine/platform"
)

type VulkanRenderer struct {
	platform                *platform.Platform
	config                  *config.RendererConfig
	FrameNumber             uint64
	context                 *VulkanContext
	cachedFramebufferWidth  uint32
	cachedFramebufferHeight uint32

	// Shared device-local buffers all geometry uploads land in.
	objectVertexBuffer       *VulkanBuffer
	objectIndexBuffer        *VulkanBuffer
	objectVertexBufferOffset uint64
	objectIndexBufferOffset  uint64

	geometries [VULKAN_MAX_GEOMETRY_COUNT]VulkanGeometryData

	// Main pipeline; only created when compiled shaders are on disk.
	mainPipeline        *VulkanPipeline
	shaderStages        []*VulkanShaderStage
	descriptorSetLayout vk.DescriptorSetLayout
	descriptorPool      vk.DescriptorPool

	debug bool
}

func New(p *platform.Platform, cfg *config.RendererConfig) *VulkanRenderer {
	return &VulkanRenderer{
		platform:    p,
		config:      cfg,
		FrameNumber: 0,
		context: &VulkanContext{
			FramebufferWidth:  0,
			FramebufferHeight: 0,
			Allocator:         nil,
			Device:            &VulkanDevice{},
			Locks:             NewVulkanLockPool(),
		},
		cachedFramebufferWidth:  0,
		cachedFramebufferHeight: 0,
		debug:                   cfg.Validation,
	}
}

func (vr *VulkanRenderer) Initialize(appName string, appWidth, appHeight uint32) error {
	procAddr := glfw.GetVulkanGetInstanceProcAddress()
	if procAddr == nil {
		err := fmt.Errorf("GetInstanceProcAddress is nil")
		core.LogError(err.Error())
		return err
	}
	vk.SetGetInstanceProcAddr(procAddr)

	if err := vk.Init(); err != nil {
		core.LogError("failed to initialize vk: %s", err)
		return err
	}

	// TODO: custom allocator.
	vr.context.Allocator = nil

	vr.context.FramebufferWidth = appWidth
	vr.context.FramebufferHeight = appHeight

	// Setup Vulkan instance.
	appInfo := &vk.ApplicationInfo{
		SType:              vk.StructureTypeApplicationInfo,
		ApiVersion:         uint32(vk.MakeVersion(1, 0, 0)),
		ApplicationVersion: uint32(vk.MakeVersion(1, 0, 0)),
		PApplicationName:   VulkanSafeString(appName),
		PEngineName:        VulkanSafeString("Anvil Engine"),
	}

	createInfo := vk.InstanceCreateInfo{
		SType:            vk.StructureTypeInstanceCreateInfo,
		PApplicationInfo: appInfo,
	}

	// Obtain a list of required extensions
	requiredExtensions := []string{"VK_KHR_surface"} // Generic surface extension
	requiredExtensions = append(requiredExtensions, vr.platform.GetRequiredExtensionNames()...)

	if runtime.GOOS == "darwin" {
		requiredExtensions = append(requiredExtensions,
			"VK_KHR_portability_enumeration",
			"VK_KHR_get_physical_device_properties2",
		)
	}

	if vr.debug {
		requiredExtensions = append(requiredExtensions, vk.ExtDebugUtilsExtensionName, vk.ExtDebugReportExtensionName)
		core.LogInfo("Required extensions:")
		for i := 0; i < len(requiredExtensions); i++ {
			core.LogInfo(requiredExtensions[i])
		}
	}

	createInfo.EnabledExtensionCount = uint32(len(requiredExtensions))
	createInfo.PpEnabledExtensionNames = VulkanSafeStrings(requiredExtensions)

	// Validation layers, only in debug builds.
	requiredValidationLayerNames := []string{}

	if vr.debug {
		core.LogInfo("Validation layers enabled. Enumerating...")

		requiredValidationLayerNames = []string{"VK_LAYER_KHRONOS_validation"}

		if runtime.GOOS == "darwin" {
			createInfo.Flags |= 1
		}

		// Obtain a list of available validation layers
		var availableLayerCount uint32
		if res := vk.EnumerateInstanceLayerProperties(&availableLayerCount, nil); res != vk.Success {
			err := fmt.Errorf("failed to enumerate instance layers: %s", VulkanResultString(res, true))
			core.LogError(err.Error())
			return err
		}

		availableLayers := make([]vk.LayerProperties, availableLayerCount)
		if res := vk.EnumerateInstanceLayerProperties(&availableLayerCount, availableLayers); res != vk.Success {
			err := fmt.Errorf("failed to enumerate instance layers: %s", VulkanResultString(res, true))
			core.LogError(err.Error())
			return err
		}

		// Verify all required layers are available.
		for i := range requiredValidationLayerNames {
			found := false
			for j := range availableLayers {
				availableLayers[j].Deref()
				end := FindFirstZeroInByteArray(availableLayers[j].LayerName[:])
				if requiredValidationLayerNames[i] == vk.ToString(availableLayers[j].LayerName[:end+1]) {
					found = true
					break
				}
			}

			if !found {
				err := fmt.Errorf("required validation layer is missing: %s", requiredValidationLayerNames[i])
				core.LogError(err.Error())
				return err
			}
		}
		core.LogInfo("All required validation layers are present.")
	}

	createInfo.EnabledLayerCount = uint32(len(requiredValidationLayerNames))
	createInfo.PpEnabledLayerNames = VulkanSafeStrings(requiredValidationLayerNames)

	if res := vk.CreateInstance(&createInfo, vr.context.Allocator, &vr.context.Instance); res != vk.Success {
		err := fmt.Errorf("failed in creating the Vulkan Instance with error `%s`", VulkanResultString(res, true))
		core.LogError(err.Error())
		return err
	}
	if err := vk.InitInstance(vr.context.Instance); err != nil {
		core.LogError(err.Error())
		return err
	}

	core.LogInfo("Vulkan Instance created.")

	// Debugger
	if vr.debug {
		core.LogDebug("Creating Vulkan debugger...")
		debugCreateInfo := vk.DebugReportCallbackCreateInfo{
			SType:       vk.StructureTypeDebugReportCallbackCreateInfo,
			Flags:       vk.DebugReportFlags(vk.DebugReportErrorBit | vk.DebugReportWarningBit),
			PfnCallback: dbgCallbackFunc,
			PNext:       nil,
		}

		var dbg vk.DebugReportCallback
		if err := vk.Error(vk.CreateDebugReportCallback(vr.context.Instance, &debugCreateInfo, nil, &dbg)); err != nil {
			core.LogError("vk.CreateDebugReportCallback failed with %s", err)
			return err
		}
		vr.context.debugMessenger = dbg

		core.LogDebug("Vulkan debugger created.")
	}

	// Surface
	core.LogDebug("Creating Vulkan surface...")
	surface, err := vr.platform.Window.CreateWindowSurface(vr.context.Instance, nil)
	if err != nil {
		core.LogError("Vulkan surface creation failed.")
		return err
	}
	vr.context.Surface = vk.SurfaceFromPointer(surface)
	core.LogDebug("Vulkan surface created.")

	// Device creation
	if err := DeviceCreate(vr.context); err != nil {
		core.LogError("Failed to create device!")
		return err
	}

	// Swapchain
	sc, err := SwapchainCreate(vr.context, vr.context.FramebufferWidth, vr.context.FramebufferHeight, vr.config.FramesInFlight)
	if err != nil {
		return err
	}
	vr.context.Swapchain = sc

	rp, err := RenderpassCreate(
		vr.context,
		0, 0, float32(vr.context.FramebufferWidth), float32(vr.context.FramebufferHeight),
		0.0, 0.0, 0.2, 1.0,
		1.0,
		0)
	if err != nil {
		return err
	}
	vr.context.MainRenderpass = rp

	// Swapchain framebuffers.
	vr.context.Swapchain.Framebuffers = make([]*VulkanFramebuffer, vr.context.Swapchain.ImageCount)
	if err := vr.regenerateFramebuffers(vr.context.Swapchain, vr.context.MainRenderpass); err != nil {
		return err
	}

	// Create command buffers.
	if err := vr.createCommandBuffers(); err != nil {
		return err
	}

	// Create sync objects.
	vr.context.ImageAvailableSemaphores = make([]vk.Semaphore, vr.context.Swapchain.MaxFramesInFlight)
	vr.context.QueueCompleteSemaphores = make([]vk.Semaphore, vr.context.Swapchain.MaxFramesInFlight)
	vr.context.InFlightFences = make([]*VulkanFence, vr.context.Swapchain.MaxFramesInFlight)

	for i := 0; i < int(vr.context.Swapchain.MaxFramesInFlight); i++ {
		semaphoreCreateInfo := vk.SemaphoreCreateInfo{
			SType: vk.StructureTypeSemaphoreCreateInfo,
		}

		if res := vk.CreateSemaphore(vr.context.Device.LogicalDevice, &semaphoreCreateInfo, vr.context.Allocator, &vr.context.ImageAvailableSemaphores[i]); res != vk.Success {
			err := fmt.Errorf("failed to create semaphore on image available")
			core.LogError(err.Error())
			return err
		}

		if res := vk.CreateSemaphore(vr.context.Device.LogicalDevice, &semaphoreCreateInfo, vr.context.Allocator, &vr.context.QueueCompleteSemaphores[i]); res != vk.Success {
			err := fmt.Errorf("failed to create semaphore on queue complete")
			core.LogError(err.Error())
			return err
		}

		// Create the fence in a signaled state, indicating that the first frame has already been "rendered".
		// This will prevent the application from waiting indefinitely for the first frame to render since it
		// cannot be rendered until a frame is "rendered" before it.
		f, err := NewFence(vr.context, true)
		if err != nil {
			core.LogError(err.Error())
			return err
		}
		vr.context.InFlightFences[i] = f
	}

	// These are stored as pointers because the initial state should be nil,
	// and will be nil when not in use. Actual fences are not owned by this list.
	vr.context.ImagesInFlight = make([]*VulkanFence, vr.context.Swapchain.ImageCount)

	// Staging pool for uploads.
	staging, err := NewVulkanStagingPool(vr.context, vr.config.Staging.BufferCount, vk.DeviceSize(vr.config.Staging.BufferSize))
	if err != nil {
		return err
	}
	vr.context.Staging = staging

	// Shared geometry buffers.
	if err := vr.createGeometryBuffers(); err != nil {
		return err
	}

	if err := vr.createMainPipeline(); err != nil {
		return err
	}

	core.LogInfo("Vulkan renderer initialized successfully.")

	return nil
}

// createMainPipeline builds the textured-geometry pipeline from the SPIR-V
// files the shader build target produces. Missing shader files are not an
// error; the renderer then runs clears and uploads only.
func (vr *VulkanRenderer) createMainPipeline() error {
	vertCode, err := os.ReadFile("shaders/vert.spv")
	if err != nil {
		if os.IsNotExist(err) {
			core.LogWarn("compiled shaders not found, main pipeline disabled")
			return nil
		}
		core.LogError(err.Error())
		return err
	}
	fragCode, err := os.ReadFile("shaders/frag.spv")
	if err != nil {
		core.LogError(err.Error())
		return err
	}

	vert, err := NewShaderModule(vr.context, "main.vert", vertCode, vk.ShaderStageVertexBit)
	if err != nil {
		return err
	}
	frag, err := NewShaderModule(vr.context, "main.frag", fragCode, vk.ShaderStageFragmentBit)
	if err != nil {
		vert.Destroy(vr.context)
		return err
	}
	vr.shaderStages = []*VulkanShaderStage{vert, frag}

	setConfig := &VulkanDescriptorSetConfig{
		BindingCount:        1,
		SamplerBindingIndex: 0,
	}
	setConfig.Bindings[0] = vk.DescriptorSetLayoutBinding{
		Binding:         0,
		DescriptorType:  vk.DescriptorTypeCombinedImageSampler,
		DescriptorCount: 1,
		StageFlags:      vk.ShaderStageFlags(vk.ShaderStageFragmentBit),
	}
	layout, err := DescriptorSetLayoutCreate(vr.context, setConfig)
	if err != nil {
		return err
	}
	vr.descriptorSetLayout = layout

	pool, err := DescriptorPoolCreate(vr.context, []vk.DescriptorPoolSize{
		{
			Type:            vk.DescriptorTypeCombinedImageSampler,
			DescriptorCount: uint32(vr.context.Swapchain.ImageCount),
		},
	}, uint32(vr.context.Swapchain.ImageCount))
	if err != nil {
		return err
	}
	vr.descriptorPool = pool

	// Interleaved position (vec3) + texcoord (vec2).
	const vertexStride = 5 * 4
	pipeline, err := NewGraphicsPipeline(vr.context, &VulkanPipelineConfig{
		Renderpass: vr.context.MainRenderpass,
		Stride:     vertexStride,
		Attributes: []vk.VertexInputAttributeDescription{
			{Location: 0, Binding: 0, Format: vk.FormatR32g32b32Sfloat, Offset: 0},
			{Location: 1, Binding: 0, Format: vk.FormatR32g32Sfloat, Offset: 3 * 4},
		},
		DescriptorSetLayouts: []vk.DescriptorSetLayout{vr.descriptorSetLayout},
		Stages: []vk.PipelineShaderStageCreateInfo{
			vert.ShaderStageCreateInfo,
			frag.ShaderStageCreateInfo,
		},
		Viewport: vk.Viewport{
			X:        0,
			Y:        float32(vr.context.FramebufferHeight),
			Width:    float32(vr.context.FramebufferWidth),
			Height:   -float32(vr.context.FramebufferHeight),
			MinDepth: 0,
			MaxDepth: 1,
		},
		Scissor: vk.Rect2D{
			Extent: vk.Extent2D{Width: vr.context.FramebufferWidth, Height: vr.context.FramebufferHeight},
		},
		CullMode:    FaceCullModeBack,
		ShaderFlags: ShaderFlagDepthTest | ShaderFlagDepthWrite,
	})
	if err != nil {
		return err
	}
	vr.mainPipeline = pipeline
	return nil
}

func (vr *VulkanRenderer) Shutdown() error {
	vk.DeviceWaitIdle(vr.context.Device.LogicalDevice)

	// Destroy in the opposite order of creation.

	if vr.mainPipeline != nil {
		vr.mainPipeline.Destroy(vr.context)
		vr.mainPipeline = nil
	}
	if vr.descriptorPool != vk.NullDescriptorPool {
		vk.DestroyDescriptorPool(vr.context.Device.LogicalDevice, vr.descriptorPool, vr.context.Allocator)
		vr.descriptorPool = vk.NullDescriptorPool
	}
	if vr.descriptorSetLayout != vk.NullDescriptorSetLayout {
		vk.DestroyDescriptorSetLayout(vr.context.Device.LogicalDevice, vr.descriptorSetLayout, vr.context.Allocator)
		vr.descriptorSetLayout = vk.NullDescriptorSetLayout
	}
	for _, stage := range vr.shaderStages {
		stage.Destroy(vr.context)
	}
	vr.shaderStages = nil

	if vr.objectVertexBuffer != nil {
		vr.objectVertexBuffer.Destroy(vr.context)
		vr.objectVertexBuffer = nil
	}
	if vr.objectIndexBuffer != nil {
		vr.objectIndexBuffer.Destroy(vr.context)
		vr.objectIndexBuffer = nil
	}

	if vr.context.Staging != nil {
		vr.context.Staging.Destroy(vr.context)
		vr.context.Staging = nil
	}

	// Sync objects
	for i := 0; i < int(vr.context.Swapchain.MaxFramesInFlight); i++ {
		if vr.context.ImageAvailableSemaphores[i] != vk.NullSemaphore {
			vk.DestroySemaphore(
				vr.context.Device.LogicalDevice,
				vr.context.ImageAvailableSemaphores[i],
				vr.context.Allocator)
			vr.context.ImageAvailableSemaphores[i] = vk.NullSemaphore
		}
		if vr.context.QueueCompleteSemaphores[i] != vk.NullSemaphore {
			vk.DestroySemaphore(
				vr.context.Device.LogicalDevice,
				vr.context.QueueCompleteSemaphores[i],
				vr.context.Allocator)
			vr.context.QueueCompleteSemaphores[i] = vk.NullSemaphore
		}
		vr.context.InFlightFences[i].FenceDestroy(vr.context)
	}

	vr.context.ImageAvailableSemaphores = nil
	vr.context.QueueCompleteSemaphores = nil
	vr.context.InFlightFences = nil
	vr.context.ImagesInFlight = nil

	// Command buffers
	for i := 0; i < int(vr.context.Swapchain.ImageCount); i++ {
		if vr.context.GraphicsCommandBuffers[i].Handle != nil {
			vr.context.GraphicsCommandBuffers[i].Free(vr.context, vr.context.Device.GraphicsCommandPool)
		}
	}
	vr.context.GraphicsCommandBuffers = nil

	// Destroy framebuffers
	for i := 0; i < int(vr.context.Swapchain.ImageCount); i++ {
		vr.context.Swapchain.Framebuffers[i].Destroy(vr.context)
	}

	// Renderpass
	vr.context.MainRenderpass.RenderpassDestroy(vr.context)

	// Swapchain
	vr.context.Swapchain.SwapchainDestroy(vr.context)

	core.LogDebug("Destroying Vulkan device...")
	DeviceDestroy(vr.context)

	core.LogDebug("Destroying Vulkan surface...")
	if vr.context.Surface != vk.NullSurface {
		vk.DestroySurface(vr.context.Instance, vr.context.Surface, vr.context.Allocator)
		vr.context.Surface = vk.NullSurface
	}

	if vr.debug {
		core.LogDebug("Destroying Vulkan debugger...")
		if vr.context.debugMessenger != vk.NullDebugReportCallback {
			vk.DestroyDebugReportCallback(vr.context.Instance, vr.context.debugMessenger, vr.context.Allocator)
		}
	}

	core.LogDebug("Destroying Vulkan instance...")
	vk.DestroyInstance(vr.context.Instance, vr.context.Allocator)

	return nil
}

func (vr *VulkanRenderer) Resized(width, height uint16) error {
	// Update the "framebuffer size generation", a counter which indicates when
	// the framebuffer size has been updated.
	vr.cachedFramebufferWidth = uint32(width)
	vr.cachedFramebufferHeight = uint32(height)
	vr.context.FramebufferSizeGeneration++

	core.LogInfo("Vulkan renderer backend->resized: w/h/gen: %d/%d/%d", width, height, vr.context.FramebufferSizeGeneration)
	return nil
}

func (vr *VulkanRenderer) BeginFrame(deltaTime float64) error {
	device := vr.context.Device
	// Check if recreating swap chain and boot out.
	if vr.context.RecreatingSwapchain {
		result := vk.DeviceWaitIdle(device.LogicalDevice)
		if !VulkanResultIsSuccess(result) {
			err := fmt.Errorf("begin frame vkDeviceWaitIdle (1) failed: '%s'", VulkanResultString(result, true))
			core.LogError(err.Error())
			return err
		}
		core.LogInfo("Recreating swapchain, booting.")
		return core.ErrSwapchainBooting
	}

	// Check if the framebuffer has been resized. If so, a new swapchain must be created.
	if vr.context.FramebufferSizeGeneration != vr.context.FramebufferSizeLastGeneration {
		result := vk.DeviceWaitIdle(device.LogicalDevice)
		if !VulkanResultIsSuccess(result) {
			err := fmt.Errorf("begin frame vkDeviceWaitIdle (2) failed: '%s'", VulkanResultString(result, true))
			core.LogError(err.Error())
			return err
		}

		// If the swapchain recreation failed (because, for example, the window
		// was minimized), boot out before unsetting the flag.
		if !vr.recreateSwapchain() {
			err := fmt.Errorf("failed to recreate the swapchain")
			core.LogError(err.Error())
			return err
		}

		core.LogInfo("Resized, booting.")
		return core.ErrSwapchainBooting
	}

	// Wait for the execution of the current frame to complete. The fence being
	// free will allow this one to move on.
	if !vr.context.InFlightFences[vr.context.CurrentFrame].FenceWait(vr.context, math.MaxUint64) {
		err := fmt.Errorf("in-flight fence wait failure")
		core.LogWarn(err.Error())
		return err
	}

	// Acquire the next image from the swap chain. Pass along the semaphore that
	// should be signaled when this completes. This same semaphore will later be
	// waited on by the queue submission to ensure this image is available.
	imageIndex, err := vr.context.Swapchain.SwapchainAcquireNextImageIndex(vr.context, math.MaxUint64, vr.context.ImageAvailableSemaphores[vr.context.CurrentFrame], vk.NullFence)
	if err != nil {
		return err
	}
	vr.context.ImageIndex = imageIndex

	// Begin recording commands.
	commandBuffer := vr.context.GraphicsCommandBuffers[vr.context.ImageIndex]
	commandBuffer.Reset()
	if err := commandBuffer.Begin(false, false, false); err != nil {
		return err
	}

	// Dynamic state
	viewport := vk.Viewport{
		X:        0.0,
		Y:        float32(vr.context.FramebufferHeight),
		Width:    float32(vr.context.FramebufferWidth),
		Height:   -float32(vr.context.FramebufferHeight),
		MinDepth: 0.0,
		MaxDepth: 1.0,
	}

	// Scissor
	scissor := vk.Rect2D{
		Offset: vk.Offset2D{
			X: 0,
			Y: 0,
		},
		Extent: vk.Extent2D{
			Width:  vr.context.FramebufferWidth,
			Height: vr.context.FramebufferHeight,
		},
	}

	vk.CmdSetViewport(commandBuffer.Handle, 0, 1, []vk.Viewport{viewport})
	vk.CmdSetScissor(commandBuffer.Handle, 0, 1, []vk.Rect2D{scissor})

	vr.context.MainRenderpass.W = float32(vr.context.FramebufferWidth)
	vr.context.MainRenderpass.H = float32(vr.context.FramebufferHeight)

	// Bring the frame attachments to their working layouts. Whatever barriers
	// fall out of this queue up on the command buffer and flush when the pass
	// begins.
	if err := commandBuffer.SyncResource(vr.context.Swapchain.ImageSync[vr.context.ImageIndex], SyncRequest{
		Masks: SyncBarrierMasks{
			AccessMask: vk.AccessFlags(vk.AccessColorAttachmentWriteBit),
			StageMask:  vk.PipelineStageFlags(vk.PipelineStageColorAttachmentOutputBit),
		},
		Layout: vk.ImageLayoutColorAttachmentOptimal,
	}); err != nil {
		return err
	}
	if err := commandBuffer.SyncResource(vr.context.Swapchain.DepthAttachment.Sync, SyncRequest{
		Masks: SyncBarrierMasks{
			AccessMask: vk.AccessFlags(vk.AccessDepthStencilAttachmentWriteBit),
			StageMask:  vk.PipelineStageFlags(vk.PipelineStageEarlyFragmentTestsBit) | vk.PipelineStageFlags(vk.PipelineStageLateFragmentTestsBit),
		},
		Layout: vk.ImageLayoutDepthStencilAttachmentOptimal,
	}); err != nil {
		return err
	}

	// Begin the render pass.
	vr.context.MainRenderpass.RenderpassBegin(commandBuffer, vr.context.Swapchain.Framebuffers[vr.context.ImageIndex].Handle)

	if vr.mainPipeline != nil {
		vr.mainPipeline.Bind(commandBuffer, vk.PipelineBindPointGraphics)
	}

	return nil
}

func (vr *VulkanRenderer) EndFrame(deltaTime float64) error {
	commandBuffer := vr.context.GraphicsCommandBuffers[vr.context.ImageIndex]

	// End renderpass
	vr.context.MainRenderpass.RenderpassEnd(commandBuffer)

	// Hand the image over to present. The layout transition rides the queued
	// barriers and flushes in End.
	if err := commandBuffer.SyncResource(vr.context.Swapchain.ImageSync[vr.context.ImageIndex], SyncRequest{
		Masks: SyncBarrierMasks{
			AccessMask: 0,
			StageMask:  vk.PipelineStageFlags(vk.PipelineStageBottomOfPipeBit),
		},
		Layout: vk.ImageLayoutPresentSrc,
	}); err != nil {
		return err
	}

	if err := commandBuffer.End(); err != nil {
		return err
	}

	// Make sure the previous frame is not using this image (i.e. its fence is being waited on)
	if vr.context.ImagesInFlight[vr.context.ImageIndex] != nil {
		vr.context.ImagesInFlight[vr.context.ImageIndex].FenceWait(vr.context, math.MaxUint64)
	}

	// Mark the image fence as in-use by this frame.
	vr.context.ImagesInFlight[vr.context.ImageIndex] = vr.context.InFlightFences[vr.context.CurrentFrame]

	// Reset the fence for use on the next frame
	if err := vr.context.InFlightFences[vr.context.CurrentFrame].FenceReset(vr.context); err != nil {
		return err
	}

	// Submit under the graphics queue lock. The submission finalizes the
	// paired sync command buffer against the authoritative resource states,
	// which is only safe while the lock serializes this queue.
	if err := vr.context.Locks.SafeQueueCall(uint32(vr.context.Device.GraphicsQueueIndex), func() error {
		return commandBuffer.Submit(
			vr.context,
			vr.context.Device.GraphicsQueue,
			vr.context.ImageAvailableSemaphores[vr.context.CurrentFrame],
			vk.PipelineStageFlags(vk.PipelineStageColorAttachmentOutputBit),
			vr.context.QueueCompleteSemaphores[vr.context.CurrentFrame],
			vr.context.InFlightFences[vr.context.CurrentFrame].Handle,
		)
	}); err != nil {
		return err
	}

	// Give the image back to the swapchain.
	if err := vr.context.Swapchain.SwapchainPresent(
		vr.context,
		vr.context.Device.PresentQueue,
		vr.context.QueueCompleteSemaphores[vr.context.CurrentFrame],
		vr.context.ImageIndex); err != nil {
		return err
	}

	vr.FrameNumber++
	core.MetricsUpdate(deltaTime)

	return nil
}

func (vr *VulkanRenderer) createCommandBuffers() error {
	if len(vr.context.GraphicsCommandBuffers) == 0 {
		vr.context.GraphicsCommandBuffers = make([]*VulkanCommandBuffer, vr.context.Swapchain.ImageCount)
	}
	for i := 0; i < int(vr.context.Swapchain.ImageCount); i++ {
		if vr.context.GraphicsCommandBuffers[i] != nil && vr.context.GraphicsCommandBuffers[i].Handle != nil {
			vr.context.GraphicsCommandBuffers[i].Free(vr.context, vr.context.Device.GraphicsCommandPool)
		}
		vr.context.GraphicsCommandBuffers[i] = nil
		cb, err := NewVulkanCommandBuffer(vr.context, vr.context.Device.GraphicsCommandPool, true)
		if err != nil {
			return err
		}
		vr.context.GraphicsCommandBuffers[i] = cb
	}

	core.LogDebug("Vulkan command buffers created.")
	return nil
}

func (vr *VulkanRenderer) createGeometryBuffers() error {
	const vertexBufferSize = 64 * 1024 * 1024
	const indexBufferSize = 16 * 1024 * 1024

	vb, err := BufferCreate(vr.context, vertexBufferSize,
		vk.BufferUsageFlags(vk.BufferUsageVertexBufferBit)|vk.BufferUsageFlags(vk.BufferUsageTransferDstBit),
		vk.MemoryPropertyFlags(vk.MemoryPropertyDeviceLocalBit))
	if err != nil {
		return err
	}
	vr.objectVertexBuffer = vb

	ib, err := BufferCreate(vr.context, indexBufferSize,
		vk.BufferUsageFlags(vk.BufferUsageIndexBufferBit)|vk.BufferUsageFlags(vk.BufferUsageTransferDstBit),
		vk.MemoryPropertyFlags(vk.MemoryPropertyDeviceLocalBit))
	if err != nil {
		return err
	}
	vr.objectIndexBuffer = ib

	vr.objectVertexBufferOffset = 0
	vr.objectIndexBufferOffset = 0
	return nil
}

// CreateGeometry uploads vertex and optional index data into the shared
// device-local buffers and returns the slot describing where they landed.
func (vr *VulkanRenderer) CreateGeometry(vertexElementSize, vertexCount uint32, vertices []byte, indexElementSize, indexCount uint32, indices []byte) (*VulkanGeometryData, error) {
	if vertexCount == 0 || len(vertices) == 0 {
		err := fmt.Errorf("geometry requires vertex data")
		core.LogError(err.Error())
		return nil, err
	}

	// Find a free slot.
	var slot *VulkanGeometryData
	for i := range vr.geometries {
		if vr.geometries[i].ID == 0 {
			vr.geometries[i].ID = uint32(i) + 1
			slot = &vr.geometries[i]
			break
		}
	}
	if slot == nil {
		err := fmt.Errorf("geometry table is full, max %d", VULKAN_MAX_GEOMETRY_COUNT)
		core.LogError(err.Error())
		return nil, err
	}

	pool := vr.context.Device.GraphicsCommandPool
	queue := vr.context.Device.GraphicsQueue
	family := uint32(vr.context.Device.GraphicsQueueIndex)

	slot.VertexCount = vertexCount
	slot.VertexElementSize = vertexElementSize
	slot.VertexBufferOffset = vr.objectVertexBufferOffset
	if err := uploadDataRange(vr.context, pool, queue, family, vr.objectVertexBuffer, slot.VertexBufferOffset, vertices); err != nil {
		slot.ID = 0
		return nil, err
	}
	vr.objectVertexBufferOffset += uint64(len(vertices))

	if indexCount > 0 && len(indices) > 0 {
		slot.IndexCount = indexCount
		slot.IndexElementSize = indexElementSize
		slot.IndexBufferOffset = vr.objectIndexBufferOffset
		if err := uploadDataRange(vr.context, pool, queue, family, vr.objectIndexBuffer, slot.IndexBufferOffset, indices); err != nil {
			slot.ID = 0
			return nil, err
		}
		vr.objectIndexBufferOffset += uint64(len(indices))
	}

	slot.Generation++
	return slot, nil
}

// CreateTexture uploads RGBA pixel data into a new sampled image. The upload
// path transitions the image through TransferDstOptimal and leaves it in
// ShaderReadOnlyOptimal, all through the hazard tracker.
func (vr *VulkanRenderer) CreateTexture(width, height uint32, pixels []byte) (*VulkanImage, error) {
	image, err := ImageCreate(
		vr.context,
		vk.ImageType2d,
		width, height,
		vk.FormatR8g8b8a8Unorm,
		vk.ImageTilingOptimal,
		vk.ImageUsageFlags(vk.ImageUsageTransferDstBit)|vk.ImageUsageFlags(vk.ImageUsageSampledBit),
		vk.MemoryPropertyFlags(vk.MemoryPropertyDeviceLocalBit),
		true,
		vk.ImageAspectFlags(vk.ImageAspectColorBit))
	if err != nil {
		return nil, err
	}

	staging, err := vr.context.Staging.Checkout()
	if err != nil {
		image.ImageDestroy(vr.context)
		return nil, err
	}
	defer vr.context.Staging.Return(staging)

	if err := staging.LoadData(vr.context, 0, pixels); err != nil {
		image.ImageDestroy(vr.context)
		return nil, err
	}

	pool := vr.context.Device.GraphicsCommandPool
	queue := vr.context.Device.GraphicsQueue
	family := uint32(vr.context.Device.GraphicsQueueIndex)

	cb, err := AllocateAndBeginSingleUse(vr.context, pool)
	if err != nil {
		image.ImageDestroy(vr.context)
		return nil, err
	}
	if err := BufferCopyToImage(cb, staging, image); err != nil {
		image.ImageDestroy(vr.context)
		return nil, err
	}
	// Leave the image ready for sampling.
	if err := cb.SyncResource(image.Sync, SyncRequest{
		Masks: SyncBarrierMasks{
			AccessMask: vk.AccessFlags(vk.AccessShaderReadBit),
			StageMask:  vk.PipelineStageFlags(vk.PipelineStageFragmentShaderBit),
		},
		Layout: vk.ImageLayoutShaderReadOnlyOptimal,
	}); err != nil {
		image.ImageDestroy(vr.context)
		return nil, err
	}
	if err := cb.EndSingleUse(vr.context, pool, queue, family); err != nil {
		image.ImageDestroy(vr.context)
		return nil, err
	}

	return image, nil
}

func (vr *VulkanRenderer) regenerateFramebuffers(swapchain *VulkanSwapchain, renderpass *VulkanRenderpass) error {
	for i := 0; i < int(swapchain.ImageCount); i++ {
		// TODO: make this dynamic based on the currently configured attachments
		attachments := []vk.ImageView{
			swapchain.Views[i],
			swapchain.DepthAttachment.View,
		}
		fb, err := FramebufferCreate(vr.context, renderpass, vr.context.FramebufferWidth, vr.context.FramebufferHeight, attachments)
		if err != nil {
			core.LogError("failed to execute framebuffer create function")
			return err
		}
		swapchain.Framebuffers[i] = fb
	}
	return nil
}

func (vr *VulkanRenderer) recreateSwapchain() bool {
	// If already being recreated, do not try again.
	if vr.context.RecreatingSwapchain {
		core.LogDebug("recreateSwapchain called when already recreating. Booting.")
		return false
	}

	// Detect if the window is too small to be drawn to
	if vr.cachedFramebufferWidth == 0 || vr.cachedFramebufferHeight == 0 {
		core.LogDebug("recreateSwapchain called when window is < 1 in a dimension. Booting.")
		return false
	}

	// Mark as recreating if the dimensions are valid.
	vr.context.RecreatingSwapchain = true

	// Wait for any operations to complete.
	vk.DeviceWaitIdle(vr.context.Device.LogicalDevice)

	// Clear these out just in case.
	for i := 0; i < int(vr.context.Swapchain.ImageCount); i++ {
		vr.context.ImagesInFlight[i] = nil
	}

	// Requery support
	if err := DeviceQuerySwapchainSupport(vr.context.Device.PhysicalDevice, vr.context.Surface, &vr.context.Device.SwapchainSupport); err != nil {
		vr.context.RecreatingSwapchain = false
		return false
	}
	DeviceDetectDepthFormat(vr.context.Device)

	// Framebuffers and command buffers of the old swapchain.
	for i := 0; i < int(vr.context.Swapchain.ImageCount); i++ {
		vr.context.GraphicsCommandBuffers[i].Free(vr.context, vr.context.Device.GraphicsCommandPool)
	}
	for i := 0; i < int(vr.context.Swapchain.ImageCount); i++ {
		vr.context.Swapchain.Framebuffers[i].Destroy(vr.context)
	}

	sc, err := vr.context.Swapchain.SwapchainRecreate(vr.context, vr.cachedFramebufferWidth, vr.cachedFramebufferHeight)
	if err != nil {
		vr.context.RecreatingSwapchain = false
		return false
	}
	vr.context.Swapchain = sc

	// Sync the framebuffer size with the cached sizes.
	vr.context.FramebufferWidth = vr.cachedFramebufferWidth
	vr.context.FramebufferHeight = vr.cachedFramebufferHeight
	vr.cachedFramebufferWidth = 0
	vr.cachedFramebufferHeight = 0

	// Update framebuffer size generation.
	vr.context.FramebufferSizeLastGeneration = vr.context.FramebufferSizeGeneration

	vr.context.MainRenderpass.X = 0
	vr.context.MainRenderpass.Y = 0
	vr.context.MainRenderpass.W = float32(vr.context.FramebufferWidth)
	vr.context.MainRenderpass.H = float32(vr.context.FramebufferHeight)

	vr.context.Swapchain.Framebuffers = make([]*VulkanFramebuffer, vr.context.Swapchain.ImageCount)
	if err := vr.regenerateFramebuffers(vr.context.Swapchain, vr.context.MainRenderpass); err != nil {
		vr.context.RecreatingSwapchain = false
		return false
	}

	vr.context.ImagesInFlight = make([]*VulkanFence, vr.context.Swapchain.ImageCount)

	if err := vr.createCommandBuffers(); err != nil {
		vr.context.RecreatingSwapchain = false
		return false
	}

	// Clear the recreating flag.
	vr.context.RecreatingSwapchain = false

	return true
}

func dbgCallbackFunc(flags vk.DebugReportFlags, objectType vk.DebugReportObjectType, object uint64, location uint64, messageCode int32, pLayerPrefix string, pMessage string, pUserData unsafe.Pointer) vk.Bool32 {
	switch {
	case flags&vk.DebugReportFlags(vk.DebugReportErrorBit) != 0:
		core.LogError("[%s] Code %d : %s", pLayerPrefix, messageCode, pMessage)
	case flags&vk.DebugReportFlags(vk.DebugReportWarningBit) != 0:
		core.LogWarn("[%s] Code %d : %s", pLayerPrefix, messageCode, pMessage)
	case flags&vk.DebugReportFlags(vk.DebugReportPerformanceWarningBit) != 0:
		core.LogWarn("PERFORMANCE: [%s] Code %d : %s", pLayerPrefix, messageCode, pMessage)
	default:
		core.LogInfo("[%s] Code %d : %s", pLayerPrefix, messageCode, pMessage)
	}
	return vk.Bool32(vk.False)
}
