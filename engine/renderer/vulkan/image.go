package vulkan

import (
	"fmt"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/anvil/engine/core"
)

type VulkanImage struct {
	Handle      vk.Image
	Memory      vk.DeviceMemory
	View        vk.ImageView
	Width       uint32
	Height      uint32
	Format      vk.Format
	MipLevels   uint32
	ArrayLayers uint32

	// Hazard-tracking identity; one record per mip x layer.
	Sync *VulkanSyncResource
}

func ImageCreate(
	context *VulkanContext,
	imageType vk.ImageType,
	width uint32,
	height uint32,
	format vk.Format,
	tiling vk.ImageTiling,
	usage vk.ImageUsageFlags,
	memoryFlags vk.MemoryPropertyFlags,
	createView bool,
	viewAspectFlags vk.ImageAspectFlags) (*VulkanImage, error) {

	image := &VulkanImage{
		Width:       width,
		Height:      height,
		Format:      format,
		MipLevels:   1,
		ArrayLayers: 1,
	}

	// Linear host-accessible images start preinitialized so host writes made
	// before the first barrier are preserved; everything else starts
	// undefined.
	initialLayout := vk.ImageLayoutUndefined
	if tiling == vk.ImageTilingLinear && memoryFlags&vk.MemoryPropertyFlags(vk.MemoryPropertyHostVisibleBit) != 0 {
		initialLayout = vk.ImageLayoutPreinitialized
	}

	imageCreateInfo := vk.ImageCreateInfo{
		SType:     vk.StructureTypeImageCreateInfo,
		ImageType: imageType,
		Extent: vk.Extent3D{
			Width:  width,
			Height: height,
			Depth:  1, // TODO: Support configurable depth.
		},
		MipLevels:     image.MipLevels,
		ArrayLayers:   image.ArrayLayers,
		Format:        format,
		Tiling:        tiling,
		InitialLayout: initialLayout,
		Usage:         usage,
		Samples:       vk.SampleCount1Bit,
		SharingMode:   vk.SharingModeExclusive,
	}

	var handle vk.Image
	if res := vk.CreateImage(context.Device.LogicalDevice, &imageCreateInfo, context.Allocator, &handle); res != vk.Success {
		err := fmt.Errorf("failed to create image: %s", VulkanResultString(res, true))
		core.LogError(err.Error())
		return nil, err
	}
	image.Handle = handle

	var memoryRequirements vk.MemoryRequirements
	vk.GetImageMemoryRequirements(context.Device.LogicalDevice, image.Handle, &memoryRequirements)
	memoryRequirements.Deref()

	memoryType := context.FindMemoryIndex(memoryRequirements.MemoryTypeBits, uint32(memoryFlags))
	if memoryType == -1 {
		err := fmt.Errorf("required memory type not found. Image not valid")
		core.LogError(err.Error())
		return nil, err
	}

	memoryAllocateInfo := vk.MemoryAllocateInfo{
		SType:           vk.StructureTypeMemoryAllocateInfo,
		AllocationSize:  memoryRequirements.Size,
		MemoryTypeIndex: uint32(memoryType),
	}
	var memory vk.DeviceMemory
	if res := vk.AllocateMemory(context.Device.LogicalDevice, &memoryAllocateInfo, context.Allocator, &memory); res != vk.Success {
		err := fmt.Errorf("failed to allocate image memory: %s", VulkanResultString(res, true))
		core.LogError(err.Error())
		return nil, err
	}
	image.Memory = memory

	if res := vk.BindImageMemory(context.Device.LogicalDevice, image.Handle, image.Memory, 0); res != vk.Success {
		err := fmt.Errorf("failed to bind image memory: %s", VulkanResultString(res, true))
		core.LogError(err.Error())
		return nil, err
	}

	image.Sync = NewImageSyncResource(image.Handle, viewAspectFlags, image.MipLevels, image.ArrayLayers, initialLayout)

	if createView {
		if err := image.ImageViewCreate(context, format, viewAspectFlags); err != nil {
			return nil, err
		}
	}

	return image, nil
}

func (v *VulkanImage) ImageViewCreate(context *VulkanContext, format vk.Format, aspectFlags vk.ImageAspectFlags) error {
	viewCreateInfo := vk.ImageViewCreateInfo{
		SType:    vk.StructureTypeImageViewCreateInfo,
		Image:    v.Handle,
		ViewType: vk.ImageViewType2d, // TODO: Make configurable.
		Format:   format,
		SubresourceRange: vk.ImageSubresourceRange{
			AspectMask:     aspectFlags,
			BaseMipLevel:   0,
			LevelCount:     v.MipLevels,
			BaseArrayLayer: 0,
			LayerCount:     v.ArrayLayers,
		},
	}

	var view vk.ImageView
	if res := vk.CreateImageView(context.Device.LogicalDevice, &viewCreateInfo, context.Allocator, &view); res != vk.Success {
		err := fmt.Errorf("failed to create image view: %s", VulkanResultString(res, true))
		core.LogError(err.Error())
		return err
	}
	v.View = view
	return nil
}

func (v *VulkanImage) ImageDestroy(context *VulkanContext) {
	if v.View != vk.NullImageView {
		vk.DestroyImageView(context.Device.LogicalDevice, v.View, context.Allocator)
		v.View = vk.NullImageView
	}
	if v.Memory != vk.NullDeviceMemory {
		vk.FreeMemory(context.Device.LogicalDevice, v.Memory, context.Allocator)
		v.Memory = vk.NullDeviceMemory
	}
	if v.Handle != vk.NullImage {
		vk.DestroyImage(context.Device.LogicalDevice, v.Handle, context.Allocator)
		v.Handle = vk.NullImage
	}
	v.Sync = nil
}
