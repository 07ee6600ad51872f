package vulkan

import (
	"fmt"
	"unsafe"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/anvil/engine/core"
)

type VulkanBuffer struct {
	Handle    vk.Buffer
	Memory    vk.DeviceMemory
	TotalSize vk.DeviceSize
	Usage     vk.BufferUsageFlags

	// Hazard-tracking identity; buffers carry a single record.
	Sync *VulkanSyncResource
}

func BufferCreate(
	context *VulkanContext,
	size vk.DeviceSize,
	usage vk.BufferUsageFlags,
	memoryFlags vk.MemoryPropertyFlags) (*VulkanBuffer, error) {

	buffer := &VulkanBuffer{
		TotalSize: size,
		Usage:     usage,
	}

	bufferCreateInfo := vk.BufferCreateInfo{
		SType:       vk.StructureTypeBufferCreateInfo,
		Size:        size,
		Usage:       usage,
		SharingMode: vk.SharingModeExclusive,
	}

	var handle vk.Buffer
	if res := vk.CreateBuffer(context.Device.LogicalDevice, &bufferCreateInfo, context.Allocator, &handle); res != vk.Success {
		err := fmt.Errorf("failed to create buffer: %s", VulkanResultString(res, true))
		core.LogError(err.Error())
		return nil, err
	}
	buffer.Handle = handle

	var memoryRequirements vk.MemoryRequirements
	vk.GetBufferMemoryRequirements(context.Device.LogicalDevice, buffer.Handle, &memoryRequirements)
	memoryRequirements.Deref()

	memoryType := context.FindMemoryIndex(memoryRequirements.MemoryTypeBits, uint32(memoryFlags))
	if memoryType == -1 {
		err := fmt.Errorf("required memory type not found. Buffer not valid")
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
		err := fmt.Errorf("failed to allocate buffer memory: %s", VulkanResultString(res, true))
		core.LogError(err.Error())
		return nil, err
	}
	buffer.Memory = memory

	if res := vk.BindBufferMemory(context.Device.LogicalDevice, buffer.Handle, buffer.Memory, 0); res != vk.Success {
		err := fmt.Errorf("failed to bind buffer memory: %s", VulkanResultString(res, true))
		core.LogError(err.Error())
		return nil, err
	}

	buffer.Sync = NewBufferSyncResource(buffer.Handle, size)

	return buffer, nil
}

func (b *VulkanBuffer) Destroy(context *VulkanContext) {
	if b.Memory != vk.NullDeviceMemory {
		vk.FreeMemory(context.Device.LogicalDevice, b.Memory, context.Allocator)
		b.Memory = vk.NullDeviceMemory
	}
	if b.Handle != vk.NullBuffer {
		vk.DestroyBuffer(context.Device.LogicalDevice, b.Handle, context.Allocator)
		b.Handle = vk.NullBuffer
	}
	b.Sync = nil
}

// LoadData maps the buffer and copies data into it. Only valid on
// host-visible buffers; device-local buffers go through the staging pool.
func (b *VulkanBuffer) LoadData(context *VulkanContext, offset vk.DeviceSize, data []byte) error {
	var mapped unsafe.Pointer
	if res := vk.MapMemory(context.Device.LogicalDevice, b.Memory, offset, vk.DeviceSize(len(data)), 0, &mapped); res != vk.Success {
		err := fmt.Errorf("failed to map buffer memory: %s", VulkanResultString(res, true))
		core.LogError(err.Error())
		return err
	}
	vk.Memcopy(mapped, data)
	vk.UnmapMemory(context.Device.LogicalDevice, b.Memory)
	return nil
}

// BufferCopy records a copy between two tracked buffers. Both touches go
// through the hazard tracker and the queued barriers drain before the copy
// command so the synchronization precedes the access.
func BufferCopy(
	cb *VulkanCommandBuffer,
	src *VulkanBuffer, srcOffset vk.DeviceSize,
	dst *VulkanBuffer, dstOffset vk.DeviceSize,
	size vk.DeviceSize) error {

	if err := cb.SyncResource(src.Sync, SyncRequest{
		Masks: SyncBarrierMasks{
			AccessMask: vk.AccessFlags(vk.AccessTransferReadBit),
			StageMask:  vk.PipelineStageFlags(vk.PipelineStageTransferBit),
		},
	}); err != nil {
		return err
	}
	if err := cb.SyncResource(dst.Sync, SyncRequest{
		Masks: SyncBarrierMasks{
			AccessMask: vk.AccessFlags(vk.AccessTransferWriteBit),
			StageMask:  vk.PipelineStageFlags(vk.PipelineStageTransferBit),
		},
	}); err != nil {
		return err
	}
	cb.EmitQueuedSynchro()

	copyRegion := vk.BufferCopy{
		SrcOffset: srcOffset,
		DstOffset: dstOffset,
		Size:      size,
	}
	vk.CmdCopyBuffer(cb.Handle, src.Handle, dst.Handle, 1, []vk.BufferCopy{copyRegion})
	return nil
}

// BufferCopyToImage records a buffer-to-image copy, transitioning the image
// to TransferDstOptimal through the hazard tracker first.
func BufferCopyToImage(
	cb *VulkanCommandBuffer,
	src *VulkanBuffer,
	dst *VulkanImage) error {

	if err := cb.SyncResource(src.Sync, SyncRequest{
		Masks: SyncBarrierMasks{
			AccessMask: vk.AccessFlags(vk.AccessTransferReadBit),
			StageMask:  vk.PipelineStageFlags(vk.PipelineStageTransferBit),
		},
	}); err != nil {
		return err
	}
	if err := cb.SyncResource(dst.Sync, SyncRequest{
		Masks: SyncBarrierMasks{
			AccessMask: vk.AccessFlags(vk.AccessTransferWriteBit),
			StageMask:  vk.PipelineStageFlags(vk.PipelineStageTransferBit),
		},
		Layout: vk.ImageLayoutTransferDstOptimal,
	}); err != nil {
		return err
	}
	cb.EmitQueuedSynchro()

	region := vk.BufferImageCopy{
		BufferOffset:      0,
		BufferRowLength:   0,
		BufferImageHeight: 0,
		ImageSubresource: vk.ImageSubresourceLayers{
			AspectMask:     dst.Sync.Aspect,
			MipLevel:       0,
			BaseArrayLayer: 0,
			LayerCount:     dst.ArrayLayers,
		},
		ImageExtent: vk.Extent3D{
			Width:  dst.Width,
			Height: dst.Height,
			Depth:  1,
		},
	}
	vk.CmdCopyBufferToImage(cb.Handle, src.Handle, dst.Handle, vk.ImageLayoutTransferDstOptimal, 1, []vk.BufferImageCopy{region})
	return nil
}
