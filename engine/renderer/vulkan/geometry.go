package vulkan

import (
	"fmt"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/anvil/engine/core"
)

// VulkanGeometryData records where one geometry's vertex and index data live
// inside the shared device-local buffers.
type VulkanGeometryData struct {
	ID         uint32
	Generation uint32

	VertexCount        uint32
	VertexElementSize  uint32
	VertexBufferOffset uint64

	IndexCount        uint32
	IndexElementSize  uint32
	IndexBufferOffset uint64
}

// uploadDataRange copies data into a device-local buffer through a pooled
// staging buffer. The copy is recorded on a single-use command buffer whose
// submission emits the transfer barriers queued by BufferCopy.
func uploadDataRange(context *VulkanContext, pool vk.CommandPool, queue vk.Queue, queueFamilyIndex uint32, buffer *VulkanBuffer, offset uint64, data []byte) error {
	if uint64(len(data)) > uint64(context.Staging.BufferSize) {
		err := fmt.Errorf("upload of %d bytes exceeds staging buffer size %d", len(data), context.Staging.BufferSize)
		core.LogError(err.Error())
		return err
	}

	staging, err := context.Staging.Checkout()
	if err != nil {
		return err
	}
	defer context.Staging.Return(staging)

	if err := staging.LoadData(context, 0, data); err != nil {
		return err
	}

	cb, err := AllocateAndBeginSingleUse(context, pool)
	if err != nil {
		return err
	}
	if err := BufferCopy(cb, staging, 0, buffer, vk.DeviceSize(offset), vk.DeviceSize(len(data))); err != nil {
		return err
	}
	return cb.EndSingleUse(context, pool, queue, queueFamilyIndex)
}
