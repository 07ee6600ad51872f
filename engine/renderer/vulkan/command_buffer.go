package vulkan

import (
	"fmt"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/anvil/engine/core"
)

type VulkanCommandBufferState int

const (
	COMMAND_BUFFER_STATE_READY VulkanCommandBufferState = iota
	COMMAND_BUFFER_STATE_RECORDING
	COMMAND_BUFFER_STATE_IN_RENDER_PASS
	COMMAND_BUFFER_STATE_RECORDING_ENDED
	COMMAND_BUFFER_STATE_SUBMITTED
	COMMAND_BUFFER_STATE_NOT_ALLOCATED
)

// VulkanCommandBuffer is one recording session plus its hazard-tracking
// batch. Handle receives the recorded work; SyncHandle is the paired buffer
// that EmitInitialResourceSync fills right before submission, ordered ahead
// of Handle through SyncSemaphore. Splitting the two is what lets recording
// happen before the final submission order is known.
type VulkanCommandBuffer struct {
	Handle        vk.CommandBuffer
	SyncHandle    vk.CommandBuffer
	SyncSemaphore vk.Semaphore

	// Command buffer state.
	State VulkanCommandBufferState

	batch        syncBatch
	fineBarriers bool
}

func NewVulkanCommandBuffer(
	context *VulkanContext,
	pool vk.CommandPool,
	isPrimary bool,
) (*VulkanCommandBuffer, error) {
	vCommandBuffer := &VulkanCommandBuffer{
		State:        COMMAND_BUFFER_STATE_NOT_ALLOCATED,
		fineBarriers: context.Device.SupportsSynchronization2,
	}
	vCommandBuffer.batch.reset()

	level := vk.CommandBufferLevelPrimary
	if !isPrimary {
		level = vk.CommandBufferLevelSecondary
	}

	// One allocation covers the main buffer and its paired sync buffer.
	allocateInfo := vk.CommandBufferAllocateInfo{
		SType:              vk.StructureTypeCommandBufferAllocateInfo,
		CommandPool:        pool,
		CommandBufferCount: 2,
		Level:              level,
		PNext:              nil,
	}

	handles := make([]vk.CommandBuffer, 2)
	if res := vk.AllocateCommandBuffers(context.Device.LogicalDevice, &allocateInfo, handles); res != vk.Success {
		err := fmt.Errorf("failed to allocate command buffers")
		core.LogError(err.Error())
		return nil, err
	}
	vCommandBuffer.Handle = handles[0]
	vCommandBuffer.SyncHandle = handles[1]

	semaphoreCreateInfo := vk.SemaphoreCreateInfo{
		SType: vk.StructureTypeSemaphoreCreateInfo,
	}
	if res := vk.CreateSemaphore(context.Device.LogicalDevice, &semaphoreCreateInfo, context.Allocator, &vCommandBuffer.SyncSemaphore); res != vk.Success {
		err := fmt.Errorf("failed to create sync ordering semaphore")
		core.LogError(err.Error())
		return nil, err
	}

	vCommandBuffer.State = COMMAND_BUFFER_STATE_READY
	return vCommandBuffer, nil
}

func (v *VulkanCommandBuffer) Free(
	context *VulkanContext,
	pool vk.CommandPool) {
	vk.FreeCommandBuffers(context.Device.LogicalDevice, pool, 2, []vk.CommandBuffer{v.Handle, v.SyncHandle})
	if v.SyncSemaphore != vk.NullSemaphore {
		vk.DestroySemaphore(context.Device.LogicalDevice, v.SyncSemaphore, context.Allocator)
		v.SyncSemaphore = vk.NullSemaphore
	}
	v.Handle = nil
	v.SyncHandle = nil
	v.State = COMMAND_BUFFER_STATE_NOT_ALLOCATED
}

func (v *VulkanCommandBuffer) Begin(
	isSingleUse,
	isRenderpassContinue,
	isSimultaneousUse bool) error {
	if v.State != COMMAND_BUFFER_STATE_READY {
		err := fmt.Errorf("begin called on a command buffer that is not ready")
		core.LogError(err.Error())
		return core.ErrRecordingState
	}

	vBeginInfo := &vk.CommandBufferBeginInfo{
		SType: vk.StructureTypeCommandBufferBeginInfo,
		Flags: 0,
	}

	if isSingleUse {
		vBeginInfo.Flags |= vk.CommandBufferUsageFlags(vk.CommandBufferUsageOneTimeSubmitBit)
	}
	if isRenderpassContinue {
		vBeginInfo.Flags |= vk.CommandBufferUsageFlags(vk.CommandBufferUsageRenderPassContinueBit)
	}
	if isSimultaneousUse {
		vBeginInfo.Flags |= vk.CommandBufferUsageFlags(vk.CommandBufferUsageSimultaneousUseBit)
	}

	if res := vk.BeginCommandBuffer(v.Handle, vBeginInfo); res != vk.Success {
		err := fmt.Errorf("failed to begin command buffer")
		core.LogError(err.Error())
		return err
	}

	// A new session starts from fresh scratch state.
	v.batch.reset()
	v.State = COMMAND_BUFFER_STATE_RECORDING

	return nil
}

func (v *VulkanCommandBuffer) End() error {
	if v.State != COMMAND_BUFFER_STATE_RECORDING {
		err := fmt.Errorf("end called on a command buffer that is not recording")
		core.LogError(err.Error())
		return core.ErrRecordingState
	}

	// Catch-all for synchronization still queued after the last pass.
	v.EmitQueuedSynchro()

	if res := vk.EndCommandBuffer(v.Handle); res != vk.Success {
		err := fmt.Errorf("failed to end command buffer")
		core.LogError(err.Error())
		return err
	}
	v.State = COMMAND_BUFFER_STATE_RECORDING_ENDED
	return nil
}

func (v *VulkanCommandBuffer) UpdateSubmitted() {
	v.State = COMMAND_BUFFER_STATE_SUBMITTED
	// The session is over; the scratch state must not leak into the next one.
	v.batch.reset()
}

func (v *VulkanCommandBuffer) Reset() {
	v.State = COMMAND_BUFFER_STATE_READY
}

// Submit finalizes the paired sync buffer against the authoritative resource
// states and issues the two ordered submissions: the sync buffer signals
// SyncSemaphore, which the main buffer waits on at top of pipe before any of
// its recorded work runs. Extra wait/signal semaphores and the fence apply to
// the main submission. The caller holds the queue submission lock.
func (v *VulkanCommandBuffer) Submit(
	context *VulkanContext,
	queue vk.Queue,
	waitSemaphore vk.Semaphore,
	waitStage vk.PipelineStageFlags,
	signalSemaphore vk.Semaphore,
	fence vk.Fence) error {
	if v.State != COMMAND_BUFFER_STATE_RECORDING_ENDED {
		err := fmt.Errorf("submit called on a command buffer that has not ended recording")
		core.LogError(err.Error())
		return core.ErrRecordingState
	}

	syncBeginInfo := &vk.CommandBufferBeginInfo{
		SType: vk.StructureTypeCommandBufferBeginInfo,
		Flags: vk.CommandBufferUsageFlags(vk.CommandBufferUsageOneTimeSubmitBit),
	}
	if res := vk.BeginCommandBuffer(v.SyncHandle, syncBeginInfo); res != vk.Success {
		err := fmt.Errorf("failed to begin sync command buffer")
		core.LogError(err.Error())
		return err
	}
	v.EmitInitialResourceSync(v.SyncHandle)
	if res := vk.EndCommandBuffer(v.SyncHandle); res != vk.Success {
		err := fmt.Errorf("failed to end sync command buffer")
		core.LogError(err.Error())
		return err
	}

	syncSubmit := vk.SubmitInfo{
		SType:                vk.StructureTypeSubmitInfo,
		CommandBufferCount:   1,
		PCommandBuffers:      []vk.CommandBuffer{v.SyncHandle},
		SignalSemaphoreCount: 1,
		PSignalSemaphores:    []vk.Semaphore{v.SyncSemaphore},
	}

	mainSubmit := vk.SubmitInfo{
		SType:              vk.StructureTypeSubmitInfo,
		CommandBufferCount: 1,
		PCommandBuffers:    []vk.CommandBuffer{v.Handle},
	}
	mainWaits := []vk.Semaphore{v.SyncSemaphore}
	mainStages := []vk.PipelineStageFlags{vk.PipelineStageFlags(vk.PipelineStageTopOfPipeBit)}
	if waitSemaphore != vk.NullSemaphore {
		mainWaits = append(mainWaits, waitSemaphore)
		mainStages = append(mainStages, waitStage)
	}
	mainSubmit.WaitSemaphoreCount = uint32(len(mainWaits))
	mainSubmit.PWaitSemaphores = mainWaits
	mainSubmit.PWaitDstStageMask = mainStages
	if signalSemaphore != vk.NullSemaphore {
		mainSubmit.SignalSemaphoreCount = 1
		mainSubmit.PSignalSemaphores = []vk.Semaphore{signalSemaphore}
	}

	if res := vk.QueueSubmit(queue, 2, []vk.SubmitInfo{syncSubmit, mainSubmit}, fence); res != vk.Success {
		err := fmt.Errorf("vkQueueSubmit failed with result: %s", VulkanResultString(res, true))
		core.LogError(err.Error())
		return err
	}

	v.UpdateSubmitted()
	return nil
}

/**
 * Allocates and begins recording to out_command_buffer.
 */
func AllocateAndBeginSingleUse(
	context *VulkanContext,
	pool vk.CommandPool) (*VulkanCommandBuffer, error) {
	cb, err := NewVulkanCommandBuffer(context, pool, true)
	if err != nil {
		return nil, err
	}
	if err := cb.Begin(true, false, false); err != nil {
		return nil, err
	}
	return cb, nil
}

/**
 * Ends recording, submits to and waits for queue operation and frees the provided command buffer.
 */
func (v *VulkanCommandBuffer) EndSingleUse(
	context *VulkanContext,
	pool vk.CommandPool,
	queue vk.Queue,
	queueFamilyIndex uint32) error {
	// End the command buffer.
	if err := v.End(); err != nil {
		return err
	}

	// Single-use work still reconciles against the authoritative state, so it
	// takes the same queue lock as frame submissions.
	if err := context.Locks.SafeQueueCall(queueFamilyIndex, func() error {
		return v.Submit(context, queue, vk.NullSemaphore, 0, vk.NullSemaphore, vk.NullFence)
	}); err != nil {
		return err
	}

	// Wait for it to finish
	if res := vk.QueueWaitIdle(queue); res != vk.Success {
		err := fmt.Errorf("queue failed to wait in idle mode")
		core.LogError(err.Error())
		return err
	}

	// Free the command buffer.
	v.Free(context, pool)

	return nil
}
