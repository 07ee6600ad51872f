package vulkan

import (
	vk "github.com/goki/vulkan"

	"github.com/spaghettifunk/anvil/engine/core"
)

// resourceSyncInfo is the per-resource bookkeeping of one recording session.
// Expected holds the first request of the session verbatim; it is what the
// submission-time pass reconciles against the authoritative state. LocalState
// is the session-private scratch record every later touch resolves against.
type resourceSyncInfo struct {
	Expected   SyncRequest
	LocalState SyncState
	HasBarrier bool
}

type queuedBarrier struct {
	resource *VulkanSyncResource
	info     ResourceBarrierInfo
}

// syncBatch accumulates barrier decisions for one recording session. The
// queue drains at two points: right before a render pass begins and at End.
type syncBatch struct {
	resourceSyncInfo   map[*VulkanSyncResource]*resourceSyncInfo
	queued             []queuedBarrier
	imageBarrierCount  int
	bufferBarrierCount int
}

func (b *syncBatch) reset() {
	b.resourceSyncInfo = make(map[*VulkanSyncResource]*resourceSyncInfo)
	b.queued = b.queued[:0]
	b.imageBarrierCount = 0
	b.bufferBarrierCount = 0
}

func (b *syncBatch) push(resource *VulkanSyncResource, info ResourceBarrierInfo) {
	b.queued = append(b.queued, queuedBarrier{resource: resource, info: info})
	switch resource.Kind {
	case RESOURCE_KIND_IMAGE:
		b.imageBarrierCount++
	case RESOURCE_KIND_BUFFER:
		b.bufferBarrierCount++
	}
	core.MetricsBarrierQueued()
}

// SyncResource records an upcoming access to a resource. Operations must call
// this before recording the native command that performs the access, and never
// while a render pass is open.
//
// The first touch of a resource in a session only captures the request as the
// session's expected starting state; the barrier that realizes it against the
// authoritative cross-submission state is computed by EmitInitialResourceSync
// right before the work is submitted, since other command lists may touch the
// same resource in between. Later touches resolve against the session-local
// scratch state and queue their barriers directly.
func (v *VulkanCommandBuffer) SyncResource(resource *VulkanSyncResource, req SyncRequest) error {
	if v.State == COMMAND_BUFFER_STATE_IN_RENDER_PASS {
		core.LogError("SyncResource called inside a render pass on %s", resource.TraceID)
		return core.ErrRecordingState
	}
	if v.State != COMMAND_BUFFER_STATE_RECORDING {
		core.LogError("SyncResource called while not recording on %s", resource.TraceID)
		return core.ErrRecordingState
	}

	entry, ok := v.batch.resourceSyncInfo[resource]
	if !ok {
		entry = &resourceSyncInfo{Expected: req}
		// Prime the scratch state with the request; the resulting barrier is
		// discarded because the submission-time pass owns the first one.
		entry.LocalState.Reset(req.Layout)
		BuildBarrier(&entry.LocalState, req)
		v.batch.resourceSyncInfo[resource] = entry
		return nil
	}

	needs, barrier := BuildBarrier(&entry.LocalState, req)
	if needs {
		v.batch.push(resource, barrier)
		entry.HasBarrier = true
	} else if !entry.HasBarrier {
		// No session-local barrier orders this touch after the first one, so
		// it is still part of the session's starting state and must widen
		// what the submission-time pass reconciles. Only reads can land here:
		// a write or layout change against a primed scratch state always
		// produces a barrier.
		entry.Expected.Masks.StageMask |= req.Masks.StageMask
		entry.Expected.Masks.AccessMask |= req.Masks.AccessMask
	}
	return nil
}

// EmitQueuedSynchro drains every queued barrier into the main command buffer.
// Called right before a render pass begins and at End; a drain with nothing
// queued is a no-op.
func (v *VulkanCommandBuffer) EmitQueuedSynchro() {
	v.emitBarriers(v.Handle)
}

// EmitInitialResourceSync reconciles the session's expected starting state of
// every touched resource against the authoritative cross-submission records,
// and emits the resulting barriers into the dedicated sync command buffer.
// The caller holds the queue submission lock; this is the only place the
// authoritative records are mutated.
func (v *VulkanCommandBuffer) EmitInitialResourceSync(cb vk.CommandBuffer) {
	v.reconcileSessionState()
	v.emitBarriers(cb)
}

// reconcileSessionState runs the reconciliation of every touched resource and
// advances the authoritative records. A session that wrote or transitioned a
// resource owns its new baseline outright; a read-only session must not
// replace the records, because its scratch state never saw the prior
// submission's writer. Reconciling already folded the session's reads into
// the authoritative records through the Barrier Builder, so the writer stays
// on file for whoever submits next.
func (v *VulkanCommandBuffer) reconcileSessionState() {
	for resource, entry := range v.batch.resourceSyncInfo {
		if needs, barrier := reconcile(resource, entry); needs {
			v.batch.push(resource, barrier)
		}
		if !entry.LocalState.LastWriter.IsZero() {
			for i := range resource.states {
				resource.states[i] = entry.LocalState
			}
		}
	}
}

// reconcile resolves the expected first request against every authoritative
// subresource record, folding the per-subresource decisions into one
// whole-range barrier. The coarse fold trades barrier precision for emission
// simplicity; it over-synchronizes, never under-synchronizes.
func reconcile(resource *VulkanSyncResource, entry *resourceSyncInfo) (bool, ResourceBarrierInfo) {
	var merged ResourceBarrierInfo
	needs := false
	for i := range resource.states {
		n, b := BuildBarrier(&resource.states[i], entry.Expected)
		if !n {
			continue
		}
		if !needs {
			merged = b
			needs = true
			continue
		}
		merged.SrcStageMask |= b.SrcStageMask
		merged.DstStageMask |= b.DstStageMask
		merged.SrcAccessMask |= b.SrcAccessMask
		merged.DstAccessMask |= b.DstAccessMask
	}
	return needs, merged
}

// emitBarriers translates the queue into the fewest native calls and resets
// the queue and counts. Image barriers always cover the full mip/array range
// of their resource; buffer barriers cover the whole buffer.
//
// When the device carries fine-grained barrier support the queue is grouped by
// (src, dst) stage pair so per-barrier stage masks survive; the legacy single
// call cannot express them, so without that support everything merges into one
// call with OR'd global stage masks.
func (v *VulkanCommandBuffer) emitBarriers(cb vk.CommandBuffer) {
	if len(v.batch.queued) == 0 {
		return
	}

	if v.fineBarriers {
		emitted := make([]bool, len(v.batch.queued))
		for i := range v.batch.queued {
			if emitted[i] {
				continue
			}
			key := v.batch.queued[i].info
			group := make([]queuedBarrier, 0, len(v.batch.queued)-i)
			groupImages, groupBuffers := 0, 0
			for j := i; j < len(v.batch.queued); j++ {
				if emitted[j] {
					continue
				}
				info := v.batch.queued[j].info
				if info.SrcStageMask == key.SrcStageMask && info.DstStageMask == key.DstStageMask {
					group = append(group, v.batch.queued[j])
					emitted[j] = true
					switch v.batch.queued[j].resource.Kind {
					case RESOURCE_KIND_IMAGE:
						groupImages++
					case RESOURCE_KIND_BUFFER:
						groupBuffers++
					}
				}
			}
			emitBarrierCall(cb, key.SrcStageMask, key.DstStageMask, group, groupImages, groupBuffers)
		}
	} else {
		var srcStages, dstStages vk.PipelineStageFlags
		for _, qb := range v.batch.queued {
			srcStages |= qb.info.SrcStageMask
			dstStages |= qb.info.DstStageMask
		}
		emitBarrierCall(cb, srcStages, dstStages, v.batch.queued, v.batch.imageBarrierCount, v.batch.bufferBarrierCount)
	}

	v.batch.queued = v.batch.queued[:0]
	v.batch.imageBarrierCount = 0
	v.batch.bufferBarrierCount = 0
}

func emitBarrierCall(cb vk.CommandBuffer, srcStages, dstStages vk.PipelineStageFlags, barriers []queuedBarrier, imageCount, bufferCount int) {
	imageBarriers := make([]vk.ImageMemoryBarrier, 0, imageCount)
	bufferBarriers := make([]vk.BufferMemoryBarrier, 0, bufferCount)

	for _, qb := range barriers {
		switch qb.resource.Kind {
		case RESOURCE_KIND_IMAGE:
			imageBarriers = append(imageBarriers, vk.ImageMemoryBarrier{
				SType:               vk.StructureTypeImageMemoryBarrier,
				SrcAccessMask:       qb.info.SrcAccessMask,
				DstAccessMask:       qb.info.DstAccessMask,
				OldLayout:           qb.info.SrcLayout,
				NewLayout:           qb.info.DstLayout,
				SrcQueueFamilyIndex: vk.QueueFamilyIgnored,
				DstQueueFamilyIndex: vk.QueueFamilyIgnored,
				Image:               qb.resource.Image,
				SubresourceRange: vk.ImageSubresourceRange{
					AspectMask:     qb.resource.Aspect,
					BaseMipLevel:   0,
					LevelCount:     qb.resource.MipLevels,
					BaseArrayLayer: 0,
					LayerCount:     qb.resource.ArrayLayers,
				},
			})
		case RESOURCE_KIND_BUFFER:
			bufferBarriers = append(bufferBarriers, vk.BufferMemoryBarrier{
				SType:               vk.StructureTypeBufferMemoryBarrier,
				SrcAccessMask:       qb.info.SrcAccessMask,
				DstAccessMask:       qb.info.DstAccessMask,
				SrcQueueFamilyIndex: vk.QueueFamilyIgnored,
				DstQueueFamilyIndex: vk.QueueFamilyIgnored,
				Buffer:              qb.resource.Buffer,
				Offset:              0,
				Size:                qb.resource.Size,
			})
		}
	}

	vk.CmdPipelineBarrier(cb,
		srcStages,
		dstStages,
		0,
		0, nil,
		uint32(len(bufferBarriers)), bufferBarriers,
		uint32(len(imageBarriers)), imageBarriers)
	core.MetricsBarrierCall()
}
