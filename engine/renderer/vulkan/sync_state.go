package vulkan

import (
	vk "github.com/goki/vulkan"
)

// SyncBarrierMasks describes what kind of GPU work touched a resource: which
// pipeline stages and which memory access types. Multiple stages and accesses
// may be OR'd together to represent a batched request.
type SyncBarrierMasks struct {
	AccessMask vk.AccessFlags
	StageMask  vk.PipelineStageFlags
}

func (m SyncBarrierMasks) IsZero() bool {
	return m.AccessMask == 0 && m.StageMask == 0
}

// SyncRequest is an intent to use a resource. Issued once per touch by a
// recorded operation. Layout is meaningful for images only; buffer requests
// leave it at ImageLayoutUndefined.
type SyncRequest struct {
	Masks  SyncBarrierMasks
	Layout vk.ImageLayout
}

// SyncState is the hazard-tracking record for one subresource: the last
// unresolved writer, the reads issued since that write, the per-class bitmask
// of reads already ordered after that writer, and the current image layout.
//
// At most one unresolved write dependency is tracked at a time. A new write
// first waits on all outstanding readers (or, with no readers, on the previous
// writer directly), then replaces LastWriter as the baseline.
type SyncState struct {
	LastWriter      SyncBarrierMasks
	OngoingReaders  SyncBarrierMasks
	PerStageReaders uint32
	CurrentLayout   vk.ImageLayout
}

// Reset returns the record to a fresh baseline with the given layout. Pools
// must reset recycled resources; stale hazard history can either force useless
// barriers or, worse, suppress ones the new use needs.
func (s *SyncState) Reset(layout vk.ImageLayout) {
	*s = SyncState{CurrentLayout: layout}
}

// ResourceBarrierInfo is the concrete outcome of one barrier decision. It is
// ephemeral; nothing persists it past emission.
type ResourceBarrierInfo struct {
	SrcStageMask  vk.PipelineStageFlags
	DstStageMask  vk.PipelineStageFlags
	SrcAccessMask vk.AccessFlags
	DstAccessMask vk.AccessFlags
	SrcLayout     vk.ImageLayout
	DstLayout     vk.ImageLayout
}

// BuildBarrier decides whether req needs a pipeline barrier against the given
// state and computes it if so. The state is always advanced to the new
// baseline, barrier or not.
//
// Reads accumulate freely across stages with no barrier among them; a read
// only barriers against an unresolved writer, and only the first read of each
// (stage, access) class does. A write waits on all accumulated readers, or on
// the previous writer directly when no reads intervened. A layout transition
// is treated as a write even when the requested access is read-only, because
// the transition itself needs exclusivity; afterwards a transition with no
// true write is re-tracked as a read so it does not block later reads.
func BuildBarrier(state *SyncState, req SyncRequest) (bool, ResourceBarrierInfo) {
	stages := req.Masks.StageMask
	if stages&tessellationStages != 0 {
		stages |= tessellationStages
	}
	accesses := req.Masks.AccessMask

	needsTransition := req.Layout != state.CurrentLayout
	writeAccesses := accesses & writeAccessMask
	needsWrite := writeAccesses != 0 || needsTransition

	var src SyncBarrierMasks
	if !needsWrite {
		bits := readerBits(stages, accesses)
		if !state.LastWriter.IsZero() && state.PerStageReaders&bits != bits {
			src = state.LastWriter
		}
		state.OngoingReaders.StageMask |= stages
		state.OngoingReaders.AccessMask |= accesses
		state.PerStageReaders |= bits
	} else {
		src = state.OngoingReaders
		state.OngoingReaders = SyncBarrierMasks{}
		state.PerStageReaders = 0
		if src.IsZero() && !state.LastWriter.IsZero() {
			src = state.LastWriter
		}
		state.LastWriter = SyncBarrierMasks{AccessMask: accesses, StageMask: stages}
		if writeAccesses == 0 {
			// Pure layout transition. Keep tracking the request as a read so
			// later reads of the same class do not re-barrier against it.
			state.OngoingReaders.StageMask |= stages
			state.OngoingReaders.AccessMask |= accesses
			state.PerStageReaders |= readerBits(stages, accesses)
		}
	}

	needsBarrier := !src.IsZero() || needsTransition

	var barrier ResourceBarrierInfo
	if needsBarrier {
		barrier.SrcStageMask = src.StageMask
		if barrier.SrcStageMask == 0 {
			// No prior dependency recorded; still order after anything
			// already on the queue.
			barrier.SrcStageMask = vk.PipelineStageFlags(vk.PipelineStageBottomOfPipeBit)
		}
		barrier.SrcAccessMask = src.AccessMask
		barrier.DstStageMask = stages
		if barrier.DstStageMask == 0 {
			barrier.DstStageMask = vk.PipelineStageFlags(vk.PipelineStageTopOfPipeBit)
		}
		barrier.DstAccessMask = accesses
		barrier.SrcLayout = state.CurrentLayout
		barrier.DstLayout = req.Layout
	}
	state.CurrentLayout = req.Layout

	return needsBarrier, barrier
}
