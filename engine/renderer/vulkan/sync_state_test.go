package vulkan

import (
	"testing"

	vk "github.com/goki/vulkan"
)

func syncReq(access vk.AccessFlagBits, stage vk.PipelineStageFlagBits, layout vk.ImageLayout) SyncRequest {
	return SyncRequest{
		Masks: SyncBarrierMasks{
			AccessMask: vk.AccessFlags(access),
			StageMask:  vk.PipelineStageFlags(stage),
		},
		Layout: layout,
	}
}

func TestBuildBarrierFreshImageWrite(t *testing.T) {
	var state SyncState
	state.Reset(vk.ImageLayoutUndefined)

	needs, barrier := BuildBarrier(&state, syncReq(
		vk.AccessColorAttachmentWriteBit,
		vk.PipelineStageColorAttachmentOutputBit,
		vk.ImageLayoutColorAttachmentOptimal))
	if !needs {
		t.Fatal("first write with a layout transition must barrier")
	}
	if barrier.SrcStageMask != vk.PipelineStageFlags(vk.PipelineStageBottomOfPipeBit) {
		t.Errorf("src stage = 0x%x, want bottom-of-pipe sentinel", barrier.SrcStageMask)
	}
	if barrier.SrcAccessMask != 0 {
		t.Errorf("src access = 0x%x, want 0", barrier.SrcAccessMask)
	}
	if barrier.DstStageMask != vk.PipelineStageFlags(vk.PipelineStageColorAttachmentOutputBit) {
		t.Errorf("dst stage = 0x%x", barrier.DstStageMask)
	}
	if barrier.SrcLayout != vk.ImageLayoutUndefined || barrier.DstLayout != vk.ImageLayoutColorAttachmentOptimal {
		t.Errorf("layouts = %d -> %d", barrier.SrcLayout, barrier.DstLayout)
	}
	if state.CurrentLayout != vk.ImageLayoutColorAttachmentOptimal {
		t.Errorf("state layout not advanced: %d", state.CurrentLayout)
	}
	if state.LastWriter.IsZero() {
		t.Error("writer not recorded")
	}
}

func TestBuildBarrierFreshBufferWriteNeedsNoBarrier(t *testing.T) {
	var state SyncState
	state.Reset(vk.ImageLayoutUndefined)

	needs, _ := BuildBarrier(&state, syncReq(
		vk.AccessTransferWriteBit, vk.PipelineStageTransferBit, vk.ImageLayoutUndefined))
	if needs {
		t.Fatal("write to an untouched buffer must not barrier")
	}
	if state.LastWriter.AccessMask != vk.AccessFlags(vk.AccessTransferWriteBit) {
		t.Errorf("writer access = 0x%x", state.LastWriter.AccessMask)
	}
}

func TestBuildBarrierWriteThenRead(t *testing.T) {
	var state SyncState
	state.Reset(vk.ImageLayoutUndefined)
	BuildBarrier(&state, syncReq(vk.AccessTransferWriteBit, vk.PipelineStageTransferBit, vk.ImageLayoutUndefined))

	needs, barrier := BuildBarrier(&state, syncReq(
		vk.AccessShaderReadBit, vk.PipelineStageFragmentShaderBit, vk.ImageLayoutUndefined))
	if !needs {
		t.Fatal("first read after a write must barrier")
	}
	if barrier.SrcStageMask != vk.PipelineStageFlags(vk.PipelineStageTransferBit) ||
		barrier.SrcAccessMask != vk.AccessFlags(vk.AccessTransferWriteBit) {
		t.Errorf("src = stage 0x%x access 0x%x, want transfer write", barrier.SrcStageMask, barrier.SrcAccessMask)
	}
	if barrier.DstStageMask != vk.PipelineStageFlags(vk.PipelineStageFragmentShaderBit) ||
		barrier.DstAccessMask != vk.AccessFlags(vk.AccessShaderReadBit) {
		t.Errorf("dst = stage 0x%x access 0x%x", barrier.DstStageMask, barrier.DstAccessMask)
	}
	if barrier.SrcLayout != barrier.DstLayout {
		t.Error("buffer barrier must not carry a layout transition")
	}
}

func TestBuildBarrierRepeatedReadSameClass(t *testing.T) {
	var state SyncState
	state.Reset(vk.ImageLayoutUndefined)
	BuildBarrier(&state, syncReq(vk.AccessTransferWriteBit, vk.PipelineStageTransferBit, vk.ImageLayoutUndefined))
	BuildBarrier(&state, syncReq(vk.AccessShaderReadBit, vk.PipelineStageFragmentShaderBit, vk.ImageLayoutUndefined))

	needs, _ := BuildBarrier(&state, syncReq(
		vk.AccessShaderReadBit, vk.PipelineStageFragmentShaderBit, vk.ImageLayoutUndefined))
	if needs {
		t.Fatal("a repeated read of the same class must not barrier")
	}
}

func TestBuildBarrierReadNewClassBarriersAgain(t *testing.T) {
	var state SyncState
	state.Reset(vk.ImageLayoutUndefined)
	BuildBarrier(&state, syncReq(vk.AccessTransferWriteBit, vk.PipelineStageTransferBit, vk.ImageLayoutUndefined))
	BuildBarrier(&state, syncReq(vk.AccessShaderReadBit, vk.PipelineStageFragmentShaderBit, vk.ImageLayoutUndefined))

	needs, barrier := BuildBarrier(&state, syncReq(
		vk.AccessUniformReadBit, vk.PipelineStageVertexShaderBit, vk.ImageLayoutUndefined))
	if !needs {
		t.Fatal("a read of a new class must barrier against the unresolved writer")
	}
	if barrier.SrcAccessMask != vk.AccessFlags(vk.AccessTransferWriteBit) {
		t.Errorf("src access = 0x%x, want the original writer", barrier.SrcAccessMask)
	}
}

func TestBuildBarrierTransferWriteToUniformRead(t *testing.T) {
	var state SyncState
	state.Reset(vk.ImageLayoutUndefined)
	BuildBarrier(&state, syncReq(vk.AccessTransferWriteBit, vk.PipelineStageTransferBit, vk.ImageLayoutUndefined))

	needs, barrier := BuildBarrier(&state, syncReq(
		vk.AccessUniformReadBit, vk.PipelineStageVertexShaderBit, vk.ImageLayoutUndefined))
	if !needs {
		t.Fatal("uniform read after transfer write must barrier")
	}
	if barrier.SrcStageMask != vk.PipelineStageFlags(vk.PipelineStageTransferBit) {
		t.Errorf("src stage = 0x%x", barrier.SrcStageMask)
	}
	if barrier.DstStageMask != vk.PipelineStageFlags(vk.PipelineStageVertexShaderBit) ||
		barrier.DstAccessMask != vk.AccessFlags(vk.AccessUniformReadBit) {
		t.Errorf("dst = stage 0x%x access 0x%x", barrier.DstStageMask, barrier.DstAccessMask)
	}
}

func TestBuildBarrierWriteAfterWrite(t *testing.T) {
	var state SyncState
	state.Reset(vk.ImageLayoutUndefined)
	BuildBarrier(&state, syncReq(vk.AccessTransferWriteBit, vk.PipelineStageTransferBit, vk.ImageLayoutUndefined))

	needs, barrier := BuildBarrier(&state, syncReq(
		vk.AccessShaderWriteBit, vk.PipelineStageComputeShaderBit, vk.ImageLayoutUndefined))
	if !needs {
		t.Fatal("back-to-back writes must barrier")
	}
	if barrier.SrcStageMask != vk.PipelineStageFlags(vk.PipelineStageTransferBit) ||
		barrier.SrcAccessMask != vk.AccessFlags(vk.AccessTransferWriteBit) {
		t.Errorf("second write must depend on the first directly, got stage 0x%x access 0x%x", barrier.SrcStageMask, barrier.SrcAccessMask)
	}
	if state.LastWriter.AccessMask != vk.AccessFlags(vk.AccessShaderWriteBit) {
		t.Errorf("writer not replaced: 0x%x", state.LastWriter.AccessMask)
	}
}

func TestBuildBarrierWriteWaitsOnAccumulatedReaders(t *testing.T) {
	var state SyncState
	state.Reset(vk.ImageLayoutUndefined)
	BuildBarrier(&state, syncReq(vk.AccessTransferWriteBit, vk.PipelineStageTransferBit, vk.ImageLayoutUndefined))
	BuildBarrier(&state, syncReq(vk.AccessShaderReadBit, vk.PipelineStageFragmentShaderBit, vk.ImageLayoutUndefined))
	BuildBarrier(&state, syncReq(vk.AccessUniformReadBit, vk.PipelineStageVertexShaderBit, vk.ImageLayoutUndefined))

	needs, barrier := BuildBarrier(&state, syncReq(
		vk.AccessTransferWriteBit, vk.PipelineStageTransferBit, vk.ImageLayoutUndefined))
	if !needs {
		t.Fatal("write after reads must barrier")
	}
	wantStages := vk.PipelineStageFlags(vk.PipelineStageFragmentShaderBit) | vk.PipelineStageFlags(vk.PipelineStageVertexShaderBit)
	if barrier.SrcStageMask != wantStages {
		t.Errorf("src stages = 0x%x, want the union of reader stages 0x%x", barrier.SrcStageMask, wantStages)
	}
	wantAccess := vk.AccessFlags(vk.AccessShaderReadBit) | vk.AccessFlags(vk.AccessUniformReadBit)
	if barrier.SrcAccessMask != wantAccess {
		t.Errorf("src access = 0x%x, want 0x%x", barrier.SrcAccessMask, wantAccess)
	}
}

func TestBuildBarrierLayoutIdempotent(t *testing.T) {
	var state SyncState
	state.Reset(vk.ImageLayoutShaderReadOnlyOptimal)

	for i := 0; i < 3; i++ {
		needs, _ := BuildBarrier(&state, syncReq(
			vk.AccessShaderReadBit, vk.PipelineStageFragmentShaderBit, vk.ImageLayoutShaderReadOnlyOptimal))
		if needs {
			t.Fatalf("read %d in the current layout with no prior writer must not barrier", i)
		}
	}
}

func TestBuildBarrierPureLayoutTransitionRetrackedAsRead(t *testing.T) {
	var state SyncState
	state.Reset(vk.ImageLayoutUndefined)

	needs, barrier := BuildBarrier(&state, syncReq(
		vk.AccessShaderReadBit, vk.PipelineStageFragmentShaderBit, vk.ImageLayoutShaderReadOnlyOptimal))
	if !needs {
		t.Fatal("layout transition must barrier even for a read-only access")
	}
	if barrier.SrcStageMask != vk.PipelineStageFlags(vk.PipelineStageBottomOfPipeBit) {
		t.Errorf("src stage = 0x%x", barrier.SrcStageMask)
	}

	// The transition resolved itself; the same read class must now be free.
	needs, _ = BuildBarrier(&state, syncReq(
		vk.AccessShaderReadBit, vk.PipelineStageFragmentShaderBit, vk.ImageLayoutShaderReadOnlyOptimal))
	if needs {
		t.Fatal("re-reading after a pure layout transition must not barrier")
	}
}

func TestBuildBarrierPresentTransition(t *testing.T) {
	var state SyncState
	state.Reset(vk.ImageLayoutUndefined)
	BuildBarrier(&state, syncReq(
		vk.AccessColorAttachmentWriteBit,
		vk.PipelineStageColorAttachmentOutputBit,
		vk.ImageLayoutColorAttachmentOptimal))

	needs, barrier := BuildBarrier(&state, SyncRequest{
		Masks:  SyncBarrierMasks{StageMask: vk.PipelineStageFlags(vk.PipelineStageBottomOfPipeBit)},
		Layout: vk.ImageLayoutPresentSrc,
	})
	if !needs {
		t.Fatal("present transition must barrier")
	}
	if barrier.SrcStageMask != vk.PipelineStageFlags(vk.PipelineStageColorAttachmentOutputBit) ||
		barrier.SrcAccessMask != vk.AccessFlags(vk.AccessColorAttachmentWriteBit) {
		t.Errorf("src = stage 0x%x access 0x%x, want the color write", barrier.SrcStageMask, barrier.SrcAccessMask)
	}
	if barrier.DstAccessMask != 0 {
		t.Errorf("dst access = 0x%x, want 0", barrier.DstAccessMask)
	}
	if barrier.SrcLayout != vk.ImageLayoutColorAttachmentOptimal || barrier.DstLayout != vk.ImageLayoutPresentSrc {
		t.Errorf("layouts = %d -> %d", barrier.SrcLayout, barrier.DstLayout)
	}
}

func TestBuildBarrierZeroStageSentinels(t *testing.T) {
	var state SyncState
	state.Reset(vk.ImageLayoutUndefined)

	needs, barrier := BuildBarrier(&state, SyncRequest{Layout: vk.ImageLayoutTransferDstOptimal})
	if !needs {
		t.Fatal("transition with empty masks must still barrier")
	}
	if barrier.SrcStageMask != vk.PipelineStageFlags(vk.PipelineStageBottomOfPipeBit) {
		t.Errorf("src stage = 0x%x, want bottom-of-pipe sentinel", barrier.SrcStageMask)
	}
	if barrier.DstStageMask != vk.PipelineStageFlags(vk.PipelineStageTopOfPipeBit) {
		t.Errorf("dst stage = 0x%x, want top-of-pipe sentinel", barrier.DstStageMask)
	}
}

func TestBuildBarrierTessellationBucket(t *testing.T) {
	var state SyncState
	state.Reset(vk.ImageLayoutUndefined)
	BuildBarrier(&state, syncReq(vk.AccessTransferWriteBit, vk.PipelineStageTransferBit, vk.ImageLayoutUndefined))

	needs, barrier := BuildBarrier(&state, syncReq(
		vk.AccessShaderReadBit, vk.PipelineStageTessellationControlShaderBit, vk.ImageLayoutUndefined))
	if !needs {
		t.Fatal("first tessellation read after a write must barrier")
	}
	if barrier.DstStageMask != tessellationStages {
		t.Errorf("dst stage = 0x%x, want the whole tessellation/geometry bucket 0x%x", barrier.DstStageMask, tessellationStages)
	}

	// Geometry shares the bucket, so its read is already ordered.
	needs, _ = BuildBarrier(&state, syncReq(
		vk.AccessShaderReadBit, vk.PipelineStageGeometryShaderBit, vk.ImageLayoutUndefined))
	if needs {
		t.Fatal("geometry read after a tessellation read of the same access must not barrier")
	}
}
