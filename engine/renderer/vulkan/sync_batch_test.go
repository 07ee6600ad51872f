package vulkan

import (
	"errors"
	"testing"

	vk "github.com/goki/vulkan"

	"github.com/spaghettifunk/anvil/engine/core"
)

func newRecordingBuffer() *VulkanCommandBuffer {
	cb := &VulkanCommandBuffer{State: COMMAND_BUFFER_STATE_RECORDING}
	cb.batch.reset()
	return cb
}

func TestSyncResourceRejectsWrongState(t *testing.T) {
	resource := NewBufferSyncResource(vk.NullBuffer, 256)
	req := syncReq(vk.AccessTransferWriteBit, vk.PipelineStageTransferBit, vk.ImageLayoutUndefined)

	cb := newRecordingBuffer()
	cb.State = COMMAND_BUFFER_STATE_READY
	if err := cb.SyncResource(resource, req); !errors.Is(err, core.ErrRecordingState) {
		t.Errorf("not recording: err = %v, want ErrRecordingState", err)
	}

	cb.State = COMMAND_BUFFER_STATE_IN_RENDER_PASS
	if err := cb.SyncResource(resource, req); !errors.Is(err, core.ErrRecordingState) {
		t.Errorf("inside render pass: err = %v, want ErrRecordingState", err)
	}
}

func TestSyncResourceFirstTouchQueuesNothing(t *testing.T) {
	cb := newRecordingBuffer()
	resource := NewBufferSyncResource(vk.NullBuffer, 256)
	req := syncReq(vk.AccessShaderReadBit, vk.PipelineStageFragmentShaderBit, vk.ImageLayoutUndefined)

	if err := cb.SyncResource(resource, req); err != nil {
		t.Fatalf("SyncResource: %v", err)
	}
	if len(cb.batch.queued) != 0 {
		t.Errorf("first touch queued %d barriers, want 0; the submission-time pass owns the first one", len(cb.batch.queued))
	}
	entry, ok := cb.batch.resourceSyncInfo[resource]
	if !ok {
		t.Fatal("resource not tracked after first touch")
	}
	if entry.Expected != req {
		t.Errorf("expected request = %+v, want the verbatim first request", entry.Expected)
	}
	if entry.HasBarrier {
		t.Error("HasBarrier set without a queued barrier")
	}
}

func TestSyncResourceSecondTouchQueuesBarrier(t *testing.T) {
	cb := newRecordingBuffer()
	resource := NewBufferSyncResource(vk.NullBuffer, 256)

	if err := cb.SyncResource(resource, syncReq(vk.AccessTransferWriteBit, vk.PipelineStageTransferBit, vk.ImageLayoutUndefined)); err != nil {
		t.Fatalf("first touch: %v", err)
	}
	if err := cb.SyncResource(resource, syncReq(vk.AccessShaderReadBit, vk.PipelineStageFragmentShaderBit, vk.ImageLayoutUndefined)); err != nil {
		t.Fatalf("second touch: %v", err)
	}

	if len(cb.batch.queued) != 1 {
		t.Fatalf("queued %d barriers, want 1", len(cb.batch.queued))
	}
	if cb.batch.bufferBarrierCount != 1 || cb.batch.imageBarrierCount != 0 {
		t.Errorf("counts = %d buffer / %d image, want 1 / 0", cb.batch.bufferBarrierCount, cb.batch.imageBarrierCount)
	}
	qb := cb.batch.queued[0]
	if qb.resource != resource {
		t.Error("queued barrier points at the wrong resource")
	}
	if qb.info.SrcAccessMask != vk.AccessFlags(vk.AccessTransferWriteBit) {
		t.Errorf("src access = 0x%x, want the session-local write", qb.info.SrcAccessMask)
	}
	if !cb.batch.resourceSyncInfo[resource].HasBarrier {
		t.Error("HasBarrier not set")
	}
}

func TestSyncResourceImageCountsImageBarriers(t *testing.T) {
	cb := newRecordingBuffer()
	resource := NewImageSyncResource(vk.NullImage, vk.ImageAspectFlags(vk.ImageAspectColorBit), 1, 1, vk.ImageLayoutUndefined)

	if err := cb.SyncResource(resource, syncReq(vk.AccessColorAttachmentWriteBit, vk.PipelineStageColorAttachmentOutputBit, vk.ImageLayoutColorAttachmentOptimal)); err != nil {
		t.Fatalf("first touch: %v", err)
	}
	if err := cb.SyncResource(resource, syncReq(vk.AccessShaderReadBit, vk.PipelineStageFragmentShaderBit, vk.ImageLayoutShaderReadOnlyOptimal)); err != nil {
		t.Fatalf("second touch: %v", err)
	}

	if cb.batch.imageBarrierCount != 1 || cb.batch.bufferBarrierCount != 0 {
		t.Errorf("counts = %d image / %d buffer, want 1 / 0", cb.batch.imageBarrierCount, cb.batch.bufferBarrierCount)
	}
	if got := cb.batch.queued[0].info.DstLayout; got != vk.ImageLayoutShaderReadOnlyOptimal {
		t.Errorf("queued dst layout = %d", got)
	}
}

func TestSyncResourceRepeatedReadQueuesNothing(t *testing.T) {
	cb := newRecordingBuffer()
	resource := NewBufferSyncResource(vk.NullBuffer, 256)
	req := syncReq(vk.AccessShaderReadBit, vk.PipelineStageFragmentShaderBit, vk.ImageLayoutUndefined)

	for i := 0; i < 3; i++ {
		if err := cb.SyncResource(resource, req); err != nil {
			t.Fatalf("touch %d: %v", i, err)
		}
	}
	if len(cb.batch.queued) != 0 {
		t.Errorf("queued %d barriers for repeated reads, want 0", len(cb.batch.queued))
	}
}

func TestReconcileNoopWhenAuthoritativeStateMatches(t *testing.T) {
	resource := NewBufferSyncResource(vk.NullBuffer, 256)
	entry := &resourceSyncInfo{
		Expected: syncReq(vk.AccessShaderReadBit, vk.PipelineStageFragmentShaderBit, vk.ImageLayoutUndefined),
	}

	needs, _ := reconcile(resource, entry)
	if needs {
		t.Error("read against a fresh record with no writer must reconcile to nothing")
	}
}

func TestReconcileMergesSubresourceDecisions(t *testing.T) {
	resource := NewImageSyncResource(vk.NullImage, vk.ImageAspectFlags(vk.ImageAspectColorBit), 2, 1, vk.ImageLayoutUndefined)
	// One mip was written through a transfer, the other was never touched.
	transferState := resource.StateAt(0, 1)
	transferState.LastWriter = SyncBarrierMasks{
		AccessMask: vk.AccessFlags(vk.AccessTransferWriteBit),
		StageMask:  vk.PipelineStageFlags(vk.PipelineStageTransferBit),
	}
	transferState.CurrentLayout = vk.ImageLayoutTransferDstOptimal

	entry := &resourceSyncInfo{
		Expected: syncReq(vk.AccessShaderReadBit, vk.PipelineStageFragmentShaderBit, vk.ImageLayoutShaderReadOnlyOptimal),
	}

	needs, merged := reconcile(resource, entry)
	if !needs {
		t.Fatal("mismatched subresources must reconcile to a barrier")
	}
	if merged.SrcStageMask&vk.PipelineStageFlags(vk.PipelineStageTransferBit) == 0 {
		t.Errorf("merged src stages 0x%x missing the transfer writer", merged.SrcStageMask)
	}
	if merged.SrcStageMask&vk.PipelineStageFlags(vk.PipelineStageBottomOfPipeBit) == 0 {
		t.Errorf("merged src stages 0x%x missing the untouched subresource's sentinel", merged.SrcStageMask)
	}
	if merged.SrcAccessMask != vk.AccessFlags(vk.AccessTransferWriteBit) {
		t.Errorf("merged src access = 0x%x", merged.SrcAccessMask)
	}
	if merged.DstStageMask != vk.PipelineStageFlags(vk.PipelineStageFragmentShaderBit) {
		t.Errorf("merged dst stages = 0x%x", merged.DstStageMask)
	}
}

func TestEmitInitialResourceSyncFoldsSessionReads(t *testing.T) {
	cb := newRecordingBuffer()
	resource := NewBufferSyncResource(vk.NullBuffer, 256)
	req := syncReq(vk.AccessShaderReadBit, vk.PipelineStageFragmentShaderBit, vk.ImageLayoutUndefined)

	if err := cb.SyncResource(resource, req); err != nil {
		t.Fatalf("SyncResource: %v", err)
	}
	// Reconciling a plain read against a fresh record queues no barrier, so
	// nothing reaches the device here.
	cb.EmitInitialResourceSync(nil)

	state := resource.StateAt(0, 0)
	if state.OngoingReaders.AccessMask != vk.AccessFlags(vk.AccessShaderReadBit) ||
		state.OngoingReaders.StageMask != vk.PipelineStageFlags(vk.PipelineStageFragmentShaderBit) {
		t.Errorf("authoritative readers = %+v, want the session's read", state.OngoingReaders)
	}
	if state.PerStageReaders != 1<<8 {
		t.Errorf("authoritative reader bits = 0x%x, want the fragment sampled class", state.PerStageReaders)
	}
	if !state.LastWriter.IsZero() {
		t.Errorf("authoritative writer = %+v, want none", state.LastWriter)
	}
}

// submitSession runs the submission-time reconciliation of one recorded
// session without touching the device.
func submitSession(t *testing.T, resource *VulkanSyncResource, reqs ...SyncRequest) []queuedBarrier {
	t.Helper()
	cb := newRecordingBuffer()
	for i, req := range reqs {
		if err := cb.SyncResource(resource, req); err != nil {
			t.Fatalf("SyncResource %d: %v", i, err)
		}
	}
	cb.reconcileSessionState()
	return cb.batch.queued
}

func TestReadOnlySessionKeepsAuthoritativeWriter(t *testing.T) {
	resource := NewBufferSyncResource(vk.NullBuffer, 256)

	queued := submitSession(t, resource,
		syncReq(vk.AccessTransferWriteBit, vk.PipelineStageTransferBit, vk.ImageLayoutUndefined))
	if len(queued) != 0 {
		t.Fatalf("fresh-buffer write queued %d barriers, want 0", len(queued))
	}

	queued = submitSession(t, resource,
		syncReq(vk.AccessShaderReadBit, vk.PipelineStageFragmentShaderBit, vk.ImageLayoutUndefined))
	if len(queued) != 1 {
		t.Fatalf("fragment read queued %d barriers, want 1 against the writer", len(queued))
	}

	// The intervening read-only submission must not erase the writer; a read
	// of a class it never ordered still depends on the transfer write.
	queued = submitSession(t, resource,
		syncReq(vk.AccessUniformReadBit, vk.PipelineStageVertexShaderBit, vk.ImageLayoutUndefined))
	if len(queued) != 1 {
		t.Fatalf("vertex uniform read queued %d barriers, want 1 against the original writer", len(queued))
	}
	if got := queued[0].info.SrcAccessMask; got != vk.AccessFlags(vk.AccessTransferWriteBit) {
		t.Errorf("src access = 0x%x, want the transfer write from two submissions back", got)
	}
}

func TestPreBarrierReadsWidenReconciliation(t *testing.T) {
	resource := NewBufferSyncResource(vk.NullBuffer, 256)
	submitSession(t, resource,
		syncReq(vk.AccessTransferWriteBit, vk.PipelineStageTransferBit, vk.ImageLayoutUndefined))

	cb := newRecordingBuffer()
	if err := cb.SyncResource(resource, syncReq(vk.AccessShaderReadBit, vk.PipelineStageFragmentShaderBit, vk.ImageLayoutUndefined)); err != nil {
		t.Fatalf("first read: %v", err)
	}
	if err := cb.SyncResource(resource, syncReq(vk.AccessUniformReadBit, vk.PipelineStageVertexShaderBit, vk.ImageLayoutUndefined)); err != nil {
		t.Fatalf("second read: %v", err)
	}
	if len(cb.batch.queued) != 0 {
		t.Fatalf("session-local reads queued %d barriers, want 0", len(cb.batch.queued))
	}

	cb.reconcileSessionState()
	if len(cb.batch.queued) != 1 {
		t.Fatalf("reconcile queued %d barriers, want 1", len(cb.batch.queued))
	}
	// Both reads happened before any session-local barrier, so the
	// reconciliation barrier must cover both of them.
	wantStages := vk.PipelineStageFlags(vk.PipelineStageFragmentShaderBit) | vk.PipelineStageFlags(vk.PipelineStageVertexShaderBit)
	if got := cb.batch.queued[0].info.DstStageMask; got != wantStages {
		t.Errorf("reconcile dst stages = 0x%x, want 0x%x", got, wantStages)
	}
	wantAccess := vk.AccessFlags(vk.AccessShaderReadBit) | vk.AccessFlags(vk.AccessUniformReadBit)
	if got := cb.batch.queued[0].info.DstAccessMask; got != wantAccess {
		t.Errorf("reconcile dst access = 0x%x, want 0x%x", got, wantAccess)
	}
}

func TestCrossSessionReadThenWrite(t *testing.T) {
	resource := NewBufferSyncResource(vk.NullBuffer, 256)

	queued := submitSession(t, resource,
		syncReq(vk.AccessShaderReadBit, vk.PipelineStageFragmentShaderBit, vk.ImageLayoutUndefined))
	if len(queued) != 0 {
		t.Fatalf("read of a fresh buffer queued %d barriers, want 0", len(queued))
	}

	// An independently recorded list writes the same buffer; its work must be
	// ordered after the first list's read.
	queued = submitSession(t, resource,
		syncReq(vk.AccessTransferWriteBit, vk.PipelineStageTransferBit, vk.ImageLayoutUndefined))
	if len(queued) != 1 {
		t.Fatalf("cross-session write queued %d barriers, want 1", len(queued))
	}
	b := queued[0].info
	if b.SrcStageMask != vk.PipelineStageFlags(vk.PipelineStageFragmentShaderBit) ||
		b.SrcAccessMask != vk.AccessFlags(vk.AccessShaderReadBit) {
		t.Errorf("src = stage 0x%x access 0x%x, want the first list's read", b.SrcStageMask, b.SrcAccessMask)
	}
	if b.DstStageMask != vk.PipelineStageFlags(vk.PipelineStageTransferBit) ||
		b.DstAccessMask != vk.AccessFlags(vk.AccessTransferWriteBit) {
		t.Errorf("dst = stage 0x%x access 0x%x", b.DstStageMask, b.DstAccessMask)
	}

	// The write owns the new baseline.
	state := resource.StateAt(0, 0)
	if state.LastWriter.AccessMask != vk.AccessFlags(vk.AccessTransferWriteBit) {
		t.Errorf("authoritative writer = %+v, want the transfer write", state.LastWriter)
	}
	if !state.OngoingReaders.IsZero() {
		t.Errorf("authoritative readers = %+v, want none after the write", state.OngoingReaders)
	}
}

func TestResetSyncStateClearsHistory(t *testing.T) {
	resource := NewBufferSyncResource(vk.NullBuffer, 256)
	state := resource.StateAt(0, 0)
	BuildBarrier(state, syncReq(vk.AccessTransferWriteBit, vk.PipelineStageTransferBit, vk.ImageLayoutUndefined))
	BuildBarrier(state, syncReq(vk.AccessShaderReadBit, vk.PipelineStageFragmentShaderBit, vk.ImageLayoutUndefined))

	resource.ResetSyncState(vk.ImageLayoutUndefined)
	if !state.LastWriter.IsZero() || !state.OngoingReaders.IsZero() || state.PerStageReaders != 0 {
		t.Errorf("state after reset = %+v, want a fresh baseline", *state)
	}
}

func TestBatchResetClearsQueue(t *testing.T) {
	cb := newRecordingBuffer()
	resource := NewBufferSyncResource(vk.NullBuffer, 256)
	cb.SyncResource(resource, syncReq(vk.AccessTransferWriteBit, vk.PipelineStageTransferBit, vk.ImageLayoutUndefined))
	cb.SyncResource(resource, syncReq(vk.AccessShaderReadBit, vk.PipelineStageFragmentShaderBit, vk.ImageLayoutUndefined))

	cb.batch.reset()
	if len(cb.batch.queued) != 0 || len(cb.batch.resourceSyncInfo) != 0 ||
		cb.batch.bufferBarrierCount != 0 || cb.batch.imageBarrierCount != 0 {
		t.Error("reset left session state behind")
	}
}
