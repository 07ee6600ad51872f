package vulkan

import (
	vk "github.com/goki/vulkan"

	"github.com/spaghettifunk/anvil/engine/core"
)

// Access flags that require exclusive use of a resource. Anything else is
// tracked as a read.
const writeAccessMask = vk.AccessFlags(vk.AccessColorAttachmentWriteBit) |
	vk.AccessFlags(vk.AccessDepthStencilAttachmentWriteBit) |
	vk.AccessFlags(vk.AccessHostWriteBit) |
	vk.AccessFlags(vk.AccessShaderWriteBit) |
	vk.AccessFlags(vk.AccessTransferWriteBit) |
	vk.AccessFlags(vk.AccessMemoryWriteBit)

// Tessellation control/evaluation and geometry cannot be told apart cheaply
// at request time, so they are tracked as a single stage bucket. Splitting
// them without that information would under-barrier.
const tessellationStages = vk.PipelineStageFlags(vk.PipelineStageTessellationControlShaderBit) |
	vk.PipelineStageFlags(vk.PipelineStageTessellationEvaluationShaderBit) |
	vk.PipelineStageFlags(vk.PipelineStageGeometryShaderBit)

// readerClass is one whitelisted (stage, access) read combination with its
// compact bit position in SyncState.PerStageReaders.
type readerClass struct {
	stages   vk.PipelineStageFlags
	accesses vk.AccessFlags
	bit      uint32
}

var readerClasses = []readerClass{
	{vk.PipelineStageFlags(vk.PipelineStageDrawIndirectBit), vk.AccessFlags(vk.AccessIndirectCommandReadBit), 1 << 0},
	{vk.PipelineStageFlags(vk.PipelineStageVertexInputBit), vk.AccessFlags(vk.AccessIndexReadBit), 1 << 1},
	{vk.PipelineStageFlags(vk.PipelineStageVertexInputBit), vk.AccessFlags(vk.AccessVertexAttributeReadBit), 1 << 2},
	{vk.PipelineStageFlags(vk.PipelineStageVertexShaderBit), vk.AccessFlags(vk.AccessUniformReadBit), 1 << 3},
	{vk.PipelineStageFlags(vk.PipelineStageVertexShaderBit), vk.AccessFlags(vk.AccessShaderReadBit), 1 << 4},
	{tessellationStages, vk.AccessFlags(vk.AccessUniformReadBit), 1 << 5},
	{tessellationStages, vk.AccessFlags(vk.AccessShaderReadBit), 1 << 6},
	{vk.PipelineStageFlags(vk.PipelineStageFragmentShaderBit), vk.AccessFlags(vk.AccessUniformReadBit), 1 << 7},
	{vk.PipelineStageFlags(vk.PipelineStageFragmentShaderBit), vk.AccessFlags(vk.AccessShaderReadBit), 1 << 8},
	{vk.PipelineStageFlags(vk.PipelineStageFragmentShaderBit), vk.AccessFlags(vk.AccessInputAttachmentReadBit), 1 << 9},
	{vk.PipelineStageFlags(vk.PipelineStageFragmentShaderBit), vk.AccessFlags(vk.AccessColorAttachmentReadBit), 1 << 10},
	{vk.PipelineStageFlags(vk.PipelineStageEarlyFragmentTestsBit) | vk.PipelineStageFlags(vk.PipelineStageLateFragmentTestsBit), vk.AccessFlags(vk.AccessDepthStencilAttachmentReadBit), 1 << 11},
	{vk.PipelineStageFlags(vk.PipelineStageColorAttachmentOutputBit), vk.AccessFlags(vk.AccessColorAttachmentReadBit), 1 << 12},
	{vk.PipelineStageFlags(vk.PipelineStageComputeShaderBit), vk.AccessFlags(vk.AccessUniformReadBit), 1 << 13},
	{vk.PipelineStageFlags(vk.PipelineStageComputeShaderBit), vk.AccessFlags(vk.AccessShaderReadBit), 1 << 14},
	{vk.PipelineStageFlags(vk.PipelineStageTransferBit), vk.AccessFlags(vk.AccessTransferReadBit), 1 << 15},
	{vk.PipelineStageFlags(vk.PipelineStageHostBit), vk.AccessFlags(vk.AccessHostReadBit), 1 << 16},
}

// readerBits maps the request onto its compact per-class bits. Requests may
// carry OR'd stages and accesses; every (stage, access) pair the whitelist
// declares valid is counted, pairs the whitelist does not declare are skipped.
// A read access that maps to no class under any requested stage would silently
// vanish from hazard tracking, so it is treated as an incomplete-table defect,
// not a runtime condition.
func readerBits(stages vk.PipelineStageFlags, accesses vk.AccessFlags) uint32 {
	reads := accesses &^ writeAccessMask
	if reads == 0 || stages == 0 {
		return 0
	}
	var bits uint32
	for a := reads; a != 0; {
		access := a & -a
		a &^= access
		matched := false
		for _, c := range readerClasses {
			if c.stages&stages != 0 && c.accesses&access != 0 {
				bits |= c.bit
				matched = true
			}
		}
		if !matched {
			core.LogFatal("hazard tracking has no mapping for stages=0x%x access=0x%x; the reader class table must be extended", stages, access)
		}
	}
	return bits
}
