package vulkan

import (
	"testing"

	vk "github.com/goki/vulkan"
)

func TestWriteAccessMask(t *testing.T) {
	writes := []vk.AccessFlagBits{
		vk.AccessColorAttachmentWriteBit,
		vk.AccessDepthStencilAttachmentWriteBit,
		vk.AccessHostWriteBit,
		vk.AccessShaderWriteBit,
		vk.AccessTransferWriteBit,
		vk.AccessMemoryWriteBit,
	}
	for _, w := range writes {
		if writeAccessMask&vk.AccessFlags(w) == 0 {
			t.Errorf("write access 0x%x missing from the write mask", w)
		}
	}
	reads := []vk.AccessFlagBits{
		vk.AccessShaderReadBit,
		vk.AccessUniformReadBit,
		vk.AccessTransferReadBit,
		vk.AccessColorAttachmentReadBit,
		vk.AccessDepthStencilAttachmentReadBit,
		vk.AccessIndexReadBit,
		vk.AccessVertexAttributeReadBit,
		vk.AccessIndirectCommandReadBit,
		vk.AccessHostReadBit,
		vk.AccessInputAttachmentReadBit,
	}
	for _, r := range reads {
		if writeAccessMask&vk.AccessFlags(r) != 0 {
			t.Errorf("read access 0x%x wrongly classified as a write", r)
		}
	}
}

func TestReaderClassBitsUnique(t *testing.T) {
	var seen uint32
	for i, c := range readerClasses {
		if c.bit == 0 {
			t.Errorf("class %d has no bit", i)
		}
		if c.bit&(c.bit-1) != 0 {
			t.Errorf("class %d bit 0x%x is not a single bit", i, c.bit)
		}
		if seen&c.bit != 0 {
			t.Errorf("class %d reuses bit 0x%x", i, c.bit)
		}
		seen |= c.bit
		if c.stages == 0 || c.accesses == 0 {
			t.Errorf("class %d has empty masks", i)
		}
	}
}

func TestReaderBitsSinglePairs(t *testing.T) {
	tests := []struct {
		name   string
		stages vk.PipelineStageFlagBits
		access vk.AccessFlagBits
		want   uint32
	}{
		{"indirect", vk.PipelineStageDrawIndirectBit, vk.AccessIndirectCommandReadBit, 1 << 0},
		{"index", vk.PipelineStageVertexInputBit, vk.AccessIndexReadBit, 1 << 1},
		{"vertex attribute", vk.PipelineStageVertexInputBit, vk.AccessVertexAttributeReadBit, 1 << 2},
		{"vertex uniform", vk.PipelineStageVertexShaderBit, vk.AccessUniformReadBit, 1 << 3},
		{"fragment sampled", vk.PipelineStageFragmentShaderBit, vk.AccessShaderReadBit, 1 << 8},
		{"compute sampled", vk.PipelineStageComputeShaderBit, vk.AccessShaderReadBit, 1 << 14},
		{"transfer", vk.PipelineStageTransferBit, vk.AccessTransferReadBit, 1 << 15},
		{"host", vk.PipelineStageHostBit, vk.AccessHostReadBit, 1 << 16},
		{"tess control uniform", vk.PipelineStageTessellationControlShaderBit, vk.AccessUniformReadBit, 1 << 5},
		{"geometry sampled", vk.PipelineStageGeometryShaderBit, vk.AccessShaderReadBit, 1 << 6},
	}
	for _, tt := range tests {
		got := readerBits(vk.PipelineStageFlags(tt.stages), vk.AccessFlags(tt.access))
		if got != tt.want {
			t.Errorf("%s: readerBits = 0x%x, want 0x%x", tt.name, got, tt.want)
		}
	}
}

func TestReaderBitsCrossProductSkipsUnmappedPairs(t *testing.T) {
	stages := vk.PipelineStageFlags(vk.PipelineStageVertexInputBit) | vk.PipelineStageFlags(vk.PipelineStageFragmentShaderBit)
	accesses := vk.AccessFlags(vk.AccessIndexReadBit) | vk.AccessFlags(vk.AccessShaderReadBit)

	// Index reads only map under vertex input and sampled reads only under
	// the fragment shader; the other two pairs of the cross product have no
	// class and must be skipped without complaint.
	want := uint32(1<<1 | 1<<8)
	if got := readerBits(stages, accesses); got != want {
		t.Errorf("readerBits = 0x%x, want 0x%x", got, want)
	}
}

func TestReaderBitsIgnoresWriteAccesses(t *testing.T) {
	got := readerBits(
		vk.PipelineStageFlags(vk.PipelineStageTransferBit),
		vk.AccessFlags(vk.AccessTransferWriteBit)|vk.AccessFlags(vk.AccessTransferReadBit))
	if got != 1<<15 {
		t.Errorf("readerBits = 0x%x, want only the transfer read class", got)
	}
}

func TestReaderBitsEmptyRequest(t *testing.T) {
	if got := readerBits(0, vk.AccessFlags(vk.AccessShaderReadBit)); got != 0 {
		t.Errorf("readerBits with no stages = 0x%x, want 0", got)
	}
	if got := readerBits(vk.PipelineStageFlags(vk.PipelineStageTransferBit), 0); got != 0 {
		t.Errorf("readerBits with no accesses = 0x%x, want 0", got)
	}
	if got := readerBits(vk.PipelineStageFlags(vk.PipelineStageTransferBit), vk.AccessFlags(vk.AccessTransferWriteBit)); got != 0 {
		t.Errorf("readerBits with write-only accesses = 0x%x, want 0", got)
	}
}
