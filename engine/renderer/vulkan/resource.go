package vulkan

import (
	vk "github.com/goki/vulkan"

	"github.com/spaghettifunk/anvil/engine/core"
)

type VulkanResourceKind int

const (
	RESOURCE_KIND_BUFFER VulkanResourceKind = iota
	RESOURCE_KIND_IMAGE
)

// VulkanSyncResource is the hazard-tracked identity of one GPU resource. It
// owns one SyncState per subresource (a single record for buffers, one per
// mip x array-layer for images) plus the data barrier emission needs for its
// kind. The states here are the authoritative cross-submission records; they
// are only mutated under the queue submission lock.
type VulkanSyncResource struct {
	Kind    VulkanResourceKind
	TraceID string

	// Image emission data.
	Image       vk.Image
	Aspect      vk.ImageAspectFlags
	MipLevels   uint32
	ArrayLayers uint32

	// Buffer emission data.
	Buffer vk.Buffer
	Size   vk.DeviceSize

	states []SyncState
}

func NewBufferSyncResource(handle vk.Buffer, size vk.DeviceSize) *VulkanSyncResource {
	return &VulkanSyncResource{
		Kind:    RESOURCE_KIND_BUFFER,
		TraceID: core.NewTraceID(),
		Buffer:  handle,
		Size:    size,
		states:  make([]SyncState, 1),
	}
}

func NewImageSyncResource(handle vk.Image, aspect vk.ImageAspectFlags, mipLevels, arrayLayers uint32, initialLayout vk.ImageLayout) *VulkanSyncResource {
	if mipLevels == 0 || arrayLayers == 0 {
		core.LogFatal("image sync resource needs at least one mip level and one array layer (mips=%d layers=%d)", mipLevels, arrayLayers)
	}
	r := &VulkanSyncResource{
		Kind:        RESOURCE_KIND_IMAGE,
		TraceID:     core.NewTraceID(),
		Image:       handle,
		Aspect:      aspect,
		MipLevels:   mipLevels,
		ArrayLayers: arrayLayers,
		states:      make([]SyncState, mipLevels*arrayLayers),
	}
	for i := range r.states {
		r.states[i].CurrentLayout = initialLayout
	}
	return r
}

// StateAt addresses the record of one subresource. Buffers have exactly one
// record regardless of the indices. Out-of-range image indices are a
// programming error, not a runtime condition.
func (r *VulkanSyncResource) StateAt(layer, mip uint32) *SyncState {
	if r.Kind == RESOURCE_KIND_BUFFER {
		return &r.states[0]
	}
	if layer >= r.ArrayLayers || mip >= r.MipLevels {
		core.LogFatal("subresource out of range on %s: layer=%d mip=%d (layers=%d mips=%d)", r.TraceID, layer, mip, r.ArrayLayers, r.MipLevels)
	}
	return &r.states[layer*r.MipLevels+mip]
}

func (r *VulkanSyncResource) SubresourceCount() int {
	return len(r.states)
}

// ResetSyncState returns every subresource record to a fresh baseline with
// the given layout. Pools call this when a resource is recycled.
func (r *VulkanSyncResource) ResetSyncState(layout vk.ImageLayout) {
	for i := range r.states {
		r.states[i].Reset(layout)
	}
}

// CurrentLayout reports the layout of the first subresource. With whole-range
// barrier emission all subresources transition together, so the records agree.
func (r *VulkanSyncResource) CurrentLayout() vk.ImageLayout {
	return r.states[0].CurrentLayout
}
