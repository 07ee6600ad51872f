package vulkan

import (
	"sync"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/anvil/engine/containers"
	"github.com/spaghettifunk/anvil/engine/core"
)

type LockGroup string

const (
	ResourceManagement      LockGroup = "resource_management"
	CommandBufferManagement LockGroup = "command_buffer_management"
	BufferManagement        LockGroup = "buffer_management"
	ImageManagement         LockGroup = "image_management"
	SwapchainManagement     LockGroup = "swapchain_management"
	PipelineManagement      LockGroup = "pipeline_management"
)

// Mutex pool
type VulkanLockPool struct {
	locks map[LockGroup]*sync.Mutex
	mu    sync.Mutex // Protects access to the locks map

	queueMutexes map[uint32]*sync.Mutex // Queue family index as key
}

func NewVulkanLockPool() *VulkanLockPool {
	return &VulkanLockPool{
		locks:        make(map[LockGroup]*sync.Mutex),
		queueMutexes: make(map[uint32]*sync.Mutex),
	}
}

// Get or create a mutex for a specific group
func (vs *VulkanLockPool) setLock(group LockGroup) *sync.Mutex {
	vs.mu.Lock()
	defer vs.mu.Unlock()

	if _, exists := vs.locks[group]; !exists {
		vs.locks[group] = &sync.Mutex{}
	}
	vs.locks[group].Lock()

	return vs.locks[group]
}

func (vs *VulkanLockPool) SafeCall(group LockGroup, fn func() error) error {
	l := vs.setLock(group)
	defer l.Unlock()

	return fn()
}

func (vs *VulkanLockPool) SetQueueFamily(index uint32) {
	vs.mu.Lock()
	defer vs.mu.Unlock()

	if _, exists := vs.queueMutexes[index]; !exists {
		vs.queueMutexes[index] = &sync.Mutex{}
	}
}

// SafeQueueCall serializes work against one hardware queue. Submissions run
// under this lock, which is also what makes submission-time reconciliation of
// the authoritative sync state race-free.
func (vs *VulkanLockPool) SafeQueueCall(queueFamilyIndex uint32, fn func() error) error {
	vs.mu.Lock()
	l, exists := vs.queueMutexes[queueFamilyIndex]
	if !exists {
		l = &sync.Mutex{}
		vs.queueMutexes[queueFamilyIndex] = l
	}
	vs.mu.Unlock()

	l.Lock()
	defer l.Unlock()

	return fn()
}

// VulkanStagingPool hands out pooled host-visible staging buffers with a
// checkout/return lifecycle. Returning a buffer resets its hazard-tracking
// state to the fresh baseline; without that reset a recycled buffer would
// carry the previous use's history into an unrelated one, either forcing
// useless barriers or suppressing needed ones.
type VulkanStagingPool struct {
	BufferSize vk.DeviceSize

	mu      sync.Mutex
	free    *containers.RingQueue[*VulkanBuffer]
	buffers []*VulkanBuffer
}

func NewVulkanStagingPool(context *VulkanContext, count int, size vk.DeviceSize) (*VulkanStagingPool, error) {
	pool := &VulkanStagingPool{
		BufferSize: size,
		free:       containers.NewRingQueue[*VulkanBuffer](count),
		buffers:    make([]*VulkanBuffer, 0, count),
	}
	for i := 0; i < count; i++ {
		b, err := BufferCreate(context, size,
			vk.BufferUsageFlags(vk.BufferUsageTransferSrcBit),
			vk.MemoryPropertyFlags(vk.MemoryPropertyHostVisibleBit|vk.MemoryPropertyHostCoherentBit))
		if err != nil {
			pool.Destroy(context)
			return nil, err
		}
		pool.buffers = append(pool.buffers, b)
		if err := pool.free.Enqueue(b); err != nil {
			pool.Destroy(context)
			return nil, err
		}
	}
	core.LogDebug("staging pool created: %d buffers of %d bytes", count, size)
	return pool, nil
}

// Checkout hands out a free staging buffer. Exhaustion is a recoverable
// condition; callers either wait out a fence or fall back to a one-off
// allocation.
func (p *VulkanStagingPool) Checkout() (*VulkanBuffer, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	b, err := p.free.Dequeue()
	if err != nil {
		return nil, core.ErrStagingExhausted
	}
	return b, nil
}

// Return recycles a buffer after its last GPU use completed.
func (p *VulkanStagingPool) Return(b *VulkanBuffer) {
	p.mu.Lock()
	defer p.mu.Unlock()

	b.Sync.ResetSyncState(vk.ImageLayoutUndefined)
	if err := p.free.Enqueue(b); err != nil {
		core.LogWarn("staging pool return with full free list, dropping buffer %s", b.Sync.TraceID)
	}
}

func (p *VulkanStagingPool) Destroy(context *VulkanContext) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, b := range p.buffers {
		b.Destroy(context)
	}
	p.buffers = nil
	p.free = nil
}
