package vulkan

import (
	"fmt"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/anvil/engine/core"
)

/**
 * @brief The configuration for a descriptor set.
 */
type VulkanDescriptorSetConfig struct {
	/** @brief An array of binding layouts for this set. */
	Bindings [VULKAN_SHADER_MAX_BINDINGS]vk.DescriptorSetLayoutBinding
	/** @brief The number of bindings in this set. */
	BindingCount uint8
	/** @brief The index of the sampler binding. */
	SamplerBindingIndex uint8
}

/**
 * @brief Represents a state for a given descriptor. This is used
 * to determine when a descriptor needs updating. There is a state
 * per frame (with a max of 3).
 */
type VulkanDescriptorState struct {
	/** @brief The descriptor generation, per frame. */
	Generations [3]uint8
	/** @brief The identifier, per frame. Typically used for texture IDs. */
	IDs [3]uint32
}

/**
 * @brief Represents the state for a descriptor set, used to track
 * generations and skip sets which do not need updating.
 */
type VulkanShaderDescriptorSetState struct {
	/** @brief The descriptor sets for this instance, one per frame. */
	DescriptorSets [3]vk.DescriptorSet
	/** @brief A descriptor state per binding, which in turn handles frames. */
	DescriptorStates [VULKAN_SHADER_MAX_BINDINGS]VulkanDescriptorState
}

func DescriptorSetLayoutCreate(context *VulkanContext, config *VulkanDescriptorSetConfig) (vk.DescriptorSetLayout, error) {
	layoutInfo := vk.DescriptorSetLayoutCreateInfo{
		SType:        vk.StructureTypeDescriptorSetLayoutCreateInfo,
		BindingCount: uint32(config.BindingCount),
		PBindings:    config.Bindings[:config.BindingCount],
	}

	var layout vk.DescriptorSetLayout
	if res := vk.CreateDescriptorSetLayout(context.Device.LogicalDevice, &layoutInfo, context.Allocator, &layout); res != vk.Success {
		err := fmt.Errorf("failed to create descriptor set layout: %s", VulkanResultString(res, true))
		core.LogError(err.Error())
		return nil, err
	}
	return layout, nil
}

func DescriptorPoolCreate(context *VulkanContext, sizes []vk.DescriptorPoolSize, maxSets uint32) (vk.DescriptorPool, error) {
	poolInfo := vk.DescriptorPoolCreateInfo{
		SType:         vk.StructureTypeDescriptorPoolCreateInfo,
		PoolSizeCount: uint32(len(sizes)),
		PPoolSizes:    sizes,
		MaxSets:       maxSets,
		Flags:         vk.DescriptorPoolCreateFlags(vk.DescriptorPoolCreateFreeDescriptorSetBit),
	}

	var pool vk.DescriptorPool
	if res := vk.CreateDescriptorPool(context.Device.LogicalDevice, &poolInfo, context.Allocator, &pool); res != vk.Success {
		err := fmt.Errorf("failed to create descriptor pool: %s", VulkanResultString(res, true))
		core.LogError(err.Error())
		return nil, err
	}
	return pool, nil
}
