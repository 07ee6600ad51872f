package vulkan

import (
	"testing"

	vk "github.com/goki/vulkan"
)

func TestVulkanResultString(t *testing.T) {
	if got := VulkanResultString(vk.Success, false); got != "VK_SUCCESS" {
		t.Errorf("VulkanResultString(Success) = %q", got)
	}
	if got := VulkanResultString(vk.ErrorDeviceLost, false); got != "VK_ERROR_DEVICE_LOST" {
		t.Errorf("VulkanResultString(ErrorDeviceLost) = %q", got)
	}
	if got := VulkanResultString(vk.ErrorOutOfDate, true); got != "VK_ERROR_OUT_OF_DATE_KHR (-1000001004)" {
		t.Errorf("extended form = %q", got)
	}
	if got := VulkanResultString(vk.Result(-12345), false); got != "VK_RESULT_UNRECOGNIZED" {
		t.Errorf("unrecognized code = %q", got)
	}
}

func TestVulkanResultIsSuccess(t *testing.T) {
	for _, r := range []vk.Result{vk.Success, vk.Suboptimal, vk.NotReady, vk.Timeout} {
		if !VulkanResultIsSuccess(r) {
			t.Errorf("%s should count as success", VulkanResultString(r, false))
		}
	}
	for _, r := range []vk.Result{vk.ErrorOutOfDate, vk.ErrorDeviceLost, vk.ErrorOutOfHostMemory} {
		if VulkanResultIsSuccess(r) {
			t.Errorf("%s should count as failure", VulkanResultString(r, false))
		}
	}
}

func TestVulkanSafeString(t *testing.T) {
	if got := VulkanSafeString("main"); got != "main\x00" {
		t.Errorf("VulkanSafeString = %q", got)
	}
	if got := VulkanSafeString("main\x00"); got != "main\x00" {
		t.Errorf("already terminated = %q", got)
	}
}

func TestClamp(t *testing.T) {
	if got := Clamp(5, 1, 10); got != 5 {
		t.Errorf("Clamp(5,1,10) = %d", got)
	}
	if got := Clamp(0, 1, 10); got != 1 {
		t.Errorf("Clamp(0,1,10) = %d", got)
	}
	if got := Clamp(uint32(99), 1, 10); got != 10 {
		t.Errorf("Clamp(99,1,10) = %d", got)
	}
	if got := Clamp(2.5, 0.0, 1.0); got != 1.0 {
		t.Errorf("Clamp(2.5,0,1) = %f", got)
	}
}

func TestFindFirstZeroInByteArray(t *testing.T) {
	if got := FindFirstZeroInByteArray([]byte{'a', 'b', 0, 'c'}); got != 2 {
		t.Errorf("FindFirstZeroInByteArray = %d, want 2", got)
	}
	if got := FindFirstZeroInByteArray([]byte{'a', 'b'}); got != 0 {
		t.Errorf("no terminator = %d, want 0", got)
	}
}
