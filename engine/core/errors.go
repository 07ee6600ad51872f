package core

import (
	"errors"
)

var (
	ErrSwapchainBooting = errors.New("swapchain resized or recreated, booting")
	ErrRecordingState   = errors.New("command buffer is not in a recordable state")
	ErrStagingExhausted = errors.New("staging pool exhausted")
	ErrUnknown          = errors.New("unknown")
)
