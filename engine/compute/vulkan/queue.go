package vulkan

import (
	"fmt"
	"math"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/anima-compute/engine/compute"
	"github.com/spaghettifunk/anima-compute/engine/core"
)

type queue struct {
	device *VulkanDevice
	Handle vk.Queue
	family uint32
}

func (q *queue) FamilyIndex() uint32 {
	return q.family
}

// Submit hands cb to the queue with a fresh fence. The command buffer, and
// every buffer it references, stays alive until the future is waited on.
func (q *queue) Submit(cb compute.CommandBuffer) (compute.Future, error) {
	const op = "vulkan.Submit"

	vcb, ok := cb.(*VulkanCommandBuffer)
	if !ok {
		return nil, core.Errorf(core.KindConfiguration, op, "command buffer does not belong to this device")
	}
	if vcb.State != COMMAND_BUFFER_STATE_RECORDING_ENDED {
		return nil, core.NewError(core.KindDevice, op, fmt.Errorf("%w: %s", core.ErrCommandBufferState, vcb.State))
	}

	context := q.device.context
	fence, err := NewFence(context, false)
	if err != nil {
		return nil, err
	}

	submitInfo := vk.SubmitInfo{
		SType:              vk.StructureTypeSubmitInfo,
		CommandBufferCount: 1,
		PCommandBuffers:    []vk.CommandBuffer{vcb.Handle},
	}
	if err := context.locks.SafeQueueCall(q.family, func() error {
		if res := vk.QueueSubmit(q.Handle, 1, []vk.SubmitInfo{submitInfo}, fence.Handle); res != vk.Success {
			return resultError(op, res)
		}
		return nil
	}); err != nil {
		fence.FenceDestroy(context)
		return nil, err
	}
	vcb.UpdateSubmitted()

	return &future{context: context, fence: fence, commandBuffer: vcb}, nil
}

type future struct {
	context       *VulkanContext
	fence         *VulkanFence
	commandBuffer *VulkanCommandBuffer
	done          bool
	err           error
}

// Wait blocks on the fence with no timeout, then destroys it.
func (f *future) Wait() error {
	if f.done {
		return f.err
	}
	f.err = f.fence.FenceWait(f.context, math.MaxUint64)
	f.fence.FenceDestroy(f.context)
	f.commandBuffer.retained = nil
	f.done = true
	return f.err
}
