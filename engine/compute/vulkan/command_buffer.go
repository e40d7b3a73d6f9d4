package vulkan

import (
	"fmt"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/anima-compute/engine/compute"
	"github.com/spaghettifunk/anima-compute/engine/core"
)

type VulkanCommandBufferState int

const (
	COMMAND_BUFFER_STATE_NOT_ALLOCATED VulkanCommandBufferState = iota
	COMMAND_BUFFER_STATE_RECORDING
	COMMAND_BUFFER_STATE_RECORDING_ENDED
	COMMAND_BUFFER_STATE_SUBMITTED
)

func (s VulkanCommandBufferState) String() string {
	switch s {
	case COMMAND_BUFFER_STATE_RECORDING:
		return "recording"
	case COMMAND_BUFFER_STATE_RECORDING_ENDED:
		return "recording ended"
	case COMMAND_BUFFER_STATE_SUBMITTED:
		return "submitted"
	default:
		return "not allocated"
	}
}

type VulkanCommandBuffer struct {
	Handle vk.CommandBuffer
	// Command buffer state.
	State VulkanCommandBufferState

	context *VulkanContext
	// kept alive until the submission completes
	retained []any
}

/**
 * Allocates a primary command buffer and begins one-time-submit recording.
 */
func AllocateAndBeginSingleUse(context *VulkanContext) (*VulkanCommandBuffer, error) {
	const op = "vulkan.AllocateAndBeginSingleUse"

	cb := &VulkanCommandBuffer{
		State:   COMMAND_BUFFER_STATE_NOT_ALLOCATED,
		context: context,
	}

	allocateInfo := vk.CommandBufferAllocateInfo{
		SType:              vk.StructureTypeCommandBufferAllocateInfo,
		CommandPool:        context.Device.CommandPool,
		CommandBufferCount: 1,
		Level:              vk.CommandBufferLevelPrimary,
	}
	handles := make([]vk.CommandBuffer, 1)
	if err := context.locks.SafeCall(CommandPoolManagement, func() error {
		if res := vk.AllocateCommandBuffers(context.Device.LogicalDevice, &allocateInfo, handles); res != vk.Success {
			return resultError(op, res)
		}
		return nil
	}); err != nil {
		return nil, err
	}
	cb.Handle = handles[0]

	beginInfo := &vk.CommandBufferBeginInfo{
		SType: vk.StructureTypeCommandBufferBeginInfo,
		Flags: vk.CommandBufferUsageFlags(vk.CommandBufferUsageOneTimeSubmitBit),
	}
	if err := context.locks.SafeCall(CommandBufferManagement, func() error {
		if res := vk.BeginCommandBuffer(cb.Handle, beginInfo); res != vk.Success {
			return resultError(op, res)
		}
		return nil
	}); err != nil {
		cb.Release()
		return nil, err
	}
	cb.State = COMMAND_BUFFER_STATE_RECORDING
	return cb, nil
}

func (cb *VulkanCommandBuffer) recording(op string) error {
	if cb.State != COMMAND_BUFFER_STATE_RECORDING {
		return core.NewError(core.KindDevice, op, fmt.Errorf("%w: %s", core.ErrCommandBufferState, cb.State))
	}
	return nil
}

func (cb *VulkanCommandBuffer) CopyBuffer(src, dst compute.Buffer) error {
	const op = "vulkan.CopyBuffer"

	if err := cb.recording(op); err != nil {
		return err
	}
	vs, ok1 := src.(*VulkanBuffer)
	vd, ok2 := dst.(*VulkanBuffer)
	if !ok1 || !ok2 || vs.Handle == vk.NullBuffer || vd.Handle == vk.NullBuffer {
		return core.Errorf(core.KindConfiguration, op, "buffers do not belong to this device")
	}
	if !vs.usage.Has(compute.BufferUsageTransferSrc) || !vd.usage.Has(compute.BufferUsageTransferDst) {
		return core.Errorf(core.KindConfiguration, op, "copy needs transfer-src and transfer-dst usage")
	}

	size := min(vs.size, vd.size)
	vk.CmdCopyBuffer(cb.Handle, vs.Handle, vd.Handle, 1, []vk.BufferCopy{{
		SrcOffset: 0,
		DstOffset: 0,
		Size:      vk.DeviceSize(size),
	}})
	cb.hostBarrier(vk.PipelineStageTransferBit, vk.AccessTransferWriteBit)
	cb.retained = append(cb.retained, vs, vd)
	return nil
}

func (cb *VulkanCommandBuffer) Dispatch(groups [3]uint32, p compute.Pipeline, sets ...compute.DescriptorSet) error {
	const op = "vulkan.Dispatch"

	if err := cb.recording(op); err != nil {
		return err
	}
	vp, ok := p.(*VulkanPipeline)
	if !ok || vp.Handle == vk.NullPipeline {
		return core.Errorf(core.KindConfiguration, op, "pipeline does not belong to this device")
	}

	bound := make(map[uint32]*VulkanDescriptorSet, len(sets))
	for _, s := range sets {
		vs, ok := s.(*VulkanDescriptorSet)
		if !ok || vs.Handle == nil {
			return core.Errorf(core.KindConfiguration, op, "descriptor set does not belong to this device")
		}
		bound[vs.set] = vs
	}
	for _, b := range vp.shader.Bindings {
		if _, ok := bound[b.Set]; !ok {
			return core.Errorf(core.KindConfiguration, op, "%s uses set %d but it is not bound", vp.shader.Name, b.Set)
		}
	}

	vk.CmdBindPipeline(cb.Handle, vk.PipelineBindPointCompute, vp.Handle)
	for _, vs := range bound {
		vk.CmdBindDescriptorSets(cb.Handle, vk.PipelineBindPointCompute, vp.Layout, vs.set, 1, []vk.DescriptorSet{vs.Handle}, 0, nil)
		cb.retained = append(cb.retained, vs)
	}
	vk.CmdDispatch(cb.Handle, groups[0], groups[1], groups[2])
	cb.hostBarrier(vk.PipelineStageComputeShaderBit, vk.AccessShaderWriteBit)
	cb.retained = append(cb.retained, vp)
	return nil
}

// hostBarrier makes writes from stage visible to host reads after the fence.
func (cb *VulkanCommandBuffer) hostBarrier(stage vk.PipelineStageFlagBits, access vk.AccessFlagBits) {
	barrier := vk.MemoryBarrier{
		SType:         vk.StructureTypeMemoryBarrier,
		SrcAccessMask: vk.AccessFlags(access),
		DstAccessMask: vk.AccessFlags(vk.AccessHostReadBit),
	}
	vk.CmdPipelineBarrier(cb.Handle,
		vk.PipelineStageFlags(stage),
		vk.PipelineStageFlags(vk.PipelineStageHostBit),
		0,
		1, []vk.MemoryBarrier{barrier},
		0, nil,
		0, nil)
}

func (cb *VulkanCommandBuffer) Build() (compute.CommandBuffer, error) {
	const op = "vulkan.Build"

	if err := cb.recording(op); err != nil {
		return nil, err
	}
	if err := cb.context.locks.SafeCall(CommandBufferManagement, func() error {
		if res := vk.EndCommandBuffer(cb.Handle); res != vk.Success {
			return resultError(op, res)
		}
		return nil
	}); err != nil {
		return nil, err
	}
	cb.State = COMMAND_BUFFER_STATE_RECORDING_ENDED
	return cb, nil
}

func (cb *VulkanCommandBuffer) UpdateSubmitted() {
	cb.State = COMMAND_BUFFER_STATE_SUBMITTED
}

// Release frees the command buffer back to the pool. Only call it once the
// submission, if any, has been waited on.
func (cb *VulkanCommandBuffer) Release() {
	if cb.Handle == nil {
		return
	}
	device := cb.context.Device
	cb.context.locks.SafeCall(CommandPoolManagement, func() error {
		vk.FreeCommandBuffers(device.LogicalDevice, device.CommandPool, 1, []vk.CommandBuffer{cb.Handle})
		return nil
	})
	cb.Handle = nil
	cb.State = COMMAND_BUFFER_STATE_NOT_ALLOCATED
	cb.retained = nil
}
