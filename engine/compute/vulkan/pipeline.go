package vulkan

import (
	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/anima-compute/engine/compute"
	"github.com/spaghettifunk/anima-compute/engine/core"
	"github.com/spaghettifunk/anima-compute/engine/resources"
)

// VulkanPipeline is a compute pipeline together with its shader module and
// layouts. SetLayouts is indexed by descriptor set number.
type VulkanPipeline struct {
	Handle     vk.Pipeline
	Layout     vk.PipelineLayout
	Module     vk.ShaderModule
	SetLayouts []vk.DescriptorSetLayout

	shader  *resources.Shader
	context *VulkanContext
}

// shaderModuleInfo describes shader's SPIR-V words. CodeSize is in bytes.
func shaderModuleInfo(shader *resources.Shader) vk.ShaderModuleCreateInfo {
	return vk.ShaderModuleCreateInfo{
		SType:    vk.StructureTypeShaderModuleCreateInfo,
		CodeSize: uint64(len(shader.Code) * 4),
		PCode:    shader.Code,
	}
}

func ComputePipelineCreate(context *VulkanContext, shader *resources.Shader) (*VulkanPipeline, error) {
	const op = "vulkan.ComputePipelineCreate"

	if shader.Stage != resources.ShaderStageCompute {
		return nil, core.Errorf(core.KindAsset, op, "%w: %s is a %s shader", core.ErrShaderAsset, shader.Name, shader.Stage)
	}
	if !shader.HasCode() {
		err := core.Errorf(core.KindAsset, op, "%w: %s has no SPIR-V, run `mage build:shaders`", core.ErrShaderAsset, shader.Name)
		core.LogError(err.Error())
		return nil, err
	}

	pipeline := &VulkanPipeline{shader: shader, context: context}
	device := context.Device.LogicalDevice

	moduleCreateInfo := shaderModuleInfo(shader)
	if err := context.locks.SafeCall(ShaderManagement, func() error {
		if res := vk.CreateShaderModule(device, &moduleCreateInfo, context.Allocator, &pipeline.Module); res != vk.Success {
			return resultError(op, res)
		}
		return nil
	}); err != nil {
		return nil, err
	}

	if err := pipeline.createLayouts(); err != nil {
		pipeline.Destroy()
		return nil, err
	}

	pipelineCreateInfo := vk.ComputePipelineCreateInfo{
		SType: vk.StructureTypeComputePipelineCreateInfo,
		Stage: vk.PipelineShaderStageCreateInfo{
			SType:  vk.StructureTypePipelineShaderStageCreateInfo,
			Stage:  vk.ShaderStageComputeBit,
			Module: pipeline.Module,
			PName:  VulkanSafeString(shader.EntryPoint),
		},
		Layout:             pipeline.Layout,
		BasePipelineHandle: vk.NullPipeline,
		BasePipelineIndex:  -1,
	}
	pPipelines := make([]vk.Pipeline, 1)
	if err := context.locks.SafeCall(PipelineManagement, func() error {
		result := vk.CreateComputePipelines(device, vk.NullPipelineCache, 1, []vk.ComputePipelineCreateInfo{pipelineCreateInfo}, context.Allocator, pPipelines)
		if !VulkanResultIsSuccess(result) {
			return resultError(op, result)
		}
		return nil
	}); err != nil {
		pipeline.Destroy()
		return nil, err
	}
	pipeline.Handle = pPipelines[0]

	core.LogDebug("Compute pipeline created for %s (%s, local size %v).", shader.Name, shader.EntryPoint, shader.LocalSize)
	return pipeline, nil
}

// createLayouts builds one descriptor set layout per set number up to the
// highest one the shader uses; gaps get empty layouts.
func (vp *VulkanPipeline) createLayouts() error {
	const op = "vulkan.createLayouts"

	context := vp.context
	device := context.Device.LogicalDevice

	setCount := uint32(0)
	for _, b := range vp.shader.Bindings {
		setCount = max(setCount, b.Set+1)
	}

	return context.locks.SafeCall(PipelineManagement, func() error {
		for set := uint32(0); set < setCount; set++ {
			bindings := layoutBindings(vp.shader.SetBindings(set))
			layoutInfo := vk.DescriptorSetLayoutCreateInfo{
				SType:        vk.StructureTypeDescriptorSetLayoutCreateInfo,
				BindingCount: uint32(len(bindings)),
				PBindings:    bindings,
			}
			var layout vk.DescriptorSetLayout
			if res := vk.CreateDescriptorSetLayout(device, &layoutInfo, context.Allocator, &layout); res != vk.Success {
				return resultError(op, res)
			}
			vp.SetLayouts = append(vp.SetLayouts, layout)
		}

		layoutCreateInfo := vk.PipelineLayoutCreateInfo{
			SType:          vk.StructureTypePipelineLayoutCreateInfo,
			SetLayoutCount: uint32(len(vp.SetLayouts)),
			PSetLayouts:    vp.SetLayouts,
		}
		if res := vk.CreatePipelineLayout(device, &layoutCreateInfo, context.Allocator, &vp.Layout); res != vk.Success {
			return resultError(op, res)
		}
		return nil
	})
}

func layoutBindings(bindings []resources.ShaderBinding) []vk.DescriptorSetLayoutBinding {
	out := make([]vk.DescriptorSetLayoutBinding, len(bindings))
	for i, b := range bindings {
		out[i] = vk.DescriptorSetLayoutBinding{
			Binding:         b.Binding,
			DescriptorType:  descriptorType(b.Type),
			DescriptorCount: 1,
			StageFlags:      vk.ShaderStageFlags(vk.ShaderStageComputeBit),
		}
	}
	return out
}

func (vp *VulkanPipeline) Shader() *resources.Shader {
	return vp.shader
}

func (vp *VulkanPipeline) Destroy() {
	context := vp.context
	if context.Device == nil {
		return
	}
	device := context.Device.LogicalDevice

	context.locks.SafeCall(PipelineManagement, func() error {
		if vp.Handle != vk.NullPipeline {
			vk.DestroyPipeline(device, vp.Handle, context.Allocator)
			vp.Handle = vk.NullPipeline
		}
		if vp.Layout != vk.NullPipelineLayout {
			vk.DestroyPipelineLayout(device, vp.Layout, context.Allocator)
			vp.Layout = vk.NullPipelineLayout
		}
		for _, layout := range vp.SetLayouts {
			vk.DestroyDescriptorSetLayout(device, layout, context.Allocator)
		}
		vp.SetLayouts = nil
		return nil
	})
	if vp.Module != vk.NullShaderModule {
		vk.DestroyShaderModule(device, vp.Module, context.Allocator)
		vp.Module = vk.NullShaderModule
	}
}

// VulkanDescriptorSet owns a one-set descriptor pool; destroying the pool
// frees the set.
type VulkanDescriptorSet struct {
	Handle vk.DescriptorSet
	Pool   vk.DescriptorPool

	set     uint32
	buffers []*VulkanBuffer
	context *VulkanContext
}

func DescriptorSetCreate(context *VulkanContext, pipeline *VulkanPipeline, set uint32, buffers []compute.Buffer) (*VulkanDescriptorSet, error) {
	const op = "vulkan.DescriptorSetCreate"

	if err := compute.CheckSetBindings(pipeline.shader, set, buffers); err != nil {
		return nil, core.NewError(core.KindConfiguration, op, err)
	}
	ds := &VulkanDescriptorSet{set: set, context: context}
	for i, b := range buffers {
		vb, ok := b.(*VulkanBuffer)
		if !ok || vb.Handle == vk.NullBuffer {
			return nil, core.Errorf(core.KindConfiguration, op, "buffer %d of set %d does not belong to this device", i, set)
		}
		ds.buffers = append(ds.buffers, vb)
	}

	bindings := pipeline.shader.SetBindings(set)
	device := context.Device.LogicalDevice

	counts := map[vk.DescriptorType]uint32{}
	for _, b := range bindings {
		counts[descriptorType(b.Type)]++
	}
	poolSizes := make([]vk.DescriptorPoolSize, 0, len(counts))
	for t, n := range counts {
		poolSizes = append(poolSizes, vk.DescriptorPoolSize{Type: t, DescriptorCount: n})
	}

	poolInfo := vk.DescriptorPoolCreateInfo{
		SType:         vk.StructureTypeDescriptorPoolCreateInfo,
		MaxSets:       1,
		PoolSizeCount: uint32(len(poolSizes)),
		PPoolSizes:    poolSizes,
	}
	allocateInfo := vk.DescriptorSetAllocateInfo{
		SType:              vk.StructureTypeDescriptorSetAllocateInfo,
		DescriptorSetCount: 1,
		PSetLayouts:        []vk.DescriptorSetLayout{pipeline.SetLayouts[set]},
	}

	if err := context.locks.SafeCall(DescriptorManagement, func() error {
		if res := vk.CreateDescriptorPool(device, &poolInfo, context.Allocator, &ds.Pool); res != vk.Success {
			return resultError(op, res)
		}
		allocateInfo.DescriptorPool = ds.Pool
		if res := vk.AllocateDescriptorSets(device, &allocateInfo, &ds.Handle); res != vk.Success {
			return resultError(op, res)
		}

		writes := make([]vk.WriteDescriptorSet, len(bindings))
		for i, b := range bindings {
			writes[i] = vk.WriteDescriptorSet{
				SType:           vk.StructureTypeWriteDescriptorSet,
				DstSet:          ds.Handle,
				DstBinding:      b.Binding,
				DescriptorCount: 1,
				DescriptorType:  descriptorType(b.Type),
				PBufferInfo: []vk.DescriptorBufferInfo{{
					Buffer: ds.buffers[i].Handle,
					Offset: 0,
					Range:  vk.DeviceSize(ds.buffers[i].size),
				}},
			}
		}
		vk.UpdateDescriptorSets(device, uint32(len(writes)), writes, 0, nil)
		return nil
	}); err != nil {
		ds.Destroy()
		return nil, err
	}
	return ds, nil
}

func (ds *VulkanDescriptorSet) Set() uint32 {
	return ds.set
}

func (ds *VulkanDescriptorSet) Destroy() {
	context := ds.context
	if context.Device == nil || ds.Pool == vk.NullDescriptorPool {
		return
	}
	context.locks.SafeCall(DescriptorManagement, func() error {
		vk.DestroyDescriptorPool(context.Device.LogicalDevice, ds.Pool, context.Allocator)
		return nil
	})
	ds.Pool = vk.NullDescriptorPool
	ds.Handle = nil
	ds.buffers = nil
}
