package sdruntime

import (
	"fmt"
	"strings"
)

// Sampler identifies a denoising schedule. The set is closed.
type Sampler int

const (
	SamplerDDIM Sampler = iota
	SamplerDDPM
	SamplerPNDM
	SamplerEulerA
)

// DefaultSampler is used when no name is given or the name is unknown.
const DefaultSampler = SamplerDDIM

type samplerInfo struct {
	name      string // canonical CLI name
	scheduler string // diffusers scheduler class
	webui     string // AUTOMATIC1111 sampler_name
	sdcpp     string // stable-diffusion.cpp sample method
	// sdcppAlias marks samplers stable-diffusion.cpp has no native method
	// for; sdcpp is then the closest available stand-in.
	sdcppAlias bool
}

var samplerTable = map[Sampler]samplerInfo{
	SamplerDDIM: {"DDIM", "DDIMScheduler", "DDIM", "ddim_trailing", false},
	// stable-diffusion.cpp has no ancestral DDPM sampler; euler_a is the
	// nearest stochastic one, so DDPM and EulerA run identically there.
	SamplerDDPM:   {"DDPM", "DDPMScheduler", "DDPM", "euler_a", true},
	SamplerPNDM:   {"PNDM", "PNDMScheduler", "PLMS", "ipndm", false},
	SamplerEulerA: {"EulerA", "EulerAncestralDiscreteScheduler", "Euler a", "euler_a", false},
}

// Samplers lists every sampler in display order.
func Samplers() []Sampler {
	return []Sampler{SamplerDDPM, SamplerDDIM, SamplerPNDM, SamplerEulerA}
}

// ParseSampler resolves a sampler name. Matching is exact first, then
// case-insensitive. An unrecognized name yields DefaultSampler with
// known=false; it is never an error.
func ParseSampler(name string) (s Sampler, known bool) {
	for _, candidate := range Samplers() {
		if samplerTable[candidate].name == name {
			return candidate, true
		}
	}
	for _, candidate := range Samplers() {
		if strings.EqualFold(samplerTable[candidate].name, strings.TrimSpace(name)) {
			return candidate, true
		}
	}
	return DefaultSampler, false
}

func (s Sampler) info() samplerInfo {
	if info, ok := samplerTable[s]; ok {
		return info
	}
	return samplerTable[DefaultSampler]
}

func (s Sampler) String() string {
	if _, ok := samplerTable[s]; !ok {
		return fmt.Sprintf("Sampler(%d)", int(s))
	}
	return s.info().name
}

// SchedulerName is the diffusers scheduler class the sampler corresponds to.
func (s Sampler) SchedulerName() string { return s.info().scheduler }

// WebUIName is the sampler_name accepted by an AUTOMATIC1111-compatible API.
func (s Sampler) WebUIName() string { return s.info().webui }

// SDCppName is the stable-diffusion.cpp sampling method.
func (s Sampler) SDCppName() string { return s.info().sdcpp }

// SDCppApproximate reports whether SDCppName stands in for a method
// stable-diffusion.cpp lacks.
func (s Sampler) SDCppApproximate() bool { return s.info().sdcppAlias }
