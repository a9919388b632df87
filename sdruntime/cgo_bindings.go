package sdruntime

// SDContext is an opaque handle to a loaded stable-diffusion.cpp context.
// The stub backend tracks it by id only.
type SDContext struct {
	id        uint64
	modelPath string
	device    Device
	sampler   Sampler
	valid     bool
}

func (c *SDContext) IsValid() bool {
	return c != nil && c.valid
}

func (c *SDContext) ModelPath() string {
	if c == nil {
		return ""
	}
	return c.modelPath
}

func (c *SDContext) Device() Device {
	if c == nil {
		return ""
	}
	return c.device
}

func (c *SDContext) Sampler() Sampler {
	if c == nil {
		return DefaultSampler
	}
	return c.sampler
}

// LoadOptions configure a context at load time. The sampler is bound to the
// context, mirroring a pipeline whose scheduler is swapped once before use.
type LoadOptions struct {
	Sampler Sampler
	Device  Device
	Threads int // 0 means one per CPU
}

// GenerateResult is one decoded image from a generation call.
type GenerateResult struct {
	ImageData []byte // PNG
	Width     int
	Height    int
	Seed      int64
}

// LoadModel loads a .safetensors, .ckpt or .gguf model.
//
// Errors wrap ErrModelNotFound when the file is missing and
// ErrModelLoadFailed when the library rejects it. Release the context with
// FreeContext.
func LoadModel(modelPath string, opts LoadOptions) (*SDContext, error) {
	return loadModelImpl(modelPath, opts)
}

// GenerateImages runs one text-to-image or image-to-image call producing
// params.BatchCount images. The sampler comes from the context.
func GenerateImages(ctx *SDContext, params GenerateParams) ([]*GenerateResult, error) {
	if err := ValidateParams(params); err != nil {
		return nil, err
	}
	return generateImagesImpl(ctx, params)
}

// FreeContext releases ctx. Nil and already-freed contexts are ignored.
func FreeContext(ctx *SDContext) {
	freeContextImpl(ctx)
}

// GetBackendInfo describes the linked compute backend.
func GetBackendInfo() string {
	return getBackendInfoImpl()
}

// BackendLinked reports whether the native library is compiled in.
func BackendLinked() bool {
	return backendLinked
}
