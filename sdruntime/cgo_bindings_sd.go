//go:build sd && cgo && !stub

// Native binding. Links against libgallery_sd, a thin C shim compiled
// together with stable-diffusion.cpp that exposes the gs_* entry points
// declared below.
//
//	CGO_CFLAGS="-I${SD_CPP_PATH}" \
//	CGO_LDFLAGS="-L${SD_CPP_PATH}/build -lgallery_sd -lstable-diffusion" \
//	go build -tags sd

package sdruntime

/*
#cgo LDFLAGS: -lgallery_sd
#include <stdlib.h>
#include <stdint.h>

typedef struct gs_ctx gs_ctx;

typedef struct {
	uint32_t width;
	uint32_t height;
	uint32_t channel;
	uint8_t* data;
} gs_image;

extern gs_ctx* gs_ctx_new(const char* model_path, const char* sample_method, int n_threads, int use_gpu);
extern void gs_ctx_free(gs_ctx* ctx);
extern gs_image* gs_generate(gs_ctx* ctx, const char* prompt, const char* negative_prompt,
	int width, int height, int steps, float cfg_scale, float eta, int64_t seed, int batch_count,
	const uint8_t* init_rgb, float strength);
extern void gs_free_images(gs_image* images, int count);
extern const char* gs_backend_info(void);
*/
import "C"

import (
	"fmt"
	"os"
	"runtime"
	"sync"
	"sync/atomic"
	"unsafe"
)

const backendLinked = true

var (
	sdContextCounter uint64

	contextsMu sync.Mutex
	contexts   = make(map[uint64]*C.gs_ctx)
)

func loadModelImpl(modelPath string, opts LoadOptions) (*SDContext, error) {
	if _, err := os.Stat(modelPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("%w: %s", ErrModelNotFound, modelPath)
	} else if err != nil {
		return nil, fmt.Errorf("%w: unable to access %s: %v", ErrModelLoadFailed, modelPath, err)
	}

	threads := opts.Threads
	if threads <= 0 {
		threads = runtime.NumCPU()
	}
	useGPU := 0
	if opts.Device == DeviceCUDA {
		useGPU = 1
	}

	cPath := C.CString(modelPath)
	defer C.free(unsafe.Pointer(cPath))
	cMethod := C.CString(opts.Sampler.SDCppName())
	defer C.free(unsafe.Pointer(cMethod))

	cCtx := C.gs_ctx_new(cPath, cMethod, C.int(threads), C.int(useGPU))
	if cCtx == nil {
		return nil, fmt.Errorf("%w: library returned null context for %s", ErrModelLoadFailed, modelPath)
	}

	id := atomic.AddUint64(&sdContextCounter, 1)
	contextsMu.Lock()
	contexts[id] = cCtx
	contextsMu.Unlock()

	return &SDContext{
		id:        id,
		modelPath: modelPath,
		device:    opts.Device,
		sampler:   opts.Sampler,
		valid:     true,
	}, nil
}

func generateImagesImpl(ctx *SDContext, params GenerateParams) ([]*GenerateResult, error) {
	if !ctx.IsValid() {
		return nil, fmt.Errorf("%w: context is nil or invalid", ErrGenerationFailed)
	}
	contextsMu.Lock()
	cCtx := contexts[ctx.id]
	contextsMu.Unlock()
	if cCtx == nil {
		return nil, fmt.Errorf("%w: no native context for handle %d", ErrGenerationFailed, ctx.id)
	}

	cPrompt := C.CString(params.Prompt)
	defer C.free(unsafe.Pointer(cPrompt))
	cNeg := C.CString(params.NegativePrompt)
	defer C.free(unsafe.Pointer(cNeg))

	seed := params.Seed
	if seed < 0 {
		seed = RandomSeed()
	}

	var initPtr *C.uint8_t
	if params.InitImage != nil {
		rgb := RGBPixels(params.InitImage)
		cInit := C.CBytes(rgb)
		defer C.free(cInit)
		initPtr = (*C.uint8_t)(cInit)
	}

	images := C.gs_generate(cCtx, cPrompt, cNeg,
		C.int(params.Width), C.int(params.Height), C.int(params.Steps),
		C.float(params.CFGScale), C.float(params.Eta), C.int64_t(seed),
		C.int(params.BatchCount), initPtr, C.float(params.Strength))
	if images == nil {
		return nil, fmt.Errorf("%w: native generate returned null", ErrGenerationFailed)
	}
	defer C.gs_free_images(images, C.int(params.BatchCount))

	raw := unsafe.Slice(images, params.BatchCount)
	results := make([]*GenerateResult, 0, params.BatchCount)
	for i, img := range raw {
		if img.data == nil {
			continue
		}
		w, h, ch := int(img.width), int(img.height), int(img.channel)
		pixels := C.GoBytes(unsafe.Pointer(img.data), C.int(w*h*ch))
		data, err := EncodeToPNG(pixels, w, h, ch)
		if err != nil {
			return nil, fmt.Errorf("%w: image %d: %v", ErrGenerationFailed, i, err)
		}
		results = append(results, &GenerateResult{
			ImageData: data,
			Width:     w,
			Height:    h,
			Seed:      seed + int64(i),
		})
	}
	return results, nil
}

func freeContextImpl(ctx *SDContext) {
	if ctx == nil {
		return
	}
	contextsMu.Lock()
	cCtx, ok := contexts[ctx.id]
	delete(contexts, ctx.id)
	contextsMu.Unlock()
	if ok && cCtx != nil {
		C.gs_ctx_free(cCtx)
	}
	ctx.valid = false
}

func getBackendInfoImpl() string {
	if info := C.gs_backend_info(); info != nil {
		return C.GoString(info)
	}
	return "stable-diffusion.cpp"
}
