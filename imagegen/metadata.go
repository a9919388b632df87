package imagegen

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
)

// MetadataFileName is written inside the output directory.
const MetadataFileName = "metadata.jsonl"

// MetadataPath returns where a run writes its metadata file.
func MetadataPath(outDir string) string {
	return filepath.Join(outDir, MetadataFileName)
}

// newMetadataRecord fills the per-run fields of a record; path and latency
// vary per image.
func newMetadataRecord(req GenerationRequest, path string, latencySeconds float64) MetadataRecord {
	rec := MetadataRecord{
		Path:           path,
		Prompt:         req.Prompts,
		NegativePrompt: req.NegativePrompt,
		Steps:          req.Steps,
		GuidanceScale:  req.GuidanceScale,
		Sampler:        req.Sampler,
		Seed:           req.Seed,
		Img2Img:        req.Mode() == ModeImageToImage,
		LatencyS:       latencySeconds,
		Size:           [2]int{req.Width, req.Height},
		ModelID:        req.ModelID,
	}
	if rec.Prompt == nil {
		rec.Prompt = []string{}
	}
	if rec.Img2Img {
		strength := req.Strength
		rec.Strength = &strength
	}
	return rec
}

// WriteMetadata truncates path and writes one JSON object per line, in
// slice order. An empty slice leaves an empty file.
func WriteMetadata(path string, records []MetadataRecord) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("%w: create %s: %v", ErrOutputWrite, path, err)
	}

	w := bufio.NewWriter(f)
	var buf bytes.Buffer
	for i := range records {
		buf.Reset()
		if err := encodeMetadataLine(&buf, records[i]); err != nil {
			f.Close()
			return fmt.Errorf("%w: encode record %d: %v", ErrOutputWrite, i, err)
		}
		w.Write(buf.Bytes())
	}
	if err := w.Flush(); err != nil {
		f.Close()
		return fmt.Errorf("%w: write %s: %v", ErrOutputWrite, path, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("%w: close %s: %v", ErrOutputWrite, path, err)
	}
	return nil
}

// nonFiniteMarker tags NaN and infinities inside the encoded line so they can
// be swapped for the bare NaN, Infinity and -Infinity literals that JSON
// readers in the Python world accept. encoding/json rejects them outright.
const nonFiniteMarker = "\x00nonfinite:"

var nonFiniteLiterals = []string{"NaN", "Infinity", "-Infinity"}

// metadataLine mirrors MetadataRecord with float fields that may carry a
// non-finite marker.
type metadataLine struct {
	Path           string   `json:"path"`
	Prompt         []string `json:"prompt"`
	NegativePrompt *string  `json:"negative_prompt"`
	Steps          int      `json:"steps"`
	GuidanceScale  any      `json:"guidance_scale"`
	Sampler        string   `json:"sampler"`
	Seed           *int64   `json:"seed"`
	Img2Img        bool     `json:"img2img"`
	Strength       any      `json:"strength"`
	LatencyS       any      `json:"latency_s"`
	Size           [2]int   `json:"size"`
	ModelID        string   `json:"model_id"`
}

func jsonFloat(f float64) any {
	switch {
	case math.IsNaN(f):
		return nonFiniteMarker + "NaN"
	case math.IsInf(f, 1):
		return nonFiniteMarker + "Infinity"
	case math.IsInf(f, -1):
		return nonFiniteMarker + "-Infinity"
	}
	return f
}

// encodeMetadataLine writes rec as one newline-terminated JSON object.
func encodeMetadataLine(buf *bytes.Buffer, rec MetadataRecord) error {
	line := metadataLine{
		Path:           rec.Path,
		Prompt:         rec.Prompt,
		NegativePrompt: rec.NegativePrompt,
		Steps:          rec.Steps,
		GuidanceScale:  jsonFloat(rec.GuidanceScale),
		Sampler:        rec.Sampler,
		Seed:           rec.Seed,
		Img2Img:        rec.Img2Img,
		LatencyS:       jsonFloat(rec.LatencyS),
		Size:           rec.Size,
		ModelID:        rec.ModelID,
	}
	if rec.Strength != nil {
		line.Strength = jsonFloat(*rec.Strength)
	}

	enc := json.NewEncoder(buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(&line); err != nil {
		return err
	}
	if !bytes.Contains(buf.Bytes(), []byte(`\u0000nonfinite:`)) {
		return nil
	}
	out := buf.Bytes()
	for _, lit := range nonFiniteLiterals {
		out = bytes.ReplaceAll(out, []byte(`"\u0000nonfinite:`+lit+`"`), []byte(lit))
	}
	buf.Reset()
	buf.Write(out)
	return nil
}
