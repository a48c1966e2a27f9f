package transcription

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"golang.org/x/sync/errgroup"

	"github.com/codebuildervaibhav/diarization-studio/internal/queue"
	"github.com/codebuildervaibhav/diarization-studio/internal/types"
)

// Fetcher downloads a remote source into workDir and returns the local file.
type Fetcher interface {
	Fetch(ctx context.Context, src types.Source, workDir string) (string, error)
}

// AudioTool is the subset of ffmpeg the pipeline needs.
type AudioTool interface {
	ExtractAudio(ctx context.Context, videoPath, outDir string) (string, error)
	ConvertForDiarization(ctx context.Context, inputPath, outDir string) (string, error)
	CutClip(ctx context.Context, inputPath string, start, end float64, outputPath string) error
}

// Diarizer labels speaker turns in a 16kHz mono WAV.
type Diarizer interface {
	Diarize(ctx context.Context, wavPath, workDir string, numSpeakers int) ([]Turn, error)
}

// Pipeline produces a raw diarization result from a request: acquire the
// source, normalise it, diarize, and cut one clip per turn.
type Pipeline struct {
	fetcher     Fetcher
	audio       AudioTool
	diarizer    Diarizer
	minSegment  float64
	concurrency int
}

// NewPipeline creates the production pipeline.
func NewPipeline(fetcher Fetcher, audio AudioTool, diarizer Diarizer, minSegment float64, concurrency int) *Pipeline {
	if concurrency < 1 {
		concurrency = 4
	}
	return &Pipeline{
		fetcher:     fetcher,
		audio:       audio,
		diarizer:    diarizer,
		minSegment:  minSegment,
		concurrency: concurrency,
	}
}

// Produce implements queue.Producer.
func (p *Pipeline) Produce(ctx context.Context, req queue.Request, workDir string, progress func(string)) (*types.RawDiarizationResult, error) {
	// Step 1: Acquire the source
	input := req.LocalPath
	if input == "" {
		progress("Downloading audio...")
		path, err := p.fetcher.Fetch(ctx, req.Source, workDir)
		if err != nil {
			return nil, &types.JobError{Stage: "download", Message: "failed to download source", Err: err}
		}
		input = path
	}
	if _, err := os.Stat(input); err != nil {
		return nil, &types.JobError{Stage: "input", Message: "source file is not readable", Err: err}
	}

	// Step 2: Extract audio from video
	if IsVideo(input) {
		progress("Extracting audio from video...")
		extracted, err := p.audio.ExtractAudio(ctx, input, workDir)
		if err != nil {
			return nil, &types.JobError{Stage: "extract", Message: "failed to extract audio", Err: err}
		}
		input = extracted
	}

	// Step 3: Normalize for the diarizer
	progress("Converting audio...")
	wav, err := p.audio.ConvertForDiarization(ctx, input, workDir)
	if err != nil {
		return nil, &types.JobError{Stage: "convert", Message: "audio conversion failed", Err: err}
	}

	// Step 4: Diarize
	progress("Running speaker diarization...")
	turns, err := p.diarizer.Diarize(ctx, wav, workDir, req.SpeakerHint)
	if err != nil {
		return nil, &types.JobError{Stage: "diarization", Message: "diarization failed", Err: err}
	}

	kept := turns[:0:0]
	for _, t := range turns {
		if t.End-t.Start < p.minSegment {
			continue
		}
		kept = append(kept, t)
	}
	if len(kept) == 0 {
		return nil, &types.JobError{Stage: "diarization", Message: "no speech segments found"}
	}

	// Step 5: Split audio by speaker
	progress(fmt.Sprintf("Splitting audio into %d segments...", len(kept)))
	clipDir := filepath.Join(workDir, "clips")
	if err := os.MkdirAll(clipDir, 0755); err != nil {
		return nil, &types.JobError{Stage: "split", Message: "cannot create clip directory", Err: err}
	}

	result := &types.RawDiarizationResult{Segments: make([]types.RawSegment, len(kept))}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.concurrency)
	for i, t := range kept {
		out := filepath.Join(clipDir, fmt.Sprintf("%05d.mp3", i))
		result.Segments[i] = types.RawSegment{SpeakerLabel: t.Speaker, Start: t.Start, End: t.End, AudioPath: out}
		g.Go(func() error {
			return p.audio.CutClip(gctx, input, t.Start, t.End, out)
		})
	}
	if err := g.Wait(); err != nil {
		return nil, &types.JobError{Stage: "split", Message: "audio splitting failed", Err: err}
	}

	log.Printf("Pipeline: %d turns, %d kept after %.1fs minimum", len(turns), len(kept), p.minSegment)
	return result, nil
}
