package transcription

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"testing"

	"github.com/codebuildervaibhav/diarization-studio/internal/queue"
	"github.com/codebuildervaibhav/diarization-studio/internal/types"
)

type fakeFetcher struct {
	err error
}

func (f *fakeFetcher) Fetch(ctx context.Context, src types.Source, workDir string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	path := filepath.Join(workDir, "download.m4a")
	return path, os.WriteFile(path, []byte("remote"), 0644)
}

type fakeAudio struct {
	mu        sync.Mutex
	extracted bool
	cutFrom   map[string]bool
	failCut   bool
}

func (a *fakeAudio) ExtractAudio(ctx context.Context, videoPath, outDir string) (string, error) {
	a.mu.Lock()
	a.extracted = true
	a.mu.Unlock()
	out := filepath.Join(outDir, "extracted.mp3")
	return out, os.WriteFile(out, []byte("audio"), 0644)
}

func (a *fakeAudio) ConvertForDiarization(ctx context.Context, inputPath, outDir string) (string, error) {
	return filepath.Join(outDir, "normalized.wav"), nil
}

func (a *fakeAudio) CutClip(ctx context.Context, inputPath string, start, end float64, outputPath string) error {
	if a.failCut {
		return errors.New("ffmpeg exploded")
	}
	a.mu.Lock()
	if a.cutFrom == nil {
		a.cutFrom = make(map[string]bool)
	}
	a.cutFrom[filepath.Base(inputPath)] = true
	a.mu.Unlock()
	return os.WriteFile(outputPath, []byte("clip"), 0644)
}

type fakeDiarizer struct {
	turns []Turn
	hint  int
}

func (d *fakeDiarizer) Diarize(ctx context.Context, wavPath, workDir string, numSpeakers int) ([]Turn, error) {
	d.hint = numSpeakers
	return d.turns, nil
}

func noProgress(string) {}

func TestPipelineProducesClips(t *testing.T) {
	audio := &fakeAudio{}
	diarizer := &fakeDiarizer{turns: []Turn{
		{Speaker: "SPEAKER_00", Start: 0, End: 1.5},
		{Speaker: "SPEAKER_01", Start: 1.5, End: 1.55},
		{Speaker: "SPEAKER_01", Start: 2, End: 4},
	}}
	p := NewPipeline(&fakeFetcher{}, audio, diarizer, 0.1, 2)

	var steps []string
	res, err := p.Produce(context.Background(), queue.Request{
		Source:      types.Source{Type: types.SourceURL, Ref: "https://example.com"},
		SpeakerHint: 2,
	}, t.TempDir(), func(s string) { steps = append(steps, s) })
	if err != nil {
		t.Fatalf("Produce: %v", err)
	}

	if len(res.Segments) != 2 {
		t.Fatalf("segments = %d, want 2 (short turn dropped)", len(res.Segments))
	}
	if res.Segments[1].SpeakerLabel != "SPEAKER_01" || res.Segments[1].Start != 2 {
		t.Fatalf("segment 1 = %+v", res.Segments[1])
	}
	for _, s := range res.Segments {
		if _, err := os.Stat(s.AudioPath); err != nil {
			t.Fatalf("clip %s: %v", s.AudioPath, err)
		}
	}
	if diarizer.hint != 2 {
		t.Fatalf("speaker hint = %d", diarizer.hint)
	}
	if !audio.cutFrom["download.m4a"] {
		t.Fatalf("clips cut from %v, want the downloaded file", audio.cutFrom)
	}
	if steps[0] != "Downloading audio..." {
		t.Fatalf("first progress = %q", steps[0])
	}
}

func TestPipelineExtractsVideo(t *testing.T) {
	video := filepath.Join(t.TempDir(), "talk.MP4")
	if err := os.WriteFile(video, []byte("video"), 0644); err != nil {
		t.Fatal(err)
	}
	audio := &fakeAudio{}
	p := NewPipeline(&fakeFetcher{err: errors.New("must not fetch")}, audio,
		&fakeDiarizer{turns: []Turn{{Speaker: "A", Start: 0, End: 1}}}, 0.1, 1)

	if _, err := p.Produce(context.Background(), queue.Request{LocalPath: video}, t.TempDir(), noProgress); err != nil {
		t.Fatalf("Produce: %v", err)
	}
	if !audio.extracted || !audio.cutFrom["extracted.mp3"] {
		t.Fatal("video audio was not extracted before cutting")
	}
}

func TestPipelineFailuresAreJobErrors(t *testing.T) {
	turns := []Turn{{Speaker: "A", Start: 0, End: 1}}
	tests := []struct {
		name  string
		p     *Pipeline
		req   queue.Request
		stage string
	}{
		{"download", NewPipeline(&fakeFetcher{err: errors.New("404")}, &fakeAudio{}, &fakeDiarizer{turns: turns}, 0.1, 1),
			queue.Request{Source: types.Source{Type: types.SourceURL, Ref: "x"}}, "download"},
		{"missing local file", NewPipeline(&fakeFetcher{}, &fakeAudio{}, &fakeDiarizer{turns: turns}, 0.1, 1),
			queue.Request{LocalPath: "/does/not/exist.wav"}, "input"},
		{"no speech", NewPipeline(&fakeFetcher{}, &fakeAudio{}, &fakeDiarizer{turns: []Turn{{Speaker: "A", Start: 0, End: 0.05}}}, 0.1, 1),
			queue.Request{Source: types.Source{Type: types.SourceURL, Ref: "x"}}, "diarization"},
		{"split", NewPipeline(&fakeFetcher{}, &fakeAudio{failCut: true}, &fakeDiarizer{turns: turns}, 0.1, 1),
			queue.Request{Source: types.Source{Type: types.SourceURL, Ref: "x"}}, "split"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.p.Produce(context.Background(), tt.req, t.TempDir(), noProgress)
			var jobErr *types.JobError
			if !errors.As(err, &jobErr) || !errors.Is(err, types.ErrJobFailure) {
				t.Fatalf("err = %v, want JobError", err)
			}
			if jobErr.Stage != tt.stage {
				t.Fatalf("stage = %q, want %q", jobErr.Stage, tt.stage)
			}
		})
	}
}

func TestParseTurns(t *testing.T) {
	turns, err := parseTurns([]byte(`[
		{"speaker": "SPEAKER_01", "start": 3.2, "end": 4.0},
		{"speaker": "SPEAKER_00", "start": 0.5, "end": 2.3}
	]`))
	if err != nil {
		t.Fatalf("parseTurns: %v", err)
	}
	if len(turns) != 2 || turns[0].Speaker != "SPEAKER_00" {
		t.Fatalf("turns = %+v", turns)
	}

	wrapped, err := parseTurns([]byte(`{"segments": [{"speaker": "A", "start": 0, "end": 1}]}`))
	if err != nil || len(wrapped) != 1 {
		t.Fatalf("wrapped = %+v, %v", wrapped, err)
	}

	if _, err := parseTurns([]byte(`[{"start": 0, "end": 1}]`)); err == nil {
		t.Fatal("expected error for missing speaker")
	}
	if _, err := parseTurns([]byte(`not json`)); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestCommandDiarizerRunsProgram(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("shell script diarizer")
	}
	dir := t.TempDir()
	script := filepath.Join(dir, "diarize.sh")
	body := `#!/bin/sh
out=""
hint=""
while [ $# -gt 0 ]; do
  case "$1" in
    --output) out="$2"; shift ;;
    --num-speakers) hint="$2"; shift ;;
  esac
  shift
done
echo "[{\"speaker\":\"SPEAKER_0${hint}\",\"start\":0,\"end\":1.5,\"token\":\"${HF_TOKEN}\"}]" > "$out"
`
	if err := os.WriteFile(script, []byte(body), 0755); err != nil {
		t.Fatal(err)
	}

	d := NewCommandDiarizer(script, nil, "secret")
	turns, err := d.Diarize(context.Background(), filepath.Join(dir, "in.wav"), dir, 3)
	if err != nil {
		t.Fatalf("Diarize: %v", err)
	}
	if len(turns) != 1 || turns[0].Speaker != "SPEAKER_03" || turns[0].End != 1.5 {
		t.Fatalf("turns = %+v", turns)
	}

	if _, err := NewCommandDiarizer("", nil, "").Diarize(context.Background(), "x", dir, 0); err == nil {
		t.Fatal("expected error without a command")
	}
}

func TestMediaFormats(t *testing.T) {
	for name, want := range map[string]bool{
		"a.wav": true, "b.MP3": true, "c.mov": true, "d.mp4": true, "e.flac": true,
		"f.webm": true, "g.txt": false, "h": false, "i.aac": false,
	} {
		if got := ValidateMediaFormat(name); got != want {
			t.Errorf("ValidateMediaFormat(%q) = %v, want %v", name, got, want)
		}
	}
	if !IsVideo("x.MOV") || IsVideo("x.mp3") {
		t.Fatal("IsVideo misclassified")
	}
}

func TestClipArgs(t *testing.T) {
	got := strings.Join(clipArgs("in.mp3", 1.5, 3.25, "out.mp3"), " ")
	want := "-ss 1.500 -to 3.250 -i in.mp3 -vn -acodec libmp3lame -q:a 2 out.mp3"
	if got != want {
		t.Fatalf("args = %q, want %q", got, want)
	}
}

func TestParseWhisperOutput(t *testing.T) {
	text, err := parseWhisperOutput([]byte(`{"text": "  hello world ", "language": "en"}`))
	if err != nil || text != "hello world" {
		t.Fatalf("text = %q, %v", text, err)
	}
	text, err = parseWhisperOutput([]byte(`{"text": "", "segments": [{"text": " a "}, {"text": "b"}]}`))
	if err != nil || text != "a b" {
		t.Fatalf("segment text = %q, %v", text, err)
	}
	if resolveModel("models/ggml-medium.bin") != "medium" || resolveModel("") != "small" {
		t.Fatal("resolveModel")
	}
}
