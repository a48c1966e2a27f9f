package transcription

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
)

// WhisperTranscriber wraps Python's OpenAI Whisper for single-clip transcription
type WhisperTranscriber struct {
	modelName string
	language  string
	tempDir   string
	mu        sync.Mutex // one model run at a time
}

// NewWhisperTranscriber creates a new transcriber using Python Whisper
func NewWhisperTranscriber(model, language, tempDir string) *WhisperTranscriber {
	modelName := resolveModel(model)
	log.Printf("Initializing Python Whisper with model: %s", modelName)
	return &WhisperTranscriber{
		modelName: modelName,
		language:  language,
		tempDir:   tempDir,
	}
}

// resolveModel maps a model name or a ggml file name ("ggml-small.bin") to a Whisper model.
func resolveModel(model string) string {
	for _, name := range []string{"tiny", "base", "small", "medium", "large"} {
		if strings.Contains(model, name) {
			return name
		}
	}
	return "small"
}

// Transcribe processes one audio clip and returns its text
func (wt *WhisperTranscriber) Transcribe(ctx context.Context, audioPath string) (string, error) {
	wt.mu.Lock()
	defer wt.mu.Unlock()

	outDir, err := os.MkdirTemp(wt.tempDir, "whisper-")
	if err != nil {
		return "", fmt.Errorf("failed to create whisper output dir: %v", err)
	}
	defer os.RemoveAll(outDir)

	absAudioPath, err := filepath.Abs(audioPath)
	if err != nil {
		return "", fmt.Errorf("failed to get absolute path: %v", err)
	}

	args := []string{"-m", "whisper",
		absAudioPath,
		"--model", wt.modelName,
		"--output_dir", outDir,
		"--output_format", "json",
		"--fp16", "False", // CPU compatibility
	}
	if wt.language != "" {
		args = append(args, "--language", wt.language)
	}

	output, err := exec.CommandContext(ctx, "python", args...).CombinedOutput()
	if err != nil {
		return "", fmt.Errorf("whisper transcription failed: %v\nOutput: %s", err, string(output))
	}

	baseName := strings.TrimSuffix(filepath.Base(audioPath), filepath.Ext(audioPath))
	jsonData, err := os.ReadFile(filepath.Join(outDir, baseName+".json"))
	if err != nil {
		return "", fmt.Errorf("failed to read whisper output: %v", err)
	}

	text, err := parseWhisperOutput(jsonData)
	if err != nil {
		return "", err
	}
	log.Printf("Transcription completed for %s: %d characters", filepath.Base(audioPath), len(text))
	return text, nil
}

// WhisperOutput matches Python Whisper's JSON output format
type WhisperOutput struct {
	Text     string           `json:"text"`
	Language string           `json:"language"`
	Segments []WhisperSegment `json:"segments"`
}

// WhisperSegment represents a timestamped segment from Whisper
type WhisperSegment struct {
	ID    int     `json:"id"`
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Text  string  `json:"text"`
}

func parseWhisperOutput(data []byte) (string, error) {
	var out WhisperOutput
	if err := json.Unmarshal(data, &out); err != nil {
		return "", fmt.Errorf("failed to parse whisper JSON: %v", err)
	}
	if text := strings.TrimSpace(out.Text); text != "" {
		return text, nil
	}
	parts := make([]string, 0, len(out.Segments))
	for _, seg := range out.Segments {
		if t := strings.TrimSpace(seg.Text); t != "" {
			parts = append(parts, t)
		}
	}
	return strings.Join(parts, " "), nil
}
