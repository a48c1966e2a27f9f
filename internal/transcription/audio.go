package transcription

import (
	"context"
	"fmt"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

var audioFormats = map[string]bool{
	".wav": true, ".mp3": true, ".m4a": true, ".ogg": true, ".flac": true, ".webm": true,
}

var videoFormats = map[string]bool{
	".mp4": true, ".mov": true,
}

// ValidateMediaFormat checks if the file format is supported
func ValidateMediaFormat(filename string) bool {
	ext := strings.ToLower(filepath.Ext(filename))
	return audioFormats[ext] || videoFormats[ext]
}

// IsVideo reports whether the file needs its audio track extracted first.
func IsVideo(filename string) bool {
	return videoFormats[strings.ToLower(filepath.Ext(filename))]
}

// SupportedFormats lists accepted extensions for error messages.
func SupportedFormats() string {
	return ".wav, .mp3, .mov, .mp4, .m4a, .ogg, .flac, .webm"
}

// FFmpeg runs the ffmpeg binary.
type FFmpeg struct {
	path string
}

// NewFFmpeg creates a wrapper around the given binary ("ffmpeg" if empty).
func NewFFmpeg(path string) *FFmpeg {
	if path == "" {
		path = "ffmpeg"
	}
	return &FFmpeg{path: path}
}

// ConvertForDiarization converts any audio file to 16kHz mono WAV format
func (f *FFmpeg) ConvertForDiarization(ctx context.Context, inputPath, outDir string) (string, error) {
	outputPath := filepath.Join(outDir, fmt.Sprintf("normalized_%s.wav", uuid.New().String()))

	err := f.run(ctx,
		"-i", inputPath,
		"-ar", "16000", // 16kHz sample rate
		"-ac", "1", // Mono
		"-c:a", "pcm_s16le", // 16-bit PCM
		outputPath,
	)
	if err != nil {
		return "", err
	}
	return outputPath, nil
}

// ExtractAudio pulls the audio track of a video into an MP3.
func (f *FFmpeg) ExtractAudio(ctx context.Context, videoPath, outDir string) (string, error) {
	base := strings.TrimSuffix(filepath.Base(videoPath), filepath.Ext(videoPath))
	outputPath := filepath.Join(outDir, base+".mp3")

	err := f.run(ctx,
		"-i", videoPath,
		"-vn",
		"-acodec", "libmp3lame",
		"-q:a", "2",
		outputPath,
	)
	if err != nil {
		return "", err
	}
	return outputPath, nil
}

// CutClip writes the [start, end) interval of inputPath to outputPath as MP3.
func (f *FFmpeg) CutClip(ctx context.Context, inputPath string, start, end float64, outputPath string) error {
	return f.run(ctx, clipArgs(inputPath, start, end, outputPath)...)
}

func clipArgs(inputPath string, start, end float64, outputPath string) []string {
	return []string{
		"-ss", formatSeconds(start),
		"-to", formatSeconds(end),
		"-i", inputPath,
		"-vn",
		"-acodec", "libmp3lame",
		"-q:a", "2",
		outputPath,
	}
}

func formatSeconds(s float64) string {
	return strconv.FormatFloat(s, 'f', 3, 64)
}

func (f *FFmpeg) run(ctx context.Context, args ...string) error {
	full := append([]string{"-y", "-hide_banner", "-loglevel", "error"}, args...)
	cmd := exec.CommandContext(ctx, f.path, full...)

	output, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("ffmpeg failed: %v\nOutput: %s", err, string(output))
	}
	return nil
}
