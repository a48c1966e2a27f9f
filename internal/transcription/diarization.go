package transcription

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strconv"
)

// Turn is one speaker-labelled interval reported by the diarizer.
type Turn struct {
	Speaker string  `json:"speaker"`
	Start   float64 `json:"start"`
	End     float64 `json:"end"`
}

// CommandDiarizer runs an external diarization program (for example a
// pyannote script). The program is invoked as
//
//	<command> <args...> --input <wav> --output <json> [--num-speakers N]
//
// and must write a JSON list of turns, or an object with a "segments" list.
type CommandDiarizer struct {
	command string
	args    []string
	hfToken string
}

// NewCommandDiarizer creates a diarizer for the given program.
func NewCommandDiarizer(command string, args []string, hfToken string) *CommandDiarizer {
	return &CommandDiarizer{command: command, args: args, hfToken: hfToken}
}

// Diarize runs the program on a 16kHz mono WAV and returns turns sorted by start.
func (d *CommandDiarizer) Diarize(ctx context.Context, wavPath, workDir string, numSpeakers int) ([]Turn, error) {
	if d.command == "" {
		return nil, fmt.Errorf("no diarization command configured")
	}

	outPath := filepath.Join(workDir, "diarization.json")
	args := append([]string{}, d.args...)
	args = append(args, "--input", wavPath, "--output", outPath)
	if numSpeakers > 0 {
		args = append(args, "--num-speakers", strconv.Itoa(numSpeakers))
	}

	cmd := exec.CommandContext(ctx, d.command, args...)
	cmd.Env = os.Environ()
	if d.hfToken != "" {
		cmd.Env = append(cmd.Env, "HF_TOKEN="+d.hfToken)
	}

	log.Printf("Running diarizer: %s (speakers hint: %d)", d.command, numSpeakers)
	output, err := cmd.CombinedOutput()
	if err != nil {
		return nil, fmt.Errorf("diarizer failed: %v\nOutput: %s", err, string(output))
	}

	data, err := os.ReadFile(outPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read diarizer output: %v", err)
	}
	return parseTurns(data)
}

func parseTurns(data []byte) ([]Turn, error) {
	var turns []Turn
	if err := json.Unmarshal(data, &turns); err != nil {
		var wrapped struct {
			Segments []Turn `json:"segments"`
		}
		if err2 := json.Unmarshal(data, &wrapped); err2 != nil {
			return nil, fmt.Errorf("failed to parse diarizer JSON: %v", err)
		}
		turns = wrapped.Segments
	}

	for i, t := range turns {
		if t.Speaker == "" {
			return nil, fmt.Errorf("turn %d has no speaker label", i)
		}
	}
	sort.SliceStable(turns, func(i, j int) bool { return turns[i].Start < turns[j].Start })
	return turns, nil
}
