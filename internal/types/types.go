package types

import "time"

// Job and project status constants
const (
	StatusPending    = "pending"
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
	StatusError      = "error"
)

// Source type constants
const (
	SourceURL    = "url"
	SourceUpload = "upload"
	SourceLocal  = "local"
	SourceGDrive = "gdrive"
	SourceStream = "stream"
)

// IsActiveStatus reports whether a job in this status still owns its project.
func IsActiveStatus(status string) bool {
	return status == StatusPending || status == StatusProcessing
}

// Project is the unit of work spanning one source asset and its diarization results.
type Project struct {
	ID           string    `json:"id"`
	SourceRef    string    `json:"source_ref"`
	SourceType   string    `json:"source_type"`
	Title        string    `json:"title"`
	Status       string    `json:"status"`
	ErrorMessage string    `json:"error_message,omitempty"`
	Progress     string    `json:"progress,omitempty"`
	SpeakerHint  int       `json:"num_speakers,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Speaker is a cluster of segments attributed to one voice.
// SegmentCount and TotalDuration are derived from live segments on every read.
type Speaker struct {
	ID            string  `json:"id"`
	ProjectID     string  `json:"project_id"`
	OriginalLabel string  `json:"original_label"`
	DisplayName   string  `json:"display_name"`
	Folder        string  `json:"folder"`
	SegmentCount  int     `json:"segment_count"`
	TotalDuration float64 `json:"total_duration"`
}

// Segment is one time-bounded audio interval attributed to a speaker.
type Segment struct {
	ID                 string  `json:"id"`
	ProjectID          string  `json:"project_id"`
	SpeakerID          string  `json:"speaker_id"`
	OriginalSpeakerID  string  `json:"original_speaker_id"`
	AudioFilename      string  `json:"audio_filename"`
	AudioPath          string  `json:"audio_path"`
	StartTime          float64 `json:"start_time"`
	EndTime            float64 `json:"end_time"`
	Duration           float64 `json:"duration"`
	StartTimeFormatted string  `json:"start_time_formatted"`
	Transcription      string  `json:"transcription"`
	OrderIndex         int     `json:"order_index"`
}

// TrashSegment is a soft-deleted segment. DeletedFromSpeakerID may point at a
// speaker that has since been merged away; restore validates it.
type TrashSegment struct {
	Segment
	DeletedFromSpeakerID   string    `json:"deleted_from_speaker_id"`
	DeletedFromSpeakerName string    `json:"deleted_from_speaker_name"`
	DeletedAt              time.Time `json:"deleted_at"`
}

// SpeakerWithSegments is a speaker aggregate with its live segments in order_index order.
type SpeakerWithSegments struct {
	Speaker
	Segments []Segment `json:"segments"`
}

// Job tracks one asynchronous diarization run for a project.
type Job struct {
	ID           string    `json:"job_id"`
	ProjectID    string    `json:"project_id"`
	Status       string    `json:"status"`
	Progress     string    `json:"progress"`
	ErrorMessage string    `json:"error_message,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Source describes where the audio for a new project comes from.
type Source struct {
	Type  string
	Ref   string // URL, Drive link, or filesystem path
	Title string
}

// RawSegment is one speaker-labelled interval produced by the diarization collaborator.
// Exactly one of AudioPath or Audio carries the clip.
type RawSegment struct {
	SpeakerLabel string
	Start        float64
	End          float64
	AudioPath    string
	Audio        []byte
}

// RawDiarizationResult is the ordered output consumed once at job completion.
type RawDiarizationResult struct {
	Segments []RawSegment
}
