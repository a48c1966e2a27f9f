package handlers

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/codebuildervaibhav/diarization-studio/internal/engine"
	"github.com/codebuildervaibhav/diarization-studio/internal/export"
	"github.com/codebuildervaibhav/diarization-studio/internal/projectlock"
	"github.com/codebuildervaibhav/diarization-studio/internal/queue"
	"github.com/codebuildervaibhav/diarization-studio/internal/storage"
	"github.com/codebuildervaibhav/diarization-studio/internal/types"
)

type stubProducer struct{}

func (stubProducer) Produce(ctx context.Context, req queue.Request, workDir string, progress func(string)) (*types.RawDiarizationResult, error) {
	progress("Diarizing")
	return &types.RawDiarizationResult{Segments: []types.RawSegment{
		{SpeakerLabel: "SPEAKER_00", Start: 0, End: 1.5, Audio: []byte("one")},
		{SpeakerLabel: "SPEAKER_01", Start: 1.5, End: 3, Audio: []byte("two")},
	}}, nil
}

type stubTranscriber struct {
	text string
	err  error
	seen []byte
}

func (s *stubTranscriber) Transcribe(ctx context.Context, audioPath string) (string, error) {
	data, err := os.ReadFile(audioPath)
	if err != nil {
		return "", err
	}
	s.seen = data
	return s.text, s.err
}

type server struct {
	app     *fiber.App
	db      *storage.MetadataDB
	audio   *storage.AudioStore
	locks   *projectlock.Registry
	tempDir string
}

func newServer(t *testing.T, transcriber Transcriber) *server {
	t.Helper()
	dir := t.TempDir()
	db, err := storage.NewMetadataDB(filepath.Join(dir, "test.db"))
	if err != nil {
		t.Fatalf("NewMetadataDB: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	tempDir := filepath.Join(dir, "temp")
	if err := os.MkdirAll(tempDir, 0755); err != nil {
		t.Fatal(err)
	}
	audio := storage.NewAudioStore(filepath.Join(dir, "audio"))
	locks := projectlock.NewRegistry(50 * time.Millisecond)

	pool := queue.NewWorkerPool(1, 10, stubProducer{}, db, audio, locks, tempDir)
	pool.Start()
	t.Cleanup(pool.Stop)

	eng := engine.New(db, audio, locks)
	h := &Handlers{
		Diarization: NewDiarizationHandler(pool, nil, tempDir, 1),
		Projects:    NewProjectHandler(eng),
		Segments:    NewSegmentHandler(eng, transcriber, tempDir),
		Export:      NewExportHandler(export.NewService(db, audio, locks, nil)),
	}
	app := fiber.New()
	h.Register(app)
	return &server{app: app, db: db, audio: audio, locks: locks, tempDir: tempDir}
}

// seed creates project p1 with speakers s1 (segments a1, a2) and s2 (b1).
func (s *server) seed(t *testing.T) {
	t.Helper()
	ctx := context.Background()
	segs := []struct{ id, speaker, folder, file string }{
		{"a1", "s1", "speaker_00", "001_00-00-000.mp3"},
		{"a2", "s1", "speaker_00", "002_00-02-000.mp3"},
		{"b1", "s2", "speaker_01", "001_00-01-000.mp3"},
	}
	err := s.db.WithTx(ctx, func(tx *storage.Tx) error {
		if err := tx.CreateProject(ctx, &types.Project{ID: "p1", SourceRef: "https://example.com/v",
			SourceType: types.SourceURL, Title: "Demo", Status: types.StatusCompleted}); err != nil {
			return err
		}
		for _, sp := range []types.Speaker{
			{ID: "s1", ProjectID: "p1", OriginalLabel: "SPEAKER_00", DisplayName: "SPEAKER_00", Folder: "speaker_00"},
			{ID: "s2", ProjectID: "p1", OriginalLabel: "SPEAKER_01", DisplayName: "SPEAKER_01", Folder: "speaker_01"},
		} {
			sp := sp
			if err := tx.CreateSpeaker(ctx, &sp); err != nil {
				return err
			}
		}
		for i, sg := range segs {
			idx, err := tx.NextOrderIndex(ctx, sg.speaker)
			if err != nil {
				return err
			}
			rel := storage.SpeakerPath("p1", sg.folder, sg.file)
			if err := s.audio.WriteFile(rel, []byte("audio:"+sg.id)); err != nil {
				return err
			}
			start := float64(i)
			if err := tx.CreateSegment(ctx, &types.Segment{ID: sg.id, ProjectID: "p1", SpeakerID: sg.speaker,
				OriginalSpeakerID: sg.speaker, AudioFilename: sg.file, AudioPath: rel,
				StartTime: start, EndTime: start + 1, Duration: 1,
				StartTimeFormatted: types.FormatTimestamp(start), OrderIndex: idx}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}
}

func (s *server) do(t *testing.T, method, path string, body any) (*http.Response, []byte) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatal(err)
		}
		reader = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return s.send(t, req)
}

func (s *server) send(t *testing.T, req *http.Request) (*http.Response, []byte) {
	t.Helper()
	resp, err := s.app.Test(req, 5000)
	if err != nil {
		t.Fatalf("%s %s: %v", req.Method, req.URL.Path, err)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatal(err)
	}
	return resp, data
}

func expectError(t *testing.T, resp *http.Response, body []byte, status int, code string) {
	t.Helper()
	if resp.StatusCode != status {
		t.Fatalf("status = %d, want %d (body %s)", resp.StatusCode, status, body)
	}
	var e struct {
		Error string `json:"error"`
		Code  string `json:"code"`
	}
	if err := json.Unmarshal(body, &e); err != nil {
		t.Fatalf("decode error body %s: %v", body, err)
	}
	if e.Code != code || e.Error == "" {
		t.Fatalf("error body = %+v, want code %s", e, code)
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		err    error
		status int
		code   string
	}{
		{fmt.Errorf("x: %w", types.ErrInvalidOperation), 400, CodeInvalidOperation},
		{fmt.Errorf("x: %w", types.ErrNotFound), 404, CodeNotFound},
		{fmt.Errorf("%w: %w", types.ErrInvalidOperation, types.ErrNotFound), 400, CodeInvalidOperation},
		{types.ErrConcurrencyConflict, 409, CodeConflict},
		{&types.BatchError{Failed: []string{"a"}, Err: types.ErrStorage}, 500, CodeStorage},
		{&types.JobError{Stage: "transcription", Message: "boom"}, 500, CodeJobFailed},
		{errors.New("boom"), 500, CodeInternal},
	}
	for _, tt := range tests {
		status, code := classify(tt.err)
		if status != tt.status || code != tt.code {
			t.Errorf("classify(%v) = %d %s, want %d %s", tt.err, status, code, tt.status, tt.code)
		}
	}
}

func TestSpeakerAndSegmentRoutes(t *testing.T) {
	s := newServer(t, nil)
	s.seed(t)

	resp, body := s.do(t, "GET", "/api/projects/p1/speakers", nil)
	if resp.StatusCode != 200 {
		t.Fatalf("speakers status = %d: %s", resp.StatusCode, body)
	}
	var speakers []types.SpeakerWithSegments
	if err := json.Unmarshal(body, &speakers); err != nil {
		t.Fatal(err)
	}
	if len(speakers) != 2 || len(speakers[0].Segments) != 2 {
		t.Fatalf("speakers = %+v", speakers)
	}

	resp, body = s.do(t, "PUT", "/api/projects/p1/speakers/s1", fiber.Map{"display_name": "  "})
	expectError(t, resp, body, 400, CodeInvalidOperation)

	resp, body = s.do(t, "PUT", "/api/projects/p1/speakers/s1", fiber.Map{"display_name": "Host"})
	if resp.StatusCode != 200 || !strings.Contains(string(body), `"display_name":"Host"`) {
		t.Fatalf("rename = %d %s", resp.StatusCode, body)
	}

	resp, body = s.do(t, "PUT", "/api/projects/p1/segments/a1/reassign", fiber.Map{"new_speaker_id": "ghost"})
	expectError(t, resp, body, 404, CodeNotFound)
	resp, body = s.do(t, "PUT", "/api/projects/p1/segments/a1/reassign", fiber.Map{"new_speaker_id": "s1"})
	expectError(t, resp, body, 400, CodeInvalidOperation)
	resp, body = s.do(t, "PUT", "/api/projects/p1/segments/a1/reassign", fiber.Map{"new_speaker_id": "s2"})
	if resp.StatusCode != 200 {
		t.Fatalf("reassign = %d %s", resp.StatusCode, body)
	}

	resp, body = s.do(t, "PUT", "/api/projects/p1/segments/a2", fiber.Map{"transcription": "hello"})
	if resp.StatusCode != 200 || !strings.Contains(string(body), `"transcription":"hello"`) {
		t.Fatalf("update transcription = %d %s", resp.StatusCode, body)
	}

	resp, body = s.do(t, "DELETE", "/api/projects/p1/segments/a2", nil)
	if resp.StatusCode != 200 {
		t.Fatalf("delete = %d %s", resp.StatusCode, body)
	}
	resp, body = s.do(t, "DELETE", "/api/projects/p1/segments/a2", nil)
	expectError(t, resp, body, 404, CodeNotFound)

	resp, body = s.do(t, "GET", "/api/projects/p1/trash", nil)
	if resp.StatusCode != 200 || !strings.Contains(string(body), `"deleted_from_speaker_name":"Host"`) {
		t.Fatalf("trash = %d %s", resp.StatusCode, body)
	}

	resp, body = s.do(t, "GET", "/api/audio/p1/s1/002_00-02-000.mp3", nil)
	if resp.StatusCode != 200 || string(body) != "audio:a2" {
		t.Fatalf("trashed audio = %d %q", resp.StatusCode, body)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "audio/mpeg" {
		t.Fatalf("content type = %q", ct)
	}

	resp, body = s.do(t, "POST", "/api/projects/p1/segments/a2/restore", nil)
	if resp.StatusCode != 200 {
		t.Fatalf("restore = %d %s", resp.StatusCode, body)
	}

	resp, body = s.do(t, "POST", "/api/projects/p1/speakers/merge",
		fiber.Map{"source_speaker_id": "s1", "target_speaker_id": "s1"})
	expectError(t, resp, body, 400, CodeInvalidOperation)
	resp, body = s.do(t, "POST", "/api/projects/p1/speakers/merge",
		fiber.Map{"source_speaker_id": "s1", "target_speaker_id": "s2"})
	if resp.StatusCode != 200 {
		t.Fatalf("merge = %d %s", resp.StatusCode, body)
	}
	var merged types.SpeakerWithSegments
	if err := json.Unmarshal(body, &merged); err != nil {
		t.Fatal(err)
	}
	if merged.ID != "s2" || len(merged.Segments) != 3 {
		t.Fatalf("merged = %+v", merged)
	}

	resp, body = s.do(t, "DELETE", "/api/projects/p1/speakers/s2/segments", nil)
	if resp.StatusCode != 200 || !strings.Contains(string(body), `"segment_count":0`) {
		t.Fatalf("delete all = %d %s", resp.StatusCode, body)
	}
}

func TestLockedProjectReturnsConflict(t *testing.T) {
	s := newServer(t, nil)
	s.seed(t)

	release, err := s.locks.Exclusive(context.Background(), "p1")
	if err != nil {
		t.Fatal(err)
	}
	defer release()

	resp, body := s.do(t, "DELETE", "/api/projects/p1/segments/a1", nil)
	expectError(t, resp, body, 409, CodeConflict)
	resp, body = s.do(t, "GET", "/api/export/p1/transcript", nil)
	expectError(t, resp, body, 409, CodeConflict)
}

func TestExportRoutes(t *testing.T) {
	s := newServer(t, nil)
	s.seed(t)

	resp, body := s.do(t, "GET", "/api/export/p1/transcript", nil)
	if resp.StatusCode != 200 || !strings.HasPrefix(string(body), "# Demo\n") {
		t.Fatalf("transcript = %d %q", resp.StatusCode, body)
	}

	resp, body = s.do(t, "GET", "/api/export/p1/audio?speaker_ids=s2", nil)
	if resp.StatusCode != 200 {
		t.Fatalf("audio = %d %s", resp.StatusCode, body)
	}
	zr, err := zip.NewReader(bytes.NewReader(body), int64(len(body)))
	if err != nil {
		t.Fatalf("zip: %v", err)
	}
	if len(zr.File) != 1 || zr.File[0].Name != "SPEAKER_01/001_00-01-000.mp3" {
		t.Fatalf("archive has %d files", len(zr.File))
	}

	_, all := s.do(t, "GET", "/api/export/p1/audio", nil)
	_, every := s.do(t, "GET", "/api/export/p1/audio?speaker_ids=s1,s2", nil)
	if !bytes.Equal(all, every) {
		t.Fatal("selecting every speaker differs from no filter")
	}

	resp, body = s.do(t, "GET", "/api/export/p1/audio?speaker_ids=s1,ghost", nil)
	expectError(t, resp, body, 404, CodeNotFound)

	resp, body = s.do(t, "POST", "/api/export/p1/gdrive", nil)
	expectError(t, resp, body, 400, CodeInvalidOperation)

	resp, body = s.do(t, "GET", "/api/export/missing/json", nil)
	expectError(t, resp, body, 404, CodeNotFound)
}

func TestTranscribeSegment(t *testing.T) {
	disabled := newServer(t, nil)
	disabled.seed(t)
	resp, body := disabled.do(t, "POST", "/api/projects/p1/segments/a1/transcribe", nil)
	expectError(t, resp, body, 400, CodeInvalidOperation)

	tr := &stubTranscriber{text: " good morning \n"}
	s := newServer(t, tr)
	s.seed(t)
	resp, body = s.do(t, "POST", "/api/projects/p1/segments/a1/transcribe", nil)
	if resp.StatusCode != 200 || !strings.Contains(string(body), `"transcription":"good morning"`) {
		t.Fatalf("transcribe = %d %s", resp.StatusCode, body)
	}
	if string(tr.seen) != "audio:a1" {
		t.Fatalf("transcriber saw %q", tr.seen)
	}
	entries, _ := os.ReadDir(s.tempDir)
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), "transcribe-") {
			t.Fatalf("temp clip %s left behind", e.Name())
		}
	}

	tr.err = errors.New("model crashed")
	resp, body = s.do(t, "POST", "/api/projects/p1/segments/a2/transcribe", nil)
	expectError(t, resp, body, 500, CodeJobFailed)
}

func waitJob(t *testing.T, s *server, jobID string) queue.Status {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		resp, body := s.do(t, "GET", "/api/diarization/"+jobID+"/status", nil)
		if resp.StatusCode != 200 {
			t.Fatalf("status = %d %s", resp.StatusCode, body)
		}
		var st queue.Status
		if err := json.Unmarshal(body, &st); err != nil {
			t.Fatal(err)
		}
		if st.Terminal() {
			return st
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("job %s did not finish", jobID)
	return queue.Status{}
}

func TestStartJobRoutes(t *testing.T) {
	s := newServer(t, nil)

	resp, body := s.do(t, "POST", "/api/diarization/start", fiber.Map{"source_url": "ftp://nope"})
	expectError(t, resp, body, 400, CodeInvalidOperation)
	resp, body = s.do(t, "POST", "/api/diarization/gdrive", fiber.Map{"url": "https://example.com/x"})
	expectError(t, resp, body, 400, CodeInvalidOperation)
	resp, body = s.do(t, "POST", "/api/diarization/local", fiber.Map{"file_path": filepath.Join(s.tempDir, "missing.wav")})
	expectError(t, resp, body, 404, CodeNotFound)

	resp, body = s.do(t, "POST", "/api/diarization/start",
		fiber.Map{"source_url": "https://example.com/talk", "num_speakers": 2})
	if resp.StatusCode != fiber.StatusAccepted {
		t.Fatalf("start = %d %s", resp.StatusCode, body)
	}
	var handle queue.Handle
	if err := json.Unmarshal(body, &handle); err != nil {
		t.Fatal(err)
	}

	st := waitJob(t, s, handle.JobID)
	if st.Status != types.StatusCompleted || st.ProjectID != handle.ProjectID {
		t.Fatalf("final status = %+v", st)
	}

	resp, body = s.do(t, "GET", "/api/projects/"+handle.ProjectID, nil)
	if resp.StatusCode != 200 || !strings.Contains(string(body), `"title":"https://example.com/talk"`) {
		t.Fatalf("project = %d %s", resp.StatusCode, body)
	}

	resp, body = s.do(t, "GET", "/api/diarization/nope/status", nil)
	expectError(t, resp, body, 404, CodeNotFound)

	resp, body = s.do(t, "POST", "/api/diarization/"+handle.ProjectID+"/retry", nil)
	if resp.StatusCode != fiber.StatusAccepted {
		t.Fatalf("retry = %d %s", resp.StatusCode, body)
	}
}

func multipartUpload(t *testing.T, filename string, data []byte) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	part, err := w.CreateFormFile("file", filename)
	if err != nil {
		t.Fatal(err)
	}
	part.Write(data)
	w.WriteField("num_speakers", "2")
	w.Close()

	req := httptest.NewRequest("POST", "/api/diarization/upload", &buf)
	req.Header.Set("Content-Type", w.FormDataContentType())
	return req
}

func TestUploadRoute(t *testing.T) {
	s := newServer(t, nil)

	resp, body := s.send(t, multipartUpload(t, "notes.txt", []byte("text")))
	expectError(t, resp, body, 400, CodeInvalidOperation)

	resp, body = s.send(t, multipartUpload(t, "meeting.wav", []byte("RIFF")))
	if resp.StatusCode != fiber.StatusAccepted {
		t.Fatalf("upload = %d %s", resp.StatusCode, body)
	}
	var handle queue.Handle
	if err := json.Unmarshal(body, &handle); err != nil {
		t.Fatal(err)
	}
	if st := waitJob(t, s, handle.JobID); st.Status != types.StatusCompleted {
		t.Fatalf("upload job = %+v", st)
	}

	resp, body = s.do(t, "GET", "/api/projects/"+handle.ProjectID, nil)
	if !strings.Contains(string(body), `"title":"meeting"`) || !strings.Contains(string(body), `"source_type":"upload"`) {
		t.Fatalf("project = %d %s", resp.StatusCode, body)
	}

	// The input is released just after the job reports completion.
	deadline := time.Now().Add(2 * time.Second)
	for {
		left := 0
		entries, _ := os.ReadDir(s.tempDir)
		for _, e := range entries {
			if strings.HasPrefix(e.Name(), "upload-") {
				left++
			}
		}
		if left == 0 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("%d upload(s) not released", left)
		}
		time.Sleep(10 * time.Millisecond)
	}

	resp, body = s.do(t, "POST", "/api/diarization/"+handle.ProjectID+"/retry", nil)
	expectError(t, resp, body, 400, CodeInvalidOperation)
}
