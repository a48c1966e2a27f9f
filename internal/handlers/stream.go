package handlers

import (
	"bytes"
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/gofiber/websocket/v2"
	"github.com/google/uuid"

	"github.com/codebuildervaibhav/diarization-studio/internal/queue"
	"github.com/codebuildervaibhav/diarization-studio/internal/types"
)

// StreamHandler receives audio over a WebSocket, starts a job for it and
// pushes status frames until the job ends.
//
// Protocol: binary frames carry audio, a text frame sets the recording name,
// and the text frame "END" closes the upload. num_speakers may be passed as a
// query parameter.
type StreamHandler struct {
	workerPool   *queue.WorkerPool
	tempDir      string
	maxBytes     int
	pollInterval time.Duration
}

// NewStreamHandler creates a new stream handler
func NewStreamHandler(workerPool *queue.WorkerPool, tempDir string, maxSizeMB int, pollInterval time.Duration) *StreamHandler {
	if pollInterval <= 0 {
		pollInterval = 2 * time.Second
	}
	return &StreamHandler{
		workerPool:   workerPool,
		tempDir:      tempDir,
		maxBytes:     maxSizeMB * 1024 * 1024,
		pollInterval: pollInterval,
	}
}

type streamFrame struct {
	Type  string        `json:"type"`
	Job   *queue.Handle `json:"job,omitempty"`
	State *queue.Status `json:"status,omitempty"`
	Error string        `json:"error,omitempty"`
}

// Handle processes WebSocket connections
func (h *StreamHandler) Handle(c *websocket.Conn) {
	defer c.Close()

	var (
		buffer      bytes.Buffer
		requestName string
		streamID    = uuid.New().String()
	)

	numSpeakers, err := strconv.Atoi(c.Query("num_speakers", "0"))
	if err != nil || numSpeakers < 0 {
		h.sendError(c, "num_speakers must be a non-negative integer")
		return
	}

	log.Printf("WebSocket connection established: %s", streamID)

	for {
		messageType, message, err := c.ReadMessage()
		if err != nil {
			log.Printf("WebSocket read error: %v", err)
			return
		}

		// Handle text messages (control)
		if messageType == websocket.TextMessage {
			msgStr := string(message)

			if msgStr == "END" {
				log.Printf("Received END signal, processing stream %s...", streamID)
				break
			}

			if len(msgStr) > 0 && len(msgStr) < 200 {
				requestName = msgStr
				log.Printf("Stream name set to: %s", requestName)
			}
			continue
		}

		// Handle binary messages (audio data)
		if messageType == websocket.BinaryMessage {
			if buffer.Len()+len(message) > h.maxBytes {
				h.sendError(c, fmt.Sprintf("stream too large (max %dMB)", h.maxBytes/(1024*1024)))
				return
			}
			buffer.Write(message)
		}
	}

	if buffer.Len() == 0 {
		log.Printf("No audio data received in stream %s", streamID)
		h.sendError(c, "no audio received")
		return
	}

	if requestName == "" {
		requestName = "stream_recording"
	}

	tempPath := filepath.Join(h.tempDir, fmt.Sprintf("stream-%s.webm", streamID))
	if err := os.WriteFile(tempPath, buffer.Bytes(), 0644); err != nil {
		log.Printf("Failed to save stream buffer: %v", err)
		h.sendError(c, "failed to save stream")
		return
	}
	log.Printf("Stream saved to %s (%d bytes)", tempPath, buffer.Len())

	ctx := context.Background()
	handle, err := h.workerPool.StartJob(ctx, queue.Request{
		Source:      types.Source{Type: types.SourceStream, Ref: requestName, Title: requestName},
		LocalPath:   tempPath,
		Temporary:   true,
		SpeakerHint: numSpeakers,
	})
	if err != nil {
		h.sendError(c, err.Error())
		return
	}
	if err := c.WriteJSON(streamFrame{Type: "queued", Job: handle}); err != nil {
		return
	}

	h.pushStatus(ctx, c, handle.JobID)
}

// pushStatus sends the job's status every poll interval until it is terminal
// or the client goes away.
func (h *StreamHandler) pushStatus(ctx context.Context, c *websocket.Conn, jobID string) {
	ticker := time.NewTicker(h.pollInterval)
	defer ticker.Stop()

	for range ticker.C {
		status, err := h.workerPool.GetStatus(ctx, jobID)
		if err != nil {
			h.sendError(c, err.Error())
			return
		}
		if err := c.WriteJSON(streamFrame{Type: "status", State: status}); err != nil {
			log.Printf("Stream %s: client gone: %v", jobID, err)
			return
		}
		if status.Terminal() {
			return
		}
	}
}

func (h *StreamHandler) sendError(c *websocket.Conn, msg string) {
	c.WriteJSON(streamFrame{Type: "error", Error: msg})
}
