package models

import "BrentShift/internal/changepoint"

// Frame types of the progress stream.
const (
	FrameProgress = "progress"
	FrameResult   = "result"
	FrameError    = "error"
)

// StreamFrame is one websocket message of the progress stream. Exactly one
// payload field is set, matching Type.
type StreamFrame struct {
	Type     string                     `json:"type"`
	Progress *changepoint.ProgressEvent `json:"progress,omitempty"`
	Result   *ChangePointRecord         `json:"result,omitempty"`
	Error    *ErrorDetail               `json:"error,omitempty"`
}
