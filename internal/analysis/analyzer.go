package analysis

import (
	"context"
	"errors"
)

// ErrRateLimited marks a quota rejection from the analysis service. The
// pipeline makes a single attempt per cycle; the next scheduled tick is the
// natural retry.
var ErrRateLimited = errors.New("analysis rate limited")

// FileRef identifies an audio file uploaded to the analysis service.
type FileRef struct {
	Name     string
	URI      string
	MIMEType string
}

// LabeledFile pairs an uploaded file with the display name announced to the
// analysis model.
type LabeledFile struct {
	Label string
	Ref   *FileRef
}

// Analyzer is the remote analysis service client. Upload and Analyze may
// block on the network; callers bound them with a context deadline.
// Non-quota failures are returned as plain errors and classified as
// transient by the pipeline.
type Analyzer interface {
	Upload(ctx context.Context, path, mimeType string) (*FileRef, error)
	Analyze(ctx context.Context, files []LabeledFile, mode, trailingContext string) (string, error)
	Delete(ctx context.Context, ref *FileRef) error
}

// Publisher is the report publication surface: a text channel message, a
// thread anchored to it, and thread messages.
type Publisher interface {
	PostMessage(channelID, content string) (messageID string, err error)
	CreateThread(channelID, messageID, title string) (threadID string, err error)
	SendToThread(threadID, content string) error
}
