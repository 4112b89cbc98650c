package analysis

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/discord-insight-lab/internal/logging"
	"github.com/discord-insight-lab/internal/session"
)

// Audio arrives from the capture layer as 48kHz stereo 16-bit PCM.
const (
	sampleRate    = 48000
	channels      = 2
	bitsPerSample = 16
)

// Config tunes the pipeline. Zero values get sensible defaults.
type Config struct {
	// TempDir is where per-speaker WAVs live between flush and cleanup.
	TempDir string
	// AnalyzeTimeout bounds one cycle's upload and analyze calls so a stuck
	// session cannot starve the process.
	AnalyzeTimeout time.Duration
	// UploadParallelism caps concurrent file uploads.
	UploadParallelism int
}

// Pipeline drives the upload → analyze → report cycle over a session's
// flushed audio. It is stateless across cycles; per-session state lives on
// the GuildSession. A Pipeline is shared by all sessions.
type Pipeline struct {
	analyzer       Analyzer
	publisher      Publisher
	tempDir        string
	analyzeTimeout time.Duration
	uploadLimit    int
}

func NewPipeline(analyzer Analyzer, publisher Publisher, cfg Config) *Pipeline {
	tempDir := cfg.TempDir
	if tempDir == "" {
		tempDir = filepath.Join(os.TempDir(), "insight-audio")
	}
	timeout := cfg.AnalyzeTimeout
	if timeout <= 0 {
		timeout = 3 * time.Minute
	}
	limit := cfg.UploadParallelism
	if limit <= 0 {
		limit = 4
	}
	return &Pipeline{
		analyzer:       analyzer,
		publisher:      publisher,
		tempDir:        tempDir,
		analyzeTimeout: timeout,
		uploadLimit:    limit,
	}
}

type speakerFile struct {
	speakerID uint32
	path      string
}

// Run executes one analysis cycle. Every failure path returns a typed
// Outcome; nothing unwinds past this boundary.
func (p *Pipeline) Run(ctx context.Context, sess *session.GuildSession, mode string, final bool) (outcome session.Outcome, err error) {
	cid := uuid.NewString()
	defer func() {
		if r := recover(); r != nil {
			logging.Errorw("pipeline: recovered from panic", "guild.id", sess.GuildID(), "correlation_id", cid, "panic", r)
			outcome = session.OutcomeTransient
			err = fmt.Errorf("analysis pipeline panic: %v", r)
		}
	}()

	snapshot, err := sess.Recorder().Flush()
	if err != nil {
		if errors.Is(err, session.ErrNoAudio) {
			return session.OutcomeNoAudio, nil
		}
		return session.OutcomeTransient, err
	}

	logging.Infow("pipeline: cycle started", "guild.id", sess.GuildID(), "correlation_id", cid, "speakers", len(snapshot), "final", final)

	files := p.writeSnapshot(sess, snapshot, cid)
	defer p.removeLocal(files, cid)
	if len(files) == 0 {
		return session.OutcomeNoAudio, nil
	}

	callCtx, cancel := context.WithTimeout(ctx, p.analyzeTimeout)
	defer cancel()

	uploaded, sawRateLimit := p.uploadAll(callCtx, files, sess.SpeakerNames(), cid)
	defer p.removeRemote(uploaded, cid)
	if len(uploaded) == 0 {
		if sawRateLimit {
			postNotice(p.publisher, sess.ChannelID(), rateLimitAdvisory)
			return session.OutcomeRateLimited, nil
		}
		return session.OutcomeNoAudio, nil
	}

	report, err := p.analyzer.Analyze(callCtx, uploaded, mode, sess.Context())
	if err != nil {
		if errors.Is(err, ErrRateLimited) {
			logging.Warnw("pipeline: analysis rate limited", "guild.id", sess.GuildID(), "correlation_id", cid)
			postNotice(p.publisher, sess.ChannelID(), rateLimitAdvisory)
			return session.OutcomeRateLimited, nil
		}
		postNotice(p.publisher, sess.ChannelID(), fmt.Sprintf("⚠️ Analysis failed: %v", err))
		return session.OutcomeTransient, fmt.Errorf("analyze: %w", err)
	}

	if strings.TrimSpace(report) == "" {
		report = emptyReportFallback
	}

	// Replace, never append: the rolling context stays bounded no matter
	// how many cycles run.
	sess.SetContext(trailingWindow(report, contextWindow))

	if err := publishReport(p.publisher, sess.ChannelID(), report, final, time.Now()); err != nil {
		logging.Warnw("pipeline: report publication failed", "guild.id", sess.GuildID(), "correlation_id", cid, "err", err)
		return session.OutcomeTransient, err
	}

	logging.Infow("pipeline: cycle complete", "guild.id", sess.GuildID(), "correlation_id", cid, "report_len", len(report))
	return session.OutcomeSuccess, nil
}

// writeSnapshot persists each speaker's fragment sequence as a WAV in the
// temp dir. Filenames combine the session start time, speaker id and flush
// time so concurrent sessions and repeated flushes never collide. A failed
// write skips that speaker; the batch continues.
func (p *Pipeline) writeSnapshot(sess *session.GuildSession, snapshot map[uint32][][]byte, cid string) []speakerFile {
	flushedAt := time.Now()
	startedAt := sess.Recorder().StartedAt()

	files := make([]speakerFile, 0, len(snapshot))
	for speakerID, fragments := range snapshot {
		total := 0
		for _, f := range fragments {
			total += len(f)
		}
		pcm := make([]byte, 0, total)
		for _, f := range fragments {
			pcm = append(pcm, f...)
		}

		name := fmt.Sprintf("%d_%d_%d.wav", startedAt.Unix(), speakerID, flushedAt.UnixNano())
		path := filepath.Join(p.tempDir, name)
		if err := saveFileAtomic(path, encodeWAV(pcm, sampleRate, channels, bitsPerSample), 0o644); err != nil {
			logging.Warnw("pipeline: failed to write speaker audio, skipping", "speaker.id", speakerID, "path", path, "correlation_id", cid, "err", err)
			continue
		}
		files = append(files, speakerFile{speakerID: speakerID, path: path})
	}
	return files
}

// uploadAll submits every speaker file to the analysis service with bounded
// parallelism. Per-file failures are logged and excluded from the batch; the
// returned flag reports whether any failure was a quota signal.
func (p *Pipeline) uploadAll(ctx context.Context, files []speakerFile, names map[uint32]string, cid string) ([]LabeledFile, bool) {
	var (
		mu          sync.Mutex
		uploaded    []LabeledFile
		rateLimited bool
	)

	g := new(errgroup.Group)
	g.SetLimit(p.uploadLimit)
	for _, f := range files {
		g.Go(func() error {
			ref, err := p.analyzer.Upload(ctx, f.path, "audio/wav")
			if err != nil {
				logging.Warnw("pipeline: upload failed, excluding speaker", "speaker.id", f.speakerID, "correlation_id", cid, "err", err)
				if errors.Is(err, ErrRateLimited) {
					mu.Lock()
					rateLimited = true
					mu.Unlock()
				}
				return nil
			}

			label, ok := names[f.speakerID]
			if !ok || label == "" {
				label = fmt.Sprintf("User_%d", f.speakerID)
			}
			mu.Lock()
			uploaded = append(uploaded, LabeledFile{Label: label, Ref: ref})
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	// Stable label order keeps prompts deterministic across cycles.
	sort.Slice(uploaded, func(i, j int) bool { return uploaded[i].Label < uploaded[j].Label })
	return uploaded, rateLimited
}

// removeLocal deletes the transient per-speaker files. Best effort; failures
// are logged, never propagated.
func (p *Pipeline) removeLocal(files []speakerFile, cid string) {
	for _, f := range files {
		if err := os.Remove(f.path); err != nil && !os.IsNotExist(err) {
			logging.Warnw("pipeline: failed to remove temp audio", "path", f.path, "correlation_id", cid, "err", err)
		}
	}
}

// removeRemote releases uploaded file refs on the analysis service. Uses a
// fresh short deadline so cleanup still runs when the cycle's context is
// already spent.
func (p *Pipeline) removeRemote(files []LabeledFile, cid string) {
	if len(files) == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	for _, f := range files {
		if err := p.analyzer.Delete(ctx, f.Ref); err != nil {
			logging.Debugw("pipeline: failed to delete remote file", "file", f.Ref.Name, "correlation_id", cid, "err", err)
		}
	}
}
