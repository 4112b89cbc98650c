package analysis

import (
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/discord-insight-lab/internal/logging"
)

const (
	// messageLimit is the platform's single-message size in text units.
	messageLimit = 2000
	// chunkLimit stays strictly below messageLimit to leave margin for
	// headers and decorations.
	chunkLimit = 1900
	// contextWindow bounds the rolling context carried between cycles.
	contextWindow = 2000

	reportHeader      = "📊 **Discussion Analysis Report**"
	finalReportHeader = "📊 **Final Discussion Analysis Report**"

	rateLimitAdvisory   = "⚠️ Analysis request quota reached. The next scheduled cycle will retry."
	emptyReportFallback = "The analysis service returned an empty report."
)

// chunkMessage splits s into successive chunks of at most limit runes,
// preserving byte order. Splitting on rune boundaries keeps multi-byte
// characters intact; word boundaries are not respected.
func chunkMessage(s string, limit int) []string {
	if s == "" || limit <= 0 {
		return nil
	}
	runes := []rune(s)
	chunks := make([]string, 0, (len(runes)+limit-1)/limit)
	for start := 0; start < len(runes); start += limit {
		end := start + limit
		if end > len(runes) {
			end = len(runes)
		}
		chunks = append(chunks, string(runes[start:end]))
	}
	return chunks
}

// trailingWindow returns the last n runes of s.
func trailingWindow(s string, n int) string {
	if n <= 0 {
		return ""
	}
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	runes := []rune(s)
	return string(runes[len(runes)-n:])
}

// publishReport posts a starter message to the channel, opens a thread under
// it, and streams the report body into the thread. When header and body fit
// in a single message they are sent together; otherwise the header goes
// alone and the body follows in chunks.
func publishReport(pub Publisher, channelID, report string, final bool, now time.Time) error {
	ts := now.Format("2006-01-02 15:04")
	header := reportHeader
	starter := fmt.Sprintf("📅 **Automated analysis** (%s)", ts)
	title := fmt.Sprintf("Discussion analysis %s", ts)
	if final {
		header = finalReportHeader
		starter = fmt.Sprintf("📅 **Final analysis** (%s)", ts)
		title = fmt.Sprintf("Final discussion analysis %s", ts)
	}

	messageID, err := pub.PostMessage(channelID, starter)
	if err != nil {
		return fmt.Errorf("post starter message: %w", err)
	}

	threadID, err := pub.CreateThread(channelID, messageID, title)
	if err != nil {
		return fmt.Errorf("create report thread: %w", err)
	}

	combined := header + "\n" + report
	if utf8.RuneCountInString(combined) <= messageLimit {
		if err := pub.SendToThread(threadID, combined); err != nil {
			return fmt.Errorf("send report: %w", err)
		}
		return nil
	}

	if err := pub.SendToThread(threadID, header); err != nil {
		return fmt.Errorf("send report header: %w", err)
	}
	for i, chunk := range chunkMessage(report, chunkLimit) {
		if err := pub.SendToThread(threadID, chunk); err != nil {
			return fmt.Errorf("send report chunk %d: %w", i, err)
		}
	}
	return nil
}

// postNotice sends a plain channel message outside any thread; used for
// advisory and failure text. Best effort.
func postNotice(pub Publisher, channelID, text string) {
	if _, err := pub.PostMessage(channelID, text); err != nil {
		logging.Warnw("pipeline: failed to post notice", "channel.id", channelID, "err", err)
	}
}
