package analysis

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"google.golang.org/genai"
)

const debatePrompt = `You are a professional discussion analyst and fact checker. You are given
multiple audio files, each preceded by the speaker's name. Produce a report
in the following format.

Analysis rules:
1. Attribute each voice to the announced speaker name accurately.
2. Grounding (Google Search) is mandatory: verify any factual claim made in
   the discussion against current information before reporting on it.
3. Point out statements that contradict the speaker's earlier positions.

Output sections:
[Discussion Summary]: (at most 300 words)
[Speaker Positions]: (name: for/against/neutral and their main argument)
[Current Points of Conflict]: (what is blocking agreement)
[Contradictions & Fact Checks]: (internal contradictions and claims that
conflict with current information found via search)`

const summaryPrompt = `You are a professional meeting assistant. You are given multiple audio
files, each preceded by the speaker's name. Produce a concise summary of the
conversation: the topics discussed, decisions reached, and any action items
with their owners. Use Google Search to verify factual claims before
including them.`

// GeminiConfig configures the Gemini-backed analyzer.
type GeminiConfig struct {
	APIKey string
	Model  string
	// PollInterval is how often uploaded files are polled until they reach
	// the ACTIVE state. Defaults to 2s.
	PollInterval time.Duration
}

// GeminiAnalyzer implements Analyzer against the Gemini API: audio goes
// through the File API, the report comes from a single generate call with
// Google Search grounding enabled.
type GeminiAnalyzer struct {
	client       *genai.Client
	model        string
	pollInterval time.Duration
}

func NewGeminiAnalyzer(ctx context.Context, cfg GeminiConfig) (*GeminiAnalyzer, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}

	poll := cfg.PollInterval
	if poll <= 0 {
		poll = 2 * time.Second
	}

	return &GeminiAnalyzer{client: client, model: cfg.Model, pollInterval: poll}, nil
}

// Upload sends the file to the Gemini File API and waits for it to become
// ACTIVE so the subsequent generate call can reference it.
func (g *GeminiAnalyzer) Upload(ctx context.Context, path, mimeType string) (*FileRef, error) {
	f, err := g.client.Files.UploadFromPath(ctx, path, &genai.UploadFileConfig{MIMEType: mimeType})
	if err != nil {
		return nil, classifyGeminiErr(fmt.Errorf("upload %s: %w", path, err))
	}

	f, err = pollUntilActive(ctx, f, g.pollInterval, func(ctx context.Context, name string) (*genai.File, error) {
		return g.client.Files.Get(ctx, name, nil)
	})
	if err != nil {
		return nil, err
	}

	return &FileRef{Name: f.Name, URI: f.URI, MIMEType: f.MIMEType}, nil
}

// pollUntilActive re-fetches the file until it leaves the PROCESSING state.
// The name is captured before each fetch since a failed fetch returns no file.
func pollUntilActive(ctx context.Context, f *genai.File, interval time.Duration, get func(ctx context.Context, name string) (*genai.File, error)) (*genai.File, error) {
	for f.State == genai.FileStateProcessing {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(interval):
		}
		name := f.Name
		next, err := get(ctx, name)
		if err != nil {
			return nil, classifyGeminiErr(fmt.Errorf("poll file %s: %w", name, err))
		}
		f = next
	}
	if f.State == genai.FileStateFailed {
		return nil, fmt.Errorf("file %s failed remote processing", f.Name)
	}
	return f, nil
}

func (g *GeminiAnalyzer) Analyze(ctx context.Context, files []LabeledFile, mode, trailingContext string) (string, error) {
	parts := make([]*genai.Part, 0, 2*len(files)+1)
	if trailingContext != "" {
		parts = append(parts, genai.NewPartFromText(
			"Previous context:\n"+trailingContext+"\n---\nCurrent discussion:"))
	}
	for _, f := range files {
		parts = append(parts, genai.NewPartFromText("Speaker: "+f.Label))
		parts = append(parts, genai.NewPartFromURI(f.Ref.URI, f.Ref.MIMEType))
	}
	contents := []*genai.Content{genai.NewContentFromParts(parts, genai.RoleUser)}

	config := &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(promptForMode(mode), genai.RoleUser),
		Tools:             []*genai.Tool{{GoogleSearch: &genai.GoogleSearch{}}},
	}

	result, err := g.client.Models.GenerateContent(ctx, g.model, contents, config)
	if err != nil {
		return "", classifyGeminiErr(fmt.Errorf("generate content: %w", err))
	}

	return strings.TrimSpace(result.Text()), nil
}

func (g *GeminiAnalyzer) Delete(ctx context.Context, ref *FileRef) error {
	_, err := g.client.Files.Delete(ctx, ref.Name, nil)
	return err
}

func promptForMode(mode string) string {
	if mode == "summary" {
		return summaryPrompt
	}
	return debatePrompt
}

// classifyGeminiErr maps quota signals onto ErrRateLimited and passes every
// other failure through unchanged.
func classifyGeminiErr(err error) error {
	if err == nil {
		return nil
	}
	var apiErr genai.APIError
	if errors.As(err, &apiErr) && apiErr.Code == 429 {
		return fmt.Errorf("%w: %s", ErrRateLimited, apiErr.Message)
	}
	msg := err.Error()
	if strings.Contains(msg, "RESOURCE_EXHAUSTED") || strings.Contains(strings.ToLower(msg), "quota") {
		return fmt.Errorf("%w: %v", ErrRateLimited, err)
	}
	return err
}
