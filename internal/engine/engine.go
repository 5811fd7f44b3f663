// Package engine decides whether a post merits a reply and drafts the reply
// text. All substantive judgment is delegated to an LLM provider; the
// engine's own job is prompt assembly, strict-JSON parsing, and failing
// safe: a provider fault always resolves to "do not reply", never to an
// error that could stall the polling cycle.
package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"regexp"
	"strings"

	"github.com/jshapland/replybot/internal/engine/providers"
	"github.com/jshapland/replybot/internal/store"
	"github.com/jshapland/replybot/internal/types"
)

// ReplyLimit is the hard ceiling on reply length in characters.
const ReplyLimit = 280

// Provider defines the interface for LLM providers
type Provider interface {
	Name() string
	Model() string
	Complete(ctx context.Context, instruction, payload string) (string, error)
}

// ExchangeRecorder receives every prompt/response pair for the archive.
type ExchangeRecorder interface {
	RecordExchange(e store.LLMExchange) error
}

// Config selects the provider and prompts for one engine instance.
type Config struct {
	Provider             string // "anthropic" or "gemini"
	APIKey               string
	Model                string
	ClassifierModel      string
	ReplyPrompt          string
	ClassificationPrompt string
	ClassifyFirst        bool
}

// Engine classifies posts and drafts replies
type Engine struct {
	drafter    Provider
	classifier Provider
	cfg        Config
	recorder   ExchangeRecorder
}

// New creates an engine with the appropriate provider based on config.
// recorder may be nil.
func New(ctx context.Context, cfg Config, recorder ExchangeRecorder) (*Engine, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("LLM API key is not configured")
	}
	classifierModel := cfg.ClassifierModel
	if classifierModel == "" {
		classifierModel = cfg.Model
	}

	var drafter, classifier Provider
	switch cfg.Provider {
	case "anthropic":
		drafter = providers.NewAnthropicProvider(cfg.APIKey, cfg.Model)
		classifier = providers.NewAnthropicProvider(cfg.APIKey, classifierModel)
	case "gemini":
		var err error
		drafter, err = providers.NewGeminiProvider(ctx, cfg.APIKey, cfg.Model)
		if err != nil {
			return nil, err
		}
		classifier, err = providers.NewGeminiProvider(ctx, cfg.APIKey, classifierModel)
		if err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("unknown LLM provider: %s", cfg.Provider)
	}

	return &Engine{
		drafter:    drafter,
		classifier: classifier,
		cfg:        cfg,
		recorder:   recorder,
	}, nil
}

// ClassifyFirst reports whether posts must pass classification before a
// reply is drafted. When false the engine drafts for every candidate post.
func (e *Engine) ClassifyFirst() bool {
	return e.cfg.ClassifyFirst
}

// classificationResponse is the strict JSON the classifier must emit.
type classificationResponse struct {
	Decision   string  `json:"decision"`
	Reason     string  `json:"reason"`
	Confidence float64 `json:"confidence"`
}

// Classify decides whether the bot should engage with a post. Any provider
// or parse fault resolves to a skip decision with a diagnostic reason.
func (e *Engine) Classify(ctx context.Context, post types.Post) types.ReplyDecision {
	payload := map[string]string{
		"tweet_author": post.AuthorHandle,
		"tweet_text":   strings.TrimSpace(post.Text),
	}
	if post.URL != "" {
		payload["tweet_url"] = post.URL
	}
	payloadJSON, _ := json.Marshal(payload)

	raw, err := e.complete(ctx, e.classifier, e.cfg.ClassificationPrompt, string(payloadJSON))
	if err != nil {
		log.Printf("Classification failed for post by @%s: %v", post.AuthorHandle, err)
		return types.ReplyDecision{ShouldReply: false, Reason: "classification_error"}
	}

	var resp classificationResponse
	if err := json.Unmarshal([]byte(extractJSONObject(raw)), &resp); err != nil {
		log.Printf("Unparseable classifier response for post %d: %v", post.ID, err)
		return types.ReplyDecision{ShouldReply: false, Reason: "unable to parse model response"}
	}

	decision := strings.ToLower(strings.TrimSpace(resp.Decision))
	reason := resp.Reason
	if reason == "" {
		reason = "no reason given"
	}
	return types.ReplyDecision{
		ShouldReply: decision == "reply",
		Reason:      reason,
		Confidence:  resp.Confidence,
	}
}

// Draft requests reply text for a post. A provider fault or an empty
// completion yields "".
func (e *Engine) Draft(ctx context.Context, post types.Post) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Compose a reply to the tweet below. Keep it under %d characters, ", ReplyLimit-40)
	b.WriteString("match the tweet's language, and stay in persona.\n\n")
	fmt.Fprintf(&b, "Tweet author: @%s\n", post.AuthorHandle)
	fmt.Fprintf(&b, "Tweet content: %s", strings.TrimSpace(post.Text))
	if post.URL != "" {
		fmt.Fprintf(&b, "\nTweet URL: %s", post.URL)
	}

	draft, err := e.complete(ctx, e.drafter, e.cfg.ReplyPrompt, b.String())
	if err != nil {
		log.Printf("Failed to draft reply for post %d: %v", post.ID, err)
		return ""
	}
	return strings.TrimSpace(draft)
}

// complete calls the provider and records the exchange, best effort.
func (e *Engine) complete(ctx context.Context, p Provider, instruction, payload string) (string, error) {
	response, err := p.Complete(ctx, instruction, payload)

	if e.recorder != nil {
		exchange := store.LLMExchange{
			Provider:    p.Name(),
			Model:       p.Model(),
			Instruction: instruction,
			Payload:     payload,
			Response:    response,
		}
		if err != nil {
			exchange.Error = err.Error()
		}
		if recErr := e.recorder.RecordExchange(exchange); recErr != nil {
			log.Printf("Failed to archive LLM exchange: %v", recErr)
		}
	}
	return response, err
}

// Models may wrap JSON in markdown code fences; pull out the object.
var (
	fencedObjectRe = regexp.MustCompile("(?s)```(?:json)?\\s*\\n?(\\{.*?\\})\\s*\\n?```")
	rawObjectRe    = regexp.MustCompile(`(?s)(\{.*\})`)
)

func extractJSONObject(text string) string {
	if m := fencedObjectRe.FindStringSubmatch(text); len(m) > 1 {
		return m[1]
	}
	if m := rawObjectRe.FindStringSubmatch(text); len(m) > 1 {
		return m[1]
	}
	return text
}
