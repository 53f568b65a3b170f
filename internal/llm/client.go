package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog"
	openai "github.com/sashabaranov/go-openai"

	"yuzu/voicechat/internal/apperr"
	"yuzu/voicechat/internal/history"
	"yuzu/voicechat/internal/logging"
	"yuzu/voicechat/internal/prompt"
)

// Client produces the assistant reply for a user utterance given prior turns.
type Client interface {
	Complete(ctx context.Context, userText string, hist []history.Entry) (string, error)
}

type Options struct {
	APIKey          string
	BaseURL         string
	Model           string
	AzureEndpoint   string // non-empty selects Azure OpenAI; Model is the deployment
	AzureAPIVersion string
	MaxReplyChars   int
	Persona         *prompt.Persona
	HTTPClient      *http.Client
	Logger          *zerolog.Logger
}

// OpenAI is a Client backed by the chat completions API (OpenAI or Azure).
type OpenAI struct {
	api      *openai.Client
	model    string
	maxChars int
	persona  *prompt.Persona
	log      zerolog.Logger
}

func New(o Options) (*OpenAI, error) {
	if o.APIKey == "" {
		return nil, apperr.MissingConfig("OPENAI_API_KEY")
	}
	var cfg openai.ClientConfig
	if o.AzureEndpoint != "" {
		cfg = openai.DefaultAzureConfig(o.APIKey, o.AzureEndpoint)
		if o.AzureAPIVersion != "" {
			cfg.APIVersion = o.AzureAPIVersion
		}
	} else {
		cfg = openai.DefaultConfig(o.APIKey)
		if o.BaseURL != "" {
			cfg.BaseURL = strings.TrimRight(o.BaseURL, "/")
		}
	}
	if o.HTTPClient != nil {
		cfg.HTTPClient = o.HTTPClient
	}
	model := o.Model
	if model == "" {
		model = openai.GPT4o
	}
	persona := o.Persona
	if persona == nil {
		persona = prompt.Default()
	}
	lg := logging.Nop()
	if o.Logger != nil {
		lg = logging.Component(*o.Logger, "llm")
	}
	return &OpenAI{
		api:      openai.NewClientWithConfig(cfg),
		model:    model,
		maxChars: o.MaxReplyChars,
		persona:  persona,
		log:      lg,
	}, nil
}

func (c *OpenAI) Complete(ctx context.Context, userText string, hist []history.Entry) (string, error) {
	sys, err := c.persona.SystemMessage(c.maxChars)
	if err != nil {
		return "", err
	}
	start := time.Now()
	resp, err := c.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:    c.model,
		Messages: buildMessages(sys, userText, hist),
	})
	llmLatencyMS.Observe(float64(time.Since(start).Milliseconds()))
	if err != nil {
		llmCompletionsTotal.WithLabelValues("error").Inc()
		return "", remoteError(ctx, "complete", err)
	}
	if len(resp.Choices) == 0 {
		llmCompletionsTotal.WithLabelValues("empty").Inc()
		return "", apperr.Remote("llm", "complete", 0, errors.New("no choices"))
	}
	reply := clampReply(strings.TrimSpace(resp.Choices[0].Message.Content), c.maxChars)
	if reply == "" {
		llmCompletionsTotal.WithLabelValues("empty").Inc()
		return "", apperr.Remote("llm", "complete", 0, errors.New("empty reply"))
	}
	llmCompletionsTotal.WithLabelValues("ok").Inc()
	c.log.Debug().Int("chars", utf8.RuneCountInString(reply)).Dur("took", time.Since(start)).Msg("completion")
	return reply, nil
}

// buildMessages frames the request as system, prior turns (Human as user, AI as
// assistant), then the new utterance.
func buildMessages(system, userText string, hist []history.Entry) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, 0, len(hist)+2)
	if system != "" {
		out = append(out, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: system})
	}
	for _, e := range hist {
		role := openai.ChatMessageRoleUser
		if e.Speaker == history.AI {
			role = openai.ChatMessageRoleAssistant
		}
		out = append(out, openai.ChatCompletionMessage{Role: role, Content: e.Text})
	}
	out = append(out, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: userText})
	return out
}

// clampReply bounds s to max runes, cutting at the last sentence boundary when
// one exists in the kept prefix.
func clampReply(s string, max int) string {
	if max <= 0 || utf8.RuneCountInString(s) <= max {
		return s
	}
	r := []rune(s)[:max]
	for i := len(r) - 1; i > 0; i-- {
		if isSentenceBoundary(string(r[:i+1])) {
			return strings.TrimSpace(string(r[:i+1]))
		}
	}
	return strings.TrimSpace(string(r))
}

func isSentenceBoundary(s string) bool {
	t := strings.TrimSpace(s)
	if t == "" {
		return false
	}
	last := t[len(t)-1]
	return last == '.' || last == '!' || last == '?'
}

func remoteError(ctx context.Context, op string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return apperr.Remote("llm", op, 0, fmt.Errorf("%w: %v", apperr.ErrTimeout, err))
	}
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return apperr.Remote("llm", op, apiErr.HTTPStatusCode, err)
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return apperr.Remote("llm", op, reqErr.HTTPStatusCode, err)
	}
	return apperr.Remote("llm", op, 0, err)
}
