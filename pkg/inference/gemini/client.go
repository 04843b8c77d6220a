package gemini

import (
	"context"
	"encoding/json"
	"io"
	"strings"

	genai "github.com/google/generative-ai-go/genai"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"

	"github.com/go-go-golems/parley/pkg/conversation"
	"github.com/go-go-golems/parley/pkg/inference"
	"github.com/go-go-golems/parley/pkg/profiles"
)

// DefaultOneShotModel runs the title and memory one-shot calls; a cheap
// flash-class model is enough for both.
const DefaultOneShotModel = "gemini-3-flash-preview"

// memoryWindow bounds how many trailing messages the memory extraction
// looks at.
const memoryWindow = 4

// Client implements inference.Client on Google's Gemini API.
type Client struct {
	genai        *genai.Client
	oneShotModel string
}

type Option func(*Client)

// WithOneShotModel overrides the model used for title generation and
// memory extraction.
func WithOneShotModel(model string) Option {
	return func(c *Client) {
		c.oneShotModel = model
	}
}

func NewClient(ctx context.Context, apiKey string, options ...Option) (*Client, error) {
	if apiKey == "" {
		return nil, errors.New("missing gemini API key")
	}

	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, errors.Wrap(err, "failed to create gemini client")
	}

	ret := &Client{
		genai:        client,
		oneShotModel: DefaultOneShotModel,
	}
	for _, o := range options {
		o(ret)
	}
	return ret, nil
}

func (c *Client) Close() error {
	return c.genai.Close()
}

// StreamChat opens a streamed generation turn against the Gemini API. The
// thread history rides in the chat session; the new user input and its
// attachments form the message parts.
func (c *Client) StreamChat(ctx context.Context, req inference.ChatRequest) (inference.Stream, error) {
	model := c.genai.GenerativeModel(req.Model)
	model.SetTemperature(inference.DefaultTemperature)
	model.SetTopP(inference.DefaultTopP)
	model.SetTopK(inference.DefaultTopK)
	model.SystemInstruction = &genai.Content{
		Parts: []genai.Part{genai.Text(systemInstruction(req.Profile))},
	}

	session := model.StartChat()
	session.History = historyToContents(req.History)

	parts := []genai.Part{genai.Text(req.UserInput)}
	for _, att := range req.Attachments {
		parts = append(parts, genai.Blob{MIMEType: att.MIMEType, Data: att.Data})
	}

	log.Debug().
		Str("model", req.Model).
		Int("history_len", len(session.History)).
		Int("attachment_count", len(req.Attachments)).
		Msg("starting gemini chat stream")

	iter := session.SendMessageStream(ctx, parts...)
	return &stream{iter: iter}, nil
}

type stream struct {
	iter *genai.GenerateContentResponseIterator
}

// Recv returns the next non-empty text fragment, or io.EOF once the
// response is complete.
func (s *stream) Recv() (string, error) {
	for {
		resp, err := s.iter.Next()
		if errors.Is(err, iterator.Done) || errors.Is(err, io.EOF) {
			return "", io.EOF
		}
		if err != nil {
			return "", errors.Wrap(err, "gemini stream receive failed")
		}
		if delta := responseText(resp); delta != "" {
			return delta, nil
		}
	}
}

func (s *stream) Close() {}

var _ inference.Stream = (*stream)(nil)

// GenerateTitle produces a short thread title from the first user message.
// Best-effort: any failure falls back to inference.FallbackTitle.
func (c *Client) GenerateTitle(ctx context.Context, firstUserMessage string) string {
	model := c.genai.GenerativeModel(c.oneShotModel)

	resp, err := model.GenerateContent(ctx, genai.Text(titlePrompt(firstUserMessage)))
	if err != nil {
		log.Debug().Err(err).Msg("title generation failed, using fallback")
		return inference.FallbackTitle
	}

	title := strings.TrimSpace(responseText(resp))
	if title == "" {
		return inference.FallbackTitle
	}
	return title
}

// UpdateMemory runs a structured extraction over the trailing messages of
// the exchange and merges the result into the current profile. Sentinel
// values and malformed responses leave the current profile untouched.
func (c *Client) UpdateMemory(ctx context.Context, messages []*conversation.Message, current profiles.UserProfile) profiles.UserProfile {
	model := c.genai.GenerativeModel(c.oneShotModel)
	model.ResponseMIMEType = "application/json"
	model.ResponseSchema = &genai.Schema{
		Type: genai.TypeObject,
		Properties: map[string]*genai.Schema{
			"name": {
				Type:        genai.TypeString,
				Description: "The user's first name or nickname if mentioned.",
			},
			"preferences": {
				Type:        genai.TypeString,
				Description: "A concise summary of user preferences, interests, or style mentioned.",
			},
		},
		Required: []string{"name", "preferences"},
	}

	resp, err := model.GenerateContent(ctx, genai.Text(memoryPrompt(messages, current)))
	if err != nil {
		log.Debug().Err(err).Msg("memory extraction failed, keeping current profile")
		return current
	}

	var extracted profiles.UserProfile
	if err := json.Unmarshal([]byte(responseText(resp)), &extracted); err != nil {
		log.Debug().Err(err).Msg("malformed memory extraction response, keeping current profile")
		return current
	}

	return profiles.Merge(extracted, current)
}

var _ inference.Client = (*Client)(nil)
