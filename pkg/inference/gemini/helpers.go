package gemini

import (
	"fmt"
	"strings"

	genai "github.com/google/generative-ai-go/genai"

	"github.com/go-go-golems/parley/pkg/conversation"
	"github.com/go-go-golems/parley/pkg/profiles"
)

const personaInstruction = "You are a helpful, intelligent AI assistant for the application zipChatBotAi. Provide concise and accurate information."

// systemInstruction assembles the persona prompt, personalized with
// whatever the profile has learned so far.
func systemInstruction(profile profiles.UserProfile) string {
	var b strings.Builder
	b.WriteString(personaInstruction)
	if profile.Name != "" {
		fmt.Fprintf(&b, " You are chatting with %s. Always be friendly and address them by name occasionally.", profile.Name)
	}
	if profile.Preferences != "" {
		fmt.Fprintf(&b, " Keep in mind the user's preferences: %s. Tailor your responses to match these preferences.", profile.Preferences)
	}
	return b.String()
}

func titlePrompt(firstUserMessage string) string {
	return fmt.Sprintf(
		"Generate a very short (max 4 words) title for a chat that starts with: %q. Return only the title text, no quotes.",
		firstUserMessage,
	)
}

func memoryPrompt(messages []*conversation.Message, current profiles.UserProfile) string {
	window := messages
	if len(window) > memoryWindow {
		window = window[len(window)-memoryWindow:]
	}

	lines := make([]string, 0, len(window))
	for _, m := range window {
		lines = append(lines, fmt.Sprintf("%s: %s", m.Role, m.Content))
	}

	name := current.Name
	if name == "" {
		name = profiles.SentinelUnknownName
	}
	prefs := current.Preferences
	if prefs == "" {
		prefs = profiles.SentinelNoPrefs
	}

	return fmt.Sprintf(
		"Based on this conversation snippet, extract the user's name and any stated preferences.\n"+
			"If not mentioned, keep the existing values: Name: %s, Preferences: %s.\n\n"+
			"Recent interaction:\n%s",
		name, prefs, strings.Join(lines, "\n"),
	)
}

// historyToContents converts thread history to the wire representation.
// Gemini only knows "user" and "model" roles, so everything that is not
// an assistant message rides as user content.
func historyToContents(history []*conversation.Message) []*genai.Content {
	contents := make([]*genai.Content, 0, len(history))
	for _, msg := range history {
		role := "user"
		if msg.Role == conversation.RoleAssistant {
			role = "model"
		}
		contents = append(contents, &genai.Content{
			Role:  role,
			Parts: messageParts(msg),
		})
	}
	return contents
}

func messageParts(msg *conversation.Message) []genai.Part {
	if len(msg.Parts) == 0 {
		return []genai.Part{genai.Text(msg.Content)}
	}
	parts := make([]genai.Part, 0, len(msg.Parts))
	for _, p := range msg.Parts {
		if p.InlineData != nil {
			parts = append(parts, genai.Blob{MIMEType: p.InlineData.MIMEType, Data: p.InlineData.Data})
			continue
		}
		parts = append(parts, genai.Text(p.Text))
	}
	return parts
}

// responseText flattens all text parts of a response into one string.
func responseText(resp *genai.GenerateContentResponse) string {
	if resp == nil {
		return ""
	}
	var b strings.Builder
	for _, cand := range resp.Candidates {
		if cand == nil || cand.Content == nil {
			continue
		}
		for _, p := range cand.Content.Parts {
			if txt, ok := p.(genai.Text); ok {
				b.WriteString(string(txt))
			}
		}
	}
	return b.String()
}
