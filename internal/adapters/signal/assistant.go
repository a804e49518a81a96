package signal

import (
	"context"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/vibemeet/vibemeet/internal/domain"
	"github.com/vibemeet/vibemeet/internal/extern"
)

const (
	assistantUserID = domain.UserID("ai-assistant")
	assistantName   = "AI Assistant"

	assistantSystemPrompt = "You are a helpful meeting assistant. Answer the question concisely for everyone in the room."
)

// runAssistant answers a question addressed to the assistant. A loading
// placeholder goes out first so the room sees the question was picked up,
// then the placeholder is replaced in place: same id, final text, loading
// cleared.
func (ctl *Controller) runAssistant(ctx context.Context, question *domain.Message) {
	placeholder := &domain.Message{
		ID:           uuid.NewString(),
		RoomID:       question.RoomID,
		Type:         domain.MessageAI,
		Text:         "Thinking...",
		Author:       assistantName,
		UserID:       assistantUserID,
		OriginUserID: question.UserID,
		Loading:      true,
	}
	if _, err := ctl.proto.PostServerMessage(ctx, placeholder); err != nil {
		log.Error().Err(err).Str("module", "signal.assistant").Str("room", string(question.RoomID)).Msg("save placeholder failed")
		return
	}
	ctl.broadcastRoom(placeholder.RoomID, evNewMessage, placeholder)

	prompt := []extern.PromptMessage{
		{Role: "system", Content: assistantSystemPrompt},
	}
	if question.File != nil && ctl.opts.Extractor != nil {
		text, err := ctl.opts.Extractor.Extract(ctx, extern.FileRef{
			Name:     question.File.Name,
			MimeType: question.File.MimeType,
			Locator:  question.File.Locator,
		})
		if err != nil {
			log.Warn().Err(err).Str("module", "signal.assistant").Str("file", question.File.Name).Msg("document extraction failed")
		} else if text != "" {
			prompt = append(prompt, extern.PromptMessage{Role: "system", Content: "Attached document:\n" + text})
		}
	}
	prompt = append(prompt, extern.PromptMessage{Role: "user", Content: question.Text})

	reply, err := ctl.opts.Completer.Complete(ctx, prompt, extern.CompleteOptions{
		MaxTokens:   ctl.opts.AIMaxTokens,
		Temperature: ctl.opts.AITemperature,
	})
	if err != nil {
		log.Warn().Err(err).Str("module", "signal.assistant").Str("room", string(question.RoomID)).Msg("completion failed")
		reply = "The assistant could not answer right now. Please try again later."
	}

	final := *placeholder
	final.Text = reply
	final.Loading = false
	if _, err := ctl.proto.PostServerMessage(ctx, &final); err != nil {
		log.Error().Err(err).Str("module", "signal.assistant").Str("room", string(question.RoomID)).Msg("save reply failed")
		return
	}
	ctl.broadcastRoom(final.RoomID, evNewMessage, &final)
}
