package signal

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vibemeet/vibemeet/internal/app"
	"github.com/vibemeet/vibemeet/internal/domain"
	"github.com/vibemeet/vibemeet/internal/extern"
	"github.com/vibemeet/vibemeet/internal/store"
)

type scriptedCompleter struct {
	reply     string
	err       error
	gotPrompt []extern.PromptMessage
}

func (s *scriptedCompleter) Complete(_ context.Context, msgs []extern.PromptMessage, _ extern.CompleteOptions) (string, error) {
	s.gotPrompt = msgs
	return s.reply, s.err
}

type scriptedExtractor struct {
	text   string
	err    error
	gotRef extern.FileRef
}

func (s *scriptedExtractor) Extract(_ context.Context, ref extern.FileRef) (string, error) {
	s.gotRef = ref
	return s.text, s.err
}

func assistantController(opts Options) *Controller {
	proto := app.NewProtocol(store.NewMemory(0), app.NewRegistry(), 50)
	return NewController(proto, opts)
}

func question(text string) *domain.Message {
	return &domain.Message{
		ID:           "q1",
		RoomID:       "r1",
		Type:         domain.MessageUser,
		Text:         text,
		Author:       "alice",
		UserID:       "u1",
		IsAIQuestion: true,
		Timestamp:    time.Now(),
	}
}

func aiFrames(t *testing.T, c *wsConn) []domain.Message {
	t.Helper()
	var out []domain.Message
	for _, raw := range drain(t, c)[evNewMessage] {
		var msg domain.Message
		require.NoError(t, json.Unmarshal(raw, &msg))
		if msg.Type == domain.MessageAI {
			out = append(out, msg)
		}
	}
	return out
}

func TestAssistantRepliesInPlace(t *testing.T) {
	completer := &scriptedCompleter{reply: "forty-two"}
	ctl := assistantController(Options{Completer: completer})
	a := testConn(ctl, "ca")
	join(t, ctl, "ca", a, "r1", "u1", "alice")
	drain(t, a)

	ctl.runAssistant(context.Background(), question("what is the answer?"))

	frames := aiFrames(t, a)
	require.Len(t, frames, 2)
	placeholder, final := frames[0], frames[1]
	assert.True(t, placeholder.Loading)
	assert.Equal(t, domain.UserID("u1"), placeholder.OriginUserID)
	assert.Equal(t, placeholder.ID, final.ID)
	assert.False(t, final.Loading)
	assert.Equal(t, "forty-two", final.Text)

	// Replace in place: the store holds one assistant message, the final one.
	msgs, err := ctl.proto.Store().Messages(context.Background(), "r1", 10)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, "forty-two", msgs[0].Text)
	assert.False(t, msgs[0].Loading)

	// The question text reached the completer as the user turn.
	require.NotEmpty(t, completer.gotPrompt)
	last := completer.gotPrompt[len(completer.gotPrompt)-1]
	assert.Equal(t, "user", last.Role)
	assert.Equal(t, "what is the answer?", last.Content)
}

func TestAssistantCompletionFailure(t *testing.T) {
	ctl := assistantController(Options{Completer: &scriptedCompleter{err: extern.ErrUnavailable}})
	a := testConn(ctl, "ca")
	join(t, ctl, "ca", a, "r1", "u1", "alice")
	drain(t, a)

	ctl.runAssistant(context.Background(), question("anyone there?"))

	frames := aiFrames(t, a)
	require.Len(t, frames, 2)
	final := frames[1]
	assert.False(t, final.Loading)
	assert.Contains(t, final.Text, "could not answer")
}

func TestAssistantExtractsAttachedDocument(t *testing.T) {
	completer := &scriptedCompleter{reply: "summary"}
	extractor := &scriptedExtractor{text: "quarterly numbers"}
	ctl := assistantController(Options{Completer: completer, Extractor: extractor})
	a := testConn(ctl, "ca")
	join(t, ctl, "ca", a, "r1", "u1", "alice")
	drain(t, a)

	q := question("summarize this")
	q.Type = domain.MessageFile
	q.File = &domain.FilePayload{Name: "q3.pdf", MimeType: "application/pdf", Locator: "https://files/q3.pdf"}
	ctl.runAssistant(context.Background(), q)

	assert.Equal(t, "q3.pdf", extractor.gotRef.Name)
	var sawDocument bool
	for _, turn := range completer.gotPrompt {
		if turn.Role == "system" && turn.Content != assistantSystemPrompt {
			sawDocument = true
			assert.Contains(t, turn.Content, "quarterly numbers")
		}
	}
	assert.True(t, sawDocument)
}

func TestAssistantSurvivesExtractionFailure(t *testing.T) {
	completer := &scriptedCompleter{reply: "best effort"}
	extractor := &scriptedExtractor{err: errors.New("timeout")}
	ctl := assistantController(Options{Completer: completer, Extractor: extractor})
	a := testConn(ctl, "ca")
	join(t, ctl, "ca", a, "r1", "u1", "alice")
	drain(t, a)

	q := question("summarize this")
	q.File = &domain.FilePayload{Name: "q3.pdf"}
	ctl.runAssistant(context.Background(), q)

	frames := aiFrames(t, a)
	require.Len(t, frames, 2)
	assert.Equal(t, "best effort", frames[1].Text)
}

func TestSendMessageTriggersAssistant(t *testing.T) {
	ctl := assistantController(Options{Completer: &scriptedCompleter{reply: "done"}})
	a := testConn(ctl, "ca")
	join(t, ctl, "ca", a, "r1", "u1", "alice")
	drain(t, a)

	payload, _ := json.Marshal(sendPayload{
		RoomID: "r1", Text: "@ai please", Author: "alice", UserID: "u1", IsAIQuestion: true,
	})
	ctl.handleSend(context.Background(), "ca", a, payload)

	require.Eventually(t, func() bool {
		msgs, err := ctl.proto.Store().Messages(context.Background(), "r1", 10)
		if err != nil {
			return false
		}
		for _, m := range msgs {
			if m.Type == domain.MessageAI && !m.Loading && m.Text == "done" {
				return true
			}
		}
		return false
	}, 2*time.Second, 10*time.Millisecond)
}

func TestSendWithoutCompleterStaysPlain(t *testing.T) {
	ctl := newTestController()
	a := testConn(ctl, "ca")
	join(t, ctl, "ca", a, "r1", "u1", "alice")
	drain(t, a)

	payload, _ := json.Marshal(sendPayload{
		RoomID: "r1", Text: "@ai please", Author: "alice", UserID: "u1", IsAIQuestion: true,
	})
	ctl.handleSend(context.Background(), "ca", a, payload)

	time.Sleep(50 * time.Millisecond)
	msgs, err := ctl.proto.Store().Messages(context.Background(), "r1", 10)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, domain.MessageUser, msgs[0].Type)
}
