package rag

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/prompts"

	"github.com/prajwalprabhu/File-Chat/internal/db"
	"github.com/prajwalprabhu/File-Chat/internal/helper"
	"github.com/prajwalprabhu/File-Chat/internal/llmservice"
	"github.com/prajwalprabhu/File-Chat/internal/models"
	"github.com/prajwalprabhu/File-Chat/internal/render"
)

// TranscriptStore is the part of the chat store the orchestrator needs.
type TranscriptStore interface {
	RecentMessages(ctx context.Context, chatID int64, limit int) ([]db.ChatMessage, error)
	SaveExchange(ctx context.Context, chat *db.Chat, human, assistant *db.ChatMessage) error
}

// Exchange is one answered question as it was stored.
type Exchange struct {
	Chat        *db.Chat            `json:"chat"`
	Human       *db.ChatMessage     `json:"human"`
	Assistant   *db.ChatMessage     `json:"assistant"`
	Answer      models.AnswerResult `json:"answer"`
	NoDocuments bool                `json:"no_documents"`
}

type Orchestrator struct {
	llm           llms.Model
	store         TranscriptStore
	renderer      *render.Renderer
	answerPrompt  prompts.PromptTemplate
	titlePrompt   prompts.PromptTemplate
	historyDepth  int
	titleMaxChars int
}

func NewOrchestrator(llm llms.Model, store TranscriptStore, renderer *render.Renderer, historyDepth, titleMaxChars int) *Orchestrator {
	return &Orchestrator{
		llm:           llm,
		store:         store,
		renderer:      renderer,
		answerPrompt:  prompts.NewPromptTemplate(models.AnswerPromptTemplate, []string{"context", "chat_history", "question"}),
		titlePrompt:   prompts.NewPromptTemplate(models.TitlePromptTemplate, []string{"question"}),
		historyDepth:  historyDepth,
		titleMaxChars: titleMaxChars,
	}
}

// Title asks the model for a short chat title. It never fails: without a
// usable answer the title is the beginning of the question.
func (o *Orchestrator) Title(ctx context.Context, question string) string {
	fallback := helper.TruncateRunes(strings.TrimSpace(question), o.titleMaxChars)

	prompt, err := o.titlePrompt.Format(map[string]any{"question": question})
	if err != nil {
		log.Warn().Err(err).Msg("Error formatting title prompt")
		return fallback
	}
	out, err := llmservice.GenerateContent(ctx, o.llm, prompt)
	if err != nil {
		log.Warn().Err(err).Msg("Error generating chat title, using question")
		return fallback
	}
	title := strings.Trim(llmservice.StripThinking(out), " \t\r\n\"'`")
	if line, _, ok := strings.Cut(title, "\n"); ok {
		title = strings.TrimSpace(line)
	}
	if title == "" {
		return fallback
	}
	return title
}

// History renders the last historyDepth turns of chat, oldest first.
func (o *Orchestrator) History(ctx context.Context, chat *db.Chat) (string, error) {
	if chat.ID == 0 || o.historyDepth <= 0 {
		return "", nil
	}
	recent, err := o.store.RecentMessages(ctx, chat.ID, o.historyDepth)
	if err != nil {
		return "", err
	}
	msgs := make([]llms.ChatMessage, 0, len(recent))
	for i := len(recent) - 1; i >= 0; i-- {
		m := recent[i]
		text := m.Markdown
		if text == "" {
			text = m.Content
		}
		if m.Type == models.MessageHuman {
			msgs = append(msgs, llms.HumanChatMessage{Content: text})
		} else {
			msgs = append(msgs, llms.AIChatMessage{Content: text})
		}
	}
	return llms.GetBufferString(msgs, models.HumanPrefix, models.AIPrefix)
}

// Prompt fills the answer template.
func (o *Orchestrator) Prompt(contextText, history, question string) (string, error) {
	return o.answerPrompt.Format(map[string]any{
		"context":      contextText,
		"chat_history": history,
		"question":     question,
	})
}

// Answer generates the reply to question and stores both turns. A chat with
// a zero ID is created, titled first, in the same transaction as the turns.
// Nothing is stored if generation fails.
func (o *Orchestrator) Answer(ctx context.Context, chat *db.Chat, question, contextText, sourceFile string) (*Exchange, error) {
	if chat.ID == 0 && chat.Title == "" {
		chat.Title = o.Title(ctx, question)
	}
	history, err := o.History(ctx, chat)
	if err != nil {
		return nil, fmt.Errorf("failed to load chat history: %w", err)
	}
	prompt, err := o.Prompt(contextText, history, question)
	if err != nil {
		return nil, fmt.Errorf("failed to format prompt: %w", err)
	}

	out, err := llmservice.GenerateContent(ctx, o.llm, prompt)
	if err != nil {
		return nil, err
	}
	text := llmservice.StripThinking(out)
	content, err := o.renderer.HTML(text)
	if err != nil {
		return nil, err
	}

	// the stored turn only names a real file, the answer always names one
	attributed := sourceFile
	if attributed == "" {
		attributed = models.UnknownSource
	}
	human := &db.ChatMessage{
		Type:     models.MessageHuman,
		Content:  o.renderer.Sanitize(question),
		Markdown: question,
	}
	assistant := &db.ChatMessage{
		Type:       models.MessageAI,
		Content:    content,
		Markdown:   text,
		SourceFile: sourceFile,
	}
	if err := o.store.SaveExchange(ctx, chat, human, assistant); err != nil {
		return nil, fmt.Errorf("failed to save chat turns: %w", err)
	}
	log.Info().Int64("owner_id", chat.UserID).Int64("chat_id", chat.ID).Str("file", sourceFile).Msg("Answered query")

	return &Exchange{
		Chat:      chat,
		Human:     human,
		Assistant: assistant,
		Answer:    models.AnswerResult{Text: content, AttributedFile: attributed},
	}, nil
}
