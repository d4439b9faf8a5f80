package models

const (
	ThinkTag         = `(?s)<think>.*?</think>`
	ContextSeparator = "\n\n"
	PlaceholderText  = "placeholder"
	UnknownSource    = "Unknown File"
	MessageHuman     = "human"
	MessageAI        = "ai"
	HumanPrefix      = "Human"
	AIPrefix         = "AI"
)

var (
	AnswerPromptTemplate = `Answer the question based on the following context and chat history:
Context: {{.context}}
Chat History: {{.chat_history}}
Question: {{.question}}`

	TitlePromptTemplate = `This is the user question : {{.question}}
based on this generate appropriate title
RETURN ONLY TITLE`
)
