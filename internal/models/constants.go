package models

const (
	ContextSeparator = "\n---\n"
	ThinkTag         = `(?s)<think>.*?</think>`
)

// Templates use Go text/template syntax, rendered through langchaingo prompts.
var (
	ClassifierPromptTemplate = `You route questions for a health assistant.
Decide whether the question below is about health, medicine, nutrition, diet, fitness, symptoms or wellbeing.
Reply with exactly one word: "health" if it is, "general" otherwise.

Question: {{.question}}
Category:`

	HealthPromptTemplate = `You are a careful health and nutrition assistant.
Answer the user's question using the reference material and the user's own data below.
Ground your answer in the reference material. If it does not cover the question, say so instead of guessing.
Take the user's data into account when it is relevant; the most recent rows come first.
Do not diagnose conditions; recommend consulting a professional when appropriate.

Reference material:
{{.context}}

User data:
{{.profile}}

Question: {{.question}}
Answer:`

	GeneralPromptTemplate = `You are a helpful assistant. Answer the question concisely.

Question: {{.question}}
Answer:`

	ContextPromptTemplate = `<document>
{{.document}}
</document>
Here is the chunk we want to situate within the whole document
<chunk>
{{.chunk}}
</chunk>
Please give a short succinct context to situate this chunk within the overall document for the purposes of improving search retrieval of the chunk. Answer only with the succinct context and nothing else.
`
)

// NoProfileText stands in for the user data block when no profile was supplied.
const NoProfileText = "(no user data provided)"
