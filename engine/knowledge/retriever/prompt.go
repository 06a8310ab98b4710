package retriever

import (
	"strings"
	"text/template"

	"github.com/Masterminds/sprig/v3"
)

const (
	DefaultSubject    = "Jane Austen's works"
	DefaultCollection = "Jane Austen's novels"
)

const promptTemplate = `You are a helpful assistant that answers questions about {{ .Subject | default "` + DefaultSubject + `" }}. ` +
	`Use the provided context from {{ .Collection | default "` + DefaultCollection + `" }} to answer the user's question. ` +
	`If the context doesn't contain enough information to fully answer the question, say so and provide what information you can find.

Always cite the source of your information by mentioning the work and providing a brief quote when relevant. Be conversational but informative.

Context:
{{ .Context }}

Question: {{ .Question }}

Answer:`

var answerPrompt = template.Must(
	template.New("answer").Option("missingkey=error").Funcs(sprig.TxtFuncMap()).Parse(promptTemplate),
)

type promptData struct {
	Subject    string
	Collection string
	Context    string
	Question   string
}

func renderPrompt(data promptData) (string, error) {
	var sb strings.Builder
	if err := answerPrompt.Execute(&sb, data); err != nil {
		return "", err
	}
	return sb.String(), nil
}
