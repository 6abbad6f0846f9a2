package intent

import (
	"bytes"
	"embed"
	"fmt"
	"strings"
	"text/template"

	"github.com/mohammed-shakir/geoquery/internal/layers"
)

//go:embed prompts/*.tmpl
var promptFS embed.FS

// PromptRev changes whenever the classification prompt changes, which also
// invalidates cached classifications.
const PromptRev = 1

var classifyTmpl = template.Must(template.New("classify.tmpl").
	Funcs(template.FuncMap{"join": strings.Join}).
	ParseFS(promptFS, "prompts/classify.tmpl"))

// LayerLister supplies the layer names shown to the model.
type LayerLister interface {
	ListAll() []layers.Descriptor
}

type promptOp struct {
	Name        Operation
	Description string
	Params      string
}

type promptData struct {
	Operations []promptOp
	Layers     []layers.Descriptor
	Query      string
}

func renderPrompt(descs []layers.Descriptor, query string) (string, error) {
	data := promptData{Query: query, Layers: descs}
	for _, c := range catalog {
		data.Operations = append(data.Operations, promptOp{Name: c.op, Description: c.description, Params: c.params})
	}
	var buf bytes.Buffer
	if err := classifyTmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("render prompt: %w", err)
	}
	return buf.String(), nil
}
