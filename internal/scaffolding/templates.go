package scaffolding

import (
	"bytes"
	"embed"
	"io/fs"
	"path/filepath"
	"strings"
	"text/template"
	"unicode"

	"gopkg.in/yaml.v3"

	"github.com/conneroisu/buildwp/internal/config"
)

//go:embed all:skeleton
var skeletonFS embed.FS

// Skeleton returns the embedded project skeleton rooted at its top directory.
func Skeleton() fs.FS {
	sub, err := fs.Sub(skeletonFS, "skeleton")
	if err != nil {
		panic(err)
	}
	return sub
}

const (
	templateSuffix  = ".tmpl"
	namePlaceholder = "__name__"
)

// TemplateContext is the data skeleton templates are rendered with.
type TemplateContext struct {
	Name        string
	DisplayName string
}

// NewTemplateContext derives the project name from the target directory.
// "My Plugin" becomes name "my-plugin" and display name "My Plugin".
func NewTemplateContext(dir string) TemplateContext {
	base := filepath.Base(filepath.Clean(dir))

	var words []string
	for _, w := range strings.FieldsFunc(base, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	}) {
		words = append(words, strings.ToLower(w))
	}
	if len(words) == 0 {
		words = []string{"plugin"}
	}

	display := make([]string, len(words))
	for i, w := range words {
		display[i] = strings.ToUpper(w[:1]) + w[1:]
	}

	return TemplateContext{
		Name:        strings.Join(words, "-"),
		DisplayName: strings.Join(display, " "),
	}
}

// targetPath maps a skeleton path to its path in the project.
func targetPath(rel string, tc TemplateContext) string {
	rel = strings.TrimSuffix(rel, templateSuffix)
	rel = strings.ReplaceAll(rel, namePlaceholder, tc.Name)
	if rel == "gitignore" {
		rel = ".gitignore"
	}
	return rel
}

func render(rel string, data []byte, tc TemplateContext) ([]byte, error) {
	if !strings.HasSuffix(rel, templateSuffix) {
		return data, nil
	}
	tmpl, err := template.New(rel).Option("missingkey=error").Parse(string(data))
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, tc); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

const configHeader = `# buildwp project configuration.
# Every key is optional; removed keys fall back to these defaults.
`

// RenderConfig renders the default configuration as buildwp.yml.
func RenderConfig() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString(configHeader)

	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(config.Default()); err != nil {
		return nil, err
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
