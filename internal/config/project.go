package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"text/template"

	bwerrors "github.com/conneroisu/buildwp/internal/errors"
	"github.com/conneroisu/buildwp/internal/substitute"
)

// ManifestName is the project manifest file.
const ManifestName = "package.json"

// Project holds the package.json metadata used for substitutions and release
// naming.
type Project struct {
	Name        string `json:"name"`
	Version     string `json:"version"`
	DisplayName string `json:"displayName"`
	Link        string `json:"link"`
	Description string `json:"description"`
	Author      Person `json:"author"`
	AuthorURL   string `json:"authorURL"`
	License     string `json:"license"`
	LicenseURL  string `json:"licenseURL"`
}

// Person accepts both npm author forms: "Jane <jane@x.org>" and
// {"name": "Jane", "email": "...", "url": "..."}.
type Person struct {
	Name  string
	Email string
	URL   string
}

// String renders the name only, which is what plugin headers expect.
func (p Person) String() string {
	return p.Name
}

// UnmarshalJSON implements json.Unmarshaler.
func (p *Person) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		p.Name = strings.TrimSpace(s)
		if i := strings.IndexAny(p.Name, "<("); i > 0 {
			p.Name = strings.TrimSpace(p.Name[:i])
		}
		return nil
	}

	var obj struct {
		Name  string `json:"name"`
		Email string `json:"email"`
		URL   string `json:"url"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return fmt.Errorf("author must be a string or an object: %w", err)
	}
	p.Name, p.Email, p.URL = obj.Name, obj.Email, obj.URL
	return nil
}

// LoadProject reads the manifest in root.
func LoadProject(root string) (*Project, error) {
	path := filepath.Join(root, ManifestName)
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, bwerrors.NewIOError(bwerrors.ErrCodeManifestMissing, ManifestName+" not found in project root", err).WithPath(path)
		}
		return nil, bwerrors.NewIOError(bwerrors.ErrCodeManifestInvalid, "read "+ManifestName, err).WithPath(path)
	}

	var project Project
	if err := json.Unmarshal(data, &project); err != nil {
		return nil, bwerrors.NewValidationError(bwerrors.ErrCodeManifestInvalid, "parse "+ManifestName+": "+err.Error()).WithPath(path)
	}
	if project.AuthorURL == "" {
		project.AuthorURL = project.Author.URL
	}

	return &project, nil
}

// Rules renders the configured replacement templates against project and
// returns them as substitution rules in declared order.
func (c *Config) Rules(project *Project) ([]substitute.Rule, error) {
	if project == nil {
		project = &Project{}
	}

	rules := make([]substitute.Rule, 0, len(c.Replace))
	for i, pair := range c.Replace {
		if len(pair) != 2 {
			return nil, fmt.Errorf("replace entry %d must be a [pattern, replacement] pair", i)
		}
		tmpl, err := template.New(pair[0]).Option("missingkey=zero").Parse(pair[1])
		if err != nil {
			return nil, fmt.Errorf("replace entry %d: %w", i, err)
		}
		var buf bytes.Buffer
		if err := tmpl.Execute(&buf, project); err != nil {
			return nil, fmt.Errorf("replace entry %d: %w", i, err)
		}
		rules = append(rules, substitute.Rule{Pattern: pair[0], Replacement: buf.String()})
	}
	return rules, nil
}
