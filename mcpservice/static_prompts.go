package mcpservice

import (
	"bytes"
	"context"
	"fmt"
	"text/template"

	"github.com/ggoodman/mcp-stdio-go/mcp"
	"gopkg.in/yaml.v3"
)

type promptFile struct {
	Prompts []promptSpec `yaml:"prompts"`
}

type promptSpec struct {
	Name        string               `yaml:"name"`
	Description string               `yaml:"description"`
	Arguments   []mcp.PromptArgument `yaml:"arguments"`
	Messages    []messageSpec        `yaml:"messages"`
}

type messageSpec struct {
	Role string `yaml:"role"`
	Text string `yaml:"text"`
}

// LoadPrompts parses a YAML prompt catalog of the form
//
//	prompts:
//	  - name: weather_report
//	    description: Summarize the weather for a place
//	    arguments:
//	      - name: location
//	        required: true
//	    messages:
//	      - role: user
//	        text: "What is the weather in {{.location}}?"
//
// Message text is a text/template executed against the prompt arguments;
// unset optional arguments render as the empty string.
func LoadPrompts(data []byte) ([]Prompt, error) {
	var f promptFile
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		return nil, fmt.Errorf("decode prompts: %w", err)
	}

	out := make([]Prompt, 0, len(f.Prompts))
	for _, ps := range f.Prompts {
		p, err := compilePrompt(ps)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

func compilePrompt(ps promptSpec) (Prompt, error) {
	type compiled struct {
		role mcp.Role
		tpl  *template.Template
	}
	msgs := make([]compiled, 0, len(ps.Messages))
	for i, m := range ps.Messages {
		role := mcp.Role(m.Role)
		switch role {
		case mcp.RoleUser, mcp.RoleAssistant:
		case "":
			role = mcp.RoleUser
		default:
			return Prompt{}, fmt.Errorf("prompt %q message %d: unknown role %q", ps.Name, i, m.Role)
		}
		tpl, err := template.New(fmt.Sprintf("%s/%d", ps.Name, i)).Option("missingkey=zero").Parse(m.Text)
		if err != nil {
			return Prompt{}, fmt.Errorf("prompt %q message %d: %w", ps.Name, i, err)
		}
		msgs = append(msgs, compiled{role: role, tpl: tpl})
	}

	handler := func(_ context.Context, args map[string]string) ([]mcp.PromptMessage, error) {
		out := make([]mcp.PromptMessage, 0, len(msgs))
		for _, m := range msgs {
			var buf bytes.Buffer
			if err := m.tpl.Execute(&buf, args); err != nil {
				return nil, fmt.Errorf("render prompt %q: %w", ps.Name, err)
			}
			out = append(out, mcp.PromptMessage{
				Role:    m.role,
				Content: mcp.ContentBlock{Type: mcp.ContentTypeText, Text: buf.String()},
			})
		}
		return out, nil
	}

	return Prompt{
		Descriptor: mcp.Prompt{
			Name:        ps.Name,
			Description: ps.Description,
			Arguments:   ps.Arguments,
		},
		Handler: handler,
	}, nil
}
