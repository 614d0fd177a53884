// Package template renders notification emails. Rendering fails closed: a
// parameter the template references but the data does not carry is an error,
// never an empty string.
package template

import (
	"bytes"
	"embed"
	"fmt"
	htmltemplate "html/template"
	"strings"
	texttemplate "text/template"

	"github.com/smallbiznis/procura/pkg/errs"
)

const (
	RequisitionSubmitted = "requisition_submitted"
	RequisitionApproved  = "requisition_approved"
	RequisitionRejected  = "requisition_rejected"
	Custom               = "custom"
)

//go:embed templates/*.html
var files embed.FS

// Data holds template parameters. Optional values are always present, possibly
// empty. Required values are left out when blank so rendering fails on them.
type Data map[string]any

func (d Data) Set(key, value string) Data {
	d[key] = value
	return d
}

func (d Data) Required(key, value string) Data {
	if strings.TrimSpace(value) != "" {
		d[key] = value
	}
	return d
}

type Rendered struct {
	Subject string
	Body    string
}

type Renderer struct {
	bodies *htmltemplate.Template
}

func NewRenderer() (*Renderer, error) {
	bodies, err := htmltemplate.New("emails").Option("missingkey=error").ParseFS(files, "templates/*.html")
	if err != nil {
		return nil, err
	}
	return &Renderer{bodies: bodies}, nil
}

// Known reports whether a body template exists for id.
func (r *Renderer) Known(id string) bool {
	return r.bodies.Lookup(id+".html") != nil
}

// Render executes the body template id and the subject template with data.
// Every failure wraps errs.ErrTemplate.
func (r *Renderer) Render(id, subject string, data Data) (Rendered, error) {
	body := r.bodies.Lookup(id + ".html")
	if body == nil {
		return Rendered{}, fmt.Errorf("%w: unknown template %q", errs.ErrTemplate, id)
	}
	if strings.TrimSpace(subject) == "" {
		return Rendered{}, fmt.Errorf("%w: no subject for template %q", errs.ErrTemplate, id)
	}

	subjectTmpl, err := texttemplate.New(id + ".subject").Option("missingkey=error").Parse(subject)
	if err != nil {
		return Rendered{}, fmt.Errorf("%w: parse subject %q: %w", errs.ErrTemplate, id, err)
	}

	var subjectBuf, bodyBuf bytes.Buffer
	if err := subjectTmpl.Execute(&subjectBuf, data); err != nil {
		return Rendered{}, fmt.Errorf("%w: render subject %q: %w", errs.ErrTemplate, id, err)
	}
	if err := body.Execute(&bodyBuf, data); err != nil {
		return Rendered{}, fmt.Errorf("%w: render body %q: %w", errs.ErrTemplate, id, err)
	}

	return Rendered{
		Subject: strings.TrimSpace(subjectBuf.String()),
		Body:    bodyBuf.String(),
	}, nil
}
