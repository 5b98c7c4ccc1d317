package notify

import (
	"bytes"
	"fmt"
	"strings"
	"sync"
	"text/template"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
)

const (
	SubjectSubmitted = "Your request has been received!"
	SubjectStatus    = "Update on your request"
	SubjectQuote     = "You have a new quote for your request"
	subjectFollowUp  = "Following up on your quote for %s"
)

var (
	markdownOnce sync.Once
	markdown     goldmark.Markdown
)

func getMarkdown() goldmark.Markdown {
	markdownOnce.Do(func() {
		markdown = goldmark.New(goldmark.WithExtensions(extension.GFM))
	})
	return markdown
}

var emailTemplates = template.Must(template.New("email").Parse(`
{{define "submitted"}}# Thank you for your request!

We have received your request for "{{.Category}}" and will be in touch shortly.

Request ID: {{.RequestID}}

[View your request here]({{.Link}})
{{end}}

{{define "status"}}The status of your request has been updated to: **{{.Status}}**.

Request ID: {{.RequestID}}

[View your request here]({{.Link}})
{{end}}

{{define "quote"}}A new quote for **{{.Amount}}** has been added to your request. Please log in to your portal to view the details.

Request ID: {{.RequestID}}

[View your request here]({{.Link}})
{{end}}

{{define "followup"}}Hi {{.Name}},

Just wanted to follow up on the quote we sent you for your recent request. Please let us know if you have any questions or if you'd like to move forward.

Request ID: {{.RequestID}}

[View your request here]({{.Link}})
{{end}}
`))

type emailData struct {
	Name      string
	Category  string
	Status    string
	Amount    string
	RequestID string
	Link      string
}

// render executes the named markdown template and returns it with its HTML.
func render(name string, data emailData) (text, html string, err error) {
	var md bytes.Buffer
	if err := emailTemplates.ExecuteTemplate(&md, name, data); err != nil {
		return "", "", fmt.Errorf("render %s: %w", name, err)
	}
	var out bytes.Buffer
	if err := getMarkdown().Convert(md.Bytes(), &out); err != nil {
		return "", "", fmt.Errorf("markdown %s: %w", name, err)
	}
	return strings.TrimSpace(md.String()), out.String(), nil
}

// humanCategory turns leak_repair into "leak repair".
func humanCategory(c string) string {
	return strings.ReplaceAll(c, "_", " ")
}
