package agent

import (
	"strings"
	"text/template"

	"github.com/ShayCichocki/devteam/pkg/models"
)

var respondTemplate = template.Must(template.New("respond").Parse(
	`{{if .History}}Conversation so far:
{{range .History}}
[{{.Sequence}}] {{.SenderRole}} -> {{.RecipientRole}} ({{.Kind}}):
{{.Content}}
{{end}}
{{end}}Current directive:
{{.Directive}}

Respond as the {{.Name}}. Deliver the complete work product for this directive.`))

var evaluateTemplate = template.Must(template.New("evaluate").Parse(
	`You are reviewing work submitted by a member of your team.

Original directive:
{{.Directive}}

Submitted result:
{{.Result}}

Decide whether the result fully satisfies the directive.
Reply in exactly this format:
VERDICT: ACCEPT or REVISE
FEEDBACK: specific, actionable feedback (required when the verdict is REVISE)`))

var revisionTemplate = template.Must(template.New("revision").Parse(
	`Your previous submission was not accepted. Revise it.

Original directive:
{{.Directive}}

Reviewer feedback:
{{.Feedback}}

Return the complete revised work product, not only the changes.`))

var integrateTemplate = template.Must(template.New("integrate").Parse(
	`Integrate the accepted work of your team into one coherent answer to the original request.

Original request:
{{.Request}}
{{range .Parts}}
--- {{.Role}}: {{.Description}} ---
{{.Result}}
{{end}}
Resolve inconsistencies between the parts and present the final solution.`))

type respondData struct {
	Name      string
	History   []models.Message
	Directive string
}

type evaluateData struct {
	Directive string
	Result    string
}

type revisionData struct {
	Directive string
	Feedback  string
}

// IntegrationPart is one accepted subtask handed to the integration prompt.
type IntegrationPart struct {
	Role        models.Role
	Description string
	Result      string
}

type integrateData struct {
	Request string
	Parts   []IntegrationPart
}

func render(t *template.Template, data any) string {
	var b strings.Builder
	// Templates are parsed at init and their data types are fixed, so
	// execution cannot fail on anything but a writer error.
	_ = t.Execute(&b, data)
	return b.String()
}

// RenderRespond builds the prompt an agent answers a directive with.
func RenderRespond(name string, history []models.Message, directive string) string {
	return render(respondTemplate, respondData{Name: name, History: history, Directive: directive})
}

// RenderEvaluate builds the coordinator's review prompt.
func RenderEvaluate(directive, result string) string {
	return render(evaluateTemplate, evaluateData{Directive: directive, Result: result})
}

// RevisionDirective builds the follow-up directive sent after a REVISE verdict.
func RevisionDirective(directive, feedback string) string {
	if strings.TrimSpace(feedback) == "" {
		feedback = "No specific feedback was given. Re-check the directive and improve completeness and correctness."
	}
	return render(revisionTemplate, revisionData{Directive: directive, Feedback: feedback})
}

// IntegrationDirective builds the coordinator directive that merges accepted results.
func IntegrationDirective(request string, parts []IntegrationPart) string {
	return render(integrateTemplate, integrateData{Request: request, Parts: parts})
}
