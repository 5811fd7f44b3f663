// Package report summarizes the archive's recent reply activity into a
// plain-text report, written to disk and optionally emailed.
package report

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"text/template"
	"time"

	"github.com/jshapland/replybot/internal/store"
)

// Window is how far back a report looks.
const Window = 24 * time.Hour

// Builder renders activity reports from archived replies.
type Builder struct {
	outputDir string
	template  *template.Template
}

// New creates a report builder writing into outputDir.
func New(outputDir string) (*Builder, error) {
	tmpl, err := template.New("report").Parse(defaultTemplate)
	if err != nil {
		return nil, fmt.Errorf("failed to parse template: %w", err)
	}
	return &Builder{outputDir: outputDir, template: tmpl}, nil
}

// Report is a compiled report ready for delivery.
type Report struct {
	Subject   string
	Body      string
	FilePath  string
	CreatedAt time.Time
}

type reportData struct {
	Date     string
	Total    int
	DryRuns  int
	Accounts []accountData
}

type accountData struct {
	Handle  string
	Count   int
	Replies []replyData
}

type replyData struct {
	Time   string
	PostID int64
	Author string
	Text   string
}

// Build renders the replies recorded in the window ending at now and
// writes the report to a dated file.
func (b *Builder) Build(replies []store.SentReply, now time.Time) (*Report, error) {
	data := reportData{Date: now.Format("2006-01-02")}
	byAccount := make(map[string]*accountData)
	for _, r := range replies {
		data.Total++
		if r.DryRun {
			data.DryRuns++
		}
		acct, ok := byAccount[r.AccountHandle]
		if !ok {
			acct = &accountData{Handle: r.AccountHandle}
			byAccount[r.AccountHandle] = acct
		}
		acct.Count++
		acct.Replies = append(acct.Replies, replyData{
			Time:   r.CreatedAt.Format("15:04"),
			PostID: r.PostID,
			Author: r.PostAuthor,
			Text:   r.ReplyText,
		})
	}

	handles := make([]string, 0, len(byAccount))
	for h := range byAccount {
		handles = append(handles, h)
	}
	sort.Strings(handles)
	for _, h := range handles {
		data.Accounts = append(data.Accounts, *byAccount[h])
	}

	var buf bytes.Buffer
	if err := b.template.Execute(&buf, data); err != nil {
		return nil, fmt.Errorf("failed to render report: %w", err)
	}

	if err := os.MkdirAll(b.outputDir, 0o755); err != nil {
		return nil, err
	}
	path := filepath.Join(b.outputDir, "report-"+data.Date+".txt")
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return nil, err
	}

	return &Report{
		Subject:   fmt.Sprintf("Reply bot activity for %s (%d replies)", data.Date, data.Total),
		Body:      buf.String(),
		FilePath:  path,
		CreatedAt: now,
	}, nil
}

const defaultTemplate = `Reply bot activity for {{.Date}}

Replies recorded: {{.Total}}{{if .DryRuns}} ({{.DryRuns}} dry-run){{end}}
{{range .Accounts}}
@{{.Handle}}: {{.Count}} replies
{{- range .Replies}}
  {{.Time}}  post {{.PostID}} by @{{.Author}}: {{.Text}}
{{- end}}
{{end}}{{if not .Accounts}}
No replies in this window.
{{end}}`
