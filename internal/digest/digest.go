package digest

import (
	"bytes"
	"fmt"
	"html/template"
	"net/smtp"
	"strings"
	"time"

	"agrohub/internal/catalog"
	"agrohub/internal/collector"
	"agrohub/internal/processor"
)

const fallbackColor = "#6B7280"

const digestTemplate = `<!DOCTYPE html>
<html lang="pt-BR">
<head><meta charset="utf-8"></head>
<body style="margin:0;padding:24px;background:#F4F6F3;font-family:Arial,Helvetica,sans-serif;color:#1F2933;">
<div style="max-width:640px;margin:0 auto;background:#FFFFFF;border-radius:8px;padding:24px;">
  <h1 style="margin:0 0 4px;font-size:22px;color:#0FA66D;">Boletim AgroHub</h1>
  <p style="margin:0 0 20px;font-size:13px;color:#6B7280;">Atualizado em {{.GeneratedLabel}}</p>
{{if .Quotes}}
  <table style="width:100%;border-collapse:collapse;margin-bottom:24px;font-size:14px;">
    <tr style="text-align:left;color:#6B7280;">
      <th style="padding:6px 8px;border-bottom:1px solid #E5E7EB;">Indicador</th>
      <th style="padding:6px 8px;border-bottom:1px solid #E5E7EB;">Valor</th>
      <th style="padding:6px 8px;border-bottom:1px solid #E5E7EB;">Varia&ccedil;&atilde;o</th>
    </tr>
{{range .Quotes}}
    <tr>
      <td style="padding:6px 8px;border-bottom:1px solid #E5E7EB;">{{.Label}}</td>
      <td style="padding:6px 8px;border-bottom:1px solid #E5E7EB;">{{.Value}}{{if .Unit}} {{.Unit}}{{end}}</td>
      <td style="padding:6px 8px;border-bottom:1px solid #E5E7EB;color:{{if .Negative}}#B91C1C{{else}}#15803D{{end}};">{{.Change}}</td>
    </tr>
{{end}}
  </table>
{{end}}
{{range .Articles}}
  <div style="border-left:4px solid {{.Color}};padding:8px 12px;margin-bottom:16px;">
{{if .TopicLabel}}    <span style="font-size:11px;text-transform:uppercase;letter-spacing:1px;color:{{.Color}};">{{.TopicLabel}}</span><br>
{{end}}    <a href="{{.URL}}" style="font-size:16px;font-weight:bold;color:#1F2933;text-decoration:none;">{{.Title}}</a>
{{if .Summary}}    <p style="margin:6px 0 4px;font-size:13px;color:#4B5563;">{{.Summary}}</p>
{{end}}    <p style="margin:0;font-size:12px;color:#9CA3AF;">{{.Source}} &middot; {{.PublishedLabel}}</p>
  </div>
{{end}}
{{if .Degraded}}
  <p style="font-size:12px;color:#B91C1C;">Fontes indispon&iacute;veis nesta edi&ccedil;&atilde;o: {{.DegradedList}}</p>
{{end}}
</div>
</body>
</html>
`

type quoteRow struct {
	Label    string
	Value    string
	Unit     string
	Change   string
	Negative bool
}

type articleRow struct {
	Title          string
	URL            string
	Summary        string
	Source         string
	TopicLabel     string
	Color          string
	PublishedLabel string
}

type digestData struct {
	GeneratedLabel string
	Quotes         []quoteRow
	Articles       []articleRow
	Degraded       []string
	DegradedList   string
}

// Builder renders the HTML bulletin sent by the digest endpoint. Topic
// labels and colors come from the catalog; timestamps are printed in the
// display timezone.
type Builder struct {
	tmpl *template.Template
	cat  *catalog.Catalog
	loc  *time.Location
}

func NewBuilder(cat *catalog.Catalog, loc *time.Location) (*Builder, error) {
	tmpl, err := template.New("digest").Parse(digestTemplate)
	if err != nil {
		return nil, fmt.Errorf("digest: parse template: %w", err)
	}
	if loc == nil {
		loc = time.UTC
	}
	return &Builder{tmpl: tmpl, cat: cat, loc: loc}, nil
}

// Subject returns the mail subject for a bulletin generated at the given
// instant.
func (b *Builder) Subject(at time.Time) string {
	return "Boletim AgroHub - " + at.In(b.loc).Format("02/01/2006")
}

func (b *Builder) Render(snap processor.Snapshot, quotes []collector.Quote, at time.Time) ([]byte, error) {
	data := digestData{
		GeneratedLabel: at.In(b.loc).Format("02/01/2006 15:04"),
		Degraded:       snap.Degraded,
		DegradedList:   strings.Join(snap.Degraded, ", "),
	}

	for _, q := range quotes {
		row := quoteRow{
			Label:    q.Label,
			Value:    q.Value,
			Unit:     q.Unit,
			Change:   q.Change,
			Negative: strings.HasPrefix(q.Change, "-"),
		}
		if row.Value == "" {
			row.Value = "--"
			row.Unit = ""
		}
		data.Quotes = append(data.Quotes, row)
	}

	for _, art := range snap.Articles {
		row := articleRow{
			Title:          art.Title,
			URL:            art.URL,
			Summary:        art.Summary,
			Source:         art.Source,
			Color:          fallbackColor,
			PublishedLabel: art.PublishedAt.In(b.loc).Format("02/01/2006 15:04"),
		}
		if topic, ok := b.cat.Get(art.TopicID); ok {
			row.TopicLabel = topic.Label
			row.Color = topic.Color
		}
		data.Articles = append(data.Articles, row)
	}

	var buf bytes.Buffer
	if err := b.tmpl.Execute(&buf, data); err != nil {
		return nil, fmt.Errorf("digest: render: %w", err)
	}
	return buf.Bytes(), nil
}

// Mailer delivers a rendered bulletin.
type Mailer interface {
	Send(subject string, body []byte) error
}

type SMTPConfig struct {
	Host string
	Port int
	User string
	Pass string
	From string
	To   []string
}

// SMTPMailer sends bulletins over plain SMTP. Auth is used only when a
// user is configured, so local relays without credentials keep working.
type SMTPMailer struct {
	cfg SMTPConfig
}

func NewSMTPMailer(cfg SMTPConfig) *SMTPMailer {
	return &SMTPMailer{cfg: cfg}
}

func (m *SMTPMailer) Send(subject string, body []byte) error {
	addr := fmt.Sprintf("%s:%d", m.cfg.Host, m.cfg.Port)

	var auth smtp.Auth
	if m.cfg.User != "" {
		auth = smtp.PlainAuth("", m.cfg.User, m.cfg.Pass, m.cfg.Host)
	}

	msg := message(m.cfg.From, m.cfg.To, subject, body)
	if err := smtp.SendMail(addr, auth, m.cfg.From, m.cfg.To, msg); err != nil {
		return fmt.Errorf("digest: send via %s: %w", addr, err)
	}
	return nil
}

func message(from string, to []string, subject string, body []byte) []byte {
	var b bytes.Buffer
	fmt.Fprintf(&b, "From: %s\r\n", from)
	fmt.Fprintf(&b, "To: %s\r\n", strings.Join(to, ", "))
	fmt.Fprintf(&b, "Subject: %s\r\n", subject)
	fmt.Fprintf(&b, "Date: %s\r\n", time.Now().Format(time.RFC1123Z))
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/html; charset=\"UTF-8\"\r\n")
	b.WriteString("\r\n")
	b.Write(body)
	return b.Bytes()
}
