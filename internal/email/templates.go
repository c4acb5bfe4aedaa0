package email

import "html/template"

type view struct {
	Payload
	SiteName string
}

const layout = `<!doctype html>
<html>
  <body style="font-family: Helvetica, sans-serif; font-size: 16px; color: #111;">
    {{template "body" .}}
    {{- with .Meta}}
    <p><small>{{range $i, $m := .}}{{if $i}} | {{end}}{{$m.Key}}: {{$m.Value}}{{end}}</small></p>
    {{- end}}
  </body>
</html>`

var bodies = map[Kind]string{
	KindContactNotification: `
    <h2>New contact form submission</h2>
    <p><strong>Name:</strong> {{.Name}}</p>
    <p><strong>Email:</strong> {{.Email}}</p>
    <p><strong>Company:</strong> {{or .Company "—"}}</p>
    <h3>Message</h3>
    <pre style="white-space: pre-wrap; font-family: sans-serif;">{{.Message}}</pre>`,

	KindContactAutoReply: `
    <p>Hi {{.Name}},</p>
    <p>Thanks for reaching out. We've received your message and will get back to you soon.</p>
    <p>— The {{.SiteName}} team</p>`,

	KindNewsletterConfirm: `
    <p>Thanks for subscribing to {{.SiteName}}.</p>
    <p><a href="{{.URL}}">Confirm your email</a> to receive updates on audit logging and compliance.</p>
    <p>If you didn't request this, you can ignore this email.</p>
    <p>— The {{.SiteName}} team</p>`,

	KindLeadMagnetDownload: `
    <p>Here's your download link for the <strong>{{.Title}}</strong>.</p>
    <p><a href="{{.URL}}">Download now</a></p>
    <p>This link is for your use only. If you didn't request this, you can ignore this email.</p>
    <p>— The {{.SiteName}} team</p>`,

	KindBookDemoNotification: `
    <h2>Book demo request</h2>
    <p><strong>Name:</strong> {{.Name}}</p>
    <p><strong>Email:</strong> {{.Email}}</p>
    <p><strong>Company:</strong> {{or .Company "—"}}</p>
    {{- with .Message}}
    <h3>Message</h3>
    <pre style="white-space: pre-wrap;">{{.}}</pre>
    {{- end}}`,

	KindWaitlistThanks: `
    <p>Hi{{with .Name}} {{.}}{{end}},</p>
    <p>Thanks for joining the {{.SiteName}} waitlist. We'll let you know as soon as there is news.</p>
    <p>If you didn't sign up, you can ignore this email.</p>
    <p>— The {{.SiteName}} team</p>`,
}

var templates = mustParse()

func mustParse() map[Kind]*template.Template {
	out := make(map[Kind]*template.Template, len(bodies))
	for kind, body := range bodies {
		t := template.Must(template.New(string(kind)).Parse(layout))
		template.Must(t.New("body").Parse(body))
		out[kind] = t
	}
	return out
}
