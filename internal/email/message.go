package email

import (
	"bytes"
	"fmt"
	"html"
	"io"
	"strings"

	"github.com/microcosm-cc/bluemonday"
	"gopkg.in/gomail.v2"
)

// Attachment is a file sent along with a message.
type Attachment struct {
	Filename    string
	ContentType string
	Data        []byte
}

// Message is a rendered email ready to hand to a provider. From is chosen by
// the sender, usually the configured address or the signed-in user's mailbox.
type Message struct {
	To         string
	Subject    string
	HTML       string
	Attachment *Attachment
}

// Text returns the plain-text alternative of the HTML body.
func (m *Message) Text() string {
	return HTMLToText(m.HTML)
}

var blockBreaks = strings.NewReplacer(
	"</p>", "</p>\n",
	"</div>", "</div>\n",
	"</li>", "</li>\n",
	"</h1>", "</h1>\n",
	"</h2>", "</h2>\n",
	"</h3>", "</h3>\n",
	"<br>", "\n<br>",
	"<br/>", "\n<br/>",
	"<br />", "\n<br />",
)

// HTMLToText strips all markup from s. Block ends become line breaks.
func HTMLToText(s string) string {
	stripped := bluemonday.StrictPolicy().Sanitize(blockBreaks.Replace(s))
	lines := strings.Split(html.UnescapeString(stripped), "\n")
	out := lines[:0]
	for _, l := range lines {
		if l = strings.TrimSpace(l); l != "" {
			out = append(out, l)
		}
	}
	return strings.Join(out, "\n")
}

// Envelope holds the addressing a sender adds to a Message.
type Envelope struct {
	From     string
	FromName string
	ReplyTo  string
}

func newGomailMessage(env Envelope, msg *Message) *gomail.Message {
	m := gomail.NewMessage()
	if env.FromName != "" {
		m.SetAddressHeader("From", env.From, env.FromName)
	} else {
		m.SetHeader("From", env.From)
	}
	m.SetHeader("To", msg.To)
	if env.ReplyTo != "" && env.ReplyTo != env.From {
		m.SetHeader("Reply-To", env.ReplyTo)
	}
	m.SetHeader("Subject", msg.Subject)
	m.SetBody("text/plain", msg.Text())
	m.AddAlternative("text/html", msg.HTML)

	if a := msg.Attachment; a != nil {
		data := a.Data
		m.Attach(a.Filename,
			gomail.SetHeader(map[string][]string{"Content-Type": {a.ContentType}}),
			gomail.SetCopyFunc(func(w io.Writer) error {
				_, err := w.Write(data)
				return err
			}),
		)
	}
	return m
}

// BuildMessage renders msg as an RFC 5322 message with a text and an HTML
// part, plus the attachment if any.
func BuildMessage(env Envelope, msg *Message) ([]byte, error) {
	var buf bytes.Buffer
	if _, err := newGomailMessage(env, msg).WriteTo(&buf); err != nil {
		return nil, fmt.Errorf("failed to build MIME message: %w", err)
	}
	return buf.Bytes(), nil
}
