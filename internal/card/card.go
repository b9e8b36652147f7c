// Package card renders the greeting card revealed by the celebration and
// hands its text to the clipboard.
package card

import (
	"fmt"
	"strings"
	"text/template"

	"github.com/atotto/clipboard"

	"github.com/petems/birthday-tray/internal/config"
)

const cardTemplate = `Happy Birthday, {{.Recipient}}!

{{.Message}}
{{- if .From}}

- {{.From}}
{{- end}}
`

var tmpl = template.Must(template.New("card").Parse(cardTemplate))

// Card is the greeting shown when every candle is out
type Card struct {
	Recipient string
	Message   string
	From      string
}

// FromConfig builds the card from the [card] section
func FromConfig(c config.CardConfig) Card {
	return Card{
		Recipient: c.Recipient,
		Message:   c.Message,
		From:      c.From,
	}
}

// Render returns the card text
func (c Card) Render() (string, error) {
	if strings.TrimSpace(c.Recipient) == "" {
		c.Recipient = "you"
	}
	var b strings.Builder
	if err := tmpl.Execute(&b, c); err != nil {
		return "", fmt.Errorf("render card: %w", err)
	}
	return b.String(), nil
}

// Deliverer puts the rendered card where the user can find it
type Deliverer interface {
	Deliver(Card) (string, error)
}

type clipboardDeliverer struct {
	write func(string) error
}

// NewClipboard returns a Deliverer that copies the card to the system clipboard
func NewClipboard() Deliverer {
	return &clipboardDeliverer{write: clipboard.WriteAll}
}

func (d *clipboardDeliverer) Deliver(c Card) (string, error) {
	text, err := c.Render()
	if err != nil {
		return "", err
	}
	if clipboard.Unsupported {
		return text, fmt.Errorf("no clipboard utility available")
	}
	if err := d.write(text); err != nil {
		return text, fmt.Errorf("failed to write clipboard: %w", err)
	}
	return text, nil
}
