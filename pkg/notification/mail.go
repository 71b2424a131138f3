package notification

import (
	_ "embed"
	"fmt"
	"net/smtp"
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/raykavin/alertnrun/pkg/exchange"
)

//go:embed email_template.html
var emailTemplate string

// Mail delivers alert posts over SMTP, implementing core.MailSender.
type Mail struct {
	auth              smtp.Auth
	smtpServerPort    int
	smtpServerAddress string
	from              string
}

// MailParams contains all parameters needed to initialize a Mail instance.
type MailParams struct {
	SMTPServerPort    int
	SMTPServerAddress string
	From              string
	Password          string
}

// NewMail creates a new Mail instance with the provided parameters.
func NewMail(params MailParams) Mail {
	return Mail{
		from:              params.From,
		smtpServerPort:    params.SMTPServerPort,
		smtpServerAddress: params.SMTPServerAddress,
		auth: smtp.PlainAuth(
			"",
			params.From,
			params.Password,
			params.SMTPServerAddress,
		),
	}
}

// SendAlert emails a triggered alert post to every recipient. The post's
// leading field is the market pair, used to link the Binance spot page.
func (m Mail) SendAlert(post string, recipients []string) error {
	serverAddress := fmt.Sprintf("%s:%d", m.smtpServerAddress, m.smtpServerPort)

	pair := post
	if i := strings.IndexByte(post, ' '); i > 0 {
		pair = post[:i]
	}

	message := fmt.Sprintf(
		"To: %s\r\nFrom: \"Alert Bot\" <%s>\r\nSubject: 🔔 %s\r\nMIME-Version: 1.0\r\nContent-Type: text/html; charset=\"UTF-8\"\r\n\r\n%s",
		strings.Join(recipients, ", "),
		m.from,
		post,
		fmt.Sprintf(emailTemplate, post, exchange.TradeURL(pair)),
	)

	if err := smtp.SendMail(serverAddress, m.auth, m.from, recipients, []byte(message)); err != nil {
		log.WithError(err).Error("notification/mail: failed to send email")
		return fmt.Errorf("failed to send alert email: %w", err)
	}
	return nil
}
