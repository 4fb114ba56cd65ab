package mailer

import (
	"context"
	"errors"

	log "github.com/sirupsen/logrus"
	"gopkg.in/gomail.v2"
)

// Message is an email to send
type Message struct {
	To      string
	Subject string
	// Plain-text body
	Text string
	// Optional HTML body, sent as an alternative to the plain-text one
	HTML string
}

// Mailer sends emails
type Mailer interface {
	Send(ctx context.Context, msg Message) error
}

// SMTPOptions contains the options for the SMTP mailer
type SMTPOptions struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

// SMTP is a Mailer that delivers messages through a SMTP server
type SMTP struct {
	from   string
	dialer *gomail.Dialer
	log    *log.Entry
}

// NewSMTP returns a SMTP mailer
func NewSMTP(opts SMTPOptions) (*SMTP, error) {
	if opts.Host == "" {
		return nil, errors.New("SMTP host is empty")
	}
	from := opts.From
	if from == "" {
		from = opts.Username
	}
	if from == "" {
		return nil, errors.New("sender address is empty: set MailFrom or SMTPUser")
	}

	return &SMTP{
		from:   from,
		dialer: gomail.NewDialer(opts.Host, opts.Port, opts.Username, opts.Password),
		log:    log.WithField("component", "mailer"),
	}, nil
}

// From returns the sender address
func (m *SMTP) From() string {
	return m.from
}

// Send a message
// A new connection is opened for each message
func (m *SMTP) Send(ctx context.Context, msg Message) error {
	if msg.To == "" {
		return errors.New("message does not have any recipient")
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	err := m.dialer.DialAndSend(m.buildMessage(msg))
	if err != nil {
		return err
	}

	m.log.Debugf("Sent message '%s' to %s", msg.Subject, msg.To)
	return nil
}

func (m *SMTP) buildMessage(msg Message) *gomail.Message {
	gm := gomail.NewMessage()
	gm.SetHeader("From", m.from)
	gm.SetHeader("To", msg.To)
	gm.SetHeader("Subject", msg.Subject)
	gm.SetBody("text/plain", msg.Text)
	if msg.HTML != "" {
		gm.AddAlternative("text/html", msg.HTML)
	}
	return gm
}
