package notify

import (
	"context"
	"fmt"
	"io"

	gomail "gopkg.in/gomail.v2"
)

// Email sends messages over SMTP
type Email struct {
	host        string
	port        int
	user        string
	password    string
	displayName string
}

// NewEmail creates a new Email sender
func NewEmail(host string, port int, user, password, displayName string) (*Email, error) {
	if host == "" {
		return nil, fmt.Errorf("smtp host is required")
	}
	if port == 0 {
		port = 587
	}
	return &Email{
		host:        host,
		port:        port,
		user:        user,
		password:    password,
		displayName: displayName,
	}, nil
}

// Notify sends a plain-text email
func (e *Email) Notify(_ context.Context, recipient string, message string) error {
	return e.send(recipient, "Billing update", message, "", nil)
}

// SendInvoice sends an email with an attached invoice PDF
func (e *Email) SendInvoice(_ context.Context, recipient, subject, body, pdfName string, pdfData []byte) error {
	return e.send(recipient, subject, body, pdfName, pdfData)
}

func (e *Email) send(to, subject, body, attachName string, attachData []byte) error {
	msg := gomail.NewMessage()
	msg.SetHeader("From", msg.FormatAddress(e.user, e.displayName))
	msg.SetHeader("To", to)
	msg.SetHeader("Subject", subject)
	msg.SetBody("text/plain", body)

	if attachName != "" && attachData != nil {
		msg.Attach(attachName, gomail.SetCopyFunc(func(w io.Writer) error {
			_, err := w.Write(attachData)
			return err
		}))
	}

	dialer := gomail.NewDialer(e.host, e.port, e.user, e.password)
	if err := dialer.DialAndSend(msg); err != nil {
		return fmt.Errorf("sending email: %w", err)
	}
	return nil
}
