package mail

import (
	"fmt"
	"net/smtp"
	"strings"

	"github.com/gofiber/fiber/v2/log"

	"github.com/VeloBillHQ/VeloBill/app/models"
	"github.com/VeloBillHQ/VeloBill/internal/pkg/env"
)

// SMTPMailer delivers HTML mail over plain SMTP. It satisfies the
// notification interfaces of the workflow pipeline, the reminder
// sender and the payment reconciler.
type SMTPMailer struct {
	Host     string
	Port     string
	Username string
	Password string
	Sender   string
}

// NewSMTPMailerFromEnv builds a mailer from SMTP_* environment values
func NewSMTPMailerFromEnv() *SMTPMailer {
	sender := env.GetEnv("SMTP_SENDER", "")
	if sender == "" {
		sender = "no-reply@localhost"
		log.Warnf("[Mail] SMTP_SENDER not set, using default sender %s", sender)
	}
	return &SMTPMailer{
		Host:     env.GetEnv("SMTP_HOST", ""),
		Port:     env.GetEnv("SMTP_PORT", "587"),
		Username: env.GetEnv("SMTP_USERNAME", ""),
		Password: env.GetEnv("SMTP_PASSWORD", ""),
		Sender:   sender,
	}
}

// SendMail sends one HTML email
func (m *SMTPMailer) SendMail(to, subject, body string) error {
	var auth smtp.Auth
	if m.Username != "" && m.Password != "" {
		auth = smtp.PlainAuth("", m.Username, m.Password, m.Host)
	}

	addr := m.Host + ":" + m.Port
	msg := []byte(
		fmt.Sprintf("From: %s\r\nTo: %s\r\nSubject: %s\r\n", m.Sender, to, subject) +
			"MIME-Version: 1.0\r\n" +
			"Content-Type: text/html; charset=UTF-8\r\n\r\n" +
			body,
	)

	if err := smtp.SendMail(addr, auth, m.Sender, []string{to}, msg); err != nil {
		log.Errorf("[Mail] SMTP send to %s failed: %v", to, err)
		return err
	}
	log.Infof("[Mail] Email sent to %s via %s", to, addr)
	return nil
}

// SendPaymentReminder mails the friendly payment nudge for an open
// invoice.
func (m *SMTPMailer) SendPaymentReminder(toEmail string, invoice *models.Invoice) error {
	subject := fmt.Sprintf("Payment reminder for invoice %s", invoice.InvoiceNumber)
	lines := []string{
		"Hello,",
		"",
		fmt.Sprintf("this is a friendly reminder that invoice <b>%s</b> over %s is still open.",
			invoice.InvoiceNumber, formatAmount(invoice.Total, invoice.Currency)),
	}
	if invoice.DueDate != nil {
		lines = append(lines, fmt.Sprintf("It was due on %s.", invoice.DueDate.Format("January 2, 2006")))
	}
	lines = append(lines, "", "Thank you,", "VeloBill")
	return m.SendMail(toEmail, subject, strings.Join(lines, "<br>"))
}

// SendPaymentReceipt mails the confirmation after a successful payment.
func (m *SMTPMailer) SendPaymentReceipt(toEmail string, invoice *models.Invoice, payment *models.Payment) error {
	subject := fmt.Sprintf("Payment received for invoice %s", invoice.InvoiceNumber)
	paidOn := ""
	if payment.PaidAt != nil {
		paidOn = " on " + payment.PaidAt.Format("January 2, 2006")
	}
	body := strings.Join([]string{
		"Hello,",
		"",
		fmt.Sprintf("we received your payment of %s for invoice <b>%s</b>%s.",
			formatAmount(payment.Amount, payment.Currency), invoice.InvoiceNumber, paidOn),
		"No further action is needed.",
		"",
		"Thank you,",
		"VeloBill",
	}, "<br>")
	return m.SendMail(toEmail, subject, body)
}

// formatAmount renders a minor-unit amount like 12345 as "123.45 USD"
func formatAmount(minor int64, currency string) string {
	sign := ""
	if minor < 0 {
		sign = "-"
		minor = -minor
	}
	return fmt.Sprintf("%s%d.%02d %s", sign, minor/100, minor%100, strings.ToUpper(currency))
}
