package notification

import (
	"bytes"
	"context"
	"fmt"
	"net/smtp"
	"text/template"
	"time"

	"go.uber.org/zap"

	"github.com/smukkama/tourist-safety/internal/protocol"
	"github.com/smukkama/tourist-safety/pkg/config"
)

const defaultEmailSubject = "🚨 EMERGENCY ALERT - Tourist Safety Monitor"

var emergencyTemplate = template.Must(template.New("emergency").Parse(`
EMERGENCY ALERT
===============

{{.Message}}

Emergency ID: {{.SOSID}}
Tourist ID: {{.TouristID}}
Time: {{.RequestedAt.Format "2006-01-02 15:04:05 MST"}}
Source: Tourist Safety Monitor System

This is an automated emergency notification. Please respond immediately.
`))

type sendMailFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

// EmailNotifier sends emergency notifications over SMTP
type EmailNotifier struct {
	config   *config.SMTPConfig
	logger   *zap.Logger
	sendMail sendMailFunc
}

// NewEmailNotifier creates a new email notifier
func NewEmailNotifier(cfg *config.SMTPConfig, logger *zap.Logger) *EmailNotifier {
	return &EmailNotifier{config: cfg, logger: logger, sendMail: smtp.SendMail}
}

// Send delivers req by email. Without SMTP credentials the message is
// logged and reported as skipped.
func (e *EmailNotifier) Send(_ context.Context, req protocol.NotificationRequest) (*protocol.DeliveryResult, error) {
	body, err := renderEmergency(req)
	if err != nil {
		return nil, fmt.Errorf("failed to render email template: %w", err)
	}

	subject := req.Subject
	if subject == "" {
		subject = defaultEmailSubject
	}
	result := &protocol.DeliveryResult{Channel: protocol.NotificationEmail, Recipient: req.Recipient}

	if e.config.Username == "" || e.config.Password == "" {
		e.logger.Info("SMTP not configured, skipping email",
			zap.String("recipient", req.Recipient),
			zap.String("subject", subject),
			zap.String("sos_id", req.SOSID))
		result.Status = protocol.DeliverySkipped
		return result, nil
	}

	message := fmt.Sprintf("From: %s\r\n", e.config.From)
	message += fmt.Sprintf("To: %s\r\n", req.Recipient)
	message += fmt.Sprintf("Subject: %s\r\n", subject)
	message += fmt.Sprintf("Date: %s\r\n", time.Now().Format(time.RFC1123Z))
	message += "\r\n"
	message += body

	auth := smtp.PlainAuth("", e.config.Username, e.config.Password, e.config.Host)
	addr := fmt.Sprintf("%s:%d", e.config.Host, e.config.Port)
	if err := e.sendMail(addr, auth, e.config.From, []string{req.Recipient}, []byte(message)); err != nil {
		return nil, fmt.Errorf("failed to send email: %w", err)
	}

	e.logger.Info("emergency email notification sent",
		zap.String("recipient", req.Recipient),
		zap.String("sos_id", req.SOSID))
	result.Status = protocol.DeliverySent
	return result, nil
}

func renderEmergency(req protocol.NotificationRequest) (string, error) {
	var buf bytes.Buffer
	if err := emergencyTemplate.Execute(&buf, req); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// TestConnection tests the SMTP connection
func (e *EmailNotifier) TestConnection() error {
	if e.config.Username == "" {
		return fmt.Errorf("SMTP not configured")
	}

	addr := fmt.Sprintf("%s:%d", e.config.Host, e.config.Port)
	client, err := smtp.Dial(addr)
	if err != nil {
		return fmt.Errorf("failed to connect to SMTP server: %w", err)
	}
	defer client.Close()

	return nil
}
