package notification

import (
	"bytes"
	"crypto/tls"
	"fmt"
	"log/slog"
	"text/template"
	"time"

	"github.com/wneessen/go-mail"
)

type SMTPConfig struct {
	Host     string
	Port     int
	TLS      bool
	Username string
	Password string
	From     string
}

// noticeTemplate is the subject and body for one notification type.
type noticeTemplate struct {
	Subject string
	Text    string
}

// Built-in templates keyed by type and locale; the "" locale is the
// fallback.
var templates = map[NotificationType]map[string]noticeTemplate{
	PasswordRecoveryNotice: {
		"": {
			Subject: "Password recovery",
			Text: "Hello,\n\nyou requested a new password for your control panel account.\n" +
				"Please click on the following link to set a new password:\n\n{{.Link}}\n\n" +
				"If you did not request this, you can ignore this email.\n",
		},
		"de": {
			Subject: "Passwort zurücksetzen",
			Text: "Hallo,\n\nSie haben ein neues Passwort für Ihr Konto angefordert.\n" +
				"Bitte klicken Sie auf den folgenden Link:\n\n{{.Link}}\n",
		},
	},
	WelcomeNotice: {
		"": {
			Subject: "Welcome to the control panel",
			Text:    "Hello,\n\nyour account {{.Email}} has been created.\n",
		},
	},
}

func lookupTemplate(notifType NotificationType, locale string) (noticeTemplate, error) {
	byLocale, ok := templates[notifType]
	if !ok {
		return noticeTemplate{}, fmt.Errorf("no template registered for notification type: %s", notifType)
	}
	if tmpl, ok := byLocale[locale]; ok {
		return tmpl, nil
	}
	return byLocale[""], nil
}

// EmailNotifier delivers notifications over SMTP.
type EmailNotifier struct {
	SMTPConfig SMTPConfig
	client     *mail.Client
}

// NewEmailNotifier creates a mail client for the given SMTP config
func NewEmailNotifier(config SMTPConfig) (*EmailNotifier, error) {
	opts := []mail.Option{
		mail.WithPort(config.Port),
		mail.WithTimeout(30 * time.Second),
	}

	if config.Username != "" && config.Password != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthLogin),
			mail.WithUsername(config.Username),
			mail.WithPassword(config.Password),
		)
	}

	if !config.TLS {
		slog.Info("Using NoTLS policy")
		opts = append(opts,
			mail.WithTLSConfig(&tls.Config{InsecureSkipVerify: true}),
			mail.WithTLSPolicy(mail.NoTLS),
		)
	} else {
		opts = append(opts,
			mail.WithTLSPolicy(mail.TLSMandatory),
		)
	}

	slog.Info("Creating mail client", "Host", config.Host, "Port", config.Port)
	client, err := mail.NewClient(config.Host, opts...)
	if err != nil {
		slog.Error("Failed to create mail client", "err", err)
		return nil, err
	}

	return &EmailNotifier{SMTPConfig: config, client: client}, nil
}

func (e *EmailNotifier) Send(notification NotificationData) error {
	if notification.To == "" {
		return fmt.Errorf("email notification requires 'To' address")
	}

	noticeTmpl, err := lookupTemplate(notification.Type, notification.Locale)
	if err != nil {
		return err
	}

	tmpl, err := template.New("text").Parse(noticeTmpl.Text)
	if err != nil {
		slog.Error("Failed to parse text template", "type", notification.Type, "err", err)
		return err
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, notification.Data); err != nil {
		slog.Error("Failed to execute text template", "type", notification.Type, "err", err)
		return err
	}

	msg := mail.NewMsg()
	if err := msg.From(e.SMTPConfig.From); err != nil {
		slog.Error("Failed to set from address", "err", err)
		return err
	}
	if err := msg.To(notification.To); err != nil {
		slog.Error("Failed to set to address", "err", err)
		return err
	}
	msg.Subject(noticeTmpl.Subject)
	msg.SetBodyString(mail.TypeTextPlain, buf.String())

	if err := e.client.DialAndSend(msg); err != nil {
		slog.Error("Failed to send email", "to", notification.To, "err", err)
		return fmt.Errorf("%w: %v", ErrSendFailed, err)
	}

	slog.Info("Email sent", "to", notification.To, "type", notification.Type)
	return nil
}
