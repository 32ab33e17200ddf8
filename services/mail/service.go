package mail

import (
	"bytes"
	"fmt"
	htmlTemplate "html/template"
	"path/filepath"
	"strings"
	"sync"

	"github.com/localjobs/identity/config"
	"github.com/localjobs/identity/services/logging"
	"github.com/wneessen/go-mail"
	"go.uber.org/zap"
)

type Service struct {
	config        *config.MailConfig
	client        *mail.Client
	htmlTemplates *htmlTemplate.Template
	logger        *logging.Service

	mu       sync.Mutex
	recorded []RecordedMessage
}

// RecordedMessage is what the "log" driver captures instead of sending.
type RecordedMessage struct {
	To      []string
	Subject string
	Body    string
}

func NewService(cfg *config.MailConfig, logger *logging.Service) (*Service, error) {
	if cfg.FromAddress == "" {
		return nil, fmt.Errorf("MAIL_FROM_ADDRESS is required")
	}

	service := &Service{
		config: cfg,
		logger: logger,
	}

	if cfg.Driver != "log" {
		client, err := buildClient(cfg)
		if err != nil {
			return nil, err
		}
		service.client = client
	}

	if err := service.loadTemplates(); err != nil {
		return nil, fmt.Errorf("failed to load mail templates: %w", err)
	}

	logger.Info("mail service initialized",
		zap.String("driver", cfg.Driver),
		zap.String("host", cfg.Host),
		zap.String("from_address", cfg.FromAddress))
	return service, nil
}

func buildClient(cfg *config.MailConfig) (*mail.Client, error) {
	clientOpts := []mail.Option{
		mail.WithPort(cfg.Port),
	}

	switch cfg.Encryption {
	case "tls", "starttls":
		clientOpts = append(clientOpts, mail.WithTLSPortPolicy(mail.TLSMandatory))
	case "ssl":
		clientOpts = append(clientOpts, mail.WithSSL())
	case "none":
		clientOpts = append(clientOpts, mail.WithTLSPortPolicy(mail.NoTLS))
	default:
		clientOpts = append(clientOpts, mail.WithTLSPortPolicy(mail.TLSMandatory))
	}

	if cfg.Username != "" {
		clientOpts = append(clientOpts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(cfg.Username))
	}
	if cfg.Password != "" {
		clientOpts = append(clientOpts, mail.WithPassword(cfg.Password))
	}

	client, err := mail.NewClient(cfg.Host, clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create mail client: %w", err)
	}
	return client, nil
}

func (s *Service) loadTemplates() error {
	if s.config.TemplatesDir == "" {
		return nil
	}

	pattern := filepath.Join(s.config.TemplatesDir, "*.html")
	tmpl, err := htmlTemplate.ParseGlob(pattern)
	if err != nil {
		return err
	}
	s.htmlTemplates = tmpl
	return nil
}

// SendTemplate renders the named template and sends it to the recipients.
// The returned preview is non-empty only for the "log" driver, where it
// points at the recorded message rather than a delivered one.
func (s *Service) SendTemplate(templateName string, to []string, subject string, data map[string]any) (string, error) {
	body, err := s.render(templateName, data)
	if err != nil {
		return "", err
	}

	if s.config.Driver == "log" {
		s.mu.Lock()
		s.recorded = append(s.recorded, RecordedMessage{To: to, Subject: subject, Body: body})
		n := len(s.recorded)
		s.mu.Unlock()

		s.logger.Info("mail recorded (log driver)",
			zap.Strings("to", to),
			zap.String("subject", subject))
		return fmt.Sprintf("log://mail/%d", n), nil
	}

	msg := mail.NewMsg()
	if err := msg.FromFormat(s.config.FromName, s.config.FromAddress); err != nil {
		return "", fmt.Errorf("invalid from address: %w", err)
	}
	if err := msg.To(to...); err != nil {
		return "", fmt.Errorf("invalid recipient: %w", err)
	}
	msg.Subject(subject)
	msg.SetBodyString(mail.TypeTextHTML, body)

	if err := s.client.DialAndSend(msg); err != nil {
		s.logger.Error("failed to send mail",
			zap.Error(err),
			zap.Strings("to", to),
			zap.String("subject", subject))
		return "", fmt.Errorf("failed to send mail: %w", err)
	}

	s.logger.Info("mail sent", zap.Strings("to", to), zap.String("subject", subject))
	return "", nil
}

// Recorded returns messages captured by the "log" driver.
func (s *Service) Recorded() []RecordedMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]RecordedMessage, len(s.recorded))
	copy(out, s.recorded)
	return out
}

func (s *Service) render(templateName string, data map[string]any) (string, error) {
	if s.htmlTemplates != nil {
		if tmpl := s.htmlTemplates.Lookup(templateName + ".html"); tmpl != nil {
			var buf bytes.Buffer
			if err := tmpl.Execute(&buf, data); err != nil {
				return "", fmt.Errorf("failed to render template %s: %w", templateName, err)
			}
			return buf.String(), nil
		}
	}

	builtin, ok := builtinTemplates[templateName]
	if !ok {
		return "", fmt.Errorf("unknown mail template: %s", templateName)
	}

	var buf bytes.Buffer
	if err := builtin.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("failed to render template %s: %w", templateName, err)
	}
	return buf.String(), nil
}

var builtinTemplates = parseBuiltin(map[string]string{
	"email_otp": `<div style="font-family:Arial,sans-serif;line-height:1.6">
<h2 style="margin:0 0 8px">Your verification code</h2>
<p>Your verification code is:</p>
<div style="font-size:24px;font-weight:bold;letter-spacing:4px">{{.Code}}</div>
<p>It expires in <b>{{.Expiry}}</b>.</p>
</div>`,
	"phone_otp": `<div style="font-family:Arial,sans-serif;line-height:1.6">
<p>Your {{.AppName}} verification code is {{.Code}}. It expires in {{.Expiry}}.</p>
</div>`,
	"password_reset": `<div style="font-family:Arial,sans-serif;line-height:1.6">
<h2 style="margin:0 0 8px">Reset your password</h2>
<p>Use the link below to choose a new password. It expires in <b>{{.Expiry}}</b>.</p>
<p><a href="{{.ResetURL}}">{{.ResetURL}}</a></p>
<p>If you did not request this, you can ignore this message.</p>
</div>`,
	"password_reset_success": `<div style="font-family:Arial,sans-serif;line-height:1.6">
<p>Hello {{.Name}},</p>
<p>Your {{.AppName}} password was just changed. All other sessions have been signed out.</p>
<p>If this was not you, contact support immediately.</p>
</div>`,
})

func parseBuiltin(sources map[string]string) map[string]*htmlTemplate.Template {
	out := make(map[string]*htmlTemplate.Template, len(sources))
	for name, src := range sources {
		out[name] = htmlTemplate.Must(htmlTemplate.New(name).Parse(strings.TrimSpace(src)))
	}
	return out
}
