// Package notification renders templated emails and delivers them off the
// request path. Delivery failures are logged and never reach the caller.
package notification

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
)

// Template IDs used by the domain services.
const (
	TplAppointmentBooked  = "appointment-booked"
	TplOPDBill            = "opd-bill"
	TplAdmissionApproved  = "admission-approved"
	TplAdmissionRejected  = "admission-rejected"
	TplAdmissionDischarge = "admission-discharged"
	TplHospitalBill       = "hospitalization-bill"
	TplOTP                = "otp-code"
)

// Attachment is a file sent along with an email.
type Attachment struct {
	Name        string
	ContentType string
	Content     []byte
}

// Message is a request to notify one recipient using a template.
type Message struct {
	To          string
	TemplateID  string
	Data        map[string]string
	Attachments []Attachment
}

// Email is a rendered message ready for a sender.
type Email struct {
	To          string
	Subject     string
	Body        string
	Attachments []Attachment
}

// EmailSender delivers one rendered email.
type EmailSender interface {
	SendEmail(ctx context.Context, email Email) error
}

// Template is a subject/body pair with {{key}} placeholders.
type Template struct {
	ID      string
	Subject string
	Body    string
}

type TemplateEngine struct {
	mu        sync.RWMutex
	templates map[string]*Template
}

func NewTemplateEngine() *TemplateEngine {
	e := &TemplateEngine{templates: make(map[string]*Template)}
	for _, t := range builtIn {
		e.RegisterTemplate(t)
	}
	return e
}

var builtIn = []Template{
	{
		ID:      TplAppointmentBooked,
		Subject: "Appointment confirmed: token {{token_number}}",
		Body:    "Dear {{patient_name}}, your OPD appointment on {{date}} at {{start_time}} is confirmed. Your token number is {{token_number}}.",
	},
	{
		ID:      TplOPDBill,
		Subject: "Your OPD bill",
		Body:    "Dear {{patient_name}}, your bill for the visit on {{date}} is {{total_amount}}. The invoice is attached.",
	},
	{
		ID:      TplAdmissionApproved,
		Subject: "Admission approved",
		Body:    "Dear {{patient_name}}, your admission has been approved. Ward: {{ward}}.",
	},
	{
		ID:      TplAdmissionRejected,
		Subject: "Admission request declined",
		Body:    "Dear {{patient_name}}, your admission request was declined: {{reason}}",
	},
	{
		ID:      TplAdmissionDischarge,
		Subject: "Discharge confirmation",
		Body:    "Dear {{patient_name}}, you were discharged on {{discharge_date}}. Your bill will follow.",
	},
	{
		ID:      TplHospitalBill,
		Subject: "Hospitalization bill {{bill_number}}",
		Body:    "Dear {{patient_name}}, your bill {{bill_number}} for {{total_days}} day(s) is ready. Net payable: {{net_payable}}. The invoice is attached.",
	},
	{
		ID:      TplOTP,
		Subject: "Your verification code",
		Body:    "Your verification code is {{code}}. It expires in {{ttl_minutes}} minutes.",
	},
}

// RegisterTemplate adds or replaces a template.
func (e *TemplateEngine) RegisterTemplate(t Template) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.templates[t.ID] = &t
}

// Render performs {{key}} replacement. Placeholders without data are left
// as-is.
func (e *TemplateEngine) Render(templateID string, data map[string]string) (subject, body string, err error) {
	e.mu.RLock()
	t, ok := e.templates[templateID]
	e.mu.RUnlock()
	if !ok {
		return "", "", fmt.Errorf("template %q not found", templateID)
	}

	subject, body = t.Subject, t.Body
	for k, v := range data {
		placeholder := "{{" + k + "}}"
		subject = strings.ReplaceAll(subject, placeholder, v)
		body = strings.ReplaceAll(body, placeholder, v)
	}
	return subject, body, nil
}

// Build renders msg into an Email.
func (e *TemplateEngine) Build(msg Message) (Email, error) {
	if msg.To == "" {
		return Email{}, errors.New("recipient is required")
	}
	subject, body, err := e.Render(msg.TemplateID, msg.Data)
	if err != nil {
		return Email{}, err
	}
	return Email{To: msg.To, Subject: subject, Body: body, Attachments: msg.Attachments}, nil
}

// MockEmailSender records emails instead of sending them.
type MockEmailSender struct {
	mu         sync.Mutex
	sent       []Email
	ShouldFail bool
}

func (m *MockEmailSender) SendEmail(_ context.Context, email Email) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, email)
	if m.ShouldFail {
		return errors.New("smtp unavailable")
	}
	return nil
}

func (m *MockEmailSender) Sent() []Email {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Email, len(m.sent))
	copy(out, m.sent)
	return out
}
