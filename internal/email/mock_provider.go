package email

import "sync"

// MockProvider используется в тестах и когда SMTP не настроен:
// письма не уходят, а складываются в Sent.
type MockProvider struct {
	mu   sync.Mutex
	Sent []Email
	// Err - если задан, возвращается из Send
	Err error
}

func NewMockProvider() *MockProvider {
	return &MockProvider{}
}

func (m *MockProvider) Send(email *Email) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	m.Sent = append(m.Sent, *email)
	return nil
}

func (m *MockProvider) SendTemplate(to []string, subject string, templateName string, data TemplateData) error {
	return m.Send(&Email{To: to, Subject: subject, Body: templateName})
}

func (m *MockProvider) Validate() error { return nil }
func (m *MockProvider) Close() error    { return nil }

// Count - сколько писем "отправлено"
func (m *MockProvider) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Sent)
}
