package notify

import (
	"log"

	gomail "gopkg.in/gomail.v2"
)

// GomailSender delivers over SMTP. Without SMTP config it degrades to
// log-only so local development works without a mail server.
type GomailSender struct {
	dialer *gomail.Dialer
	from   string
}

func NewGomailSender(host string, port int, user, pass, from string) *GomailSender {
	if host == "" {
		log.Println("SMTP not configured; notifications will be logged only")
		return &GomailSender{from: from}
	}
	return &GomailSender{dialer: gomail.NewDialer(host, port, user, pass), from: from}
}

func (s *GomailSender) Send(to, subject, body string) error {
	if s.dialer == nil {
		log.Printf("mail (dry-run) to=%s subject=%q", to, subject)
		return nil
	}
	m := gomail.NewMessage()
	m.SetHeader("From", s.from)
	m.SetHeader("To", to)
	m.SetHeader("Subject", subject)
	m.SetBody("text/plain", body)
	return s.dialer.DialAndSend(m)
}
