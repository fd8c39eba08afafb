package mailer

import account "github.com/goliatone/go-account"

// EmailJob is the JSON payload put on the queue for the email worker
type EmailJob struct {
	To      string `json:"to"`
	Subject string `json:"subject,omitempty"`
	Text    string `json:"text,omitempty"`
	HTML    string `json:"html,omitempty"`
}

func JobFromMessage(msg account.Message) EmailJob {
	return EmailJob{
		To:      msg.To,
		Subject: msg.Subject,
		Text:    msg.Text,
		HTML:    msg.HTML,
	}
}

func (j EmailJob) Message() account.Message {
	return account.Message{
		To:      j.To,
		Subject: j.Subject,
		Text:    j.Text,
		HTML:    j.HTML,
	}
}
