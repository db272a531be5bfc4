package domain

// EmailData is the summary of the triggering message, recorded by the
// device's display layer keyed by MessageID for offline listing.
type EmailData struct {
	MessageID  string `json:"messageId"`
	From       string `json:"from"`
	FromUser   string `json:"fromUser,omitempty"`
	FromEmail  string `json:"fromEmail,omitempty"`
	Subject    string `json:"subject"`
	ReceivedAt string `json:"receivedAt"`
}

// NotificationPayload is the JSON document delivered to devices over Web
// Push. Title and Body are rendered directly; URL is the deep link opened
// on click; Tag lets the device coalesce re-deliveries of the same message.
type NotificationPayload struct {
	Title string    `json:"title"`
	Body  string    `json:"body"`
	URL   string    `json:"url,omitempty"`
	Tag   string    `json:"tag,omitempty"`
	Email EmailData `json:"email"`
}
