package dto

import "encoding/json"

// PubSubEnvelope is the transport envelope the push relay POSTs to the
// webhook endpoint. Data is base64-encoded JSON.
type PubSubEnvelope struct {
	Message struct {
		Data        string `json:"data"`
		MessageID   string `json:"messageId"`
		PublishTime string `json:"publishTime"`
	} `json:"message"`
	Subscription string `json:"subscription"`
}

// GmailNotification is the inner document carried by the envelope. The
// provider emits historyId as a JSON number; json.Number keeps it opaque
// either way.
type GmailNotification struct {
	EmailAddress string      `json:"emailAddress"`
	HistoryID    json.Number `json:"historyId"`
}
