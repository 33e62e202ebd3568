// Package message defines the normalized mail record and the conversion
// from raw RFC 5322 bytes into one.
package message

import (
	"time"
)

// Record is the normalized representation of one received email. It is
// created once per accepted message, is immutable afterwards, and is the
// unit that gets persisted and pushed to a live subscriber.
//
// The JSON shape is the wire payload of a "new_mail" event; the BSON shape
// is the stored document. The ID is internal (log correlation and the
// document key) and never leaves on the wire.
type Record struct {
	ID        string    `bson:"_id" json:"-"`
	From      string    `bson:"from" json:"from"`
	To        string    `bson:"to" json:"to"`
	Subject   string    `bson:"subject" json:"subject"`
	Text      string    `bson:"text" json:"text"`
	Timestamp time.Time `bson:"timestamp" json:"timestamp"`
}
