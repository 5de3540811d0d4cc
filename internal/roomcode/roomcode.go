// Package roomcode derives short, shareable invite codes for conversations.
// Codes are a pure function of the conversation ID and a process-wide secret,
// so any gateway replica derives the same code without storage: generating
// and validating are the same computation.
package roomcode

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base32"
	"strings"
)

// CodeLength is the number of characters in a derived room code.
const CodeLength = 8

var encoding = base32.StdEncoding.WithPadding(base32.NoPadding)

// Deriver computes room codes keyed by a server secret.
type Deriver struct {
	secret []byte
}

func New(secret string) *Deriver {
	return &Deriver{secret: []byte(secret)}
}

// Generate returns the conversation's room code: base32 of
// HMAC-SHA256(conversationID, secret), truncated to CodeLength, lowercase.
func (d *Deriver) Generate(conversationID string) string {
	mac := hmac.New(sha256.New, d.secret)
	mac.Write([]byte(conversationID))
	code := encoding.EncodeToString(mac.Sum(nil))
	return strings.ToLower(code[:CodeLength])
}

// Validate recomputes the conversation's code and compares it to the
// candidate, ignoring case and surrounding whitespace. Empty or malformed
// candidates are simply false; there is no error path.
func (d *Deriver) Validate(conversationID, candidate string) bool {
	candidate = strings.TrimSpace(candidate)
	if candidate == "" {
		return false
	}
	return strings.EqualFold(candidate, d.Generate(conversationID))
}
