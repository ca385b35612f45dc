// Package externalref defines the identity of an artifact as known to the
// upstream messaging platform. The string token is an encoding
// convenience for storage/logging only — callers hold the 3-tuple and
// never reparse the token to recover it.
package externalref

import (
	"fmt"
	"strconv"
	"strings"
)

// Ref is the composite identity {channel_id, message_id, document_id} of
// an artifact posted to a channel. It is immutable once constructed.
type Ref struct {
	ChannelID  int64
	MessageID  int64
	DocumentID int64
}

// New builds a Ref from its components.
func New(channelID, messageID, documentID int64) Ref {
	return Ref{ChannelID: channelID, MessageID: messageID, DocumentID: documentID}
}

// Token renders the stable string form used as telegram_file_id: the
// primary key of processed_files and the identifier threaded through job
// descriptors, logs, and the dedup check.
func (r Ref) Token() string {
	return fmt.Sprintf("%d_%d_%d", r.ChannelID, r.MessageID, r.DocumentID)
}

func (r Ref) String() string { return r.Token() }

// Parse recovers a Ref from a previously rendered Token. It exists for
// tooling and tests that need to go the other way; the ingestion pipeline
// itself only ever constructs Refs from listener events and should never
// need to reparse its own tokens.
func Parse(token string) (Ref, error) {
	parts := strings.Split(token, "_")
	if len(parts) != 3 {
		return Ref{}, fmt.Errorf("externalref: malformed token %q", token)
	}
	ids := make([]int64, 3)
	for i, p := range parts {
		n, err := strconv.ParseInt(p, 10, 64)
		if err != nil {
			return Ref{}, fmt.Errorf("externalref: malformed token %q: %w", token, err)
		}
		ids[i] = n
	}
	return Ref{ChannelID: ids[0], MessageID: ids[1], DocumentID: ids[2]}, nil
}
