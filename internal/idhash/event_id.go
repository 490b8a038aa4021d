// Package idhash computes deterministic identifiers for vault records.
package idhash

import (
	"fmt"

	"github.com/google/uuid"

	"share-vault/internal/domain"
)

// eventNamespace scopes event ids so they never collide with other UUIDv5 users.
var eventNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("share-vault/vault-event"))

// ComputeEventID computes a deterministic event_id.
// Formula: UUIDv5(namespace, vault|event_type|sequence)
// Returns the canonical 36-character UUID string.
func ComputeEventID(vault domain.Address, eventType domain.EventType, sequence uint64) string {
	data := fmt.Sprintf("%s|%s|%d", vault.String(), eventType.String(), sequence)
	return uuid.NewSHA1(eventNamespace, []byte(data)).String()
}
