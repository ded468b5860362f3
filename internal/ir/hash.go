package ir

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Domain prefixes for content-addressed identity.
// The version suffix leaves room for an algorithm migration.
const (
	DomainMessage = "stratagem/message/v1"
	DomainGraph   = "stratagem/graph/v1"
)

// hashWithDomain computes SHA256(domain + 0x00 + data).
// The null separator prevents domain/data boundary ambiguity.
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// MessageID computes the content-addressed ID of a dispatched message.
// seq is the message's position within its transaction, so identical
// messages sent twice in one transaction get distinct IDs.
func MessageID(txID string, seq int, sender, target string, payload any) (string, error) {
	obj := map[string]any{
		"tx_id":   txID,
		"seq":     seq,
		"sender":  sender,
		"target":  target,
		"payload": payload,
	}
	canonical, err := MarshalCanonical(obj)
	if err != nil {
		return "", fmt.Errorf("MessageID: failed to marshal: %w", err)
	}
	return hashWithDomain(DomainMessage, canonical), nil
}

// GraphHash identifies a graph by content, including per-node state.
func GraphHash(nodes []Node) (string, error) {
	canonical, err := MarshalCanonical(nodes)
	if err != nil {
		return "", fmt.Errorf("GraphHash: failed to marshal: %w", err)
	}
	return hashWithDomain(DomainGraph, canonical), nil
}

// MustGraphHash is like GraphHash but panics on error.
// Use only in tests or when inputs are known to be valid.
func MustGraphHash(nodes []Node) string {
	h, err := GraphHash(nodes)
	if err != nil {
		panic(err)
	}
	return h
}
