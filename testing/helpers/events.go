package helpers

import (
	"fmt"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/nbd-wtf/go-nostr"
)

// TestKeyPair represents a key pair for testing
type TestKeyPair struct {
	PrivateKey string
	PublicKey  string
}

// GenerateKeyPair generates a new key pair for testing
func GenerateKeyPair() (*TestKeyPair, error) {
	sk := nostr.GeneratePrivateKey()
	pk, err := nostr.GetPublicKey(sk)
	if err != nil {
		return nil, fmt.Errorf("failed to get public key: %w", err)
	}
	return &TestKeyPair{
		PrivateKey: sk,
		PublicKey:  pk,
	}, nil
}

// CreateTextNote creates a kind 1 text note event
func CreateTextNote(kp *TestKeyPair, content string, tags ...nostr.Tag) (*nostr.Event, error) {
	return CreateGenericEvent(kp, 1, content, tags)
}

// CreateMetadata creates a kind 0 metadata event
func CreateMetadata(kp *TestKeyPair, name, about string) (*nostr.Event, error) {
	var json = jsoniter.ConfigCompatibleWithStandardLibrary

	content, err := json.Marshal(map[string]string{
		"name":  name,
		"about": about,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal metadata: %w", err)
	}

	return CreateGenericEvent(kp, 0, string(content), nil)
}

// CreateContactList creates a kind 3 contact list event
func CreateContactList(kp *TestKeyPair, contacts []string) (*nostr.Event, error) {
	var tags nostr.Tags
	for _, contact := range contacts {
		tags = append(tags, nostr.Tag{"p", contact})
	}
	return CreateGenericEvent(kp, 3, "", tags)
}

// CreateEphemeralEvent creates an event in the 20000-29999 range, which is
// delivered live but never stored
func CreateEphemeralEvent(kp *TestKeyPair, kind int, content string) (*nostr.Event, error) {
	if kind < 20000 || kind >= 30000 {
		return nil, fmt.Errorf("kind %d is not ephemeral", kind)
	}
	return CreateGenericEvent(kp, kind, content, nil)
}

// CreateParameterizedReplaceableEvent creates a parameterized replaceable event (kinds 30000-39999)
func CreateParameterizedReplaceableEvent(kp *TestKeyPair, kind int, dTag, content string) (*nostr.Event, error) {
	return CreateGenericEvent(kp, kind, content, nostr.Tags{{"d", dTag}})
}

// CreateGenericEvent creates an event of any kind
func CreateGenericEvent(kp *TestKeyPair, kind int, content string, tags nostr.Tags) (*nostr.Event, error) {
	event := &nostr.Event{
		PubKey:    kp.PublicKey,
		CreatedAt: nostr.Timestamp(time.Now().Unix()),
		Kind:      kind,
		Tags:      tags,
		Content:   content,
	}
	if err := event.Sign(kp.PrivateKey); err != nil {
		return nil, fmt.Errorf("failed to sign event: %w", err)
	}
	return event, nil
}
