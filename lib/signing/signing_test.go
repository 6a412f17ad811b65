package signing

import (
	"encoding/hex"
	"errors"
	"testing"
	"time"

	"github.com/nbd-wtf/go-nostr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/HORNET-Storage/trunk-relay/lib/types"
)

func newSignedEvent(t *testing.T) *types.Event {
	t.Helper()

	key, err := GeneratePrivateKey()
	require.NoError(t, err)

	event := &types.Event{
		CreatedAt: time.Now().Unix(),
		Kind:      1,
		Tags:      types.Tags{{"e", "b042eae42505d83996af3694f47224128596c89a3ea1a7fd27ea43c8e559cf20"}, {"author", "bridget"}},
		Content:   "The stars are a burning sun\n\"quoted\" \\ tab\t ünïcode <html>",
	}
	require.NoError(t, Sign(event, key))
	return event
}

func verificationCode(t *testing.T, err error) (string, string) {
	t.Helper()

	var verr *VerificationError
	require.True(t, errors.As(err, &verr), "expected a VerificationError, got %v", err)
	return verr.Code, verr.Field
}

func TestDigestMatchesReferenceImplementation(t *testing.T) {
	sk := nostr.GeneratePrivateKey()
	pk, err := nostr.GetPublicKey(sk)
	require.NoError(t, err)

	reference := nostr.Event{
		PubKey:    pk,
		CreatedAt: nostr.Timestamp(1692815146),
		Kind:      30023,
		Tags:      nostr.Tags{{"d", "article"}, {"p", pk, "wss://relay.example"}},
		Content:   "line one\nline two \"with quotes\" & <brackets>",
	}
	require.NoError(t, reference.Sign(sk))

	event := &types.Event{
		ID:        reference.ID,
		PubKey:    reference.PubKey,
		CreatedAt: int64(reference.CreatedAt),
		Kind:      uint16(reference.Kind),
		Tags:      types.Tags{{"d", "article"}, {"p", pk, "wss://relay.example"}},
		Content:   reference.Content,
		Sig:       reference.Sig,
	}

	digest := EventDigest(event)
	assert.Equal(t, reference.ID, hex.EncodeToString(digest[:]))
	assert.NoError(t, Verify(event))
}

func TestSignProducesVerifiableEvent(t *testing.T) {
	event := newSignedEvent(t)

	require.NoError(t, Verify(event))

	digest := Digest(event.PubKey, event.CreatedAt, event.Kind, event.Tags, event.Content)
	assert.Equal(t, event.ID, hex.EncodeToString(digest[:]))
}

func TestNilAndEmptyTagsHashTheSame(t *testing.T) {
	a := Digest("aa", 1, 1, nil, "x")
	b := Digest("aa", 1, 1, types.Tags{}, "x")
	assert.Equal(t, a, b)
}

func TestMutatingAnyHashedFieldChangesID(t *testing.T) {
	event := newSignedEvent(t)
	original := EventDigest(event)

	mutations := map[string]func(e *types.Event){
		"pubkey":     func(e *types.Event) { e.PubKey = "f72657e01156d2c9b251111e73d58236dfb7de5ca69e1b53f0a938528f16c265" },
		"created_at": func(e *types.Event) { e.CreatedAt++ },
		"kind":       func(e *types.Event) { e.Kind = 2 },
		"tags":       func(e *types.Event) { e.Tags = append(types.Tags{}, types.Tag{"t", "extra"}) },
		"content":    func(e *types.Event) { e.Content += "!" },
	}

	for name, mutate := range mutations {
		t.Run(name, func(t *testing.T) {
			copied := *event
			copied.Tags = append(types.Tags{}, event.Tags...)
			mutate(&copied)

			assert.NotEqual(t, original, EventDigest(&copied))

			code, field := verificationCode(t, Verify(&copied))
			assert.Equal(t, CodeInvalidID, code)
			assert.Equal(t, "id", field)
		})
	}
}

func flipBit(t *testing.T, value string, bit int) string {
	t.Helper()

	raw, err := hex.DecodeString(value)
	require.NoError(t, err)
	raw[bit/8] ^= 1 << (bit % 8)
	return hex.EncodeToString(raw)
}

func TestFlippedSignatureBitsFailVerification(t *testing.T) {
	event := newSignedEvent(t)

	for _, bit := range []int{0, 7, 100, 255, 256, 511} {
		copied := *event
		copied.Sig = flipBit(t, event.Sig, bit)

		code, field := verificationCode(t, Verify(&copied))
		assert.Equal(t, CodeInvalidSignature, code, "bit %d", bit)
		assert.Equal(t, "sig", field, "bit %d", bit)
	}
}

func TestFlippedPubKeyBitsFailVerification(t *testing.T) {
	event := newSignedEvent(t)

	for _, bit := range []int{0, 31, 128, 255} {
		copied := *event
		copied.PubKey = flipBit(t, event.PubKey, bit)
		// keep the id consistent so that only the signature check can fail
		digest := EventDigest(&copied)
		copied.ID = hex.EncodeToString(digest[:])

		code, _ := verificationCode(t, Verify(&copied))
		assert.Equal(t, CodeInvalidSignature, code, "bit %d", bit)
	}
}

func TestResignedDigestWithForeignIDFails(t *testing.T) {
	event := newSignedEvent(t)
	other := newSignedEvent(t)

	copied := *event
	copied.Sig = other.Sig

	code, field := verificationCode(t, Verify(&copied))
	assert.Equal(t, CodeInvalidSignature, code)
	assert.Equal(t, "sig", field)
}

func TestInvalidHexIsReportedPerField(t *testing.T) {
	event := newSignedEvent(t)

	cases := []struct {
		field  string
		mutate func(e *types.Event)
	}{
		{"id", func(e *types.Event) { e.ID = "zz" + e.ID[2:] }},
		{"id", func(e *types.Event) { e.ID = e.ID[:10] }},
		{"pubkey", func(e *types.Event) { e.PubKey = "not hex" }},
		{"pubkey", func(e *types.Event) { e.PubKey = "AB" + e.PubKey[2:] }},
		{"sig", func(e *types.Event) { e.Sig = e.Sig + "00" }},
		{"sig", func(e *types.Event) { e.Sig = "" }},
	}

	for _, tc := range cases {
		copied := *event
		tc.mutate(&copied)

		code, field := verificationCode(t, Verify(&copied))
		assert.Equal(t, CodeInvalidHex, code)
		assert.Equal(t, tc.field, field)
	}
}

func TestKeyEncodingRoundTrip(t *testing.T) {
	key, err := GeneratePrivateKey()
	require.NoError(t, err)

	pubHex := PublicKeyHex(key)
	npub, err := EncodePublicKey(pubHex)
	require.NoError(t, err)

	normalized, err := NormalizePublicKey(npub)
	require.NoError(t, err)
	assert.Equal(t, pubHex, normalized)

	normalized, err = NormalizePublicKey(pubHex)
	require.NoError(t, err)
	assert.Equal(t, pubHex, normalized)

	parsed, err := DeserializePrivateKey(hex.EncodeToString(key.Serialize()))
	require.NoError(t, err)
	assert.Equal(t, pubHex, PublicKeyHex(parsed))

	_, err = NormalizePublicKey("npub1invalid")
	assert.Error(t, err)
}
