package signing

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/schnorr"
	"github.com/nbd-wtf/go-nostr"

	"github.com/HORNET-Storage/trunk-relay/lib/types"
)

// Verification failure codes
const (
	CodeInvalidHex       = "invalid_hex"
	CodeInvalidID        = "invalid_id"
	CodeInvalidSignature = "invalid_sig"
)

// VerificationError describes why an event failed validation and which field
// was at fault.
type VerificationError struct {
	Code   string
	Field  string
	Detail string
}

func (e *VerificationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Detail)
}

// Serialize returns the canonical NIP-01 form of
// [0, pubkey, created_at, kind, tags, content].
func Serialize(pubkey string, createdAt int64, kind uint16, tags types.Tags, content string) []byte {
	evt := nostr.Event{
		PubKey:    pubkey,
		CreatedAt: nostr.Timestamp(createdAt),
		Kind:      int(kind),
		Tags:      make(nostr.Tags, 0, len(tags)),
		Content:   content,
	}
	for _, tag := range tags {
		evt.Tags = append(evt.Tags, nostr.Tag(tag))
	}
	return evt.Serialize()
}

// Digest is the sha256 of the canonical serialization; its hex form is the event id.
func Digest(pubkey string, createdAt int64, kind uint16, tags types.Tags, content string) [32]byte {
	return sha256.Sum256(Serialize(pubkey, createdAt, kind, tags, content))
}

// EventDigest computes the digest over the hashed fields of an event
func EventDigest(e *types.Event) [32]byte {
	return Digest(e.PubKey, e.CreatedAt, e.Kind, e.Tags, e.Content)
}

// Verify checks that the event id is the digest of its fields and that sig is
// a valid BIP-340 signature of that digest under pubkey. It touches no state.
func Verify(e *types.Event) error {
	id, err := decodeHex("id", e.ID, sha256.Size)
	if err != nil {
		return err
	}
	pubkey, err := decodeHex("pubkey", e.PubKey, schnorr.PubKeyBytesLen)
	if err != nil {
		return err
	}
	sig, err := decodeHex("sig", e.Sig, schnorr.SignatureSize)
	if err != nil {
		return err
	}

	digest := EventDigest(e)
	if !bytes.Equal(id, digest[:]) {
		return &VerificationError{
			Code:   CodeInvalidID,
			Field:  "id",
			Detail: "does not match the sha256 of the serialized event",
		}
	}

	key, err := schnorr.ParsePubKey(pubkey)
	if err != nil {
		return &VerificationError{Code: CodeInvalidSignature, Field: "pubkey", Detail: "not a valid secp256k1 x-only key"}
	}
	signature, err := schnorr.ParseSignature(sig)
	if err != nil {
		return &VerificationError{Code: CodeInvalidSignature, Field: "sig", Detail: "malformed schnorr signature"}
	}
	if !signature.Verify(digest[:], key) {
		return &VerificationError{Code: CodeInvalidSignature, Field: "sig", Detail: "signature failed to verify"}
	}

	return nil
}

// Sign fills in pubkey, id and sig for the event using the given key
func Sign(e *types.Event, privateKey *btcec.PrivateKey) error {
	e.PubKey = hex.EncodeToString(schnorr.SerializePubKey(privateKey.PubKey()))
	if e.Tags == nil {
		e.Tags = types.Tags{}
	}

	digest := EventDigest(e)
	signature, err := schnorr.Sign(privateKey, digest[:])
	if err != nil {
		return fmt.Errorf("failed to sign event: %w", err)
	}

	e.ID = hex.EncodeToString(digest[:])
	e.Sig = hex.EncodeToString(signature.Serialize())
	return nil
}

func decodeHex(field, value string, size int) ([]byte, error) {
	if len(value) != size*2 || !IsLowerHex(value) {
		return nil, &VerificationError{
			Code:   CodeInvalidHex,
			Field:  field,
			Detail: fmt.Sprintf("expected %d bytes of lowercase hex", size),
		}
	}
	decoded, err := hex.DecodeString(value)
	if err != nil {
		return nil, &VerificationError{Code: CodeInvalidHex, Field: field, Detail: err.Error()}
	}
	return decoded, nil
}

// IsLowerHex reports whether s only contains lowercase hex digits
func IsLowerHex(s string) bool {
	for i := 0; i < len(s); i++ {
		c := s[i]
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return false
		}
	}
	return true
}
