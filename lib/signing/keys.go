package signing

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/schnorr"
	"github.com/btcsuite/btcd/btcutil/bech32"
	"github.com/decred/dcrd/dcrec/secp256k1/v4"
)

func GeneratePrivateKey() (*secp256k1.PrivateKey, error) {
	privateKey, err := secp256k1.GeneratePrivateKey()
	if err != nil {
		return nil, err
	}

	return privateKey, nil
}

// PublicKeyHex returns the x-only public key in lowercase hex
func PublicKeyHex(privateKey *secp256k1.PrivateKey) string {
	return hex.EncodeToString(schnorr.SerializePubKey(privateKey.PubKey()))
}

func DecodeKey(serializedKey string) (string, []byte, error) {
	hrp, bytesToBits, err := bech32.Decode(serializedKey)
	if err != nil {
		return "", nil, err
	}

	keyBytes, err := bech32.ConvertBits(bytesToBits, 5, 8, false)
	if err != nil {
		return "", nil, err
	}

	return hrp, keyBytes, nil
}

// DeserializePrivateKey accepts either 64 hex characters or an nsec bech32 string
func DeserializePrivateKey(serializedKey string) (*secp256k1.PrivateKey, error) {
	var keyBytes []byte
	if strings.HasPrefix(serializedKey, "nsec1") {
		hrp, decoded, err := DecodeKey(serializedKey)
		if err != nil {
			return nil, fmt.Errorf("failed to decode nsec: %w", err)
		}
		if hrp != "nsec" {
			return nil, fmt.Errorf("unexpected bech32 prefix %q", hrp)
		}
		keyBytes = decoded
	} else {
		decoded, err := hex.DecodeString(serializedKey)
		if err != nil {
			return nil, fmt.Errorf("failed to decode private key hex: %w", err)
		}
		keyBytes = decoded
	}
	if len(keyBytes) != 32 {
		return nil, fmt.Errorf("private key must be 32 bytes, got %d", len(keyBytes))
	}

	privateKey, _ := btcec.PrivKeyFromBytes(keyBytes)
	return privateKey, nil
}

// NormalizePublicKey accepts either hex or an npub bech32 string and returns
// the x-only key as lowercase hex.
func NormalizePublicKey(serializedKey string) (string, error) {
	if serializedKey == "" {
		return "", nil
	}

	var keyBytes []byte
	if strings.HasPrefix(serializedKey, "npub1") {
		hrp, decoded, err := DecodeKey(serializedKey)
		if err != nil {
			return "", fmt.Errorf("failed to decode npub: %w", err)
		}
		if hrp != "npub" {
			return "", fmt.Errorf("unexpected bech32 prefix %q", hrp)
		}
		keyBytes = decoded
	} else {
		decoded, err := hex.DecodeString(serializedKey)
		if err != nil {
			return "", fmt.Errorf("failed to decode public key hex: %w", err)
		}
		keyBytes = decoded
	}

	if _, err := schnorr.ParsePubKey(keyBytes); err != nil {
		return "", fmt.Errorf("invalid public key: %w", err)
	}

	return hex.EncodeToString(keyBytes), nil
}

// EncodePublicKey returns the npub form of a hex x-only public key
func EncodePublicKey(publicKeyHex string) (string, error) {
	publicKeyBytes, err := hex.DecodeString(publicKeyHex)
	if err != nil {
		return "", err
	}

	bytesToBits, err := bech32.ConvertBits(publicKeyBytes, 8, 5, true)
	if err != nil {
		return "", err
	}

	return bech32.Encode("npub", bytesToBits)
}
