package types

import (
	jsoniter "github.com/json-iterator/go"
)

// Server to client frames. Events are passed pre-encoded so fan-out encodes
// each event once regardless of how many subscriptions match it.

func EncodeEventFrame(subscriptionID string, rawEvent []byte) ([]byte, error) {
	var json = jsoniter.ConfigCompatibleWithStandardLibrary
	return json.Marshal([]interface{}{"EVENT", subscriptionID, jsoniter.RawMessage(rawEvent)})
}

func EncodeOK(eventID string, accepted bool, message string) ([]byte, error) {
	var json = jsoniter.ConfigCompatibleWithStandardLibrary
	return json.Marshal([]interface{}{"OK", eventID, accepted, message})
}

func EncodeEOSE(subscriptionID string) ([]byte, error) {
	var json = jsoniter.ConfigCompatibleWithStandardLibrary
	return json.Marshal([]interface{}{"EOSE", subscriptionID})
}

func EncodeNotice(message string) ([]byte, error) {
	var json = jsoniter.ConfigCompatibleWithStandardLibrary
	return json.Marshal([]interface{}{"NOTICE", message})
}
