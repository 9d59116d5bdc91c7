// Package decode turns opaque vault payloads into parsed JSON documents.
//
// The vault stores each record as a base64 string whose contents drifted over
// time: newer records are zlib-compressed, older ones raw-deflate-compressed,
// and the oldest are plain UTF-8 JSON. The decoder tries all three framings in
// a fixed order and stops at the first success. The order is deliberate and
// exhaustive; legacy records carry no reliable format marker to sniff on.
package decode

import (
	"bytes"
	"encoding/base64"
	"io"
	"strings"

	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/zlib"
	"github.com/rowanvale/sheetsync/internal/platform/errors"
	"github.com/tidwall/gjson"
)

// Record is one decoded vault payload.
type Record struct {
	// Key is the vault slot the payload came from.
	Key string
	// JSON holds the decoded document bytes.
	JSON []byte
	// Doc is the parsed document.
	Doc gjson.Result
	// DisplayName is a best-effort human-readable name for the record.
	DisplayName string
}

// displayNamePaths lists name-bearing fields in precedence order. Different
// record kinds (player sheet, GM campaign record, shared record) each use a
// different convention, so the chain covers all observed shapes.
var displayNamePaths = []string{
	"customCampaign.name",
	"campaign.name",
	"name",
	"characterName",
	"Name",
	"character.name",
	"characterInfo.characterName",
	"basicInfo.name",
}

// Decode parses one base64 vault payload into a Record.
func Decode(key string, value string) (Record, error) {
	raw, err := base64.StdEncoding.DecodeString(strings.TrimSpace(value))
	if err != nil {
		return Record{}, errors.Wrap(errors.CodeMalformedEncoding, "decode base64 payload for "+key, err)
	}

	jsonBytes, ok := inflate(raw)
	if !ok {
		return Record{}, errors.WithMetadata(
			errors.CodeUndecodableRecord,
			"record "+key+" is not zlib, raw deflate, or plain JSON",
			map[string]string{"attempts": "zlib, raw deflate, plain json"},
		)
	}

	doc := gjson.ParseBytes(jsonBytes)
	return Record{
		Key:         key,
		JSON:        jsonBytes,
		Doc:         doc,
		DisplayName: displayName(doc, key),
	}, nil
}

// inflate recovers JSON bytes from raw, trying zlib, then raw deflate, then
// the bytes themselves. Each attempt must yield valid JSON to count.
func inflate(raw []byte) ([]byte, bool) {
	if zr, err := zlib.NewReader(bytes.NewReader(raw)); err == nil {
		decompressed, err := io.ReadAll(zr)
		_ = zr.Close()
		if err == nil && gjson.ValidBytes(decompressed) {
			return decompressed, true
		}
	}

	fr := flate.NewReader(bytes.NewReader(raw))
	decompressed, err := io.ReadAll(fr)
	_ = fr.Close()
	if err == nil && gjson.ValidBytes(decompressed) {
		return decompressed, true
	}

	if gjson.ValidBytes(raw) {
		return raw, true
	}
	return nil, false
}

// displayName returns the first present name-bearing field, falling back to
// the vault key when none of the known conventions match.
func displayName(doc gjson.Result, key string) string {
	for _, path := range displayNamePaths {
		if value := doc.Get(path); value.Exists() && strings.TrimSpace(value.String()) != "" {
			return value.String()
		}
	}
	return key
}
