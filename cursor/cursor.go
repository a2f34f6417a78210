// Package cursor encodes store pagination keys as opaque continuation tokens.
//
// The store hands back a PageKey describing where a page of results stopped.
// The codec serializes that key and base64-encodes it without interpreting its
// contents, so the token format survives changes to the store's native
// pagination contract. Clients treat the resulting string as a black box.
package cursor

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
)

// ErrInvalidCursor is returned by Decode for any token that cannot be
// round-tripped back into a PageKey. Callers are expected to treat it as
// "restart from the first page", never as a fatal error.
var ErrInvalidCursor = errors.New("cursor: invalid cursor")

// PageKey is the store's native continuation key: an opaque bag of attributes
// identifying the last item of a page. The codec never inspects its entries.
type PageKey map[string]string

// Encode serializes a page key into an opaque URL-safe token.
// An empty key encodes to the empty string, meaning "no more pages".
func Encode(key PageKey) string {
	if len(key) == 0 {
		return ""
	}

	raw, err := json.Marshal(key)
	if err != nil {
		// A map[string]string cannot fail to marshal.
		panic(fmt.Sprintf("cursor: marshal page key: %v", err))
	}

	return base64.URLEncoding.EncodeToString(raw)
}

// Decode parses an opaque token back into the store's page key.
// Malformed base64 or a corrupt structure yields ErrInvalidCursor.
func Decode(token string) (PageKey, error) {
	if token == "" {
		return nil, nil
	}

	raw, err := base64.URLEncoding.DecodeString(token)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidCursor, err)
	}

	var key PageKey
	if err := json.Unmarshal(raw, &key); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidCursor, err)
	}

	if len(key) == 0 {
		return nil, fmt.Errorf("%w: empty key", ErrInvalidCursor)
	}

	return key, nil
}
