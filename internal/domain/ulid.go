package domain

import (
	"fmt"
	"strings"

	"github.com/oklog/ulid/v2"
)

// ClientIDPrefix marks identifiers minted by dynamic registration
const ClientIDPrefix = "client_"

// NewClientID returns a fresh, lexically sortable client identifier
func NewClientID() string {
	return ClientIDPrefix + strings.ToLower(ulid.Make().String())
}

// ParseClientID extracts the ULID from a registered client id
func ParseClientID(id string) (ulid.ULID, error) {
	raw, ok := strings.CutPrefix(id, ClientIDPrefix)
	if !ok {
		return ulid.ULID{}, fmt.Errorf("invalid client id %q: missing prefix", id)
	}
	parsedID, err := ulid.ParseStrict(strings.ToUpper(raw))
	if err != nil {
		return ulid.ULID{}, fmt.Errorf("invalid ULID: %w", err)
	}
	return parsedID, nil
}
