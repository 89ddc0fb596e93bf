// Package identity resolves participant identities. Participants and the
// configuring authority are identified by 20-byte hex addresses.
package identity

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// Header carries the calling participant's address on API requests.
const Header = "X-Participant-Address"

var (
	ErrMissingCaller  = errors.New("identity: caller address missing")
	ErrInvalidAddress = errors.New("identity: invalid address")
	ErrZeroAddress    = errors.New("identity: zero address")
)

// ParseAddress parses a hex address. The zero address is rejected.
func ParseAddress(s string) (common.Address, error) {
	s = strings.TrimSpace(s)
	if !common.IsHexAddress(s) {
		return common.Address{}, fmt.Errorf("%w: %q", ErrInvalidAddress, s)
	}
	addr := common.HexToAddress(s)
	if IsZero(addr) {
		return common.Address{}, ErrZeroAddress
	}
	return addr, nil
}

// IsZero reports whether addr is the null identity.
func IsZero(addr common.Address) bool {
	return addr == (common.Address{})
}

// FromRequest resolves the caller of an HTTP request.
func FromRequest(r *http.Request) (common.Address, error) {
	v := r.Header.Get(Header)
	if v == "" {
		return common.Address{}, ErrMissingCaller
	}
	return ParseAddress(v)
}

// Authority identifies the single configuring identity.
type Authority struct {
	Owner common.Address
}

// IsOwner reports whether addr is the configuring identity.
func (a Authority) IsOwner(addr common.Address) bool {
	return !IsZero(a.Owner) && addr == a.Owner
}
