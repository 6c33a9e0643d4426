// Package addrset provides the set of protocol-internal addresses that are
// excluded from user-level accounting. Exchange contracts, proxy factories
// and the zero address trade constantly but are not users; crediting them
// with positions or P&L would drown the real figures.
package addrset

import "strings"

// DefaultExcluded lists the Polygon mainnet protocol addresses: the CTF
// exchange, the NegRisk exchange and adapter, the proxy wallet factories,
// and the zero address.
var DefaultExcluded = []string{
	"0x4d97dcd97ec945f40cf65f87097ace5ea0476045",
	"0x4bfb41d5b3570defd03c39a9a4d8de6bd8b8982e",
	"0xc5d563a36ae78145c45a50134d48a1215220f80a",
	"0x78769d50be1763ed1ca0d5e878d93f05aabff29e",
	"0xa5ef39c3d3e10d0b270233af41cac69796b12966",
	"0x0000000000000000000000000000000000000000",
}

// Set is an immutable, case-insensitive address set. Load it once at process
// start; it is safe for concurrent reads.
type Set struct {
	members map[string]struct{}
}

// New builds a Set from the given addresses. Matching is case-insensitive;
// members are normalised to lowercase on construction.
func New(addrs []string) *Set {
	members := make(map[string]struct{}, len(addrs))
	for _, a := range addrs {
		members[strings.ToLower(a)] = struct{}{}
	}
	return &Set{members: members}
}

// Default returns a Set of the well-known protocol addresses.
func Default() *Set {
	return New(DefaultExcluded)
}

// Contains reports whether addr is in the set, ignoring case.
func (s *Set) Contains(addr string) bool {
	_, ok := s.members[strings.ToLower(addr)]
	return ok
}

// Len returns the number of members.
func (s *Set) Len() int {
	return len(s.members)
}
