// Package magnet parses info hashes given by the user: plain hex or base32 strings and magnet links.
package magnet

import (
	"encoding/base32"
	"encoding/hex"
	"errors"
	"net/url"
	"strings"

	"github.com/cenkalti/dhtcrawler/internal/nodeid"
	"github.com/multiformats/go-multihash"
)

// Magnet is the part of a magnet link the crawler cares about.
type Magnet struct {
	InfoHash nodeid.ID
	Name     string
}

// New parses a magnet link.
func New(s string) (*Magnet, error) {
	u, err := url.Parse(s)
	if err != nil {
		return nil, err
	}
	if u.Scheme != "magnet" {
		return nil, errors.New("not a magnet link")
	}
	params := u.Query()
	xts, ok := params["xt"]
	if !ok {
		return nil, errors.New("missing xt param")
	}
	if len(xts) == 0 {
		return nil, errors.New("empty xt param")
	}
	var m Magnet
	m.InfoHash, err = infoHashString(xts[0])
	if err != nil {
		return nil, err
	}
	if names := params["dn"]; len(names) != 0 {
		m.Name = names[0]
	}
	return &m, nil
}

func (m *Magnet) String() string {
	var b strings.Builder
	b.WriteString("magnet:?xt=urn:btih:")
	b.WriteString(m.InfoHash.String())
	if m.Name != "" {
		b.WriteString("&dn=")
		b.WriteString(url.QueryEscape(m.Name))
	}
	return b.String()
}

// ParseInfoHash accepts a magnet link, a "urn:btih:" or "urn:btmh:" name,
// or a bare info hash in hex (40 characters) or base32 (32 characters).
func ParseInfoHash(s string) (nodeid.ID, error) {
	s = strings.TrimSpace(s)
	switch {
	case strings.HasPrefix(s, "magnet:"):
		m, err := New(s)
		if err != nil {
			return nodeid.ID{}, err
		}
		return m.InfoHash, nil
	case strings.HasPrefix(s, "urn:"):
		return infoHashString(s)
	default:
		return decodeInfoHash(s)
	}
}

// infoHashString returns a new info hash value from an xt param.
func infoHashString(xt string) (nodeid.ID, error) {
	switch {
	case strings.HasPrefix(xt, "urn:btih:"):
		return decodeInfoHash(xt[9:])
	case strings.HasPrefix(xt, "urn:btmh:"):
		b, err := multihash.FromHexString(xt[9:])
		if err != nil {
			return nodeid.ID{}, err
		}
		dm, err := multihash.Decode(b)
		if err != nil {
			return nodeid.ID{}, err
		}
		if dm.Code != multihash.SHA1 {
			return nodeid.ID{}, errors.New("invalid multihash: only sha1 info hashes are supported")
		}
		return nodeid.FromBytes(dm.Digest)
	default:
		return nodeid.ID{}, errors.New("invalid xt param: must start with \"urn:btih:\" or \"urn:btmh\"")
	}
}

// decodeInfoHash decodes s that must be 40 (hex encoded) or 32 (base32 encoded) characters.
func decodeInfoHash(s string) (nodeid.ID, error) {
	var b []byte
	var err error
	switch len(s) {
	case 40:
		b, err = hex.DecodeString(s)
	case 32:
		b, err = base32.StdEncoding.DecodeString(strings.ToUpper(s))
	default:
		return nodeid.ID{}, errors.New("info hash must be 32 or 40 characters")
	}
	if err != nil {
		return nodeid.ID{}, err
	}
	return nodeid.FromBytes(b)
}
