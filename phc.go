package auth

import (
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"
)

// phcParam is a single name=value pair. Order is preserved because the
// serialized string is a stored-data compatibility contract.
type phcParam struct {
	Name  string
	Value int
}

// phcHash is a self-describing serialized hash: algorithm id, version,
// parameters, salt, and hash together, so verification never needs
// externally stored metadata beyond the single string.
type phcHash struct {
	ID      string
	Version int
	Params  []phcParam
	Salt    []byte
	Hash    []byte
}

// phcB64 is the PHC flavor of base64: standard alphabet, no padding.
var phcB64 = base64.StdEncoding.WithPadding(base64.NoPadding)

func (p phcHash) Param(name string) (int, bool) {
	for _, kv := range p.Params {
		if kv.Name == name {
			return kv.Value, true
		}
	}
	return 0, false
}

func (p phcHash) String() string {
	var b strings.Builder
	b.WriteByte('$')
	b.WriteString(p.ID)
	b.WriteString("$v=")
	b.WriteString(strconv.Itoa(p.Version))
	b.WriteByte('$')
	b.WriteString(phcPrehashTag)
	for _, kv := range p.Params {
		b.WriteByte(',')
		b.WriteString(kv.Name)
		b.WriteByte('=')
		b.WriteString(strconv.Itoa(kv.Value))
	}
	b.WriteByte('$')
	b.WriteString(phcB64.EncodeToString(p.Salt))
	b.WriteByte('$')
	b.WriteString(phcB64.EncodeToString(p.Hash))
	return b.String()
}

func parsePHC(s string) (phcHash, error) {
	var out phcHash
	if !strings.HasPrefix(s, "$") {
		return out, fmt.Errorf("phc: missing leading separator")
	}
	parts := strings.Split(s[1:], "$")
	if len(parts) != 5 {
		return out, fmt.Errorf("phc: expected 5 fields, got %d", len(parts))
	}
	out.ID = parts[0]
	if out.ID == "" {
		return out, fmt.Errorf("phc: empty algorithm id")
	}

	version, ok := strings.CutPrefix(parts[1], "v=")
	if !ok {
		return out, fmt.Errorf("phc: malformed version field %q", parts[1])
	}
	v, err := strconv.Atoi(version)
	if err != nil {
		return out, fmt.Errorf("phc: malformed version: %w", err)
	}
	out.Version = v

	if parts[2] != "" {
		for _, pair := range strings.Split(parts[2], ",") {
			name, value, found := strings.Cut(pair, "=")
			if !found || name == "" {
				return out, fmt.Errorf("phc: malformed parameter %q", pair)
			}
			n, err := strconv.Atoi(value)
			if err != nil {
				// prehash=sha512 style string parameters carry no cost
				// information; keep them out of the numeric set.
				if name == phcParamPrehash {
					continue
				}
				return out, fmt.Errorf("phc: malformed parameter %q: %w", pair, err)
			}
			out.Params = append(out.Params, phcParam{Name: name, Value: n})
		}
	}

	if out.Salt, err = phcB64.DecodeString(parts[3]); err != nil {
		return out, fmt.Errorf("phc: malformed salt: %w", err)
	}
	if out.Hash, err = phcB64.DecodeString(parts[4]); err != nil {
		return out, fmt.Errorf("phc: malformed hash: %w", err)
	}
	if len(out.Hash) == 0 {
		return out, fmt.Errorf("phc: empty hash")
	}
	return out, nil
}

const phcParamPrehash = "prehash"

// phcPrehashTag marks the SHA-512 prehash step in serialized params so a
// future digest change is visible in stored credentials.
const phcPrehashTag = phcParamPrehash + "=sha512"
