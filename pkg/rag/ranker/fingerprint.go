package ranker

import (
	"strconv"
	"strings"

	"github.com/cespare/xxhash/v2"
)

const digestHexLength = 16

// Fingerprint identifies near-identical content. It hashes the first and last
// edge runes of the whitespace-collapsed, lowercased text together with its
// length. Texts that agree on all three collide even if their middles differ;
// that approximation is accepted.
func Fingerprint(text string, edge, length int) string {
	runes := []rune(strings.Join(strings.Fields(strings.ToLower(text)), " "))
	n := len(runes)
	if edge <= 0 || edge > n {
		edge = n
	}

	var b strings.Builder
	b.WriteString(string(runes[:edge]))
	b.WriteByte('_')
	b.WriteString(string(runes[n-edge:]))
	b.WriteByte('_')
	b.WriteString(strconv.Itoa(n))

	digest := strconv.FormatUint(xxhash.Sum64String(b.String()), 16)
	if pad := digestHexLength - len(digest); pad > 0 {
		digest = strings.Repeat("0", pad) + digest
	}
	if length > 0 && length < digestHexLength {
		return digest[:length]
	}
	return digest
}
