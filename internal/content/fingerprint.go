package content

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"image/png"
)

// Digest is a SHA-256 fingerprint over the canonical byte form of a Content.
// Two digests are equal iff their bytes are equal.
type Digest [sha256.Size]byte

// String returns the lowercase hex form of the digest.
func (d Digest) String() string { return hex.EncodeToString(d[:]) }

// pngEncoder uses a fixed compression level so that repeated encodes of the
// same pixel buffer produce identical bytes on every call and every platform.
var pngEncoder = png.Encoder{CompressionLevel: png.DefaultCompression}

// Fingerprint computes the canonical digest of c.
//
// Text is hashed over its UTF-8 bytes. Images are re-encoded as PNG at their
// current dimensions with fixed encoder settings and the encoded bytes are
// hashed, so two captures of identical pixels fingerprint identically
// regardless of how the platform delivered them.
//
// Empty content is the caller's problem: guard with Empty() first.
func Fingerprint(c Content) (Digest, error) {
	switch c.Kind {
	case KindText:
		return sha256.Sum256([]byte(c.Text)), nil
	case KindImage:
		var buf bytes.Buffer
		if err := pngEncoder.Encode(&buf, c.Image); err != nil {
			return Digest{}, fmt.Errorf("fingerprint image: %w", err)
		}
		return sha256.Sum256(buf.Bytes()), nil
	default:
		return Digest{}, fmt.Errorf("fingerprint: unknown content kind %q", c.Kind)
	}
}
