package httpsig

import (
	"crypto/ed25519"
	"encoding/base64"
	"fmt"
	"strings"
	"time"
)

// NewInput builds a signature-input descriptor covering the request method
// and target URI, plus the body digest when the request carries a body.
func NewInput(
	keyID string,
	hasBody bool,
) *Input {
	components := []string{"@method", "@target-uri"}
	if hasBody {
		components = append(components, "content-digest")
	}

	quoted := make([]string, len(components))
	for i, c := range components {
		quoted[i] = fmt.Sprintf("%q", c)
	}
	raw := fmt.Sprintf(
		"(%s);created=%d;keyid=%q",
		strings.Join(quoted, " "),
		time.Now().Unix(),
		keyID,
	)

	return &Input{
		Label:      "sig1",
		Components: components,
		KeyID:      keyID,
		raw:        raw,
	}
}

// Header renders the descriptor as a Signature-Input header value.
func (in *Input) Header() string {
	return in.Label + "=" + in.raw
}

// Sign produces the encoded signature over the signing base for a request.
func Sign(
	privateKey ed25519.PrivateKey,
	in *Input,
	method string,
	targetURI string,
	body []byte,
) (
	string,
	error,
) {
	base, err := in.SigningBase(method, targetURI, body)
	if err != nil {
		return "", err
	}
	sig := ed25519.Sign(privateKey, []byte(base))
	return base64.StdEncoding.EncodeToString(sig), nil
}
