// Package httpsig implements HTTP message signatures over a canonical
// signing base built from a request's method, target URI, and body digest.
// It is used by the auth server to verify signed client requests, and by
// clients (and tests) to produce them.
package httpsig

import (
	"crypto/ed25519"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
)

var (
	ErrMalformedInput       = errors.New("malformed signature input")
	ErrUnsupportedComponent = errors.New("unsupported covered component")
	ErrInvalidSignature     = errors.New("invalid signature")
)

// Input is a parsed signature-input descriptor: the ordered list of covered
// components plus the raw parameter string that is itself covered by the
// signature.
type Input struct {
	Label      string
	Components []string
	KeyID      string

	// raw is the header value with the label stripped, reproduced
	// verbatim on the "@signature-params" line of the signing base.
	raw string
}

// ParseInput parses a Signature-Input header value of the form
//
//	sig1=("@method" "@target-uri" "content-digest");created=...;keyid="..."
func ParseInput(
	header string,
) (
	*Input,
	error,
) {
	label, value, found := strings.Cut(header, "=")
	if !found || label == "" {
		return nil, fmt.Errorf("%w: missing label", ErrMalformedInput)
	}

	if !strings.HasPrefix(value, "(") {
		return nil, fmt.Errorf("%w: missing component list", ErrMalformedInput)
	}
	end := strings.Index(value, ")")
	if end < 0 {
		return nil, fmt.Errorf("%w: unterminated component list", ErrMalformedInput)
	}

	var components []string
	for _, c := range strings.Fields(value[1:end]) {
		name, err := unquote(c)
		if err != nil {
			return nil, fmt.Errorf("%w: bad component %q", ErrMalformedInput, c)
		}
		components = append(components, name)
	}
	if len(components) == 0 {
		return nil, fmt.Errorf("%w: empty component list", ErrMalformedInput)
	}

	keyID, err := parseKeyID(value[end+1:])
	if err != nil {
		return nil, err
	}

	return &Input{
		Label:      label,
		Components: components,
		KeyID:      keyID,
		raw:        value,
	}, nil
}

func parseKeyID(
	params string,
) (
	string,
	error,
) {
	for _, param := range strings.Split(params, ";") {
		key, val, found := strings.Cut(param, "=")
		if !found || key != "keyid" {
			continue
		}
		keyID, err := unquote(val)
		if err != nil {
			return "", fmt.Errorf("%w: bad keyid %q", ErrMalformedInput, val)
		}
		return keyID, nil
	}
	return "", fmt.Errorf("%w: missing keyid", ErrMalformedInput)
}

func unquote(
	s string,
) (
	string,
	error,
) {
	if len(s) < 2 || s[0] != '"' || s[len(s)-1] != '"' {
		return "", fmt.Errorf("not a quoted string")
	}
	return s[1 : len(s)-1], nil
}

// ContentDigest computes the body digest component value: the sha-256 of the
// body bytes, base64 encoded, wrapped in the digest algorithm tag.
func ContentDigest(
	body []byte,
) string {
	sum := sha256.Sum256(body)
	return fmt.Sprintf("sha-256:%s:", base64.StdEncoding.EncodeToString(sum[:]))
}

// SigningBase reconstructs the canonical signing base for a request: one
// `"component": value` line per covered component in declared order, then a
// final "@signature-params" line carrying the signature parameters.
func (in *Input) SigningBase(
	method string,
	targetURI string,
	body []byte,
) (
	string,
	error,
) {
	var base strings.Builder
	for _, component := range in.Components {
		var value string
		switch component {
		case "@method":
			value = method
		case "@target-uri":
			value = targetURI
		case "content-digest":
			if len(body) == 0 {
				return "", fmt.Errorf("%w: content-digest covered but request has no body", ErrMalformedInput)
			}
			value = ContentDigest(body)
		default:
			return "", fmt.Errorf("%w: %q", ErrUnsupportedComponent, component)
		}
		fmt.Fprintf(&base, "%q: %s\n", component, value)
	}
	fmt.Fprintf(&base, "%q: %s", "@signature-params", in.raw)
	return base.String(), nil
}

// Verify checks an encoded signature over the signing base against an
// Ed25519 public key.
func Verify(
	publicKey ed25519.PublicKey,
	signingBase string,
	signature string,
) error {
	sig, err := base64.StdEncoding.DecodeString(signature)
	if err != nil {
		return fmt.Errorf("%w: signature is not base64: %v", ErrInvalidSignature, err)
	}
	if !ed25519.Verify(publicKey, []byte(signingBase), sig) {
		return ErrInvalidSignature
	}
	return nil
}
