package service

import (
	"encoding/base64"
	"fmt"

	"golang.org/x/crypto/sha3"
)

// InteractFinishHash computes the digest the client uses to verify that a
// finish redirect carries the outcome of its own interaction request:
//
//	base64(sha3-512(clientNonce "\n" interactNonce "\n" interactRef "\n" interactStartURL))
func InteractFinishHash(
	clientNonce string,
	interactNonce string,
	interactRef string,
	interactStartURL string,
) string {
	data := fmt.Sprintf(
		"%s\n%s\n%s\n%s",
		clientNonce,
		interactNonce,
		interactRef,
		interactStartURL,
	)
	digest := sha3.Sum512([]byte(data))
	return base64.StdEncoding.EncodeToString(digest[:])
}

// InteractStartURL builds the server's own interaction URL for a grant,
// the value covered by the finish hash.
func (s *Service) InteractStartURL(
	interactID string,
) string {
	return s.authServerDomain + "/interact/" + interactID
}
