package service_test

import (
	"testing"

	"git.sr.ht/~jakintosh/gnap/internal/service"
)

func TestInteractFinishHash_KnownAnswer(t *testing.T) {
	t.Parallel()

	// base64(sha3-512("cn\nin\nref\nhttps://as.example/interact/abc"))
	want := "6cU3KRkHorb5eMiPFKEbvmDizK1AuHf4e+xP2PATFZkkN3RvB7NrZ9OShUYi9NB7ZE1t8tVHBnDS5HvskK4wSQ=="

	got := service.InteractFinishHash(
		"cn",
		"in",
		"ref",
		"https://as.example/interact/abc",
	)
	if got != want {
		t.Errorf("hash = %s, want %s", got, want)
	}
}

func TestInteractFinishHash_InputSensitivity(t *testing.T) {
	t.Parallel()

	base := service.InteractFinishHash("cn", "in", "ref", "https://as.example/interact/abc")

	variants := []string{
		service.InteractFinishHash("cN", "in", "ref", "https://as.example/interact/abc"),
		service.InteractFinishHash("cn", "iN", "ref", "https://as.example/interact/abc"),
		service.InteractFinishHash("cn", "in", "reg", "https://as.example/interact/abc"),
		service.InteractFinishHash("cn", "in", "ref", "https://as.example/interact/abd"),
	}
	for i, variant := range variants {
		if variant == base {
			t.Errorf("variant %d produced the same hash as the base inputs", i)
		}
	}
}
