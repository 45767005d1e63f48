// Copyright 2026 The Docsync Authors
// SPDX-License-Identifier: Apache-2.0

package sealed

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"filippo.io/age/armor"
)

func mustKeypair(t *testing.T) Keypair {
	t.Helper()
	keypair, err := GenerateKeypair()
	if err != nil {
		t.Fatalf("GenerateKeypair: %v", err)
	}
	return keypair
}

func TestGenerateKeypair(t *testing.T) {
	first := mustKeypair(t)
	second := mustKeypair(t)
	if !strings.HasPrefix(first.PrivateKey, "AGE-SECRET-KEY-1") {
		t.Errorf("PrivateKey has unexpected form")
	}
	if !strings.HasPrefix(first.PublicKey, "age1") {
		t.Errorf("PublicKey = %q, want prefix age1", first.PublicKey)
	}
	if first.PrivateKey == second.PrivateKey || first.PublicKey == second.PublicKey {
		t.Error("two generated keypairs are identical")
	}
}

func TestRoundTrip(t *testing.T) {
	for _, armored := range []bool{false, true} {
		name := "binary"
		if armored {
			name = "armored"
		}
		t.Run(name, func(t *testing.T) {
			keypair := mustKeypair(t)
			plaintext := []byte(`{"collection":"contacts","id":"c1","fields":{"name":"Asha"}}` + "\n")

			ciphertext, err := Encrypt(plaintext, []string{keypair.PublicKey}, armored)
			if err != nil {
				t.Fatalf("Encrypt: %v", err)
			}
			if bytes.Contains(ciphertext, []byte("Asha")) {
				t.Fatal("ciphertext contains plaintext")
			}
			if got := bytes.HasPrefix(ciphertext, []byte(armor.Header)); got != armored {
				t.Errorf("armor header present = %v, want %v", got, armored)
			}

			identities, err := ParseIdentities(keypair.PrivateKey)
			if err != nil {
				t.Fatalf("ParseIdentities: %v", err)
			}
			decrypted, err := Decrypt(ciphertext, identities...)
			if err != nil {
				t.Fatalf("Decrypt: %v", err)
			}
			if !bytes.Equal(decrypted, plaintext) {
				t.Errorf("decrypted %q, want %q", decrypted, plaintext)
			}
		})
	}
}

func TestMultipleRecipients(t *testing.T) {
	operator := mustKeypair(t)
	escrow := mustKeypair(t)
	outsider := mustKeypair(t)

	ciphertext, err := Encrypt([]byte("export"), []string{operator.PublicKey, escrow.PublicKey}, false)
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	for _, keypair := range []Keypair{operator, escrow} {
		identities, err := ParseIdentities(keypair.PrivateKey)
		if err != nil {
			t.Fatalf("ParseIdentities: %v", err)
		}
		if _, err := Decrypt(ciphertext, identities...); err != nil {
			t.Errorf("recipient could not decrypt: %v", err)
		}
	}

	identities, err := ParseIdentities(outsider.PrivateKey)
	if err != nil {
		t.Fatalf("ParseIdentities: %v", err)
	}
	if _, err := Decrypt(ciphertext, identities...); err == nil {
		t.Error("non-recipient decrypted the export")
	}
}

func TestStreamingWriter(t *testing.T) {
	keypair := mustKeypair(t)
	var sealed bytes.Buffer
	writer, err := NewWriter(&sealed, []string{keypair.PublicKey}, true)
	if err != nil {
		t.Fatalf("NewWriter: %v", err)
	}
	var want bytes.Buffer
	for i := range 1000 {
		line := strings.Repeat("x", i%80) + "\n"
		want.WriteString(line)
		if _, err := writer.Write([]byte(line)); err != nil {
			t.Fatalf("Write: %v", err)
		}
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	identities, err := ParseIdentities(keypair.PrivateKey)
	if err != nil {
		t.Fatalf("ParseIdentities: %v", err)
	}
	decrypted, err := Decrypt(sealed.Bytes(), identities...)
	if err != nil {
		t.Fatalf("Decrypt: %v", err)
	}
	if !bytes.Equal(decrypted, want.Bytes()) {
		t.Error("streamed plaintext did not survive the round trip")
	}
}

func TestKeyValidation(t *testing.T) {
	if _, err := ParseRecipients(nil); err == nil {
		t.Error("ParseRecipients accepted no recipients")
	}
	if _, err := ParseRecipients([]string{"age1notakey"}); err == nil {
		t.Error("ParseRecipients accepted a malformed key")
	}
	if _, err := ParseIdentities("AGE-SECRET-KEY-1BOGUS"); err == nil {
		t.Error("ParseIdentities accepted a malformed key")
	}
	if _, err := NewWriter(&bytes.Buffer{}, nil, false); err == nil {
		t.Error("NewWriter accepted no recipients")
	}
}

func TestReadIdentityFile(t *testing.T) {
	keypair := mustKeypair(t)
	path := filepath.Join(t.TempDir(), "key.txt")
	contents := "# created for the export test\n# public key: " + keypair.PublicKey + "\n" + keypair.PrivateKey + "\n"
	if err := os.WriteFile(path, []byte(contents), 0o600); err != nil {
		t.Fatal(err)
	}
	identities, err := ReadIdentityFile(path)
	if err != nil {
		t.Fatalf("ReadIdentityFile: %v", err)
	}
	ciphertext, err := Encrypt([]byte("hello"), []string{keypair.PublicKey}, false)
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	if _, err := Decrypt(ciphertext, identities...); err != nil {
		t.Errorf("Decrypt with file identities: %v", err)
	}
}
