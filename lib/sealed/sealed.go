// Copyright 2026 The Docsync Authors
// SPDX-License-Identifier: Apache-2.0

package sealed

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"filippo.io/age"
	"filippo.io/age/armor"
)

// Keypair is an age x25519 keypair.
type Keypair struct {
	// PrivateKey is the identity in AGE-SECRET-KEY-1... form. It must
	// never be logged.
	PrivateKey string

	// PublicKey is the recipient in age1... form.
	PublicKey string
}

// GenerateKeypair returns a fresh keypair.
func GenerateKeypair() (Keypair, error) {
	identity, err := age.GenerateX25519Identity()
	if err != nil {
		return Keypair{}, fmt.Errorf("generating age keypair: %w", err)
	}
	return Keypair{
		PrivateKey: identity.String(),
		PublicKey:  identity.Recipient().String(),
	}, nil
}

// ParseRecipients parses age1... public keys. At least one is
// required.
func ParseRecipients(keys []string) ([]age.Recipient, error) {
	if len(keys) == 0 {
		return nil, errors.New("at least one recipient is required")
	}
	recipients := make([]age.Recipient, 0, len(keys))
	for _, key := range keys {
		recipient, err := age.ParseX25519Recipient(strings.TrimSpace(key))
		if err != nil {
			return nil, fmt.Errorf("parsing recipient key %q: %w", key, err)
		}
		recipients = append(recipients, recipient)
	}
	return recipients, nil
}

// ParseIdentities parses AGE-SECRET-KEY-1... private keys.
func ParseIdentities(keys ...string) ([]age.Identity, error) {
	if len(keys) == 0 {
		return nil, errors.New("at least one identity is required")
	}
	identities := make([]age.Identity, 0, len(keys))
	for _, key := range keys {
		identity, err := age.ParseX25519Identity(strings.TrimSpace(key))
		if err != nil {
			// The key itself stays out of the message.
			return nil, fmt.Errorf("parsing private key: %w", err)
		}
		identities = append(identities, identity)
	}
	return identities, nil
}

// ReadIdentityFile loads the identities of an age key file, the format
// age-keygen writes: one key per line, # comments allowed.
func ReadIdentityFile(path string) ([]age.Identity, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening identity file: %w", err)
	}
	defer file.Close()
	identities, err := age.ParseIdentities(file)
	if err != nil {
		return nil, fmt.Errorf("reading identity file %s: %w", path, err)
	}
	return identities, nil
}

type armoredWriter struct {
	encrypted io.WriteCloser
	armor     io.WriteCloser
}

func (w *armoredWriter) Write(p []byte) (int, error) {
	return w.encrypted.Write(p)
}

func (w *armoredWriter) Close() error {
	if err := w.encrypted.Close(); err != nil {
		return err
	}
	return w.armor.Close()
}

// NewWriter returns a writer encrypting to the given public keys. The
// output is complete only after Close; Close does not close w.
func NewWriter(w io.Writer, recipientKeys []string, armored bool) (io.WriteCloser, error) {
	recipients, err := ParseRecipients(recipientKeys)
	if err != nil {
		return nil, err
	}
	if !armored {
		encrypted, err := age.Encrypt(w, recipients...)
		if err != nil {
			return nil, fmt.Errorf("creating age encryptor: %w", err)
		}
		return encrypted, nil
	}

	armorWriter := armor.NewWriter(w)
	encrypted, err := age.Encrypt(armorWriter, recipients...)
	if err != nil {
		return nil, fmt.Errorf("creating age encryptor: %w", err)
	}
	return &armoredWriter{encrypted: encrypted, armor: armorWriter}, nil
}

// NewReader returns a reader of the plaintext in r. Armored input is
// recognized by its header.
func NewReader(r io.Reader, identities ...age.Identity) (io.Reader, error) {
	buffered := bufio.NewReader(r)
	header, _ := buffered.Peek(len(armor.Header))
	var source io.Reader = buffered
	if bytes.Equal(header, []byte(armor.Header)) {
		source = armor.NewReader(buffered)
	}
	plaintext, err := age.Decrypt(source, identities...)
	if err != nil {
		return nil, fmt.Errorf("decrypting: %w", err)
	}
	return plaintext, nil
}

// Encrypt seals plaintext in one call.
func Encrypt(plaintext []byte, recipientKeys []string, armored bool) ([]byte, error) {
	var sealed bytes.Buffer
	writer, err := NewWriter(&sealed, recipientKeys, armored)
	if err != nil {
		return nil, err
	}
	if _, err := writer.Write(plaintext); err != nil {
		return nil, fmt.Errorf("writing plaintext to age encryptor: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("finalizing age encryption: %w", err)
	}
	return sealed.Bytes(), nil
}

// Decrypt opens ciphertext produced by Encrypt or NewWriter.
func Decrypt(ciphertext []byte, identities ...age.Identity) ([]byte, error) {
	reader, err := NewReader(bytes.NewReader(ciphertext), identities...)
	if err != nil {
		return nil, err
	}
	plaintext, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("reading decrypted plaintext: %w", err)
	}
	return plaintext, nil
}
