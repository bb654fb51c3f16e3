package snapshot

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"filippo.io/age"
)

// AgeEncryptor seals snapshots to an X25519 recipient read from a public key
// file. The matching identity lives in a second file, itself sealed with a
// passphrase, so the sync daemon only ever holds the public half.
type AgeEncryptor struct {
	publicKeyPath  string
	privateKeyPath string

	once      sync.Once
	recipient age.Recipient
	loadErr   error
}

func NewAgeEncryptor(publicKeyPath, privateKeyPath string) *AgeEncryptor {
	return &AgeEncryptor{
		publicKeyPath:  publicKeyPath,
		privateKeyPath: privateKeyPath,
	}
}

// IsConfigured reports whether the public key file exists.
func (e *AgeEncryptor) IsConfigured() bool {
	_, err := os.Stat(e.publicKeyPath)
	return err == nil
}

// Setup generates a key pair, writes the public key in plaintext and the
// identity sealed with passphrase.
func (e *AgeEncryptor) Setup(passphrase string) error {
	if e.publicKeyPath == "" || e.privateKeyPath == "" {
		return errors.New("both key paths must be configured")
	}
	identity, err := age.GenerateX25519Identity()
	if err != nil {
		return fmt.Errorf("generating key pair: %w", err)
	}
	sealer, err := age.NewScryptRecipient(passphrase)
	if err != nil {
		return fmt.Errorf("creating passphrase recipient: %w", err)
	}

	for _, dir := range []string{filepath.Dir(e.publicKeyPath), filepath.Dir(e.privateKeyPath)} {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return fmt.Errorf("creating key directory: %w", err)
		}
	}
	if err := os.WriteFile(e.publicKeyPath, []byte(identity.Recipient().String()+"\n"), 0644); err != nil {
		return fmt.Errorf("writing public key: %w", err)
	}

	f, err := os.OpenFile(e.privateKeyPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("creating private key file: %w", err)
	}
	if err := seal(f, sealer, strings.NewReader(identity.String()+"\n")); err != nil {
		f.Close()
		return fmt.Errorf("writing private key: %w", err)
	}
	return f.Close()
}

// Encrypt reads plaintext from r and writes age ciphertext to w. The public
// key is read on first use and cached.
func (e *AgeEncryptor) Encrypt(r io.Reader, w io.Writer) error {
	e.once.Do(func() { e.recipient, e.loadErr = readRecipient(e.publicKeyPath) })
	if e.loadErr != nil {
		return fmt.Errorf("loading public key: %w", e.loadErr)
	}
	return seal(w, e.recipient, r)
}

// Unlock opens the sealed identity with passphrase.
func (e *AgeEncryptor) Unlock(passphrase string) (*Decryptor, error) {
	opener, err := age.NewScryptIdentity(passphrase)
	if err != nil {
		return nil, fmt.Errorf("creating passphrase identity: %w", err)
	}
	sealed, err := os.Open(e.privateKeyPath)
	if err != nil {
		return nil, fmt.Errorf("opening private key: %w", err)
	}
	defer sealed.Close()

	var plain bytes.Buffer
	if err := open(&plain, opener, sealed); err != nil {
		return nil, fmt.Errorf("unlocking private key: %w", err)
	}
	identities, err := age.ParseIdentities(&plain)
	if err != nil {
		return nil, fmt.Errorf("parsing private key: %w", err)
	}
	if len(identities) == 0 {
		return nil, errors.New("private key file holds no identity")
	}
	return &Decryptor{identity: identities[0]}, nil
}

// Decryptor opens snapshots with an unlocked identity.
type Decryptor struct {
	identity age.Identity
}

// Decrypt reads age ciphertext from r and writes plaintext to w.
func (d *Decryptor) Decrypt(r io.Reader, w io.Writer) error {
	return open(w, d.identity, r)
}

// DecryptFile decrypts the snapshot at src into dst. dst only appears once
// decryption has fully succeeded.
func (d *Decryptor) DecryptFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("opening snapshot: %w", err)
	}
	defer in.Close()

	var plain bytes.Buffer
	if err := d.Decrypt(in, &plain); err != nil {
		return err
	}
	return writeFile(dst, &plain, int64(plain.Len()))
}

func readRecipient(path string) (age.Recipient, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	recipients, err := age.ParseRecipients(f)
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	if len(recipients) == 0 {
		return nil, fmt.Errorf("%s holds no recipient", path)
	}
	return recipients[0], nil
}

func seal(w io.Writer, to age.Recipient, r io.Reader) error {
	sw, err := age.Encrypt(w, to)
	if err != nil {
		return fmt.Errorf("starting encryption: %w", err)
	}
	if _, err := io.Copy(sw, r); err != nil {
		return fmt.Errorf("encrypting: %w", err)
	}
	if err := sw.Close(); err != nil {
		return fmt.Errorf("finishing encryption: %w", err)
	}
	return nil
}

func open(w io.Writer, with age.Identity, r io.Reader) error {
	pr, err := age.Decrypt(r, with)
	if err != nil {
		return fmt.Errorf("starting decryption: %w", err)
	}
	if _, err := io.Copy(w, pr); err != nil {
		return fmt.Errorf("decrypting: %w", err)
	}
	return nil
}
