package notify

import (
	"bytes"
	"crypto"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	netmail "net/mail"
	"os"
	"strings"

	"github.com/emersion/go-msgauth/dkim"
	"github.com/wneessen/go-mail"
)

var dkimHeaderKeys = []string{
	"from",
	"to",
	"subject",
	"date",
	"message-id",
}

// DKIM holds the signing identity for notices. Domain defaults to the domain
// of the sender address.
type DKIM struct {
	Domain   string
	Selector string
	Signer   crypto.Signer
}

// LoadDKIMKey reads a PEM encoded PKCS#1 or PKCS#8 private key.
func LoadDKIMKey(path string) (crypto.Signer, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	block, _ := pem.Decode(data)
	if block == nil {
		return nil, fmt.Errorf("invalid PEM data in %s", path)
	}

	if key, err := x509.ParsePKCS1PrivateKey(block.Bytes); err == nil {
		return key, nil
	}

	key, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("could not parse DKIM key: %w", err)
	}
	signer, ok := key.(crypto.Signer)
	if !ok {
		return nil, fmt.Errorf("DKIM key of type %T cannot sign", key)
	}
	return signer, nil
}

func (d *DKIM) validate(from string) error {
	if d.Signer == nil {
		return fmt.Errorf("dkim signer is missing")
	}
	if d.Selector == "" {
		d.Selector = "mail"
	}
	if d.Domain != "" {
		return nil
	}

	addr, err := netmail.ParseAddress(from)
	if err != nil {
		return fmt.Errorf("could not derive dkim domain from %q: %w", from, err)
	}
	_, domain, ok := strings.Cut(addr.Address, "@")
	if !ok || domain == "" {
		return fmt.Errorf("could not derive dkim domain from %q", from)
	}
	d.Domain = domain
	return nil
}

// sign renders m, computes its signature and adds it as DKIM-Signature
// header. Date and Message-ID are fixed by the first render, so the message
// sent later carries the signed header values.
func (d *DKIM) sign(m *mail.Msg) error {
	var raw bytes.Buffer
	if _, err := m.WriteTo(&raw); err != nil {
		return fmt.Errorf("failed to render notice for signing: %w", err)
	}

	signer, err := dkim.NewSigner(&dkim.SignOptions{
		Domain:     d.Domain,
		Selector:   d.Selector,
		Signer:     d.Signer,
		HeaderKeys: dkimHeaderKeys,
	})
	if err != nil {
		return fmt.Errorf("failed to create dkim signer: %w", err)
	}
	if _, err := signer.Write(raw.Bytes()); err != nil {
		signer.Close()
		return fmt.Errorf("failed to sign notice: %w", err)
	}
	if err := signer.Close(); err != nil {
		return fmt.Errorf("failed to sign notice: %w", err)
	}

	name, value, ok := strings.Cut(signer.Signature(), ":")
	if !ok || !strings.EqualFold(name, "DKIM-Signature") {
		return fmt.Errorf("unexpected dkim signature %q", name)
	}
	value = strings.TrimSpace(strings.ReplaceAll(value, "\r\n", ""))

	m.SetGenHeaderPreformatted(mail.Header("DKIM-Signature"), value)
	return nil
}
