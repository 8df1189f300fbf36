// Package signer produces the enveloped XMLDSig signature over a built
// invoice document using the merchant's installed certificate. Key material
// is decrypted from its PKCS#12 container per call and never retained.
package signer

import (
	"crypto/rsa"
	"errors"
	"fmt"
	"time"

	"github.com/beevik/etree"
	dsig "github.com/russellhaering/goxmldsig"
	pkcs12 "software.sslmate.com/src/go-pkcs12"

	"github.com/rezonia/einvoice/internal/model"
)

// containerKeyStore feeds goxmldsig the key pair decoded from the
// merchant's container
type containerKeyStore struct {
	key     *rsa.PrivateKey
	certDER []byte
}

func (ks *containerKeyStore) GetKeyPair() (*rsa.PrivateKey, []byte, error) {
	return ks.key, ks.certDER, nil
}

// Sign signs the document with the key and certificate held in the
// password-protected container. The signature covers the whole document via
// an enveloped-signature transform with exclusive canonicalization, embeds
// the signer certificate, and is appended as the last child of the root.
func Sign(doc *etree.Document, container []byte, password string) ([]byte, error) {
	root := doc.Root()
	if root == nil {
		return nil, fmt.Errorf("sign: empty document")
	}

	key, cert, _, err := pkcs12.DecodeChain(container, password)
	if err != nil {
		if errors.Is(err, pkcs12.ErrIncorrectPassword) {
			return nil, model.NewCredentialError("container password incorrect", err)
		}
		return nil, model.NewCredentialError("container malformed or unreadable", err)
	}

	rsaKey, ok := key.(*rsa.PrivateKey)
	if !ok {
		return nil, model.NewKeyUsageError("container holds no RSA private key", time.Time{})
	}

	now := time.Now()
	if now.After(cert.NotAfter) {
		return nil, model.NewKeyUsageError("signing certificate has expired", cert.NotAfter)
	}
	if now.Before(cert.NotBefore) {
		return nil, model.NewKeyUsageError("signing certificate is not yet valid", cert.NotAfter)
	}
	if pub, ok := cert.PublicKey.(*rsa.PublicKey); !ok || pub.N.Cmp(rsaKey.N) != 0 {
		return nil, model.NewKeyUsageError("private key does not match certificate", cert.NotAfter)
	}

	signCtx := dsig.NewDefaultSigningContext(&containerKeyStore{key: rsaKey, certDER: cert.Raw})
	signCtx.Canonicalizer = dsig.MakeC14N10ExclusiveCanonicalizerWithPrefixList("")

	signed, err := signCtx.SignEnveloped(root)
	if err != nil {
		return nil, fmt.Errorf("sign document: %w", err)
	}

	out := etree.NewDocument()
	out.CreateProcInst("xml", `version="1.0" encoding="UTF-8"`)
	out.SetRoot(signed)

	return out.WriteToBytes()
}
