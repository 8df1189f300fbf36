package signer

import (
	"crypto/x509"
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/beevik/etree"
	dsig "github.com/russellhaering/goxmldsig"
)

// XMLDSigNamespace is the XML digital signature namespace
const XMLDSigNamespace = "http://www.w3.org/2000/09/xmldsig#"

// Verify validates the enveloped signature of a signed document against the
// certificate embedded in the signature itself. Any alteration of the signed
// payload fails verification.
func Verify(signedXML []byte) error {
	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(signedXML); err != nil {
		return fmt.Errorf("parse signed XML: %w", err)
	}

	root := doc.Root()
	if root == nil {
		return fmt.Errorf("empty signed document")
	}

	sig := findElementByLocalName(root, "Signature")
	if sig == nil {
		return fmt.Errorf("no Signature element in document")
	}

	cert, err := embeddedCertificate(sig)
	if err != nil {
		return err
	}

	validationCtx := dsig.NewDefaultValidationContext(&dsig.MemoryX509CertificateStore{
		Roots: []*x509.Certificate{cert},
	})

	if _, err := validationCtx.Validate(root); err != nil {
		return fmt.Errorf("signature validation failed: %w", err)
	}

	return nil
}

// embeddedCertificate extracts and parses the signer certificate carried in
// the signature's KeyInfo block
func embeddedCertificate(sig *etree.Element) (*x509.Certificate, error) {
	certElem := findElementByLocalName(sig, "X509Certificate")
	if certElem == nil {
		return nil, fmt.Errorf("no X509Certificate in Signature")
	}

	der, err := base64.StdEncoding.DecodeString(strings.Join(strings.Fields(certElem.Text()), ""))
	if err != nil {
		return nil, fmt.Errorf("decode embedded certificate: %w", err)
	}

	cert, err := x509.ParseCertificate(der)
	if err != nil {
		return nil, fmt.Errorf("parse embedded certificate: %w", err)
	}

	return cert, nil
}

// findElementByLocalName searches recursively for an element by local name,
// ignoring any namespace prefix
func findElementByLocalName(elem *etree.Element, localName string) *etree.Element {
	if localPart(elem.Tag) == localName {
		return elem
	}
	for _, child := range elem.ChildElements() {
		if found := findElementByLocalName(child, localName); found != nil {
			return found
		}
	}
	return nil
}

func localPart(tag string) string {
	if idx := strings.IndexByte(tag, ':'); idx >= 0 {
		return tag[idx+1:]
	}
	return tag
}
