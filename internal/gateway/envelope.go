package gateway

import (
	"fmt"
	"strings"

	"github.com/beevik/etree"

	"github.com/rezonia/einvoice/internal/model"
)

// Protocol framing constants
const (
	SOAPEnvelopeNamespace = "http://schemas.xmlsoap.org/soap/envelope/"
	ServiceNamespace      = "urn:rezonia:einvoice:gateway:v1"
)

// requestEnvelope wraps an operation request in the standard envelope with
// the credential pair embedded in the request body
func requestEnvelope(operation string, creds Credentials, fill func(req *etree.Element)) ([]byte, error) {
	doc := etree.NewDocument()
	doc.CreateProcInst("xml", `version="1.0" encoding="UTF-8"`)

	env := doc.CreateElement("soap:Envelope")
	env.CreateAttr("xmlns:soap", SOAPEnvelopeNamespace)

	body := env.CreateElement("soap:Body")
	req := body.CreateElement(operation + "Request")
	req.CreateAttr("xmlns", ServiceNamespace)

	cred := req.CreateElement("Credentials")
	cred.CreateElement("Alias").SetText(creds.Alias)
	cred.CreateElement("Secret").SetText(creds.Secret)

	if fill != nil {
		fill(req)
	}

	return doc.WriteToBytes()
}

// parseResponseEnvelope locates the matching response element for an
// operation, falling back to the generic fault element. A body matching
// neither shape is a protocol error, never a silent empty success.
func parseResponseEnvelope(operation string, data []byte) (*etree.Element, error) {
	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(data); err != nil {
		return nil, model.NewProtocolFaultError(operation, "", fmt.Sprintf("unparseable response: %v", err))
	}

	root := doc.Root()
	if root == nil {
		return nil, model.NewProtocolFaultError(operation, "", "empty response envelope")
	}

	if resp := findElementByLocalName(root, operation+"Response"); resp != nil {
		return resp, nil
	}

	if fault := findElementByLocalName(root, "Fault"); fault != nil {
		return nil, model.NewProtocolFaultError(operation, childText(fault, "faultcode"), childText(fault, "faultstring"))
	}

	return nil, model.NewProtocolFaultError(operation, "", "response matched neither response nor fault shape")
}

// findElementByLocalName searches recursively for an element by local name,
// ignoring namespace prefixes
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

// childText returns the trimmed text of the first descendant with the given
// local name, or empty
func childText(elem *etree.Element, localName string) string {
	if el := findElementByLocalName(elem, localName); el != nil {
		return strings.TrimSpace(el.Text())
	}
	return ""
}

func localPart(tag string) string {
	if idx := strings.IndexByte(tag, ':'); idx >= 0 {
		return tag[idx+1:]
	}
	return tag
}
