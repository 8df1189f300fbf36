package gateway_test

import (
	"context"
	"encoding/base64"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rezonia/einvoice/internal/gateway"
	"github.com/rezonia/einvoice/internal/model"
)

var testCreds = gateway.Credentials{Alias: "acme-alias", Secret: "acme-secret"}

const sendSuccessEnvelope = `<?xml version="1.0" encoding="UTF-8"?>
<soap:Envelope xmlns:soap="http://schemas.xmlsoap.org/soap/envelope/">
  <soap:Body>
    <SendDocumentResponse xmlns="urn:rezonia:einvoice:gateway:v1">
      <DocumentId>GW-123</DocumentId>
      <DocumentNumber>AUTH-0001</DocumentNumber>
    </SendDocumentResponse>
  </soap:Body>
</soap:Envelope>`

const sendMissingIDEnvelope = `<?xml version="1.0" encoding="UTF-8"?>
<soap:Envelope xmlns:soap="http://schemas.xmlsoap.org/soap/envelope/">
  <soap:Body>
    <SendDocumentResponse xmlns="urn:rezonia:einvoice:gateway:v1">
      <DocumentNumber>AUTH-0001</DocumentNumber>
    </SendDocumentResponse>
  </soap:Body>
</soap:Envelope>`

const faultEnvelope = `<?xml version="1.0" encoding="UTF-8"?>
<soap:Envelope xmlns:soap="http://schemas.xmlsoap.org/soap/envelope/">
  <soap:Body>
    <soap:Fault>
      <faultcode>AUTH001</faultcode>
      <faultstring>invalid credentials</faultstring>
    </soap:Fault>
  </soap:Body>
</soap:Envelope>`

const statusEnvelope = `<?xml version="1.0" encoding="UTF-8"?>
<soap:Envelope xmlns:soap="http://schemas.xmlsoap.org/soap/envelope/">
  <soap:Body>
    <GetDocumentStatusResponse xmlns="urn:rezonia:einvoice:gateway:v1">
      <Status>APPROVED</Status>
      <StatusMessage>processed ok</StatusMessage>
      <ProcessedAt>2024-03-15T10:30:00Z</ProcessedAt>
    </GetDocumentStatusResponse>
  </soap:Body>
</soap:Envelope>`

const inboxEnvelope = `<?xml version="1.0" encoding="UTF-8"?>
<soap:Envelope xmlns:soap="http://schemas.xmlsoap.org/soap/envelope/">
  <soap:Body>
    <ListInboxDocumentsResponse xmlns="urn:rezonia:einvoice:gateway:v1">
      <InboxDocument>
        <DocumentId>IN-1</DocumentId>
        <DocumentNumber>SUP20240007B</DocumentNumber>
        <Date>2024-03-10</Date>
        <SenderTaxId>5555555555</SenderTaxId>
        <SenderName>Supplier One</SenderName>
        <Total>120.50</Total>
        <Status>APPROVED</Status>
      </InboxDocument>
      <InboxDocument>
        <DocumentNumber>missing-id</DocumentNumber>
        <Date>2024-03-11</Date>
        <Total>10.00</Total>
      </InboxDocument>
      <InboxDocument>
        <DocumentId>IN-3</DocumentId>
        <Date>not-a-date</Date>
        <Total>10.00</Total>
      </InboxDocument>
      <InboxDocument>
        <DocumentId>IN-4</DocumentId>
        <DocumentNumber>SUP20240009B</DocumentNumber>
        <Date>2024-03-12</Date>
        <SenderTaxId>6666666666</SenderTaxId>
        <SenderName>Supplier Two</SenderName>
        <Total>99.99</Total>
        <Status>PENDING</Status>
      </InboxDocument>
    </ListInboxDocumentsResponse>
  </soap:Body>
</soap:Envelope>`

// respondWith returns a gateway stub that records the last request and
// answers every call with the given body
func respondWith(status int, body string, lastRequest *string, lastAction *string) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, _ := io.ReadAll(r.Body)
		if lastRequest != nil {
			*lastRequest = string(data)
		}
		if lastAction != nil {
			*lastAction = r.Header.Get("SOAPAction")
		}
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
}

func TestSendDocument(t *testing.T) {
	var body, action string
	srv := respondWith(http.StatusOK, sendSuccessEnvelope, &body, &action)
	defer srv.Close()

	client := gateway.NewClient(srv.URL, "http://prod.invalid")
	signed := []byte("<Invoice>signed</Invoice>")

	result, err := client.SendDocument(context.Background(), signed, testCreds, true)
	require.NoError(t, err)

	assert.True(t, result.Accepted)
	assert.Equal(t, "GW-123", result.DocumentID)
	assert.Equal(t, "AUTH-0001", result.DocumentNumber)

	// Credentials and the base64 document travel in the request body
	assert.Contains(t, body, "<Alias>acme-alias</Alias>")
	assert.Contains(t, body, "<Secret>acme-secret</Secret>")
	assert.Contains(t, body, base64.StdEncoding.EncodeToString(signed))
	assert.Equal(t, gateway.ServiceNamespace+"/SendDocument", action)
}

func TestSendDocumentFault(t *testing.T) {
	srv := respondWith(http.StatusOK, faultEnvelope, nil, nil)
	defer srv.Close()

	client := gateway.NewClient(srv.URL, "http://prod.invalid")

	_, err := client.SendDocument(context.Background(), []byte("<x/>"), testCreds, true)
	require.Error(t, err)

	var fault *model.ProtocolFaultError
	require.ErrorAs(t, err, &fault)
	assert.Equal(t, "AUTH001", fault.Code)
	assert.Equal(t, "invalid credentials", fault.Message)
}

// A success envelope without the gateway document id is rejected: the client
// never invents an identifier locally.
func TestSendDocumentMissingID(t *testing.T) {
	srv := respondWith(http.StatusOK, sendMissingIDEnvelope, nil, nil)
	defer srv.Close()

	client := gateway.NewClient(srv.URL, "http://prod.invalid")

	result, err := client.SendDocument(context.Background(), []byte("<x/>"), testCreds, true)
	require.Error(t, err)

	var fault *model.ProtocolFaultError
	require.ErrorAs(t, err, &fault)
	assert.False(t, result.Accepted)
	assert.Empty(t, result.DocumentID)
}

func TestSendDocumentHTTPError(t *testing.T) {
	srv := respondWith(http.StatusBadGateway, "upstream down", nil, nil)
	defer srv.Close()

	client := gateway.NewClient(srv.URL, "http://prod.invalid")

	_, err := client.SendDocument(context.Background(), []byte("<x/>"), testCreds, true)
	require.Error(t, err)

	var transport *model.TransportFailureError
	require.ErrorAs(t, err, &transport)
	// A definite HTTP error response means the request did not land
	assert.False(t, transport.Ambiguous)
}

// Connection refused means the request never left the machine, so even a
// send failure is known undelivered.
func TestSendDocumentConnectionRefusedNotAmbiguous(t *testing.T) {
	srv := respondWith(http.StatusOK, sendSuccessEnvelope, nil, nil)
	srv.Close() // nothing listening anymore

	client := gateway.NewClient(srv.URL, "http://prod.invalid")

	_, err := client.SendDocument(context.Background(), []byte("<x/>"), testCreds, true)
	require.Error(t, err)

	var transport *model.TransportFailureError
	require.ErrorAs(t, err, &transport)
	assert.False(t, transport.Ambiguous)
}

// A connection dropped after the request was written leaves delivery
// unresolved and must be flagged ambiguous.
func TestSendDocumentDroppedConnectionIsAmbiguous(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hj, ok := w.(http.Hijacker)
		require.True(t, ok)
		conn, _, err := hj.Hijack()
		require.NoError(t, err)
		_ = conn.Close()
	}))
	defer srv.Close()

	client := gateway.NewClient(srv.URL, "http://prod.invalid")

	_, err := client.SendDocument(context.Background(), []byte("<x/>"), testCreds, true)
	require.Error(t, err)

	var transport *model.TransportFailureError
	require.ErrorAs(t, err, &transport)
	assert.True(t, transport.Ambiguous)
}

func TestGetStatus(t *testing.T) {
	var body string
	srv := respondWith(http.StatusOK, statusEnvelope, &body, nil)
	defer srv.Close()

	client := gateway.NewClient(srv.URL, "http://prod.invalid")

	result, err := client.GetStatus(context.Background(), "GW-123", testCreds, true)
	require.NoError(t, err)

	assert.Equal(t, "APPROVED", result.RawStatus)
	assert.Equal(t, model.GatewayStatusApproved, result.Status)
	assert.Equal(t, "processed ok", result.Message)
	require.NotNil(t, result.ProcessedAt)
	assert.Equal(t, 2024, result.ProcessedAt.Year())

	assert.Contains(t, body, "<DocumentId>GW-123</DocumentId>")
}

func TestGetStatusUnrecognized(t *testing.T) {
	envelope := strings.Replace(statusEnvelope, "APPROVED", "ARCHIVED", 1)
	srv := respondWith(http.StatusOK, envelope, nil, nil)
	defer srv.Close()

	client := gateway.NewClient(srv.URL, "http://prod.invalid")

	result, err := client.GetStatus(context.Background(), "GW-123", testCreds, true)
	require.NoError(t, err)

	// Unrecognized statuses pass through verbatim
	assert.Equal(t, "ARCHIVED", result.RawStatus)
	assert.Equal(t, model.GatewayStatusUnknown, result.Status)
}

func TestGetStatusConnectionFailureNotAmbiguous(t *testing.T) {
	srv := respondWith(http.StatusOK, statusEnvelope, nil, nil)
	srv.Close()

	client := gateway.NewClient(srv.URL, "http://prod.invalid")

	_, err := client.GetStatus(context.Background(), "GW-123", testCreds, true)
	require.Error(t, err)

	var transport *model.TransportFailureError
	require.ErrorAs(t, err, &transport)
	// Status queries are idempotent, failures are never ambiguous
	assert.False(t, transport.Ambiguous)
}

func TestListInboxDocumentsSkipsUnparseableEntries(t *testing.T) {
	srv := respondWith(http.StatusOK, inboxEnvelope, nil, nil)
	defer srv.Close()

	client := gateway.NewClient(srv.URL, "http://prod.invalid")

	docs, err := client.ListInboxDocuments(context.Background(), testCreds, true)
	require.NoError(t, err)
	require.Len(t, docs, 2, "entries missing id or with bad dates are skipped")

	assert.Equal(t, "IN-1", docs[0].DocumentID)
	assert.Equal(t, "SUP20240007B", docs[0].DocumentNumber)
	assert.Equal(t, "Supplier One", docs[0].SenderName)
	assert.Equal(t, "120.50", docs[0].Total.StringFixed(2))
	assert.Equal(t, "IN-4", docs[1].DocumentID)
}

func TestEndpointSelection(t *testing.T) {
	testSrv := respondWith(http.StatusOK, statusEnvelope, nil, nil)
	defer testSrv.Close()
	prodEnvelope := strings.Replace(statusEnvelope, "APPROVED", "REJECTED", 1)
	prodSrv := respondWith(http.StatusOK, prodEnvelope, nil, nil)
	defer prodSrv.Close()

	client := gateway.NewClient(testSrv.URL, prodSrv.URL)

	result, err := client.GetStatus(context.Background(), "GW-123", testCreds, true)
	require.NoError(t, err)
	assert.Equal(t, model.GatewayStatusApproved, result.Status)

	result, err = client.GetStatus(context.Background(), "GW-123", testCreds, false)
	require.NoError(t, err)
	assert.Equal(t, model.GatewayStatusRejected, result.Status)
}

func TestUnexpectedResponseShape(t *testing.T) {
	srv := respondWith(http.StatusOK, `<?xml version="1.0"?><Unrelated/>`, nil, nil)
	defer srv.Close()

	client := gateway.NewClient(srv.URL, "http://prod.invalid")

	_, err := client.GetStatus(context.Background(), "GW-123", testCreds, true)
	require.Error(t, err)

	var fault *model.ProtocolFaultError
	assert.ErrorAs(t, err, &fault)
}
