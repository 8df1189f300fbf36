// Package gateway implements the wire protocol client for the tax
// authority's document exchange endpoint. Every operation is a single
// request/response HTTP exchange carrying an envelope payload with the
// merchant's credential pair embedded in the request body.
package gateway

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/beevik/etree"
	"github.com/rs/zerolog"

	money "github.com/rezonia/einvoice/internal/decimal"
	"github.com/rezonia/einvoice/internal/model"
)

// Operation names as they appear in envelope bodies and SOAPAction headers
const (
	opSendDocument = "SendDocument"
	opGetStatus    = "GetDocumentStatus"
	opListInbox    = "ListInboxDocuments"
)

// DefaultTimeout bounds every gateway call; network calls never hang
// indefinitely
const DefaultTimeout = 30 * time.Second

const dateFormat = "2006-01-02"

// Client talks to the gateway over HTTP. The test and production base URLs
// are fixed per deployment; which one a call targets is decided only by the
// caller's explicit useTest flag.
type Client struct {
	httpClient *http.Client
	testURL    string
	prodURL    string
	log        zerolog.Logger
}

var _ Protocol = (*Client)(nil)

// ClientOption configures a Client
type ClientOption func(*Client)

// WithHTTPClient overrides the underlying HTTP client
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithLogger attaches a logger
func WithLogger(log zerolog.Logger) ClientOption {
	return func(c *Client) {
		c.log = log
	}
}

// NewClient creates a gateway client for the two fixed environment endpoints
func NewClient(testURL, prodURL string, opts ...ClientOption) *Client {
	c := &Client{
		httpClient: &http.Client{Timeout: DefaultTimeout},
		testURL:    testURL,
		prodURL:    prodURL,
		log:        zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) endpoint(useTest bool) string {
	if useTest {
		return c.testURL
	}
	return c.prodURL
}

// SendDocument transmits a signed document. There is no automatic retry:
// resending an already-accepted document risks duplicate submission, so
// transport failures after the request hit the wire are flagged ambiguous
// and must be resolved with a status query.
func (c *Client) SendDocument(ctx context.Context, signedXML []byte, creds Credentials, useTest bool) (*SendResult, error) {
	payload, err := requestEnvelope(opSendDocument, creds, func(req *etree.Element) {
		req.CreateElement("Document").SetText(base64.StdEncoding.EncodeToString(signedXML))
	})
	if err != nil {
		return nil, model.NewTransportFailureError(opSendDocument, false, err)
	}

	resp, err := c.exchange(ctx, opSendDocument, payload, useTest, true)
	if err != nil {
		return nil, err
	}

	result := &SendResult{
		DocumentID:     childText(resp, "DocumentId"),
		DocumentNumber: childText(resp, "DocumentNumber"),
		ErrorCode:      childText(resp, "ErrorCode"),
		ErrorMessage:   childText(resp, "ErrorMessage"),
	}

	// A success envelope without the gateway's document identifier is not
	// trusted: no identifier is ever invented locally.
	if result.DocumentID == "" {
		return result, model.NewProtocolFaultError(opSendDocument, result.ErrorCode, "response missing gateway document id")
	}

	result.Accepted = true
	c.log.Info().
		Str("gateway_id", result.DocumentID).
		Str("gateway_number", result.DocumentNumber).
		Bool("test", useTest).
		Msg("document accepted by gateway")
	return result, nil
}

// GetStatus queries the processing status of a previously sent document.
// Safe to retry and to poll periodically.
func (c *Client) GetStatus(ctx context.Context, gatewayDocumentID string, creds Credentials, useTest bool) (*StatusResult, error) {
	payload, err := requestEnvelope(opGetStatus, creds, func(req *etree.Element) {
		req.CreateElement("DocumentId").SetText(gatewayDocumentID)
	})
	if err != nil {
		return nil, model.NewTransportFailureError(opGetStatus, false, err)
	}

	resp, err := c.exchange(ctx, opGetStatus, payload, useTest, false)
	if err != nil {
		return nil, err
	}

	raw := childText(resp, "Status")
	result := &StatusResult{
		RawStatus: raw,
		Status:    model.NormalizeGatewayStatus(raw),
		Message:   childText(resp, "StatusMessage"),
	}

	if ts := childText(resp, "ProcessedAt"); ts != "" {
		if t, err := time.Parse(time.RFC3339, ts); err == nil {
			result.ProcessedAt = &t
		}
	}

	return result, nil
}

// ListInboxDocuments lists documents received in the merchant's gateway
// inbox. Entries that fail to parse are skipped individually; a partial
// parse failure never fails the whole call.
func (c *Client) ListInboxDocuments(ctx context.Context, creds Credentials, useTest bool) ([]InboxDocument, error) {
	payload, err := requestEnvelope(opListInbox, creds, nil)
	if err != nil {
		return nil, model.NewTransportFailureError(opListInbox, false, err)
	}

	resp, err := c.exchange(ctx, opListInbox, payload, useTest, false)
	if err != nil {
		return nil, err
	}

	docs := make([]InboxDocument, 0)
	for _, entry := range resp.ChildElements() {
		if localPart(entry.Tag) != "InboxDocument" {
			continue
		}
		doc, err := parseInboxEntry(entry)
		if err != nil {
			c.log.Debug().Err(err).Msg("skipping unparseable inbox entry")
			continue
		}
		docs = append(docs, doc)
	}

	return docs, nil
}

// exchange posts an envelope and returns the matched response element.
// ambiguousOnFailure marks transport errors that occur once the request may
// already have reached the gateway.
func (c *Client) exchange(ctx context.Context, operation string, payload []byte, useTest, ambiguousOnFailure bool) (*etree.Element, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint(useTest), bytes.NewReader(payload))
	if err != nil {
		return nil, model.NewTransportFailureError(operation, false, err)
	}
	req.Header.Set("Content-Type", "text/xml; charset=utf-8")
	req.Header.Set("SOAPAction", ServiceNamespace+"/"+operation)

	c.log.Debug().
		Str("operation", operation).
		Str("url", c.endpoint(useTest)).
		Bool("test", useTest).
		Msg("gateway request")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		// A dial failure means the request never left the machine, so
		// even a send is known undelivered.
		ambiguous := ambiguousOnFailure && !requestNotSent(err)
		return nil, model.NewTransportFailureError(operation, ambiguous, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, model.NewTransportFailureError(operation, ambiguousOnFailure, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, model.NewTransportFailureError(operation, false,
			fmt.Errorf("unexpected status %d: %s", resp.StatusCode, truncate(body, 200)))
	}

	return parseResponseEnvelope(operation, body)
}

// parseInboxEntry maps one inbox entry element; missing required fields are
// an error so the caller can skip the entry
func parseInboxEntry(entry *etree.Element) (InboxDocument, error) {
	doc := InboxDocument{
		DocumentID:     childText(entry, "DocumentId"),
		DocumentNumber: childText(entry, "DocumentNumber"),
		SenderTaxID:    childText(entry, "SenderTaxId"),
		SenderName:     childText(entry, "SenderName"),
		Status:         childText(entry, "Status"),
	}

	if doc.DocumentID == "" {
		return InboxDocument{}, fmt.Errorf("inbox entry missing document id")
	}

	date, err := time.Parse(dateFormat, childText(entry, "Date"))
	if err != nil {
		return InboxDocument{}, fmt.Errorf("inbox entry %s: parse date: %w", doc.DocumentID, err)
	}
	doc.Date = date

	total, err := money.FromString(childText(entry, "Total"))
	if err != nil {
		return InboxDocument{}, fmt.Errorf("inbox entry %s: parse total: %w", doc.DocumentID, err)
	}
	doc.Total = total

	return doc, nil
}

// requestNotSent reports whether the exchange failed before the request
// could reach the wire, e.g. connection refused or DNS failure
func requestNotSent(err error) bool {
	var opErr *net.OpError
	return errors.As(err, &opErr) && opErr.Op == "dial"
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
