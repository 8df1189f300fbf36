package gateway

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/rezonia/einvoice/internal/model"
)

// Credentials is the account pair embedded in every gateway request body
type Credentials struct {
	Alias  string
	Secret string
}

// SendResult is the outcome of a document transmission
type SendResult struct {
	Accepted       bool
	DocumentID     string
	DocumentNumber string
	ErrorCode      string
	ErrorMessage   string
}

// StatusResult is the authority's processing status for a document.
// RawStatus carries the authority text verbatim; Status is the normalized
// value when recognized.
type StatusResult struct {
	RawStatus   string
	Status      model.GatewayStatus
	Message     string
	ProcessedAt *time.Time
}

// InboxDocument is one document received in the merchant's gateway inbox
type InboxDocument struct {
	DocumentID     string
	DocumentNumber string
	Date           time.Time
	SenderTaxID    string
	SenderName     string
	Total          decimal.Decimal
	Status         string
}

// Protocol is the gateway exchange surface. Implementations select the test
// or production endpoint strictly from the useTest flag.
type Protocol interface {
	SendDocument(ctx context.Context, signedXML []byte, creds Credentials, useTest bool) (*SendResult, error)
	GetStatus(ctx context.Context, gatewayDocumentID string, creds Credentials, useTest bool) (*StatusResult, error)
	ListInboxDocuments(ctx context.Context, creds Credentials, useTest bool) ([]InboxDocument, error)
}
