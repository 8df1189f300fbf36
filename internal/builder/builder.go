// Package builder maps an invoice, its lines, and the merchant profile into
// the standardized XML document the tax authority expects. Build is a pure
// function: no I/O, no validation beyond structural mapping. Monetary
// consistency is the lifecycle controller's concern.
package builder

import (
	"strconv"

	"github.com/beevik/etree"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	money "github.com/rezonia/einvoice/internal/decimal"
	"github.com/rezonia/einvoice/internal/model"
)

// DocumentNamespace is the root namespace of issued invoice documents
const DocumentNamespace = "urn:rezonia:einvoice:documents:invoice-2"

// PlaceholderNationalID stands in for an unidentified buyer. Last resort:
// callers are expected to flag the invoice as incomplete, not the builder.
const PlaceholderNationalID = "0000000000"

const (
	dateFormat = "2006-01-02"
	timeFormat = "15:04:05"
)

// Build produces the invoice document tree. Lines render strictly in
// position order; identical tax rates aggregate into one subtotal entry.
func Build(inv *model.Invoice, profile *model.MerchantProfile) *etree.Document {
	doc := etree.NewDocument()
	doc.CreateProcInst("xml", `version="1.0" encoding="UTF-8"`)

	root := doc.CreateElement("Invoice")
	root.CreateAttr("xmlns", DocumentNamespace)

	// Identity and metadata
	root.CreateElement("ID").SetText(inv.FullNumber)
	root.CreateElement("UUID").SetText(uuid.NewString())
	root.CreateElement("IssueDate").SetText(inv.IssueDate.Format(dateFormat))
	root.CreateElement("IssueTime").SetText(inv.IssueDate.Format(timeFormat))
	root.CreateElement("ProfileID").SetText(string(inv.Profile))
	root.CreateElement("DocumentCurrencyCode").SetText(inv.CurrencyCode)
	root.CreateElement("LineCountNumeric").SetText(strconv.Itoa(len(inv.Lines)))

	buildSupplierParty(root, profile)
	buildCustomerParty(root, inv.Buyer)

	if inv.DeliveryDate != nil {
		delivery := root.CreateElement("Delivery")
		delivery.CreateElement("ActualDeliveryDate").SetText(inv.DeliveryDate.Format(dateFormat))
	}

	means := root.CreateElement("PaymentMeans")
	means.CreateElement("PaymentMeansCode").SetText(inv.PaymentMethod.MeansCode())

	if inv.DueDate != nil {
		terms := root.CreateElement("PaymentTerms")
		terms.CreateElement("PaymentDueDate").SetText(inv.DueDate.Format(dateFormat))
	}

	buildTaxTotal(root, inv)
	buildMonetaryTotal(root, inv)

	for _, line := range inv.Lines {
		buildLine(root, inv.CurrencyCode, line)
	}

	return doc
}

func buildSupplierParty(root *etree.Element, profile *model.MerchantProfile) {
	party := root.CreateElement("AccountingSupplierParty").CreateElement("Party")
	party.CreateElement("TaxID").SetText(profile.TaxID)
	party.CreateElement("Name").SetText(profile.TradeName)

	addr := party.CreateElement("PostalAddress")
	addr.CreateElement("StreetName").SetText(profile.Address.Street)
	addr.CreateElement("CityName").SetText(profile.Address.City)
	if profile.Address.PostalCode != "" {
		addr.CreateElement("PostalZone").SetText(profile.Address.PostalCode)
	}
	addr.CreateElement("Country").SetText(profile.Address.Country)

	if profile.TaxOffice != "" {
		party.CreateElement("TaxOffice").SetText(profile.TaxOffice)
	}
	if profile.Email != "" || profile.Phone != "" {
		contact := party.CreateElement("Contact")
		if profile.Phone != "" {
			contact.CreateElement("Telephone").SetText(profile.Phone)
		}
		if profile.Email != "" {
			contact.CreateElement("ElectronicMail").SetText(profile.Email)
		}
	}
}

func buildCustomerParty(root *etree.Element, buyer model.Buyer) {
	party := root.CreateElement("AccountingCustomerParty").CreateElement("Party")

	switch {
	case buyer.TaxID != "":
		party.CreateElement("TaxID").SetText(buyer.TaxID)
	case buyer.NationalID != "":
		party.CreateElement("NationalID").SetText(buyer.NationalID)
	default:
		party.CreateElement("NationalID").SetText(PlaceholderNationalID)
	}

	party.CreateElement("Name").SetText(buyer.Name)

	addr := party.CreateElement("PostalAddress")
	addr.CreateElement("StreetName").SetText(buyer.Address)
	if buyer.City != "" {
		addr.CreateElement("CityName").SetText(buyer.City)
	}
	if buyer.Country != "" {
		addr.CreateElement("Country").SetText(buyer.Country)
	}

	if buyer.Email != "" || buyer.Phone != "" {
		contact := party.CreateElement("Contact")
		if buyer.Phone != "" {
			contact.CreateElement("Telephone").SetText(buyer.Phone)
		}
		if buyer.Email != "" {
			contact.CreateElement("ElectronicMail").SetText(buyer.Email)
		}
	}
}

func buildTaxTotal(root *etree.Element, inv *model.Invoice) {
	taxTotal := root.CreateElement("TaxTotal")
	amountElement(taxTotal, "TaxAmount", inv.CurrencyCode, inv.TaxTotal)

	for _, group := range inv.TaxBreakdown() {
		sub := taxTotal.CreateElement("TaxSubtotal")
		amountElement(sub, "TaxableAmount", inv.CurrencyCode, group.TaxableAmount)
		amountElement(sub, "TaxAmount", inv.CurrencyCode, group.TaxAmount)
		sub.CreateElement("Percent").SetText(group.Rate.String())
	}
}

func buildMonetaryTotal(root *etree.Element, inv *model.Invoice) {
	total := root.CreateElement("LegalMonetaryTotal")
	amountElement(total, "LineExtensionAmount", inv.CurrencyCode, inv.Subtotal)
	amountElement(total, "TaxExclusiveAmount", inv.CurrencyCode, inv.Subtotal.Sub(inv.Discount))
	if !inv.Discount.IsZero() {
		amountElement(total, "AllowanceTotalAmount", inv.CurrencyCode, inv.Discount)
	}
	if !inv.Shipping.IsZero() {
		amountElement(total, "ChargeTotalAmount", inv.CurrencyCode, inv.Shipping)
	}
	amountElement(total, "TaxInclusiveAmount", inv.CurrencyCode, inv.Subtotal.Sub(inv.Discount).Add(inv.TaxTotal))
	amountElement(total, "PayableAmount", inv.CurrencyCode, inv.GrandTotal)
}

func buildLine(root *etree.Element, currency string, line model.InvoiceLine) {
	el := root.CreateElement("InvoiceLine")
	el.CreateElement("ID").SetText(strconv.Itoa(line.Position))

	qty := el.CreateElement("InvoicedQuantity")
	qty.CreateAttr("unitCode", line.Unit)
	qty.SetText(line.Quantity.String())

	amountElement(el, "LineExtensionAmount", currency, line.Subtotal)

	item := el.CreateElement("Item")
	item.CreateElement("Name").SetText(line.Description)
	if line.Code != "" {
		item.CreateElement("SellersItemIdentification").CreateElement("ID").SetText(line.Code)
	}

	price := el.CreateElement("Price")
	amountElement(price, "PriceAmount", currency, line.UnitPrice)

	lineTax := el.CreateElement("TaxTotal")
	amountElement(lineTax, "TaxAmount", currency, line.TaxAmount)
	sub := lineTax.CreateElement("TaxSubtotal")
	amountElement(sub, "TaxableAmount", currency, line.Subtotal)
	amountElement(sub, "TaxAmount", currency, line.TaxAmount)
	sub.CreateElement("Percent").SetText(line.TaxRate.String())
}

func amountElement(parent *etree.Element, name, currency string, v decimal.Decimal) *etree.Element {
	el := parent.CreateElement(name)
	el.CreateAttr("currencyID", currency)
	el.SetText(money.Amount(v))
	return el
}
