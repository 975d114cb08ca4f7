package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPurchaseIdempotencyKeyDeterministic(t *testing.T) {
	a := PurchaseIdempotencyKey("ord-1", "var-1", 2)
	b := PurchaseIdempotencyKey("ord-1", "var-1", 2)

	assert.Equal(t, a, b, "redelivered webhooks must produce the same key")
	assert.Equal(t, "purchase:ord-1:var-1:2", a)
}

func TestPurchaseIdempotencyKeyDistinguishesLines(t *testing.T) {
	assert.NotEqual(t,
		PurchaseIdempotencyKey("ord-1", "var-1", 1),
		PurchaseIdempotencyKey("ord-1", "var-2", 1))
	assert.NotEqual(t,
		PurchaseIdempotencyKey("ord-1", "var-1", 1),
		PurchaseIdempotencyKey("ord-2", "var-1", 1))
}

func TestRefundIdempotencyKeyDeterministic(t *testing.T) {
	a := RefundIdempotencyKey("ord-1", "ref-1", "var-1")
	b := RefundIdempotencyKey("ord-1", "ref-1", "var-1")

	assert.Equal(t, a, b)
	assert.Equal(t, "refund:ord-1:ref-1:var-1", a)
}

func TestRefundIdempotencyKeySeparatePerRefundLine(t *testing.T) {
	// two partial refunds of the same line are distinct ledger events
	assert.NotEqual(t,
		RefundIdempotencyKey("ord-1", "ref-1", "var-1"),
		RefundIdempotencyKey("ord-1", "ref-2", "var-1"))
}

func TestVariationIDsCollectsBothKinds(t *testing.T) {
	lines := []OrderLine{{VariationID: "var-1"}, {VariationID: "var-2"}}
	refunds := []RefundLine{{VariationID: "var-3"}}

	assert.Equal(t, []string{"var-1", "var-2", "var-3"}, variationIDs(lines, refunds))
	assert.Empty(t, variationIDs(nil, nil))
}
