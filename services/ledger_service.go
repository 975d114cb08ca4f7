// services/ledger_service.go
package services

import (
	"errors"
	"fmt"
	"log"
	"time"

	"frequent-buyer-system/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// POSDispatcher hands POS synchronization work to the background worker pool.
// Dispatch happens strictly after the ledger transaction commits — a sync
// failure must never roll the ledger back.
type POSDispatcher interface {
	EnqueueActivate(rewardID string)
	EnqueueDeactivate(rewardID string)
}

// OrderLine is one purchased line item of an external order event.
type OrderLine struct {
	VariationID    string `json:"variation_id"`
	Quantity       int    `json:"quantity"`
	UnitPriceCents int64  `json:"unit_price_cents"`
}

// RefundLine is one refunded line. RefundID is the POS platform's stable
// identifier for the refund line itself.
type RefundLine struct {
	RefundID       string `json:"refund_id"`
	VariationID    string `json:"variation_id"`
	Quantity       int    `json:"quantity"`
	UnitPriceCents int64  `json:"unit_price_cents"`
}

// OrderEvent is the order/refund payload consumed from the POS webhook (or
// replayed by the catchup reconciler — both enter through the same path).
type OrderEvent struct {
	TenantID    string       `json:"tenant_id"`
	OrderID     string       `json:"order_id"`
	CustomerID  string       `json:"customer_id,omitempty"`
	LocationID  string       `json:"location_id,omitempty"`
	LineItems   []OrderLine  `json:"line_items"`
	RefundLines []RefundLine `json:"refund_lines,omitempty"`
	Timestamp   time.Time    `json:"timestamp"`
}

// RecordResult reports what a record call did. Processed=false with a Reason
// is a deliberate non-error outcome, not a failure.
type RecordResult struct {
	Processed      bool     `json:"processed"`
	Reason         string   `json:"reason,omitempty"`
	EventIDs       []string `json:"event_ids,omitempty"`
	RewardAffected bool     `json:"reward_affected"`
}

// PurchaseIdempotencyKey is deterministic over the purchase's identifying
// fields, so webhook redelivery records the event at most once.
func PurchaseIdempotencyKey(orderID, variationID string, quantity int) string {
	return fmt.Sprintf("purchase:%s:%s:%d", orderID, variationID, quantity)
}

// RefundIdempotencyKey derives from the refund line's own stable identifiers.
// A wall-clock suffix here would defeat idempotency on redelivery.
func RefundIdempotencyKey(orderID, refundID, variationID string) string {
	return fmt.Sprintf("refund:%s:%s:%s", orderID, refundID, variationID)
}

// LedgerService is the system of record: it appends purchase and refund
// events idempotently and drives reward recomputation in the same
// transaction.
type LedgerService struct {
	DB       *gorm.DB
	Rewards  *RewardStateService
	Audit    *AuditService
	Settings *SettingsService
	Dispatch POSDispatcher
}

func NewLedgerService(db *gorm.DB, rewards *RewardStateService, audit *AuditService, settings *SettingsService, dispatch POSDispatcher) *LedgerService {
	return &LedgerService{DB: db, Rewards: rewards, Audit: audit, Settings: settings, Dispatch: dispatch}
}

// RecordPurchase appends ledger events for every qualifying line of the order
// and recomputes the affected rewards. All-or-nothing per line: a store
// failure rolls the line's transaction back entirely.
func (s *LedgerService) RecordPurchase(event OrderEvent) (RecordResult, error) {
	if event.TenantID == "" {
		return RecordResult{}, ErrMissingTenant
	}
	if !s.Settings.LoyaltyEnabled(event.TenantID) {
		return RecordResult{Reason: ReasonLoyaltyDisabled}, nil
	}
	if event.CustomerID == "" {
		return RecordResult{Reason: ReasonNoCustomer}, nil
	}

	offersByVariation, err := s.qualifyingOffers(event.TenantID, variationIDs(event.LineItems, nil))
	if err != nil {
		return RecordResult{}, err
	}

	result := RecordResult{}
	qualifying, duplicates := 0, 0
	for _, line := range event.LineItems {
		offer, ok := offersByVariation[line.VariationID]
		if !ok || line.Quantity <= 0 {
			continue
		}
		qualifying++

		eventID, outcome, err := s.recordPurchaseLine(offer, event, line)
		if err != nil {
			return RecordResult{}, err
		}
		if eventID == "" {
			duplicates++
			continue
		}
		result.EventIDs = append(result.EventIDs, eventID)
		s.dispatchAfterCommit(outcome)
		if outcome.NewlyEarned || outcome.RevokedRewardID != "" {
			result.RewardAffected = true
		}
	}

	if qualifying == 0 {
		return RecordResult{Reason: ReasonNotQualifying}, nil
	}
	if len(result.EventIDs) == 0 && duplicates > 0 {
		return RecordResult{Reason: ReasonAlreadyProcessed}, nil
	}
	result.Processed = true
	return result, nil
}

// RecordRefund appends negative-quantity events for every qualifying refund
// line, linked to the original purchase events when they can be found, and
// recomputes the affected rewards — possibly revoking an earned one.
func (s *LedgerService) RecordRefund(event OrderEvent) (RecordResult, error) {
	if event.TenantID == "" {
		return RecordResult{}, ErrMissingTenant
	}
	if !s.Settings.LoyaltyEnabled(event.TenantID) {
		return RecordResult{Reason: ReasonLoyaltyDisabled}, nil
	}

	offersByVariation, err := s.qualifyingOffers(event.TenantID, variationIDs(nil, event.RefundLines))
	if err != nil {
		return RecordResult{}, err
	}

	result := RecordResult{}
	qualifying, duplicates := 0, 0
	for _, line := range event.RefundLines {
		offer, ok := offersByVariation[line.VariationID]
		if !ok || line.Quantity <= 0 {
			continue
		}
		qualifying++

		eventID, outcome, err := s.recordRefundLine(offer, event, line)
		if err != nil {
			if errors.Is(err, errNoCustomerForRefund) {
				continue
			}
			return RecordResult{}, err
		}
		if eventID == "" {
			duplicates++
			continue
		}
		result.EventIDs = append(result.EventIDs, eventID)
		s.dispatchAfterCommit(outcome)
		if outcome.RevokedRewardID != "" || outcome.NewlyEarned {
			result.RewardAffected = true
		}
	}

	if qualifying == 0 {
		return RecordResult{Reason: ReasonNotQualifying}, nil
	}
	if len(result.EventIDs) == 0 {
		if duplicates > 0 {
			return RecordResult{Reason: ReasonAlreadyProcessed}, nil
		}
		return RecordResult{Reason: ReasonNoCustomer}, nil
	}
	result.Processed = true
	return result, nil
}

var errNoCustomerForRefund = errors.New("no customer resolvable for refund line")

func (s *LedgerService) recordPurchaseLine(offer models.Offer, event OrderEvent, line OrderLine) (string, RecomputeResult, error) {
	key := PurchaseIdempotencyKey(event.OrderID, line.VariationID, line.Quantity)
	if seen, err := s.alreadyProcessed(event.TenantID, key); err != nil || seen {
		return "", RecomputeResult{}, err
	}

	row := models.PurchaseEvent{
		ID:             uuid.NewString(),
		TenantID:       event.TenantID,
		OfferID:        offer.ID,
		CustomerID:     event.CustomerID,
		OrderID:        event.OrderID,
		LocationID:     event.LocationID,
		VariationID:    line.VariationID,
		Quantity:       line.Quantity,
		UnitPriceCents: line.UnitPriceCents,
		PurchasedAt:    event.Timestamp,
		IdempotencyKey: key,
	}

	outcome, dup, err := s.appendAndRecompute(offer, &row, models.PurchaseRecordedDetails{
		OrderID:        event.OrderID,
		VariationID:    line.VariationID,
		Quantity:       line.Quantity,
		UnitPriceCents: line.UnitPriceCents,
		WindowEndDate:  "", // filled in after window computation
	})
	if err != nil || dup {
		return "", outcome, err
	}
	return row.ID, outcome, nil
}

func (s *LedgerService) recordRefundLine(offer models.Offer, event OrderEvent, line RefundLine) (string, RecomputeResult, error) {
	key := RefundIdempotencyKey(event.OrderID, line.RefundID, line.VariationID)
	if seen, err := s.alreadyProcessed(event.TenantID, key); err != nil || seen {
		return "", RecomputeResult{}, err
	}

	// Link the refund to the original purchase event; it also resolves the
	// customer when the refund payload carries none.
	var original models.PurchaseEvent
	var refundsEventID *string
	customerID := event.CustomerID
	err := s.DB.Where("tenant_id = ? AND order_id = ? AND variation_id = ? AND is_refund = false",
		event.TenantID, event.OrderID, line.VariationID).
		Order("purchased_at ASC").
		First(&original).Error
	if err == nil {
		refundsEventID = &original.ID
		if customerID == "" {
			customerID = original.CustomerID
		}
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return "", RecomputeResult{}, err
	}
	if customerID == "" {
		return "", RecomputeResult{}, errNoCustomerForRefund
	}

	row := models.PurchaseEvent{
		ID:             uuid.NewString(),
		TenantID:       event.TenantID,
		OfferID:        offer.ID,
		CustomerID:     customerID,
		OrderID:        event.OrderID,
		LocationID:     event.LocationID,
		VariationID:    line.VariationID,
		Quantity:       -line.Quantity,
		UnitPriceCents: line.UnitPriceCents,
		PurchasedAt:    event.Timestamp,
		IdempotencyKey: key,
		IsRefund:       true,
		RefundsEventID: refundsEventID,
	}

	outcome, dup, err := s.appendAndRecompute(offer, &row, models.RefundProcessedDetails{
		OrderID:        event.OrderID,
		VariationID:    line.VariationID,
		Quantity:       -line.Quantity,
		RefundsEventID: refundsEventID,
	})
	if err != nil || dup {
		return "", outcome, err
	}
	return row.ID, outcome, nil
}

// appendAndRecompute runs the full transaction boundary for one ledger event:
// insert event → lock/recompute reward → update contributing events → refresh
// summary → commit. Returns dup=true when a concurrent insert with the same
// idempotency key won the race.
func (s *LedgerService) appendAndRecompute(offer models.Offer, row *models.PurchaseEvent, details models.AuditDetails) (RecomputeResult, bool, error) {
	var outcome RecomputeResult
	now := time.Now().UTC()

	err := s.DB.Transaction(func(tx *gorm.DB) error {
		var unlocked []models.PurchaseEvent
		if err := tx.Where("tenant_id = ? AND customer_id = ? AND offer_id = ? AND reward_id IS NULL",
			row.TenantID, row.CustomerID, row.OfferID).
			Find(&unlocked).Error; err != nil {
			return err
		}
		row.WindowStartDate, row.WindowEndDate = ComputeWindow(row.PurchasedAt, offer.WindowMonths, unlocked)

		if err := tx.Create(row).Error; err != nil {
			return err
		}

		if d, ok := details.(models.PurchaseRecordedDetails); ok {
			d.WindowEndDate = row.WindowEndDate.Format(time.RFC3339)
			details = d
		}
		if err := s.Audit.Append(tx, row.TenantID, details, AuditRefs{
			CustomerID:      row.CustomerID,
			OfferID:         &row.OfferID,
			PurchaseEventID: &row.ID,
		}); err != nil {
			return err
		}

		var err error
		outcome, err = s.Rewards.Recompute(tx, offer, row.CustomerID, now)
		return err
	})
	if err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			// concurrent delivery with the same key: the other insert won
			return RecomputeResult{}, true, nil
		}
		return RecomputeResult{}, false, fmt.Errorf("failed to record ledger event: %w", err)
	}
	return outcome, false, nil
}

func (s *LedgerService) alreadyProcessed(tenantID, key string) (bool, error) {
	var count int64
	err := s.DB.Model(&models.PurchaseEvent{}).
		Where("tenant_id = ? AND idempotency_key = ?", tenantID, key).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// qualifyingOffers maps each allow-listed variation id to its active offer.
// Variations absent from the map do not count toward any offer.
func (s *LedgerService) qualifyingOffers(tenantID string, variations []string) (map[string]models.Offer, error) {
	out := make(map[string]models.Offer)
	if len(variations) == 0 {
		return out, nil
	}
	var mappings []models.QualifyingVariation
	if err := s.DB.Where("tenant_id = ? AND variation_id IN ?", tenantID, variations).
		Find(&mappings).Error; err != nil {
		return nil, err
	}
	if len(mappings) == 0 {
		return out, nil
	}

	offerIDs := make([]string, 0, len(mappings))
	for _, m := range mappings {
		offerIDs = append(offerIDs, m.OfferID)
	}
	var offers []models.Offer
	if err := s.DB.Where("tenant_id = ? AND id IN ? AND active = true", tenantID, offerIDs).
		Find(&offers).Error; err != nil {
		return nil, err
	}
	byID := make(map[string]models.Offer, len(offers))
	for _, o := range offers {
		byID[o.ID] = o
	}
	for _, m := range mappings {
		if offer, ok := byID[m.OfferID]; ok {
			out[m.VariationID] = offer
		}
	}
	return out, nil
}

func (s *LedgerService) dispatchAfterCommit(outcome RecomputeResult) {
	if s.Dispatch == nil {
		return
	}
	if outcome.RevokedRewardID != "" {
		s.Dispatch.EnqueueDeactivate(outcome.RevokedRewardID)
	}
	if outcome.NewlyEarned && outcome.Reward != nil {
		log.Printf("[LEDGER] Reward %s earned by customer %s — scheduling POS activation", outcome.Reward.ID, outcome.Reward.CustomerID)
		s.Dispatch.EnqueueActivate(outcome.Reward.ID)
	}
}

func variationIDs(lines []OrderLine, refunds []RefundLine) []string {
	ids := make([]string, 0, len(lines)+len(refunds))
	for _, l := range lines {
		ids = append(ids, l.VariationID)
	}
	for _, r := range refunds {
		ids = append(ids, r.VariationID)
	}
	return ids
}
