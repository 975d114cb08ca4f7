// services/reward_state.go
package services

import (
	"errors"
	"fmt"
	"log"
	"time"

	"frequent-buyer-system/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// RevocationReasonRefund is stamped on rewards revoked because a refund pulled
// their locked quantity back under the threshold.
const RevocationReasonRefund = "refund reduced qualifying quantity below threshold"

// RewardStateService drives the reward state machine:
// in_progress → earned → redeemed, and earned → revoked. A fresh in_progress
// reward may start again after either terminal state.
type RewardStateService struct {
	DB      *gorm.DB
	Audit   *AuditService
	Summary *SummaryService
}

func NewRewardStateService(db *gorm.DB, audit *AuditService, summary *SummaryService) *RewardStateService {
	return &RewardStateService{DB: db, Audit: audit, Summary: summary}
}

// RecomputeResult tells the caller what changed so POS synchronization can be
// dispatched after the transaction commits — never inside it.
type RecomputeResult struct {
	Reward          *models.Reward
	NewlyEarned     bool
	RevokedRewardID string
}

// Recompute re-derives reward state for one (tenant, customer, offer) pair
// from ledger contents. Must run inside tx; it takes the exclusive row locks
// that serialize concurrent events for the same pair.
func (s *RewardStateService) Recompute(tx *gorm.DB, offer models.Offer, customerID string, now time.Time) (RecomputeResult, error) {
	var result RecomputeResult

	// Lock every non-terminal reward for the pair. This is the serialization
	// point for concurrent webhook deliveries touching the same customer.
	var active []models.Reward
	if err := lockForUpdate(tx).
		Where("tenant_id = ? AND customer_id = ? AND offer_id = ? AND status IN ?",
			offer.TenantID, customerID, offer.ID,
			[]models.RewardStatus{models.RewardStatusInProgress, models.RewardStatusEarned}).
		Order("created_at ASC").
		Find(&active).Error; err != nil {
		return result, fmt.Errorf("failed to lock reward rows: %w", err)
	}

	var inProgress *models.Reward
	for i := range active {
		r := &active[i]
		switch r.Status {
		case models.RewardStatusEarned:
			revoked, err := s.checkEarnedIntact(tx, r, now)
			if err != nil {
				return result, err
			}
			if revoked {
				result.RevokedRewardID = r.ID
			}
		case models.RewardStatusInProgress:
			inProgress = r
		}
	}

	// Fresh progress from the surviving unlocked, unexpired events.
	var unlocked []models.PurchaseEvent
	if err := tx.Where("tenant_id = ? AND customer_id = ? AND offer_id = ? AND reward_id IS NULL AND window_end_date > ?",
		offer.TenantID, customerID, offer.ID, now).
		Order("purchased_at ASC").
		Find(&unlocked).Error; err != nil {
		return result, fmt.Errorf("failed to load unlocked events: %w", err)
	}
	currentQuantity := sumQuantities(unlocked)

	if inProgress == nil {
		if currentQuantity <= 0 {
			// nothing to track; still refresh the read model
			return result, s.Summary.Refresh(tx, offer.TenantID, customerID, offer.ID, now)
		}
		reward := &models.Reward{
			ID:               uuid.NewString(),
			TenantID:         offer.TenantID,
			OfferID:          offer.ID,
			CustomerID:       customerID,
			Status:           models.RewardStatusInProgress,
			CurrentQuantity:  currentQuantity,
			RequiredQuantity: offer.RequiredQuantity,
		}
		setRewardWindow(reward, unlocked)
		// Savepoint, so a unique-index rejection leaves the outer
		// transaction usable.
		err := tx.Transaction(func(inner *gorm.DB) error {
			return inner.Create(reward).Error
		})
		switch {
		case err == nil:
			if err := s.Audit.Append(tx, offer.TenantID, models.ProgressUpdatedDetails{
				PreviousQuantity: 0,
				NewQuantity:      currentQuantity,
				RequiredQuantity: offer.RequiredQuantity,
			}, AuditRefs{CustomerID: customerID, OfferID: &offer.ID, RewardID: &reward.ID}); err != nil {
				return result, err
			}
			inProgress = reward
		case errors.Is(err, gorm.ErrDuplicatedKey):
			// Two first events for a pair with no reward row yet have nothing
			// to lock against each other; the partial unique index on
			// in_progress rewards breaks the tie. Lock the winner's row and
			// carry on as an update.
			var existing models.Reward
			if lerr := lockForUpdate(tx).
				Where("tenant_id = ? AND customer_id = ? AND offer_id = ? AND status = ?",
					offer.TenantID, customerID, offer.ID, models.RewardStatusInProgress).
				First(&existing).Error; lerr != nil {
				return result, fmt.Errorf("failed to load concurrently created reward: %w", lerr)
			}
			inProgress = &existing
		default:
			return result, fmt.Errorf("failed to create reward: %w", err)
		}
	}
	if currentQuantity != inProgress.CurrentQuantity {
		previous := inProgress.CurrentQuantity
		inProgress.CurrentQuantity = currentQuantity
		setRewardWindow(inProgress, unlocked)
		if err := tx.Save(inProgress).Error; err != nil {
			return result, fmt.Errorf("failed to update reward progress: %w", err)
		}
		if err := s.Audit.Append(tx, offer.TenantID, models.ProgressUpdatedDetails{
			PreviousQuantity: previous,
			NewQuantity:      currentQuantity,
			RequiredQuantity: inProgress.RequiredQuantity,
		}, AuditRefs{CustomerID: customerID, OfferID: &offer.ID, RewardID: &inProgress.ID}); err != nil {
			return result, err
		}
	}

	// Earn transition: lock exactly the required units FIFO and flip status.
	if inProgress != nil && currentQuantity >= inProgress.RequiredQuantity {
		toLock := selectEventsToLock(unlocked, inProgress.RequiredQuantity)
		lockedIDs := make([]string, len(toLock))
		for i, ev := range toLock {
			lockedIDs[i] = ev.ID
		}
		if err := tx.Model(&models.PurchaseEvent{}).
			Where("id IN ?", lockedIDs).
			Update("reward_id", inProgress.ID).Error; err != nil {
			return result, fmt.Errorf("failed to lock events to reward: %w", err)
		}

		earnedAt := now
		inProgress.Status = models.RewardStatusEarned
		inProgress.EarnedAt = &earnedAt
		if err := tx.Save(inProgress).Error; err != nil {
			return result, fmt.Errorf("failed to mark reward earned: %w", err)
		}
		if err := s.Audit.Append(tx, offer.TenantID, models.RewardEarnedDetails{
			RequiredQuantity: inProgress.RequiredQuantity,
			LockedEventIDs:   lockedIDs,
		}, AuditRefs{CustomerID: customerID, OfferID: &offer.ID, RewardID: &inProgress.ID}); err != nil {
			return result, err
		}
		result.NewlyEarned = true
	}

	result.Reward = inProgress
	if err := s.Summary.Refresh(tx, offer.TenantID, customerID, offer.ID, now); err != nil {
		return result, err
	}
	return result, nil
}

// checkEarnedIntact revokes an earned reward whose locked quantity has been
// pulled below the threshold by refunds. Locked events without a refund
// against them are released back to the pool; refunded originals stay
// attached to the revoked reward. Refunds that only eat into surplus locked
// quantity leave the reward earned and are absorbed into it.
func (s *RewardStateService) checkEarnedIntact(tx *gorm.DB, reward *models.Reward, now time.Time) (bool, error) {
	var locked []models.PurchaseEvent
	if err := tx.Where("reward_id = ?", reward.ID).Find(&locked).Error; err != nil {
		return false, fmt.Errorf("failed to load locked events: %w", err)
	}
	lockedIDs := make([]string, len(locked))
	for i, ev := range locked {
		lockedIDs[i] = ev.ID
	}

	var refunds []models.PurchaseEvent
	if len(lockedIDs) > 0 {
		if err := tx.Where("is_refund = true AND reward_id IS NULL AND refunds_event_id IN ?", lockedIDs).
			Find(&refunds).Error; err != nil {
			return false, fmt.Errorf("failed to load refunds against locked events: %w", err)
		}
	}

	if lockedTotalAfterRefunds(locked, refunds) >= reward.RequiredQuantity {
		// The refunds only consumed surplus locked units. Attach them to the
		// reward so they stop subtracting from fresh pool progress.
		if len(refunds) > 0 {
			refundIDs := make([]string, len(refunds))
			for i, r := range refunds {
				refundIDs[i] = r.ID
			}
			if err := tx.Model(&models.PurchaseEvent{}).
				Where("id IN ?", refundIDs).
				Update("reward_id", reward.ID).Error; err != nil {
				return false, fmt.Errorf("failed to attach refunds to reward: %w", err)
			}
		}
		return false, nil
	}

	unlockedIDs := releasableEventIDs(locked, refunds)
	if len(unlockedIDs) > 0 {
		if err := tx.Model(&models.PurchaseEvent{}).
			Where("id IN ?", unlockedIDs).
			Update("reward_id", nil).Error; err != nil {
			return false, fmt.Errorf("failed to unlock events: %w", err)
		}
	}

	revokedAt := now
	reward.Status = models.RewardStatusRevoked
	reward.RevokedAt = &revokedAt
	reward.RevocationReason = RevocationReasonRefund
	if err := tx.Save(reward).Error; err != nil {
		return false, fmt.Errorf("failed to revoke reward: %w", err)
	}
	if err := s.Audit.Append(tx, reward.TenantID, models.RewardRevokedDetails{
		Reason:           RevocationReasonRefund,
		UnlockedEventIDs: unlockedIDs,
	}, AuditRefs{CustomerID: reward.CustomerID, OfferID: &reward.OfferID, RewardID: &reward.ID}); err != nil {
		return false, err
	}
	log.Printf("[REWARDS] Revoked reward %s for customer %s (refund below threshold)", reward.ID, reward.CustomerID)
	return true, nil
}

// ProcessExpiredWindows sweeps a tenant's in-progress rewards whose
// contributing events have aged out of their rolling windows, recomputing
// progress and summaries without requiring a new purchase event.
func (s *RewardStateService) ProcessExpiredWindows(tenantID string) (int, error) {
	if tenantID == "" {
		return 0, ErrMissingTenant
	}
	now := time.Now().UTC()

	var candidates []models.Reward
	if err := s.DB.Where("tenant_id = ? AND status = ?", tenantID, models.RewardStatusInProgress).
		Find(&candidates).Error; err != nil {
		return 0, err
	}

	processed := 0
	for _, candidate := range candidates {
		var offer models.Offer
		if err := s.DB.Where("tenant_id = ? AND id = ?", tenantID, candidate.OfferID).First(&offer).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				continue
			}
			return processed, err
		}

		var expired []models.PurchaseEvent
		if err := s.DB.Where("tenant_id = ? AND customer_id = ? AND offer_id = ? AND reward_id IS NULL AND window_end_date <= ?",
			tenantID, candidate.CustomerID, candidate.OfferID, now).
			Find(&expired).Error; err != nil {
			return processed, err
		}
		if len(expired) == 0 {
			continue
		}

		previous := candidate.CurrentQuantity
		err := s.DB.Transaction(func(tx *gorm.DB) error {
			result, err := s.Recompute(tx, offer, candidate.CustomerID, now)
			if err != nil {
				return err
			}
			newQuantity := 0
			if result.Reward != nil {
				newQuantity = result.Reward.CurrentQuantity
			}
			if newQuantity == previous {
				return nil
			}
			expiredIDs := make([]string, len(expired))
			for i, ev := range expired {
				expiredIDs[i] = ev.ID
			}
			return s.Audit.Append(tx, tenantID, models.WindowExpiredDetails{
				ExpiredEventIDs:  expiredIDs,
				PreviousQuantity: previous,
				NewQuantity:      newQuantity,
			}, AuditRefs{CustomerID: candidate.CustomerID, OfferID: &candidate.OfferID, RewardID: &candidate.ID})
		})
		if err != nil {
			log.Printf("[REWARDS] Expiry sweep failed for reward %s: %v", candidate.ID, err)
			continue
		}
		processed++
	}
	return processed, nil
}

// lockForUpdate takes the exclusive row lock serializing same-pair events.
// SQLite (the test store) has no FOR UPDATE and serializes writers itself.
func lockForUpdate(tx *gorm.DB) *gorm.DB {
	if tx.Dialector.Name() == "sqlite" {
		return tx
	}
	return tx.Clauses(clause.Locking{Strength: "UPDATE"})
}

// sumQuantities totals signed event quantities.
func sumQuantities(events []models.PurchaseEvent) int {
	total := 0
	for _, ev := range events {
		total += ev.Quantity
	}
	return total
}

// selectEventsToLock picks the oldest unlocked purchase events whose combined
// quantity covers the threshold. FIFO by purchase timestamp; refunds never
// lock. Input must already be sorted by purchased_at ascending.
func selectEventsToLock(events []models.PurchaseEvent, required int) []models.PurchaseEvent {
	var chosen []models.PurchaseEvent
	total := 0
	for _, ev := range events {
		if ev.Quantity <= 0 {
			continue
		}
		chosen = append(chosen, ev)
		total += ev.Quantity
		if total >= required {
			break
		}
	}
	return chosen
}

// lockedTotalAfterRefunds is the effective quantity still backing an earned
// reward: locked units minus refunds filed against those locked events.
func lockedTotalAfterRefunds(locked, refunds []models.PurchaseEvent) int {
	return sumQuantities(locked) + sumQuantities(refunds)
}

// releasableEventIDs returns the locked events to return to the pool on
// revocation: everything that has no refund filed against it.
func releasableEventIDs(locked, refunds []models.PurchaseEvent) []string {
	refunded := make(map[string]bool, len(refunds))
	for _, r := range refunds {
		if r.RefundsEventID != nil {
			refunded[*r.RefundsEventID] = true
		}
	}
	var ids []string
	for _, ev := range locked {
		if !refunded[ev.ID] {
			ids = append(ids, ev.ID)
		}
	}
	return ids
}

func setRewardWindow(reward *models.Reward, unlocked []models.PurchaseEvent) {
	reward.WindowStartDate = nil
	reward.WindowEndDate = nil
	for _, ev := range unlocked {
		if ev.Quantity <= 0 {
			continue
		}
		if reward.WindowStartDate == nil || ev.PurchasedAt.Before(*reward.WindowStartDate) {
			t := ev.PurchasedAt
			reward.WindowStartDate = &t
		}
		if reward.WindowEndDate == nil || ev.WindowEndDate.Before(*reward.WindowEndDate) {
			t := ev.WindowEndDate
			reward.WindowEndDate = &t
		}
	}
}
