// services/scheduler.go
package services

import (
	"encoding/json"
	"fmt"
	"log"
	"time"

	"frequent-buyer-system/models"
	"frequent-buyer-system/utils"

	"github.com/go-co-op/gocron/v2"
)

// StartLoyaltyScheduler wires the periodic jobs: window-expiry sweeps, POS
// sync reconciliation for rewards whose external state drifted, and the daily
// audit archive export.
func StartLoyaltyScheduler(rewards *RewardStateService, audit *AuditService, dispatch POSDispatcher) {
	sched, _ := gocron.NewScheduler()
	sched.Start()

	// Hourly: expire aged-out windows for every tenant
	_, _ = sched.NewJob(
		gocron.DurationJob(1*time.Hour),
		gocron.NewTask(func() {
			tenants, err := activeTenants(rewards)
			if err != nil {
				log.Printf("[Scheduler] Failed to list tenants: %v", err)
				return
			}
			for _, tenant := range tenants {
				count, err := rewards.ProcessExpiredWindows(tenant)
				if err != nil {
					log.Printf("[Scheduler] Expiry sweep failed for tenant %s: %v", tenant, err)
					continue
				}
				if count > 0 {
					log.Printf("[Scheduler] Expiry sweep: %d reward(s) updated for tenant %s", count, tenant)
				}
			}
		}),
	)

	// Every 15 minutes: reconcile POS state with reward state. Earned rewards
	// that never activated get retried; terminal rewards with live discounts
	// get torn down. This is what keeps a stuck discount from surviving at
	// the register.
	_, _ = sched.NewJob(
		gocron.DurationJob(15*time.Minute),
		gocron.NewTask(func() {
			var unsynced []models.Reward
			if err := rewards.DB.Where("status = ? AND pos_synced_at IS NULL", models.RewardStatusEarned).
				Limit(200).
				Find(&unsynced).Error; err != nil {
				log.Printf("[Scheduler] POS reconciliation query failed: %v", err)
				return
			}
			for _, r := range unsynced {
				dispatch.EnqueueActivate(r.ID)
			}

			var stale []models.Reward
			if err := rewards.DB.Where("status IN ? AND pos_discount_id <> ''",
				[]models.RewardStatus{models.RewardStatusRedeemed, models.RewardStatusRevoked}).
				Limit(200).
				Find(&stale).Error; err != nil {
				log.Printf("[Scheduler] POS teardown query failed: %v", err)
				return
			}
			for _, r := range stale {
				dispatch.EnqueueDeactivate(r.ID)
			}
			if len(unsynced) > 0 || len(stale) > 0 {
				log.Printf("[Scheduler] POS reconciliation queued %d activation(s), %d teardown(s)", len(unsynced), len(stale))
			}
		}),
	)

	// Daily: export yesterday's audit entries per tenant to object storage
	_, _ = sched.NewJob(
		gocron.DurationJob(24*time.Hour),
		gocron.NewTask(func() {
			tenants, err := activeTenants(rewards)
			if err != nil {
				log.Printf("[Scheduler] Failed to list tenants for archive: %v", err)
				return
			}
			day := time.Now().UTC().AddDate(0, 0, -1)
			for _, tenant := range tenants {
				if err := archiveAuditDay(audit, tenant, day); err != nil {
					log.Printf("[Scheduler] Audit archive failed for tenant %s: %v", tenant, err)
				}
			}
		}),
	)
}

func activeTenants(rewards *RewardStateService) ([]string, error) {
	var tenants []string
	err := rewards.DB.Model(&models.Offer{}).Distinct("tenant_id").Pluck("tenant_id", &tenants).Error
	return tenants, err
}

// archiveAuditDay uploads one tenant-day of audit entries. The object key is
// deterministic, so re-runs overwrite the same archive rather than duplicate
// it.
func archiveAuditDay(audit *AuditService, tenantID string, day time.Time) error {
	entries, err := audit.EntriesForDay(tenantID, day)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		return nil
	}
	data, err := json.Marshal(entries)
	if err != nil {
		return err
	}
	key := fmt.Sprintf("audit/%s/%s.json", tenantID, day.Format("2006-01-02"))
	url, err := utils.UploadAuditArchive(key, data)
	if err != nil {
		return err
	}
	log.Printf("[Scheduler] Archived %d audit entries to %s", len(entries), url)
	return nil
}
