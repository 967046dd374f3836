package lifecycle

import (
	"time"

	"github.com/google/uuid"

	"trip-dispatch-system/models"
)

// CompletionPostings computes the wallet rows appended when a trip
// completes. Earning rows are posted net of the platform fee, so across
// owners they always sum to grand_total - platform_fee; the fee itself
// accrues to the platform wallet as its own row.
//
// ride/errand: the driver collects the full fare, earns net.
// takeout:     the driver earns the delivery fee, the vendor earns the
//              remainder net of the platform fee.
func CompletionPostings(t *models.Trip, actor models.Actor, now time.Time) []models.WalletTransaction {
	if t.AssignedDriverID == nil {
		return nil
	}

	fare := t.Fare
	row := func(owner models.OwnerType, ownerID, amount int64, kind models.TransactionKind) models.WalletTransaction {
		return models.WalletTransaction{
			ID:          uuid.NewString(),
			OwnerType:   owner,
			OwnerID:     ownerID,
			Amount:      amount,
			Kind:        kind,
			BookingCode: t.Code,
			CreatedBy:   actor.ID,
			CreatedAt:   now,
		}
	}

	var postings []models.WalletTransaction
	if t.Type == models.TripTakeout && t.VendorID != nil {
		vendorNet := fare.GrandTotal - fare.DeliveryFee - fare.PlatformFee
		postings = append(postings,
			row(models.OwnerDriver, *t.AssignedDriverID, fare.DeliveryFee, models.KindTripEarning),
			row(models.OwnerVendor, *t.VendorID, vendorNet, models.KindTripEarning),
		)
	} else {
		driverNet := fare.GrandTotal - fare.PlatformFee
		postings = append(postings,
			row(models.OwnerDriver, *t.AssignedDriverID, driverNet, models.KindTripEarning),
		)
	}
	if fare.PlatformFee > 0 {
		postings = append(postings, row(models.OwnerPlatform, 0, fare.PlatformFee, models.KindPlatformFee))
	}
	return postings
}
