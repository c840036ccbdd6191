package billing

import "github.com/JonasBergmann/CompanionDeck/app/models"

// ProPlanCredits is the fixed credit grant applied per successful subscription
// payment cycle ($10/month pro plan).
const ProPlanCredits int64 = 10000

// FreePlanCredits mirrors the provisioning default for convenience in billing
// code paths.
const FreePlanCredits = models.FreePlanCredits

// MaxPlanCredits returns the display ceiling for the credit gauge: the pro
// grant while a subscription is on file, the free grant otherwise.
func MaxPlanCredits(hasSubscription bool) int64 {
	if hasSubscription {
		return ProPlanCredits
	}
	return FreePlanCredits
}
