// Package analytics synthesizes and aggregates campaign performance
// numbers for content assets.
package analytics

import (
	"fmt"
	"math"
	"math/rand"

	"github.com/Isha1703/campaign-dashboard/internal/domain"
)

// platformMultiplier weights synthesized engagement by platform and ad
// type. Visual content on Instagram and TikTok outperforms; LinkedIn
// trails slightly above baseline and Facebook below it.
func platformMultiplier(platform, adType string) float64 {
	switch platform {
	case "Instagram", "TikTok":
		if adType == domain.AdTypeImage || adType == domain.AdTypeVideo {
			return 1.5
		}
		return 1.0
	case "LinkedIn":
		return 1.2
	case "Facebook":
		return 0.9
	default:
		return 1.0
	}
}

// SampleMetrics synthesizes performance numbers for each asset. The
// supplied rng makes the synthesis reproducible for a fixed seed.
func SampleMetrics(assets []domain.ContentAsset, productCost float64, rng *rand.Rand) []domain.CalculatedMetrics {
	metrics := make([]domain.CalculatedMetrics, 0, len(assets))
	for _, a := range assets {
		base := platformMultiplier(a.Platform, a.AdType)

		impressions := int(float64(5000+rng.Intn(15001)) * base)
		clicks := int(float64(impressions) * uniform(rng, 0.01, 0.05) * base)
		redirects := int(float64(clicks) * uniform(rng, 0.3, 0.7))
		conversions := int(float64(redirects) * uniform(rng, 0.05, 0.2) * base)
		likes := int(float64(impressions) * uniform(rng, 0.001, 0.01))
		cost := uniform(rng, 50, 300)
		revenue := float64(conversions) * productCost

		m := domain.CalculatedMetrics{
			Audience:    a.Audience,
			Platform:    a.Platform,
			Impressions: impressions,
			Clicks:      clicks,
			Redirects:   redirects,
			Conversions: conversions,
			Likes:       likes,
			Cost:        round2(cost),
			Revenue:     round2(revenue),
		}
		if cost > 0 {
			m.ROI = round2((revenue - cost) / cost * 100)
		}
		if impressions > 0 {
			m.CTR = round2(float64(clicks) / float64(impressions) * 100)
		}
		if clicks > 0 {
			m.RedirectRate = round2(float64(redirects) / float64(clicks) * 100)
		}
		metrics = append(metrics, m)
	}
	return metrics
}

// Aggregate folds per-pair metrics into a campaign-level performance
// analysis. It derives totals and the best and worst performing pairs
// by ROI; it never mutates the underlying assets.
func Aggregate(productCost float64, metrics []domain.CalculatedMetrics) domain.PerformanceAnalysis {
	pa := domain.PerformanceAnalysis{
		ProductCost:     productCost,
		PlatformMetrics: metrics,
	}

	bestROI, worstROI := 0.0, 0.0
	for i, m := range metrics {
		pa.TotalCost += m.Cost
		pa.TotalRevenue += m.Revenue
		if i == 0 || m.ROI > bestROI {
			bestROI = m.ROI
			pa.BestPerforming = pairName(m)
		}
		if i == 0 || m.ROI < worstROI {
			worstROI = m.ROI
			pa.WorstPerforming = pairName(m)
		}
	}

	pa.TotalCost = round2(pa.TotalCost)
	pa.TotalRevenue = round2(pa.TotalRevenue)
	if pa.TotalCost > 0 {
		pa.OverallROI = round2((pa.TotalRevenue - pa.TotalCost) / pa.TotalCost * 100)
	}
	return pa
}

func pairName(m domain.CalculatedMetrics) string {
	return fmt.Sprintf("%s (%s)", m.Platform, m.Audience)
}

func uniform(rng *rand.Rand, lo, hi float64) float64 {
	return lo + rng.Float64()*(hi-lo)
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
