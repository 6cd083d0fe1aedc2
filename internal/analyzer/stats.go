package analyzer

import (
	"image"
)

// ImageStats is a derived snapshot of a grayscale image's luminance
// distribution. Computed fresh per analysis call, never cached across images.
type ImageStats struct {
	Histogram     [256]int
	Mean          float64
	OtsuThreshold uint8
	TotalPixels   int
}

// ComputeStats builds the luminance histogram and derives the mean and the
// Otsu threshold. Pure function: a blank image yields a degenerate but valid
// result (OtsuThreshold 0).
func ComputeStats(gray *image.Gray) ImageStats {
	var stats ImageStats
	bounds := gray.Bounds()
	width, height := bounds.Dx(), bounds.Dy()
	if width == 0 || height == 0 {
		return stats
	}

	var sum uint64
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		rowStart := gray.PixOffset(bounds.Min.X, y)
		row := gray.Pix[rowStart : rowStart+width]
		for _, v := range row {
			stats.Histogram[v]++
			sum += uint64(v)
		}
	}

	stats.TotalPixels = width * height
	stats.Mean = float64(sum) / float64(stats.TotalPixels)
	stats.OtsuThreshold = otsuThreshold(stats.Histogram, stats.TotalPixels)
	return stats
}

// otsuThreshold runs the classic cumulative-sum sweep: for every candidate
// threshold t it derives background/foreground weights and means from the
// cumulative histogram and keeps the t maximizing the between-class variance
// w_bg * w_fg * (mean_bg - mean_fg)^2.
func otsuThreshold(hist [256]int, totalPixels int) uint8 {
	if totalPixels == 0 {
		return 0
	}

	var weightedTotal float64
	for i, count := range hist {
		weightedTotal += float64(i) * float64(count)
	}

	var (
		sumBg     float64
		countBg   int
		bestLow   int
		bestHigh  int
		bestSigma float64
	)
	total := float64(totalPixels)

	for t := 0; t < 256; t++ {
		countBg += hist[t]
		if countBg == 0 {
			continue
		}
		countFg := totalPixels - countBg
		if countFg == 0 {
			break
		}

		sumBg += float64(t) * float64(hist[t])
		wBg := float64(countBg) / total
		wFg := float64(countFg) / total
		meanBg := sumBg / float64(countBg)
		meanFg := (weightedTotal - sumBg) / float64(countFg)

		diff := meanBg - meanFg
		sigma := wBg * wFg * diff * diff
		if sigma > bestSigma {
			bestSigma = sigma
			bestLow = t
			bestHigh = t
		} else if sigma == bestSigma && t == bestHigh+1 {
			bestHigh = t
		}
	}

	// A clean bimodal histogram produces a plateau of equally good thresholds
	// between the two modes; take its midpoint.
	return uint8((bestLow + bestHigh) / 2)
}
