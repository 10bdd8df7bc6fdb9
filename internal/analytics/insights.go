package analytics

type BucketTotal struct {
	Key   string  `json:"key"`
	Total float64 `json:"total"`
}

type CategoryTotal struct {
	Category string  `json:"category"`
	Total    float64 `json:"total"`
}

// Insights summarizes a count series for chart captions.
type Insights struct {
	TotalVisits  float64        `json:"total_visits"`
	AvgPerBucket float64        `json:"avg_per_bucket"`
	MostPopular  *CategoryTotal `json:"most_popular,omitempty"`
	LeastPopular *CategoryTotal `json:"least_popular,omitempty"`
	Busiest      *BucketTotal   `json:"busiest,omitempty"`
	// Quietest is the bucket with the fewest visits among those with any.
	Quietest *BucketTotal `json:"quietest,omitempty"`
}

func Describe(series Series) Insights {
	var out Insights
	perCategory := make(map[string]float64, len(series.Categories))
	for _, b := range series.Buckets {
		var bucketTotal float64
		for _, c := range series.Categories {
			bucketTotal += b.Totals[c]
			perCategory[c] += b.Totals[c]
		}
		out.TotalVisits += bucketTotal
		if bucketTotal > 0 && (out.Busiest == nil || bucketTotal > out.Busiest.Total) {
			out.Busiest = &BucketTotal{Key: b.Key, Total: bucketTotal}
		}
		if bucketTotal > 0 && (out.Quietest == nil || bucketTotal < out.Quietest.Total) {
			out.Quietest = &BucketTotal{Key: b.Key, Total: bucketTotal}
		}
	}
	if len(series.Buckets) > 0 {
		out.AvgPerBucket = out.TotalVisits / float64(len(series.Buckets))
	}
	for _, c := range series.Categories {
		total := perCategory[c]
		if out.MostPopular == nil || total >= out.MostPopular.Total {
			out.MostPopular = &CategoryTotal{Category: c, Total: total}
		}
		if out.LeastPopular == nil || total <= out.LeastPopular.Total {
			out.LeastPopular = &CategoryTotal{Category: c, Total: total}
		}
	}
	return out
}
