package domain

// UserProfile is a user's spending baseline: the bounded history of recent
// amounts and the mean/standard deviation derived from it. Mean and StdDev
// are always recomputed from History with population variance (divide by N),
// so recomputation is idempotent.
type UserProfile struct {
	History []float64 `json:"history"`
	Mean    float64   `json:"mean"`
	StdDev  float64   `json:"stdDev"`
}
