package models

// Names of the two charted series.
const (
	SeriesWAN = "wan"
	SeriesCPU = "cpu"
)

// Sample is a single derived scalar plus its display label. It belongs to
// exactly one named series.
type Sample struct {
	Label string  `json:"label"`
	Value float64 `json:"value"`
}
