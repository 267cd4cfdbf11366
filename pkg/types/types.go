package types

import (
	"encoding/json"
	"time"
)

// CacheStats represents cache performance statistics for a single cache
// instance or tier.
type CacheStats struct {
	Hits        uint64  `json:"hits"`
	Misses      uint64  `json:"misses"`
	Evictions   uint64  `json:"evictions"`
	Expirations uint64  `json:"expirations"`
	Entries     int     `json:"entries"`
	Size        int64   `json:"size"`
	Capacity    int64   `json:"capacity"`
	HitRate     float64 `json:"hit_rate"`
	Utilization float64 `json:"utilization"`
}

// Requests returns the total number of lookups recorded.
func (s CacheStats) Requests() uint64 {
	return s.Hits + s.Misses
}

// ContentCategory tags a cost-aware entry with the kind of payload it holds.
// Each category maps to a base TTL in the cost-aware cache.
type ContentCategory string

const (
	CategoryCurrentWeather  ContentCategory = "current_weather"
	CategoryForecast        ContentCategory = "forecast"
	CategoryWeatherAnalysis ContentCategory = "weather_analysis"
	CategoryAIInsight       ContentCategory = "ai_insight"
	CategoryTranslation     ContentCategory = "translation"
	CategoryChart           ContentCategory = "chart"
	CategoryImage           ContentCategory = "image"
	CategoryQueryResult     ContentCategory = "query_result"
)

// TierLevel selects which storage tiers a key is routed to.
type TierLevel int

const (
	// TierAuto places values by estimated size: small values stay
	// memory-only, large values are written to both tiers.
	TierAuto TierLevel = iota
	// TierMemoryOnly keeps the value in the memory tier only.
	TierMemoryOnly
	// TierDiskOnly keeps the value in the persistent tier only.
	TierDiskOnly
	// TierBoth replicates the value to both tiers.
	TierBoth
)

func (l TierLevel) String() string {
	switch l {
	case TierMemoryOnly:
		return "memory"
	case TierDiskOnly:
		return "disk"
	case TierBoth:
		return "both"
	default:
		return "auto"
	}
}

// Clock is an injectable time source. Tests substitute a fake clock to
// exercise expiry deterministically.
type Clock interface {
	Now() time.Time
}

// RealClock reads the system clock.
type RealClock struct{}

func (RealClock) Now() time.Time { return time.Now() }

// ClockOrReal returns clk, or a RealClock when clk is nil.
func ClockOrReal(clk Clock) Clock {
	if clk == nil {
		return RealClock{}
	}
	return clk
}

// Serializer converts values to and from their persisted byte form.
type Serializer interface {
	Marshal(v interface{}) ([]byte, error)
	Unmarshal(data []byte, v interface{}) error
}

// JSONSerializer is the default Serializer, backed by encoding/json.
type JSONSerializer struct{}

func (JSONSerializer) Marshal(v interface{}) ([]byte, error) { return json.Marshal(v) }

func (JSONSerializer) Unmarshal(data []byte, v interface{}) error { return json.Unmarshal(data, v) }

// SizeHint is implemented by values that can report their own byte-size
// estimate. Caches consult it before falling back to recursive estimation.
type SizeHint interface {
	SizeBytes() int64
}
