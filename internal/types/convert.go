package types

import (
	"math"
	"time"
)

// NormalizeValue maps driver and user supplied values onto a small set of
// comparable types: every integer kind becomes int64 (unsigned values above
// math.MaxInt64 stay uint64), float32 becomes float64, []byte becomes string
// and time.Time is moved to UTC. Other values pass through.
func NormalizeValue(v interface{}) interface{} {
	switch i := v.(type) {
	case int64:
		return i
	case int:
		return int64(i)
	case int32:
		return int64(i)
	case int16:
		return int64(i)
	case int8:
		return int64(i)
	case uint:
		return normalizeUint(uint64(i))
	case uint64:
		return normalizeUint(i)
	case uint32:
		return int64(i)
	case uint16:
		return int64(i)
	case uint8:
		return int64(i)
	case float32:
		return float64(i)
	case []byte:
		return string(i)
	case time.Time:
		return i.UTC()
	default:
		return v
	}
}

func normalizeUint(u uint64) interface{} {
	if u > math.MaxInt64 {
		return u
	}
	return int64(u)
}
