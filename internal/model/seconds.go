package model

import (
	"encoding/json"
	"fmt"
	"math"
)

// Seconds is a whole number of seconds. Records written by older clients may
// hold fractional values; they are truncated toward zero on read.
type Seconds int64

func (s *Seconds) UnmarshalJSON(data []byte) error {
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("seconds: %w", err)
	}
	if i, err := n.Int64(); err == nil {
		*s = Seconds(i)
		return nil
	}
	f, err := n.Float64()
	if err != nil || math.IsNaN(f) || f >= math.MaxInt64 || f < math.MinInt64 {
		return fmt.Errorf("seconds: invalid number %q", n)
	}
	*s = Seconds(math.Trunc(f))
	return nil
}
