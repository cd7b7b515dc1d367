package store

import "time"

// Timestamp is how the store serializes points in time. The epoch-seconds
// wire shape survives JSON round-trips as a recognizable marker, which the
// snapshot normalizer duck-types on.
type Timestamp struct {
	Seconds int64 `json:"_seconds"`
}

func Now() Timestamp {
	return Timestamp{Seconds: time.Now().Unix()}
}

func At(t time.Time) Timestamp {
	return Timestamp{Seconds: t.Unix()}
}

func (t Timestamp) Time() time.Time {
	return time.Unix(t.Seconds, 0).UTC()
}
