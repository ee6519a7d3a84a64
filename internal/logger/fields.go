package logger

import "log/slog"

// Standard field keys. Use these consistently so log lines from the
// dispatcher, the fake runtime and the bench can be joined.
const (
	KeyComponent = "component"
	KeyClusterID = "cluster_id"
	KeyLanes     = "lanes"
	KeyBatchID   = "batch_id"
	KeyBatchSize = "batch_size"
	KeySlot      = "slot"
	KeyWaiting   = "waiting"
	KeyOccupied  = "occupied"
	KeyThreshold = "threshold"
	KeyMaxWait   = "max_wait"
	KeyError     = "error"
)

// ClusterID returns a slog.Attr for a cluster identifier
func ClusterID(id int) slog.Attr {
	return slog.Int(KeyClusterID, id)
}

// Lanes returns a slog.Attr listing lane numbers
func Lanes(lanes []int) slog.Attr {
	return slog.Any(KeyLanes, lanes)
}

// BatchID returns a slog.Attr for a dispatch batch id
func BatchID(id string) slog.Attr {
	return slog.String(KeyBatchID, id)
}

// Err returns a slog.Attr for an error
func Err(err error) slog.Attr {
	if err == nil {
		return slog.Attr{}
	}
	return slog.String(KeyError, err.Error())
}
