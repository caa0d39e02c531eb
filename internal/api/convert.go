package api

import (
	"time"

	"github.com/matheus3301/offsync/internal/bus"
	"github.com/matheus3301/offsync/internal/connectivity"
	"github.com/matheus3301/offsync/internal/offline"
	"github.com/matheus3301/offsync/internal/store"
	"google.golang.org/protobuf/types/known/structpb"
)

// structpb only accepts plain Go values, so every map built here sticks to
// string, bool, float64, []any and map[string]any.

func resultMap(res offline.Result) map[string]any {
	errs := make([]any, 0, len(res.Errors))
	for _, e := range res.Errors {
		errs = append(errs, map[string]any{
			"entry_id":  e.EntryID,
			"type":      string(e.Type),
			"message":   e.Message,
			"permanent": e.Permanent,
			"dropped":   e.Dropped,
		})
	}
	return map[string]any{
		"outcome": string(res.Outcome),
		"success": res.Success,
		"synced":  float64(res.Synced),
		"failed":  float64(res.Failed),
		"dropped": float64(res.Dropped),
		"errors":  errs,
	}
}

func entryMap(e offline.Entry) map[string]any {
	return map[string]any{
		"id":          e.ID,
		"type":        string(e.Type),
		"status":      string(e.SyncStatus),
		"retry_count": float64(e.RetryCount),
		"last_error":  e.LastError,
		"created_at":  formatTime(e.CreatedAt),
	}
}

func passMap(p store.Pass) map[string]any {
	errs := make([]any, 0, len(p.Errors))
	for _, e := range p.Errors {
		errs = append(errs, map[string]any{
			"entry_id":  e.EntryID,
			"type":      e.Type,
			"message":   e.Message,
			"permanent": e.Permanent,
			"dropped":   e.Dropped,
		})
	}
	return map[string]any{
		"started_at":  formatTime(p.StartedAt),
		"finished_at": formatTime(p.FinishedAt),
		"synced":      float64(p.Synced),
		"failed":      float64(p.Failed),
		"dropped":     float64(p.Dropped),
		"errors":      errs,
	}
}

// eventStruct wraps a bus event in the envelope streamed by WatchEvents.
func eventStruct(userID string, evt bus.Event) (*structpb.Struct, error) {
	return structpb.NewStruct(map[string]any{
		"event_id":    evt.ID,
		"user_id":     userID,
		"kind":        evt.Kind,
		"occurred_at": formatTime(evt.Timestamp),
		"payload":     eventPayload(evt.Payload),
	})
}

func eventPayload(p any) any {
	switch v := p.(type) {
	case nil:
		return nil
	case offline.Result:
		return resultMap(v)
	case connectivity.Change:
		return map[string]any{"from": string(v.From), "to": string(v.To), "reason": v.Reason}
	case map[string]any:
		out := make(map[string]any, len(v))
		for k, val := range v {
			out[k] = plain(val)
		}
		return out
	default:
		return plain(v)
	}
}

func plain(v any) any {
	switch x := v.(type) {
	case nil, string, bool, float64:
		return x
	case int:
		return float64(x)
	case int64:
		return float64(x)
	case error:
		return x.Error()
	case interface{ String() string }:
		return x.String()
	default:
		return nil
	}
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}
