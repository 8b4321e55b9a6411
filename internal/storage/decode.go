package storage

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/starford/tenantdesk/internal/models"
)

// decodeRecords accepts either a bare JSON array of rows or an object
// wrapping them under "records"; the procedures are not consistent.
func decodeRecords(raw []byte) ([]models.Record, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return []models.Record{}, nil
	}

	var rows []map[string]any
	if raw[0] == '{' {
		var wrapped struct {
			Records []map[string]any `json:"records"`
		}
		if err := json.Unmarshal(raw, &wrapped); err != nil {
			return nil, fmt.Errorf("storage: decode records: %w", err)
		}
		rows = wrapped.Records
	} else if err := json.Unmarshal(raw, &rows); err != nil {
		return nil, fmt.Errorf("storage: decode records: %w", err)
	}

	out := make([]models.Record, 0, len(rows))
	for _, row := range rows {
		out = append(out, RecordFromRow(row))
	}
	return out, nil
}

// RecordFromRow adapts one raw row. The payload is taken from "record_data",
// else "fields", else the row itself.
func RecordFromRow(row map[string]any) models.Record {
	rec := models.Record{}
	if id, ok := row["record_id"].(string); ok {
		rec.ID = id
	} else if id, ok := row["id"].(string); ok {
		rec.ID = id
	}
	if oid, ok := row["object_id"].(string); ok {
		rec.ObjectID = oid
	}
	switch {
	case isObject(row["record_data"]):
		rec.Data = models.Fields(row["record_data"].(map[string]any))
	case isObject(row["fields"]):
		rec.Data = models.Fields(row["fields"].(map[string]any))
	default:
		rec.Data = models.Fields(row)
	}
	return rec
}

func isObject(v any) bool {
	m, ok := v.(map[string]any)
	return ok && m != nil
}

func decodeObjects(raw []byte) ([]models.ObjectInfo, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return []models.ObjectInfo{}, nil
	}
	var out []models.ObjectInfo
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("storage: decode objects: %w", err)
	}
	return out, nil
}
