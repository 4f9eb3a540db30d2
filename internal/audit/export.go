package audit

import (
	"encoding/csv"
	"encoding/json"
	"io"
	"strconv"
	"time"
)

// WriteCSV serialises audit entries to CSV, newest first as given.
func WriteCSV(w io.Writer, entries []Entry) error {
	writer := csv.NewWriter(w)
	defer writer.Flush()

	if err := writer.Write([]string{"At", "Actor", "Action", "Resource Type", "Resource ID", "Old Values", "New Values"}); err != nil {
		return err
	}
	for _, e := range entries {
		actor := ""
		if e.ActorID != nil {
			actor = strconv.FormatInt(*e.ActorID, 10)
		}
		if err := writer.Write([]string{
			e.CreatedAt.Format(time.RFC3339),
			actor,
			e.Action,
			e.ResourceType,
			e.ResourceID,
			snapshotJSON(e.OldValues),
			snapshotJSON(e.NewValues),
		}); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

func snapshotJSON(values map[string]any) string {
	if values == nil {
		return ""
	}
	raw, err := json.Marshal(values)
	if err != nil {
		return ""
	}
	return string(raw)
}
