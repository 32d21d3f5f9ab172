// Package dataset bulk-imports historical calls from an xlsx export.
// Rows are converted into the flat webhook shape and run through the
// same normalizer path as live deliveries, so derived metrics and
// idempotency behave identically.
package dataset

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"

	"call-scoring-go/internal/logger"
	"call-scoring-go/internal/store"
	"call-scoring-go/internal/webhook"
)

// ImportResult summarizes one import run.
type ImportResult struct {
	Rows     int `json:"rows"`
	Imported int `json:"imported"`
	Skipped  int `json:"skipped"`
}

// Import reads the first sheet, auto-detecting columns by header
// heuristics, and persists each usable row as a call for companyID.
// Rows without a transcript are skipped quietly.
func Import(ctx context.Context, path, companyID string, calls *store.CallRepository) (ImportResult, error) {
	log := logger.Component("dataset.import").WithField("path", path)

	f, err := excelize.OpenFile(path)
	if err != nil {
		return ImportResult{}, fmt.Errorf("open file: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return ImportResult{}, fmt.Errorf("no sheets")
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return ImportResult{}, fmt.Errorf("read rows: %w", err)
	}
	if len(rows) <= 1 {
		return ImportResult{}, fmt.Errorf("no data rows")
	}

	cols := detectColumns(rows[0])
	log.WithField("columns", fmt.Sprintf("%+v", cols)).Info("detected column indices")

	res := ImportResult{Rows: len(rows) - 1}
	for i, r := range rows {
		if i == 0 {
			continue
		}
		payload := rowPayload(cols, r)
		if payload == nil {
			res.Skipped++
			continue
		}

		call, err := webhook.Normalize(companyID, payload)
		if err != nil {
			res.Skipped++
			continue
		}
		if _, created, err := calls.Create(ctx, call); err != nil {
			log.WithError(err).WithField("row", i).Warn("row insert failed")
			res.Skipped++
		} else if created {
			res.Imported++
		} else {
			res.Skipped++ // already imported on a prior run
		}
	}

	log.WithField("imported", res.Imported).WithField("skipped", res.Skipped).Info("import complete")
	return res, nil
}

type columns struct {
	CallID     int
	AgentID    int
	AgentName  int
	Transcript int
	Campaign   int
	Timestamp  int
	Cost       int
	Resolved   int
}

func detectColumns(header []string) columns {
	c := columns{CallID: -1, AgentID: -1, AgentName: -1, Transcript: -1, Campaign: -1, Timestamp: -1, Cost: -1, Resolved: -1}
	for i, h := range header {
		l := strings.ToLower(strings.TrimSpace(h))
		switch {
		case c.CallID == -1 && (strings.Contains(l, "call id") || strings.Contains(l, "callid") || l == "id"):
			c.CallID = i
		case c.AgentName == -1 && strings.Contains(l, "agent") && strings.Contains(l, "name"):
			c.AgentName = i
		case c.AgentID == -1 && strings.Contains(l, "agent"):
			c.AgentID = i
		case c.Transcript == -1 && (strings.Contains(l, "transcript") || strings.Contains(l, "text")):
			c.Transcript = i
		case c.Campaign == -1 && strings.Contains(l, "campaign"):
			c.Campaign = i
		case c.Timestamp == -1 && (strings.Contains(l, "date") || strings.Contains(l, "time")):
			c.Timestamp = i
		case c.Cost == -1 && strings.Contains(l, "cost"):
			c.Cost = i
		case c.Resolved == -1 && strings.Contains(l, "resolv"):
			c.Resolved = i
		}
	}
	// common export puts the transcript last
	if c.Transcript == -1 && len(header) > 0 {
		c.Transcript = len(header) - 1
	}
	return c
}

// rowPayload builds a flat-shape webhook body from one row, or nil
// when the row carries no transcript.
func rowPayload(c columns, row []string) []byte {
	cell := func(idx int) string {
		if idx >= 0 && idx < len(row) {
			return strings.TrimSpace(row[idx])
		}
		return ""
	}

	transcript := cell(c.Transcript)
	if transcript == "" {
		return nil
	}

	body := map[string]interface{}{
		"call_id":       cell(c.CallID),
		"text":          transcript,
		"agent_id":      cell(c.AgentID),
		"agent_name":    cell(c.AgentName),
		"campaign_type": cell(c.Campaign),
		"timestamp":     cell(c.Timestamp),
	}
	if v := cell(c.Cost); v != "" {
		if cost, err := strconv.ParseFloat(v, 64); err == nil {
			body["cost"] = cost
		}
	}
	if v := strings.ToLower(cell(c.Resolved)); v != "" {
		body["resolved"] = v == "true" || v == "yes" || v == "1"
	}

	payload, _ := json.Marshal(body)
	return payload
}
