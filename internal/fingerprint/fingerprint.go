// Package fingerprint digests a packet's economically meaningful content.
// Two packets that would bill the same always hash the same, no matter how
// the sheet formatted prices or how the process was restarted; presentation
// columns never participate.
package fingerprint

import (
	"crypto/sha256"
	"encoding/json"
	"fmt"

	"github.com/gowebpki/jcs"
	"github.com/rotisserie/eris"

	"github.com/atlas-utilities/billing-cli/internal/model"
)

// economicRow is the hashed view of one row. Prices appear in their
// canonical text form, dates as bare YYYY-MM-DD. Field order here does not
// matter; the JCS transform sorts keys before hashing.
type economicRow struct {
	WorkRequest string  `json:"wr"`
	Completed   bool    `json:"completed"`
	CU          string  `json:"cu"`
	Quantity    float64 `json:"qty"`
	Price       string  `json:"price"`
	LoggedDate  string  `json:"date"`

	// Extended change detection widens packet identity to who did the work.
	Foreman    string `json:"foreman,omitempty"`
	Department string `json:"department,omitempty"`
}

// Engine computes packet fingerprints.
type Engine struct {
	extended bool
}

// New returns an Engine. With extended set, foreman and helper-department
// identity join the hash, so a crew swap alone counts as a change.
func New(extended bool) *Engine {
	return &Engine{extended: extended}
}

// Compute hashes the packet's rows in stored order and returns a 16-hex-char
// fingerprint. Row order is part of packet identity: the same rows arriving
// in a different order is a different fingerprint.
func (e *Engine) Compute(p *model.Packet) (string, error) {
	view := make([]economicRow, 0, len(p.Rows))
	for _, row := range p.Rows {
		er := economicRow{
			WorkRequest: row.WorkRequest,
			Completed:   row.Completed,
			CU:          row.CUCode,
			Quantity:    row.Quantity,
			Price:       row.TotalPrice.String(),
			LoggedDate:  row.LoggedDate.Format("2006-01-02"),
		}
		if e.extended {
			er.Foreman = row.Foreman
			er.Department = row.HelperDepartment
		}
		view = append(view, er)
	}

	data, err := json.Marshal(view)
	if err != nil {
		return "", eris.Wrapf(err, "fingerprint: marshal packet %s", p.Key)
	}
	canonical, err := jcs.Transform(data)
	if err != nil {
		return "", eris.Wrapf(err, "fingerprint: canonicalize packet %s", p.Key)
	}

	h := sha256.Sum256(canonical)
	return fmt.Sprintf("%x", h[:8]), nil // 16 hex chars
}
