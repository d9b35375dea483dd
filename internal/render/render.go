package render

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/atlas-utilities/billing-cli/internal/model"
)

// Renderer turns a billing packet into a persisted artifact and returns a
// reference to it. The reference is what the history store remembers and
// what the artifact checker probes on later runs.
type Renderer interface {
	Render(ctx context.Context, p *model.Packet, fingerprint string) (string, error)
}

// artifact is the on-disk JSON shape of a rendered packet.
type artifact struct {
	Key         string        `json:"key"`
	WorkRequest string        `json:"work_request"`
	WeekEnding  string        `json:"week_ending"`
	Kind        string        `json:"kind"`
	Fingerprint string        `json:"fingerprint"`
	GeneratedAt time.Time     `json:"generated_at"`
	RowCount    int           `json:"row_count"`
	Total       string        `json:"total"`
	Rows        []artifactRow `json:"rows"`
}

type artifactRow struct {
	Index       int    `json:"index"`
	LoggedDate  string `json:"logged_date"`
	CUCode      string `json:"cu_code"`
	Quantity    string `json:"quantity"`
	UnitMeasure string `json:"unit_of_measure,omitempty"`
	TotalPrice  string `json:"total_price"`
	Foreman     string `json:"foreman,omitempty"`
	PoleID      string `json:"pole_id,omitempty"`
}

// JSONRenderer writes one <key>.json file per packet under a base directory.
type JSONRenderer struct {
	dir string
	now func() time.Time
}

// NewJSON returns a renderer writing artifacts under dir.
func NewJSON(dir string) *JSONRenderer {
	return &JSONRenderer{dir: dir, now: time.Now}
}

// Render writes the packet artifact and returns its path.
func (r *JSONRenderer) Render(ctx context.Context, p *model.Packet, fingerprint string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", eris.Wrap(err, "render: canceled")
	}
	if err := os.MkdirAll(r.dir, 0o755); err != nil {
		return "", eris.Wrapf(err, "render: create output dir %s", r.dir)
	}

	art := artifact{
		Key:         p.Key.String(),
		WorkRequest: p.Key.WorkRequest,
		WeekEnding:  p.Key.WeekEnding,
		Kind:        string(p.Key.Kind),
		Fingerprint: fingerprint,
		GeneratedAt: r.now().UTC(),
		RowCount:    p.RowCount(),
		Total:       p.Total().String(),
		Rows:        make([]artifactRow, 0, len(p.Rows)),
	}
	for _, row := range p.Rows {
		ar := artifactRow{
			Index:       row.Index,
			CUCode:      row.CUCode,
			Quantity:    row.QuantityRaw,
			UnitMeasure: row.UnitOfMeasure,
			TotalPrice:  row.TotalPrice.String(),
			Foreman:     row.Foreman,
			PoleID:      row.PoleID,
		}
		if row.HasParseableDate() {
			ar.LoggedDate = row.LoggedDate.Format("2006-01-02")
		} else {
			ar.LoggedDate = row.LoggedDateRaw
		}
		art.Rows = append(art.Rows, ar)
	}

	data, err := json.MarshalIndent(art, "", "  ")
	if err != nil {
		return "", eris.Wrapf(err, "render: marshal %s", p.Key)
	}

	path := filepath.Join(r.dir, ArtifactName(p.Key))
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", eris.Wrapf(err, "render: write %s", path)
	}
	return path, nil
}

// ArtifactName maps a packet key to a filesystem-safe file name.
// "WR-1001|2026-01-04|helper:Jones" becomes
// "WR-1001_2026-01-04_helper-Jones.json".
func ArtifactName(key model.PacketKey) string {
	name := key.String()
	name = strings.ReplaceAll(name, "|", "_")
	name = strings.ReplaceAll(name, ":", "-")
	name = strings.ReplaceAll(name, "/", "-")
	return name + ".json"
}

// FSChecker probes artifact references on the local filesystem.
type FSChecker struct{}

// Exists reports whether the referenced artifact is still on disk.
func (FSChecker) Exists(ctx context.Context, ref string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, eris.Wrap(err, "render: canceled")
	}
	if _, err := os.Stat(ref); err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, eris.Wrapf(err, "render: stat %s", ref)
	}
	return true, nil
}
