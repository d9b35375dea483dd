package render

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atlas-utilities/billing-cli/internal/model"
	"github.com/atlas-utilities/billing-cli/internal/money"
)

func testPacket() *model.Packet {
	key := model.PacketKey{WorkRequest: "WR-1001", WeekEnding: "2026-01-04", Kind: model.PacketKindPrimary}
	p := &model.Packet{Key: key}
	p.Append(model.CanonicalRow{
		Index:       0,
		WorkRequest: "WR-1001",
		LoggedDate:  time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC),
		CUCode:      "CU-204",
		QuantityRaw: "3",
		TotalPrice:  money.Cents(125000),
		PriceParsed: true,
		Foreman:     "Smith",
		PoleID:      "P-17",
	})
	p.Append(model.CanonicalRow{
		Index:       1,
		WorkRequest: "WR-1001",
		LoggedDate:  time.Date(2026, 1, 3, 0, 0, 0, 0, time.UTC),
		CUCode:      "CU-310",
		QuantityRaw: "1",
		TotalPrice:  money.Cents(7550),
		PriceParsed: true,
	})
	return p
}

func TestRender_WritesArtifact(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	r := NewJSON(dir)

	ref, err := r.Render(context.Background(), testPacket(), "a1b2c3d4e5f60718")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "WR-1001_2026-01-04_primary.json"), ref)

	data, err := os.ReadFile(ref)
	require.NoError(t, err)

	var art artifact
	require.NoError(t, json.Unmarshal(data, &art))
	assert.Equal(t, "WR-1001|2026-01-04|primary", art.Key)
	assert.Equal(t, "WR-1001", art.WorkRequest)
	assert.Equal(t, "2026-01-04", art.WeekEnding)
	assert.Equal(t, "primary", art.Kind)
	assert.Equal(t, "a1b2c3d4e5f60718", art.Fingerprint)
	assert.Equal(t, 2, art.RowCount)
	// 1250.00 + 75.50
	assert.Equal(t, "1325.50", art.Total)
	require.Len(t, art.Rows, 2)
	assert.Equal(t, "2026-01-02", art.Rows[0].LoggedDate)
	assert.Equal(t, "1250.00", art.Rows[0].TotalPrice)
	assert.Equal(t, "Smith", art.Rows[0].Foreman)
}

func TestRender_CreatesOutputDir(t *testing.T) {
	t.Parallel()

	dir := filepath.Join(t.TempDir(), "nested", "artifacts")
	r := NewJSON(dir)

	ref, err := r.Render(context.Background(), testPacket(), "ffffffffffffffff")
	require.NoError(t, err)
	assert.FileExists(t, ref)
}

func TestRender_Canceled(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewJSON(t.TempDir()).Render(ctx, testPacket(), "ffffffffffffffff")
	assert.Error(t, err)
}

func TestArtifactName(t *testing.T) {
	t.Parallel()

	primary := model.PacketKey{WorkRequest: "WR-1001", WeekEnding: "2026-01-04", Kind: model.PacketKindPrimary}
	assert.Equal(t, "WR-1001_2026-01-04_primary.json", ArtifactName(primary))

	helper := model.PacketKey{WorkRequest: "WR-1001", WeekEnding: "2026-01-04", Kind: model.HelperKind("Jones")}
	assert.Equal(t, "WR-1001_2026-01-04_helper-Jones.json", ArtifactName(helper))

	slashed := model.PacketKey{WorkRequest: "WR/7", WeekEnding: "2026-01-04", Kind: model.PacketKindPrimary}
	assert.Equal(t, "WR-7_2026-01-04_primary.json", ArtifactName(slashed))
}

func TestFSChecker(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	live := filepath.Join(dir, "live.json")
	require.NoError(t, os.WriteFile(live, []byte("{}"), 0o644))

	var c FSChecker

	ok, err := c.Exists(context.Background(), live)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = c.Exists(context.Background(), filepath.Join(dir, "gone.json"))
	require.NoError(t, err)
	assert.False(t, ok)
}
