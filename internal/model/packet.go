package model

import (
	"strings"

	"github.com/rotisserie/eris"

	"github.com/atlas-utilities/billing-cli/internal/money"
)

// PacketKind distinguishes a work request's primary billing packet from the
// per-helper split packets. Helper kinds embed the helper foreman's name so
// two helpers on the same work request and week land in separate packets.
type PacketKind string

// PacketKindPrimary is the packet every row defaults into.
const PacketKindPrimary PacketKind = "primary"

const helperKindPrefix = "helper:"

// HelperKind returns the packet kind for rows credited to the named helper
// foreman.
func HelperKind(foreman string) PacketKind {
	return PacketKind(helperKindPrefix + foreman)
}

// IsHelper reports whether the kind is a helper split.
func (k PacketKind) IsHelper() bool {
	return strings.HasPrefix(string(k), helperKindPrefix)
}

// HelperForeman returns the foreman name embedded in a helper kind, or ""
// for the primary kind.
func (k PacketKind) HelperForeman() string {
	if !k.IsHelper() {
		return ""
	}
	return string(k)[len(helperKindPrefix):]
}

// PacketKey identifies one billing packet: one work request, one week-ending
// date, one kind. WeekEnding is kept as its YYYY-MM-DD form so keys are
// comparable and can round-trip through the history store unchanged.
type PacketKey struct {
	WorkRequest string     `json:"work_request"`
	WeekEnding  string     `json:"week_ending"`
	Kind        PacketKind `json:"kind"`
}

// String renders the key in its persisted "wr|week|kind" form.
func (k PacketKey) String() string {
	return k.WorkRequest + "|" + k.WeekEnding + "|" + string(k.Kind)
}

// ParsePacketKey reads a key back from its persisted form. Helper foreman
// names may themselves contain "|" in pathological sheets, so the split is
// limited to three fields.
func ParsePacketKey(s string) (PacketKey, error) {
	parts := strings.SplitN(s, "|", 3)
	if len(parts) != 3 || parts[0] == "" || parts[1] == "" || parts[2] == "" {
		return PacketKey{}, eris.Errorf("model: malformed packet key %q", s)
	}
	return PacketKey{WorkRequest: parts[0], WeekEnding: parts[1], Kind: PacketKind(parts[2])}, nil
}

// Packet is the grouping unit handed to fingerprinting and rendering. Rows
// stay in source arrival order; that order is part of the packet's identity.
type Packet struct {
	Key  PacketKey      `json:"key"`
	Rows []CanonicalRow `json:"rows"`
}

// Append adds a row to the packet, preserving arrival order.
func (p *Packet) Append(r CanonicalRow) {
	p.Rows = append(p.Rows, r)
}

// RowCount returns the number of rows in the packet.
func (p *Packet) RowCount() int { return len(p.Rows) }

// Total sums the packet's row prices.
func (p *Packet) Total() money.Cents {
	var sum money.Cents
	for _, r := range p.Rows {
		sum += r.TotalPrice
	}
	return sum
}

// HelperFallback records a helper candidate that had to be billed through
// the primary packet because its helper department or job id was missing.
// The row is still billed; only the helper split is lost.
type HelperFallback struct {
	RowIndex      int    `json:"row_index"`
	WorkRequest   string `json:"work_request"`
	HelperForeman string `json:"helper_foreman"`
	MissingField  string `json:"missing_field"`
}
