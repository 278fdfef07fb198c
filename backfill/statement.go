package backfill

import (
	"fmt"
	"strings"
)

// Statement is one decoded row of a statements file.
type Statement struct {
	EntityID      string `parquet:"entity_id" json:"entity_id"`
	CanonicalID   string `parquet:"canonical_id" json:"canonical_id"`
	Schema        string `parquet:"schema" json:"schema"`
	Prop          string `parquet:"prop" json:"prop"`
	Dataset       string `parquet:"dataset" json:"dataset"`
	Value         string `parquet:"value" json:"value"`
	Lang          string `parquet:"lang" json:"lang,omitempty"`
	OriginalValue string `parquet:"original_value" json:"original_value,omitempty"`
	Target        bool   `parquet:"target" json:"target"`
	External      bool   `parquet:"external" json:"external"`
	FirstSeen     string `parquet:"first_seen" json:"first_seen,omitempty"`
	LastSeen      string `parquet:"last_seen" json:"last_seen,omitempty"`
}

// RowCodec converts between statements and delimiter-separated rows.
type RowCodec interface {
	// Unpack decodes one row. An error marks the row as malformed.
	Unpack(row []string) (Statement, error)

	// Pack encodes one statement as a row.
	Pack(stmt Statement) []string
}

// PackColumns is the column order of the packed statement format.
var PackColumns = []string{
	"entity_id",
	"schema",
	"prop",
	"dataset",
	"value",
	"lang",
	"original_value",
	"target",
	"external",
	"first_seen",
	"last_seen",
}

// packCodec implements RowCodec for the packed statement format.
type packCodec struct{}

// NewPackCodec creates the packed statement row codec.
//
// Rows carry the PackColumns in order with no header. Booleans are written
// as "t" or "f"; "true", "false", "1", "0" and empty are accepted on read.
// The canonical ID of an unpacked statement is its entity ID.
func NewPackCodec() RowCodec {
	return packCodec{}
}

func (packCodec) Unpack(row []string) (Statement, error) {
	if len(row) != len(PackColumns) {
		return Statement{}, fmt.Errorf("expected %d columns, got %d", len(PackColumns), len(row))
	}
	target, err := parseBool(row[7])
	if err != nil {
		return Statement{}, fmt.Errorf("target: %w", err)
	}
	external, err := parseBool(row[8])
	if err != nil {
		return Statement{}, fmt.Errorf("external: %w", err)
	}
	return Statement{
		EntityID:      row[0],
		CanonicalID:   row[0],
		Schema:        row[1],
		Prop:          row[2],
		Dataset:       row[3],
		Value:         row[4],
		Lang:          row[5],
		OriginalValue: row[6],
		Target:        target,
		External:      external,
		FirstSeen:     row[9],
		LastSeen:      row[10],
	}, nil
}

func (packCodec) Pack(stmt Statement) []string {
	return []string{
		stmt.EntityID,
		stmt.Schema,
		stmt.Prop,
		stmt.Dataset,
		stmt.Value,
		stmt.Lang,
		stmt.OriginalValue,
		boolText(stmt.Target),
		boolText(stmt.External),
		stmt.FirstSeen,
		stmt.LastSeen,
	}
}

func parseBool(s string) (bool, error) {
	switch strings.ToLower(s) {
	case "t", "true", "1":
		return true, nil
	case "f", "false", "0", "":
		return false, nil
	default:
		return false, fmt.Errorf("invalid boolean %q", s)
	}
}

func boolText(b bool) string {
	if b {
		return "t"
	}
	return "f"
}
