package repository

import (
	"strings"
	"testing"
)

func TestValuesList(t *testing.T) {
	tests := []struct {
		name       string
		rows, cols int
		want       string
	}{
		{name: "single row", rows: 1, cols: 3, want: "($1, $2, $3)"},
		{name: "two rows", rows: 2, cols: 2, want: "($1, $2), ($3, $4)"},
		{name: "empty", rows: 0, cols: 6, want: ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := valuesList(tt.rows, tt.cols); got != tt.want {
				t.Errorf("valuesList(%d, %d) = %q, want %q", tt.rows, tt.cols, got, tt.want)
			}
		})
	}
}

func TestValuesListBatchFitsParameterLimit(t *testing.T) {
	list := valuesList(historyBatchSize, historyColumns)
	if !strings.HasSuffix(list, "$6000)") {
		t.Errorf("last placeholder = %q", list[len(list)-8:])
	}
	if historyBatchSize*historyColumns > 65535 {
		t.Errorf("batch exceeds the Postgres parameter limit")
	}
}

func TestSchemaDeclaresConstraints(t *testing.T) {
	for _, want := range []string{
		"CREATE TABLE IF NOT EXISTS participants",
		"participants_display_name_key ON participants (display_name)",
		"UNIQUE (display_name, registered_at)",
		"CREATE TABLE IF NOT EXISTS draw_attempts",
		"pg_notify('draw_outbox_events', NEW.id::text)",
	} {
		if !strings.Contains(schema, want) {
			t.Errorf("schema missing %q", want)
		}
	}
}
