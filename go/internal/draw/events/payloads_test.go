package events

import (
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestParseDrawCompleted(t *testing.T) {
	id := uuid.MustParse("6f1c2a9e-8d51-4b7a-9a43-1d2f3e4a5b6c")

	tests := []struct {
		name    string
		data    string
		wantErr bool
	}{
		{"valid", `{"drawId":"` + id.String() + `","winnerDisplayName":"alice","drawTimestamp":"2025-03-05T19:00:00Z"}`, false},
		{"missing id", `{"winnerDisplayName":"alice","drawTimestamp":"2025-03-05T19:00:00Z"}`, true},
		{"missing winner", `{"drawId":"` + id.String() + `","drawTimestamp":"2025-03-05T19:00:00Z"}`, true},
		{"missing timestamp", `{"drawId":"` + id.String() + `","winnerDisplayName":"alice"}`, true},
		{"not json", `winner`, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseDrawCompleted([]byte(tt.data))
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if err == nil {
				if got.DrawID != id || !got.DrawTimestamp.Equal(time.Date(2025, 3, 5, 19, 0, 0, 0, time.UTC)) {
					t.Errorf("got %+v", got)
				}
			}
		})
	}
}
