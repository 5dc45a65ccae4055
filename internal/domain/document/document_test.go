package document

import "testing"

func TestRecord_Validate(t *testing.T) {
	tests := []struct {
		name    string
		rec     Record
		wantErr bool
	}{
		{"zero id", Record{ID: 0, Text: "a"}, false},
		{"positive id", Record{ID: 42, Text: "b"}, false},
		{"empty text", Record{ID: 1}, false},
		{"negative id", Record{ID: -1, Text: "c"}, true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.rec.Validate()
			if (err != nil) != tc.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tc.wantErr)
			}
		})
	}
}
