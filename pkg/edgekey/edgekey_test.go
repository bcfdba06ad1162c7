package edgekey

import (
	"errors"
	"testing"

	"pgregory.net/rapid"
)

func TestEncode(t *testing.T) {
	if got := Encode(12, 345); got != "12-345" {
		t.Errorf("Encode(12, 345) = %q, want %q", got, "12-345")
	}
	if got := Reverse("12-345"); got != "345-12" {
		t.Errorf("Reverse = %q, want %q", got, "345-12")
	}
}

func TestParse(t *testing.T) {
	tests := []struct {
		key     string
		u, v    int64
		wantErr bool
	}{
		{key: "1-2", u: 1, v: 2},
		{key: "0-0", u: 0, v: 0},
		{key: "9007199254740991-3", u: 9007199254740991, v: 3},
		{key: "", wantErr: true},
		{key: "12", wantErr: true},
		{key: "-1-2", wantErr: true},
		{key: "1--2", wantErr: true},
		{key: "1-2-3", wantErr: true},
		{key: "a-b", wantErr: true},
		{key: "+1-2", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			u, v, err := Parse(tt.key)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidKey) {
					t.Fatalf("Parse(%q) error = %v, want ErrInvalidKey", tt.key, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Parse(%q) unexpected error: %v", tt.key, err)
			}
			if u != tt.u || v != tt.v {
				t.Errorf("Parse(%q) = (%d, %d), want (%d, %d)", tt.key, u, v, tt.u, tt.v)
			}
		})
	}
}

func TestConsolidateBidirectional(t *testing.T) {
	tests := []struct {
		name string
		keys []string
		want map[string]bool // first key of each record -> bidirectional
	}{
		{
			name: "two-way closure counts once",
			keys: []string{"1-2", "2-1"},
			want: map[string]bool{"1-2": true},
		},
		{
			name: "one-way closure",
			keys: []string{"1-2"},
			want: map[string]bool{"1-2": false},
		},
		{
			name: "mixed",
			keys: []string{"5-6", "6-5", "7-8"},
			want: map[string]bool{"5-6": true, "7-8": false},
		},
		{
			name: "duplicates and garbage",
			keys: []string{"3-4", "3-4", "nope", "4-3"},
			want: map[string]bool{"3-4": true},
		},
		{
			name: "self loop",
			keys: []string{"9-9"},
			want: map[string]bool{"9-9": false},
		},
		{
			name: "empty",
			keys: nil,
			want: map[string]bool{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ConsolidateBidirectional(tt.keys)
			if len(got) != len(tt.want) {
				t.Fatalf("got %d records, want %d: %+v", len(got), len(tt.want), got)
			}
			for _, rec := range got {
				bidir, ok := tt.want[rec.Key]
				if !ok {
					t.Errorf("unexpected record %+v", rec)
					continue
				}
				if rec.IsBidirectional != bidir {
					t.Errorf("record %s bidirectional = %v, want %v", rec.Key, rec.IsBidirectional, bidir)
				}
				if Encode(rec.U, rec.V) != rec.Key {
					t.Errorf("record %s endpoints (%d, %d) do not match key", rec.Key, rec.U, rec.V)
				}
			}
		})
	}
}

func TestConsolidateProperties(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		pairs := rapid.SliceOfN(rapid.SliceOfN(rapid.Int64Range(0, 20), 2, 2), 0, 30).Draw(t, "pairs")

		set := make(map[string]bool)
		keys := make([]string, 0, len(pairs))
		for _, p := range pairs {
			key := Encode(p[0], p[1])
			set[key] = true
			keys = append(keys, key)
		}

		got := ConsolidateBidirectional(keys)
		if len(got) > len(set) {
			t.Fatalf("%d records for %d distinct keys", len(got), len(set))
		}

		// Every input key is covered by exactly one record
		covered := make(map[string]int)
		for _, rec := range got {
			covered[rec.Key]++
			if rec.IsBidirectional {
				covered[Reverse(rec.Key)]++
				if !set[Reverse(rec.Key)] {
					t.Fatalf("record %s marked bidirectional without reverse", rec.Key)
				}
			}
		}
		for key := range set {
			if covered[key] != 1 {
				t.Fatalf("key %s covered %d times", key, covered[key])
			}
		}
	})
}

func TestEncodeRoundTrip(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		u := rapid.Int64Min(0).Draw(t, "u")
		v := rapid.Int64Min(0).Draw(t, "v")

		pu, pv, err := Parse(Encode(u, v))
		if err != nil {
			t.Fatalf("Parse(Encode(%d, %d)): %v", u, v, err)
		}
		if pu != u || pv != v {
			t.Fatalf("round trip gave (%d, %d), want (%d, %d)", pu, pv, u, v)
		}
		if Reverse(Reverse(Encode(u, v))) != Encode(u, v) {
			t.Fatalf("Reverse is not an involution for %d-%d", u, v)
		}
	})
}
