package advisor

import (
	"reflect"
	"testing"
)

func TestExtractRoutePairs(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		text string
		want []RoutePair
	}{
		{
			name: "dash pair",
			text: "How is MAD-JFK doing?",
			want: []RoutePair{{Origin: "MAD", Destination: "JFK"}},
		},
		{
			name: "lowercase with to",
			text: "should I book mad to jfk next week",
			want: []RoutePair{{Origin: "MAD", Destination: "JFK"}},
		},
		{
			name: "arrow",
			text: "compare BCN -> LHR prices",
			want: []RoutePair{{Origin: "BCN", Destination: "LHR"}},
		},
		{
			name: "multiple pairs deduplicated",
			text: "MAD-JFK or mad-jfk or BCN-LHR?",
			want: []RoutePair{
				{Origin: "MAD", Destination: "JFK"},
				{Origin: "BCN", Destination: "LHR"},
			},
		},
		{
			name: "same code both sides ignored",
			text: "MAD-MAD makes no sense",
			want: nil,
		},
		{
			name: "no pairs",
			text: "what should I do?",
			want: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := ExtractRoutePairs(tt.text)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("ExtractRoutePairs(%q) = %v, want %v", tt.text, got, tt.want)
			}
		})
	}
}
