package fetcher

import (
	"testing"

	"spool/internal/outcome"
)

func TestClassifyLine(t *testing.T) {
	cases := []struct {
		line string
		kind outcome.Kind
		want bool
	}{
		{"audible.exceptions.NetworkError: request failed", outcome.KindNetworkError, true},
		{"requests.ConnectionError: Connection reset by peer", outcome.KindNetworkError, true},
		{"Read timed out after 30s", outcome.KindTimeout, true},
		{"License request denied by server", outcome.KindNoCredentialYet, true},
		{"asin B00ABC not found in library", outcome.KindNotFound, true},
		{"ERROR: unexpected response shape", outcome.KindUnknownState, true},
		{"45%|████      | 12.3M/27.1M [00:05<00:08, 2.40MB/s]", "", false},
		{"Downloaded cover to cover.jpg", "", false},
		{"ERRORS are not the token", "", false},
	}
	for _, tc := range cases {
		kind, terminal := classifyLine(tc.line)
		if terminal != tc.want || kind != tc.kind {
			t.Errorf("classifyLine(%q) = (%v, %v), want (%v, %v)", tc.line, kind, terminal, tc.kind, tc.want)
		}
	}
}

func TestSafeName(t *testing.T) {
	cases := []struct {
		in, want string
	}{
		{"Crime and Punishment", "Crime and Punishment"},
		{"Über die  Brücke", "Uber die Brucke"},
		{"Either/Or: A Fragment", "Either-Or- A Fragment"},
		{"What? \"Why\" <Now>", "What Why Now"},
		{"  padded  ", "padded"},
	}
	for _, tc := range cases {
		if got := SafeName(tc.in); got != tc.want {
			t.Errorf("SafeName(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}
