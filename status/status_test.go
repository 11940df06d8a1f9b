package status

import (
	"strings"
	"testing"
)

func i64(v int64) *int64 { return &v }
func pint(v int) *int    { return &v }

const base int64 = 1000000000

func TestClassifyExamples(t *testing.T) {
	th := DefaultThresholds()

	tests := []struct {
		name       string
		now        int64
		lastSeen   *int64
		confidence *int
		wantKind   Kind
		wantLabel  string
	}{
		{"stale just past threshold", base + 601, i64(base), pint(80), Offline, "❌ Offline (0 hr ago)"},
		{"stale over an hour", base + 3700, i64(base), pint(100), Offline, "❌ Offline (1 hr ago)"},
		{"stale for a day", base + 86400, i64(base), pint(10), Offline, "❌ Offline (24 hr ago)"},
		{"low confidence", base + 100, i64(base), pint(50), LowConfidence, "⚠️ Low Confidence (50%)"},
		{"online", base + 100, i64(base), pint(90), Online, "✅ Online"},
		{"age at threshold is not offline", base + 600, i64(base), pint(80), Online, "✅ Online"},
		{"confidence at threshold is online", base + 10, i64(base), pint(75), Online, "✅ Online"},
		{"confidence one below threshold", base + 10, i64(base), pint(74), LowConfidence, "⚠️ Low Confidence (74%)"},
		{"missing confidence counts as zero", base + 10, i64(base), nil, LowConfidence, "⚠️ Low Confidence (0%)"},
		{"never seen", base, nil, pint(100), Offline, "❌ Offline (never seen)"},
		{"clock skew future report", base, i64(base + 30), pint(99), Online, "✅ Online"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Classify(tt.now, tt.lastSeen, tt.confidence, th)
			if got.Kind != tt.wantKind {
				t.Errorf("kind = %s, want %s", got.Kind, tt.wantKind)
			}
			if got.Label != tt.wantLabel {
				t.Errorf("label = %q, want %q", got.Label, tt.wantLabel)
			}
			if got.Color != ColorOf(tt.wantKind) {
				t.Errorf("color = %v, want %v", got.Color, ColorOf(tt.wantKind))
			}
		})
	}
}

func TestClassifyStalenessWinsOverConfidence(t *testing.T) {
	th := DefaultThresholds()
	for age := int64(601); age < 20000; age += 997 {
		for conf := 0; conf <= 100; conf += 5 {
			got := Classify(base+age, i64(base), pint(conf), th)
			if got.Kind != Offline {
				t.Fatalf("age=%d conf=%d: got %s, want offline", age, conf, got.Kind)
			}
		}
	}
}

func TestClassifyFreshPartition(t *testing.T) {
	th := DefaultThresholds()
	for age := int64(0); age <= 600; age += 60 {
		for conf := 0; conf <= 100; conf++ {
			got := Classify(base+age, i64(base), pint(conf), th)
			want := Online
			if conf < 75 {
				want = LowConfidence
			}
			if got.Kind != want {
				t.Fatalf("age=%d conf=%d: got %s, want %s", age, conf, got.Kind, want)
			}
		}
	}
}

func TestClassifyCustomThresholds(t *testing.T) {
	th := Thresholds{StaleAfterSeconds: 60, MinConfidence: 95}

	if got := Classify(base+61, i64(base), pint(100), th); got.Kind != Offline {
		t.Errorf("expected offline with 60s staleness, got %s", got.Kind)
	}
	if got := Classify(base+30, i64(base), pint(90), th); got.Kind != LowConfidence {
		t.Errorf("expected low confidence under 95%%, got %s", got.Kind)
	}
}

func TestColorIsDeterminedByKind(t *testing.T) {
	if HTTPError(500).Color != OfflineColor || RequestError().Color != OfflineColor {
		t.Error("fetch errors must use the offline color")
	}

	colors := map[Kind]Color{}
	results := []Result{
		Classify(base+10000, i64(base), pint(90), DefaultThresholds()),
		Classify(base, nil, nil, DefaultThresholds()),
		Classify(base+1, i64(base), pint(1), DefaultThresholds()),
		Classify(base+1, i64(base), pint(99), DefaultThresholds()),
		HTTPError(403), HTTPError(404), HTTPError(502), RequestError(),
	}
	for _, r := range results {
		if c, ok := colors[r.Kind]; ok && c != r.Color {
			t.Errorf("kind %s has two colors: %v and %v", r.Kind, c, r.Color)
		}
		colors[r.Kind] = r.Color
	}
}

func TestFailureLabels(t *testing.T) {
	tests := []struct {
		result Result
		want   string
	}{
		{HTTPError(403), "❌ HTTP 403 (Invalid API Key?)"},
		{HTTPError(404), "❌ HTTP 404 (Not Found)"},
		{HTTPError(500), "❌ HTTP 500"},
		{RequestError(), "❌ Request Error"},
	}
	for _, tt := range tests {
		if tt.result.Label != tt.want {
			t.Errorf("label = %q, want %q", tt.result.Label, tt.want)
		}
		if tt.result.Kind != FetchError {
			t.Errorf("%q: kind = %s, want fetch_error", tt.want, tt.result.Kind)
		}
	}
	if !strings.Contains(HTTPError(403).Label, "Invalid API Key") {
		t.Error("403 label must mention the API key")
	}
}

func TestSeverityOrder(t *testing.T) {
	if !(Severity(Offline) < Severity(LowConfidence) && Severity(LowConfidence) < Severity(Online)) {
		t.Error("expected offline < low confidence < online")
	}
	if Severity(FetchError) != Severity(Offline) {
		t.Error("fetch errors must rank with offline")
	}
	if Severity(Kind("other")) <= Severity(Online) {
		t.Error("unknown kinds must sort last")
	}
}

func TestReasonForStatusCode(t *testing.T) {
	cases := map[int]FailureReason{403: AuthFailure, 404: NotFoundFailure, 401: HTTPFailure, 500: HTTPFailure}
	for code, want := range cases {
		if got := ReasonForStatusCode(code); got != want {
			t.Errorf("ReasonForStatusCode(%d) = %s, want %s", code, got, want)
		}
	}
}
