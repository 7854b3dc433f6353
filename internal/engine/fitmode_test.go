package engine

import "testing"

func TestImageFitModeStrings(t *testing.T) {
	cases := map[ImageFitMode]string{
		FitStretch: "Stretch",
		FitCenter:  "Center",
		FitH:       "Fit H",
		FitV:       "Fit V",
	}
	for mode, want := range cases {
		if got := mode.String(); got != want {
			t.Errorf("%d.String() = %q, want %q", mode, got, want)
		}
	}
}

func TestParseImageFitModeSpellings(t *testing.T) {
	cases := map[string]ImageFitMode{
		"Stretch": FitStretch,
		"stretch": FitStretch,
		"Center":  FitCenter,
		"Fit H":   FitH,
		"fit h":   FitH,
		"fith":    FitH,
		"fit_h":   FitH,
		"fit-v":   FitV,
		"Fit V":   FitV,
	}
	for in, want := range cases {
		got, err := ParseImageFitMode(in)
		if err != nil || got != want {
			t.Errorf("ParseImageFitMode(%q) = %v, %v; want %v", in, got, err, want)
		}
	}
	if _, err := ParseImageFitMode("tile"); err == nil {
		t.Error("unknown mode accepted")
	}
}

func TestImageFitModeRoundTrip(t *testing.T) {
	for _, mode := range []ImageFitMode{FitStretch, FitCenter, FitH, FitV} {
		got, err := ParseImageFitMode(mode.String())
		if err != nil || got != mode {
			t.Errorf("round trip %v: got %v, %v", mode, got, err)
		}
	}
}
