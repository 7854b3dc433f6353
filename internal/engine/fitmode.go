package engine

import (
	"fmt"
	"strings"
)

// ImageFitMode controls how a seed or background image is mapped onto the
// simulation extent.
type ImageFitMode int

const (
	FitStretch ImageFitMode = iota
	FitCenter
	FitH
	FitV
)

func (m ImageFitMode) String() string {
	switch m {
	case FitStretch:
		return "Stretch"
	case FitCenter:
		return "Center"
	case FitH:
		return "Fit H"
	case FitV:
		return "Fit V"
	}
	return fmt.Sprintf("ImageFitMode(%d)", int(m))
}

// ParseImageFitMode accepts canonical ("Fit H"), lowercase ("fit h") and
// compact ("fith") spellings.
func ParseImageFitMode(s string) (ImageFitMode, error) {
	key := strings.ToLower(s)
	for _, cut := range []string{" ", "_", "-"} {
		key = strings.ReplaceAll(key, cut, "")
	}
	switch key {
	case "stretch":
		return FitStretch, nil
	case "center":
		return FitCenter, nil
	case "fith":
		return FitH, nil
	case "fitv":
		return FitV, nil
	}
	return FitStretch, fmt.Errorf("unknown image fit mode %q", s)
}
