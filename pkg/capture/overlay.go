package capture

import (
	"image"
	"image/color"

	"github.com/teslashibe/posture-guard/pkg/posture"
	"gocv.io/x/gocv"
)

// Banner colors per state.
var (
	ColorCalibrating = color.RGBA{R: 255, G: 255, B: 0, A: 255}
	ColorGood        = color.RGBA{R: 0, G: 255, B: 0, A: 255}
	ColorWarning     = color.RGBA{R: 255, G: 165, B: 0, A: 255}
	ColorBad         = color.RGBA{R: 255, G: 0, B: 0, A: 255}
	ColorMuted       = color.RGBA{R: 160, G: 160, B: 160, A: 255}
	ColorText        = color.RGBA{R: 255, G: 255, B: 255, A: 255}
	ColorBanner      = color.RGBA{A: 255}
)

const bannerHeight = 80

// StateColor returns the banner color for a state.
func StateColor(s posture.State) color.RGBA {
	switch s {
	case posture.StateCalibrating:
		return ColorCalibrating
	case posture.StateGood:
		return ColorGood
	case posture.StateWarning:
		return ColorWarning
	case posture.StateBad, posture.StateCalibrationFailed:
		return ColorBad
	default:
		return ColorMuted
	}
}

// DrawStatus paints a status banner across the top of img.
func DrawStatus(img *gocv.Mat, st posture.Status) {
	if img.Empty() {
		return
	}
	w := img.Cols()

	gocv.Rectangle(img, image.Rect(0, 0, w, bannerHeight), ColorBanner, -1)
	gocv.PutText(img, st.Text(), image.Pt(20, 50), gocv.FontHersheySimplex, 1, StateColor(st.State), 2)

	if readout := st.Readout(); readout != "" {
		scale := 0.7
		if st.State == posture.StateCalibrating {
			scale = 1
		}
		size := gocv.GetTextSize(readout, gocv.FontHersheySimplex, scale, 2)
		gocv.PutText(img, readout, image.Pt(w-size.X-20, 50), gocv.FontHersheySimplex, scale, ColorText, 2)
	}
}
