package evaluate

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/fogleman/gg"
)

// Layout constants for the rendered matrix.
const (
	cellSize     = 90
	marginLeft   = 110
	marginTop    = 50
	marginBottom = 90
	marginRight  = 30
)

// SaveConfusionPNG renders the confusion matrix as a heatmap image and writes
// it to path, creating parent directories as needed. True labels run down the
// rows, predicted labels across the columns.
func SaveConfusionPNG(cm ConfusionMatrix, path, title string) error {
	if len(cm.Labels) == 0 {
		return fmt.Errorf("confusion matrix has no labels")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating artifact directory: %w", err)
	}

	n := len(cm.Labels)
	width := marginLeft + n*cellSize + marginRight
	height := marginTop + n*cellSize + marginBottom

	dc := gg.NewContext(width, height)
	dc.SetRGB(1, 1, 1)
	dc.Clear()

	maxCount := 0
	for _, row := range cm.Counts {
		for _, c := range row {
			if c > maxCount {
				maxCount = c
			}
		}
	}

	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			x := float64(marginLeft + j*cellSize)
			y := float64(marginTop + i*cellSize)

			intensity := 0.0
			if maxCount > 0 {
				intensity = float64(cm.Counts[i][j]) / float64(maxCount)
			}
			// white through blue, darker means more
			dc.SetRGB(1-0.85*intensity, 1-0.65*intensity, 1-0.25*intensity)
			dc.DrawRectangle(x, y, cellSize, cellSize)
			dc.Fill()

			dc.SetRGB(0.7, 0.7, 0.7)
			dc.SetLineWidth(1)
			dc.DrawRectangle(x, y, cellSize, cellSize)
			dc.Stroke()

			if intensity > 0.6 {
				dc.SetRGB(1, 1, 1)
			} else {
				dc.SetRGB(0.1, 0.1, 0.1)
			}
			dc.DrawStringAnchored(fmt.Sprintf("%d", cm.Counts[i][j]),
				x+cellSize/2, y+cellSize/2, 0.5, 0.5)
		}
	}

	dc.SetRGB(0.1, 0.1, 0.1)
	for i, label := range cm.Labels {
		// row labels (true) on the left, column labels (predicted) below
		dc.DrawStringAnchored(label,
			marginLeft-8, float64(marginTop+i*cellSize)+cellSize/2, 1, 0.5)
		dc.DrawStringAnchored(label,
			float64(marginLeft+i*cellSize)+cellSize/2, float64(marginTop+n*cellSize)+18, 0.5, 0.5)
	}

	dc.DrawStringAnchored("true", 30, float64(marginTop+n*cellSize/2), 0.5, 0.5)
	dc.DrawStringAnchored("predicted",
		float64(marginLeft+n*cellSize/2), float64(height-25), 0.5, 0.5)
	dc.DrawStringAnchored(title, float64(width)/2, marginTop/2, 0.5, 0.5)

	if err := dc.SavePNG(path); err != nil {
		return fmt.Errorf("writing confusion matrix image: %w", err)
	}
	return nil
}
