package render

import "image"

// Crop is a source rectangle in normalized texture coordinates.
type Crop struct {
	X0, Y0, X1, Y1 float32
}

// FullCrop samples the whole source.
var FullCrop = Crop{X0: 0, Y0: 0, X1: 1, Y1: 1}

// Viewport maps a srcW x srcH frame onto a dstW x dstH target under aspect.
// It returns the destination rectangle in target pixels and the part of the
// source drawn into it. Non-positive sizes yield an empty rectangle.
func Viewport(srcW, srcH, dstW, dstH int, aspect Aspect) (image.Rectangle, Crop) {
	if srcW <= 0 || srcH <= 0 || dstW <= 0 || dstH <= 0 {
		return image.Rectangle{}, Crop{}
	}
	full := image.Rect(0, 0, dstW, dstH)

	// Compare srcW/srcH with dstW/dstH without dividing.
	srcAspect := int64(srcW) * int64(dstH)
	dstAspect := int64(dstW) * int64(srcH)

	switch aspect {
	case AspectStretched:
		return full, FullCrop

	case AspectZoomed:
		switch {
		case srcAspect > dstAspect:
			f := float32(float64(dstAspect) / float64(srcAspect))
			x0 := (1 - f) / 2
			return full, Crop{X0: x0, Y0: 0, X1: x0 + f, Y1: 1}
		case srcAspect < dstAspect:
			f := float32(float64(srcAspect) / float64(dstAspect))
			y0 := (1 - f) / 2
			return full, Crop{X0: 0, Y0: y0, X1: 1, Y1: y0 + f}
		}
		return full, FullCrop

	default:
		switch {
		case srcAspect > dstAspect:
			h := int((int64(dstW)*int64(srcH) + int64(srcW)/2) / int64(srcW))
			h = max(h, 1)
			y := (dstH - h) / 2
			return image.Rect(0, y, dstW, y+h), FullCrop
		case srcAspect < dstAspect:
			w := int((int64(dstH)*int64(srcW) + int64(srcH)/2) / int64(srcH))
			w = max(w, 1)
			x := (dstW - w) / 2
			return image.Rect(x, 0, x+w, dstH), FullCrop
		}
		return full, FullCrop
	}
}
