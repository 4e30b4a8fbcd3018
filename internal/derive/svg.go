package derive

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/FairForge/metavault/internal/sidecar"
)

var errNoSVGSize = errors.New("svg has no usable width/height or viewBox")

// svgDimensions reads width/height from the root <svg> element, falling
// back to the viewBox size.
func svgDimensions(data []byte) (sidecar.Dimensions, error) {
	dec := xml.NewDecoder(bytes.NewReader(data))
	dec.Strict = false

	for {
		tok, err := dec.Token()
		if err == io.EOF {
			return sidecar.Dimensions{}, fmt.Errorf("decode svg: no <svg> element")
		}
		if err != nil {
			return sidecar.Dimensions{}, fmt.Errorf("decode svg: %w", err)
		}
		start, ok := tok.(xml.StartElement)
		if !ok {
			continue
		}
		if start.Name.Local != "svg" {
			return sidecar.Dimensions{}, fmt.Errorf("decode svg: root element is <%s>", start.Name.Local)
		}
		return svgRootSize(start.Attr)
	}
}

func svgRootSize(attrs []xml.Attr) (sidecar.Dimensions, error) {
	var width, height, viewBox string
	for _, a := range attrs {
		switch a.Name.Local {
		case "width":
			width = a.Value
		case "height":
			height = a.Value
		case "viewBox":
			viewBox = a.Value
		}
	}

	w, wok := svgLength(width)
	h, hok := svgLength(height)
	if wok && hok {
		return sidecar.Dimensions{Width: w, Height: h}, nil
	}

	fields := strings.FieldsFunc(viewBox, func(r rune) bool { return r == ' ' || r == ',' })
	if len(fields) == 4 {
		vw, err1 := strconv.ParseFloat(fields[2], 64)
		vh, err2 := strconv.ParseFloat(fields[3], 64)
		if err1 == nil && err2 == nil && vw > 0 && vh > 0 {
			// a single explicit length scales the other through the viewBox ratio
			switch {
			case wok:
				return sidecar.Dimensions{Width: w, Height: int(math.Round(float64(w) * vh / vw))}, nil
			case hok:
				return sidecar.Dimensions{Width: int(math.Round(float64(h) * vw / vh)), Height: h}, nil
			}
			return sidecar.Dimensions{Width: int(math.Round(vw)), Height: int(math.Round(vh))}, nil
		}
	}

	return sidecar.Dimensions{}, errNoSVGSize
}

// svgLength parses a unitless or px length. Relative units are rejected.
func svgLength(s string) (int, bool) {
	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(s, "px")
	if s == "" {
		return 0, false
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || f <= 0 {
		return 0, false
	}
	return int(math.Round(f)), true
}
