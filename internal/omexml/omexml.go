// Package omexml decodes the OME-XML metadata that accompanies raw recordings,
// either embedded in the vendor sidecar or as a standalone file. Only the pixel
// geometry is read; everything else in the document is ignored.
package omexml

import (
	"encoding/xml"
	"errors"
	"fmt"
	"strings"
)

// ErrNoPixels indicates the document carries no Image/Pixels element.
var ErrNoPixels = errors.New("ome-xml: no Pixels element found")

// Metadata is the pixel geometry of one recording.
type Metadata struct {
	SizeX          int
	SizeY          int
	SizeZ          int
	SizeC          int
	SizeT          int
	DimensionOrder string
	Type           string
}

type document struct {
	XMLName xml.Name `xml:"OME"`
	Images  []struct {
		Pixels []pixels `xml:"Pixels"`
	} `xml:"Image"`
}

type pixels struct {
	DimensionOrder string `xml:"DimensionOrder,attr"`
	SizeX          int    `xml:"SizeX,attr"`
	SizeY          int    `xml:"SizeY,attr"`
	SizeZ          int    `xml:"SizeZ,attr"`
	SizeC          int    `xml:"SizeC,attr"`
	SizeT          int    `xml:"SizeT,attr"`
	Type           string `xml:"Type,attr"`
}

// Parse decodes pixel metadata from an OME-XML document. The first Image's
// first Pixels element wins.
func Parse(data []byte) (*Metadata, error) {
	var doc document
	if err := xml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("ome-xml: decode: %w", err)
	}

	for _, image := range doc.Images {
		for _, px := range image.Pixels {
			meta := &Metadata{
				SizeX:          px.SizeX,
				SizeY:          px.SizeY,
				SizeZ:          px.SizeZ,
				SizeC:          px.SizeC,
				SizeT:          px.SizeT,
				DimensionOrder: strings.ToUpper(strings.TrimSpace(px.DimensionOrder)),
				Type:           strings.ToLower(strings.TrimSpace(px.Type)),
			}
			if err := meta.validate(); err != nil {
				return nil, err
			}
			return meta, nil
		}
	}
	return nil, ErrNoPixels
}

func (m *Metadata) validate() error {
	if m.SizeX <= 0 || m.SizeY <= 0 || m.SizeT <= 0 {
		return fmt.Errorf("ome-xml: non-positive dimensions X=%d Y=%d T=%d", m.SizeX, m.SizeY, m.SizeT)
	}
	if m.SizeZ > 1 {
		return fmt.Errorf("ome-xml: volumetric recordings are not supported (SizeZ=%d)", m.SizeZ)
	}
	if m.SizeC < 0 {
		return fmt.Errorf("ome-xml: negative channel count %d", m.SizeC)
	}
	return nil
}

// FrameShape returns the stored dataset shape: (T, Y, X) for single-channel
// recordings, (T, C, Y, X) otherwise.
func (m *Metadata) FrameShape() []int {
	if m.SizeC > 1 {
		return []int{m.SizeT, m.SizeC, m.SizeY, m.SizeX}
	}
	return []int{m.SizeT, m.SizeY, m.SizeX}
}

// PixelCount returns the total number of stored values.
func (m *Metadata) PixelCount() int {
	n := 1
	for _, dim := range m.FrameShape() {
		n *= dim
	}
	return n
}
