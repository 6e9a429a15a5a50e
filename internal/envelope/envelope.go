// Package envelope defines the frame envelope that crosses every stage
// topic (spec §3) and its JSON wire encoding (spec §6).
package envelope

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
)

// BBox is a detection/track bounding box: [x, y, w, h] in pixel space.
type BBox [4]float64

// Detection is a single detector output, appended to the envelope
// metadata by the Detection stage.
type Detection struct {
	BBox      BBox    `json:"bbox"`
	Score     float64 `json:"score"`
	ClassID   string  `json:"class_id"`
	Predicted bool    `json:"predicted,omitempty"`
}

// Track is a single tracker output, appended to the envelope metadata by
// the Tracker stage.
type Track struct {
	BBox      BBox   `json:"bbox"`
	TrackID   string `json:"track_id"`
	ClassID   string `json:"class_id"`
	Confirmed bool   `json:"confirmed"`
}

// ReIDAssignment records the globally-consistent ID the ReID stage
// assigned to one detection, addressed by its index in Detections.
type ReIDAssignment struct {
	DetectionIndex int    `json:"detection_index"`
	ReIDID         string `json:"reid_id"`
}

// Metadata is the stage-appended portion of the envelope. Each stage only
// ever appends its own field; it never removes what an upstream stage
// wrote.
type Metadata struct {
	Detections []Detection      `json:"detections,omitempty"`
	Tracks     []Track          `json:"tracks,omitempty"`
	ReID       []ReIDAssignment `json:"reid,omitempty"`
	Predicted  bool             `json:"predicted,omitempty"`

	// Cameras and Incomplete are stamped by the Unification stage: the
	// set of cameras contributing to a composed grid, and whether the
	// group was flushed early by a retention-sweep eviction rather than
	// completing normally (spec §4.H/§4.I).
	Cameras    []string `json:"cameras,omitempty"`
	Incomplete bool     `json:"incomplete,omitempty"`
}

// CameraMetadata is the static, per-camera metadata stamped once by
// Capture and carried unchanged through the pipeline.
type CameraMetadata struct {
	Location    string `json:"location,omitempty"`
	Format      string `json:"format,omitempty"`
	Compression string `json:"compression,omitempty"`
	Bitrate     int    `json:"bitrate,omitempty"`
	Encoding    string `json:"encoding,omitempty"`
}

// Envelope is the canonical unit flowing through topics.
type Envelope struct {
	CameraID        string         `json:"camera_id"`
	FrameNumber     int64          `json:"frame_number"`
	FrameTimestamp  float64        `json:"frame_timestamp"`
	FPSDeclared     int            `json:"fps"`
	ImageBytes      []byte         `json:"-"`
	ImageShape      [3]int         `json:"-"` // height, width, channels
	Metadata        Metadata       `json:"metadata"`
	CameraMetadata  CameraMetadata `json:"camera_metadata"`
}

// wireImage is the {shape,dtype,b64} tuple spec §4.A asks for when
// serializing binary/array payloads over JSON.
type wireImage struct {
	Shape [3]int `json:"shape"`
	Dtype string `json:"dtype"`
	B64   string `json:"b64"`
}

type wireEnvelope struct {
	CameraID       string         `json:"camera_id"`
	FrameNumber    int64          `json:"frame_number"`
	FrameTimestamp float64        `json:"frame_timestamp"`
	FPS            int            `json:"fps"`
	Image          wireImage      `json:"image"`
	Metadata       Metadata       `json:"metadata"`
	CameraMetadata CameraMetadata `json:"camera_metadata"`
}

// MarshalJSON implements the §6 envelope wire format: image bytes travel
// base64-encoded inside an {shape,dtype,b64} tuple rather than as a raw
// JSON field.
func (e Envelope) MarshalJSON() ([]byte, error) {
	w := wireEnvelope{
		CameraID:       e.CameraID,
		FrameNumber:    e.FrameNumber,
		FrameTimestamp: e.FrameTimestamp,
		FPS:            e.FPSDeclared,
		Image: wireImage{
			Shape: e.ImageShape,
			Dtype: "uint8",
			B64:   base64.StdEncoding.EncodeToString(e.ImageBytes),
		},
		Metadata:       e.Metadata,
		CameraMetadata: e.CameraMetadata,
	}
	return json.Marshal(w)
}

// UnmarshalJSON is the inverse of MarshalJSON.
func (e *Envelope) UnmarshalJSON(data []byte) error {
	var w wireEnvelope
	if err := json.Unmarshal(data, &w); err != nil {
		return fmt.Errorf("decode envelope: %w", err)
	}
	img, err := base64.StdEncoding.DecodeString(w.Image.B64)
	if err != nil {
		return fmt.Errorf("decode envelope image bytes: %w", err)
	}
	e.CameraID = w.CameraID
	e.FrameNumber = w.FrameNumber
	e.FrameTimestamp = w.FrameTimestamp
	e.FPSDeclared = w.FPS
	e.ImageBytes = img
	e.ImageShape = w.Image.Shape
	e.Metadata = w.Metadata
	e.CameraMetadata = w.CameraMetadata
	return nil
}

// Key returns the partition key Capture (and every downstream producer
// except Unification/Analytics output) must use: the camera ID, so that
// per-(camera, stage) ordering is preserved by partition affinity (§3).
func (e Envelope) Key() string {
	return e.CameraID
}
