package notify

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/fxamacker/cbor/v2"

	toolutil "github.com/sandrolain/blogkit/pkg/toolutil"
)

// EventPublished is the type of every event this package emits.
const EventPublished = "blog.published"

// Event describes a successful publish.
type Event struct {
	Type        string    `json:"type" cbor:"type" bson:"type"`
	Site        string    `json:"site" cbor:"site" bson:"site"`
	Message     string    `json:"message" cbor:"message" bson:"message"`
	Commit      string    `json:"commit,omitempty" cbor:"commit,omitempty" bson:"commit,omitempty"`
	Backend     string    `json:"backend" cbor:"backend" bson:"backend"`
	OutputDir   string    `json:"outputDir" cbor:"outputDir" bson:"outputDir"`
	PublishedAt time.Time `json:"publishedAt" cbor:"publishedAt" bson:"publishedAt"`
	DurationMS  int64     `json:"durationMs" cbor:"durationMs" bson:"durationMs"`
}

// Format is the wire encoding of an event body.
type Format string

const (
	FormatJSON Format = "json"
	FormatCBOR Format = "cbor"
)

func parseFormat(s string) (Format, error) {
	switch Format(s) {
	case "", FormatJSON:
		return FormatJSON, nil
	case FormatCBOR:
		return FormatCBOR, nil
	}
	return "", fmt.Errorf("unknown format %q (use json or cbor)", s)
}

// ContentType returns the MIME type of the format.
func (f Format) ContentType() string {
	if f == FormatCBOR {
		return toolutil.CTCBOR
	}
	return toolutil.CTJSON
}

// Encode serializes the event.
func (e Event) Encode(f Format) ([]byte, error) {
	if f == FormatCBOR {
		em, err := cbor.CanonicalEncOptions().EncMode()
		if err != nil {
			return nil, err
		}
		return em.Marshal(e)
	}
	return json.Marshal(e)
}

// Message is what a sink delivers: the event and its encoded body.
type Message struct {
	Event       Event
	Body        []byte
	ContentType string
}
