package worker

import (
	"net/http"
	"strings"
)

// Destination is the declared resource type of a request, as carried by the
// Sec-Fetch-Dest request header.
type Destination string

// Destinations defined by the Fetch standard.
const (
	DestinationEmpty         Destination = "empty"
	DestinationAudio         Destination = "audio"
	DestinationAudioWorklet  Destination = "audioworklet"
	DestinationDocument      Destination = "document"
	DestinationEmbed         Destination = "embed"
	DestinationFont          Destination = "font"
	DestinationFrame         Destination = "frame"
	DestinationIframe        Destination = "iframe"
	DestinationImage         Destination = "image"
	DestinationManifest      Destination = "manifest"
	DestinationObject        Destination = "object"
	DestinationPaintWorklet  Destination = "paintworklet"
	DestinationReport        Destination = "report"
	DestinationScript        Destination = "script"
	DestinationServiceWorker Destination = "serviceworker"
	DestinationSharedWorker  Destination = "sharedworker"
	DestinationStyle         Destination = "style"
	DestinationTrack         Destination = "track"
	DestinationVideo         Destination = "video"
	DestinationWorker        Destination = "worker"
	DestinationXSLT          Destination = "xslt"
)

// HeaderFetchDest is the request header naming the destination.
const HeaderFetchDest = "Sec-Fetch-Dest"

var knownDestinations = map[Destination]struct{}{
	DestinationEmpty: {}, DestinationAudio: {}, DestinationAudioWorklet: {},
	DestinationDocument: {}, DestinationEmbed: {}, DestinationFont: {},
	DestinationFrame: {}, DestinationIframe: {}, DestinationImage: {},
	DestinationManifest: {}, DestinationObject: {}, DestinationPaintWorklet: {},
	DestinationReport: {}, DestinationScript: {}, DestinationServiceWorker: {},
	DestinationSharedWorker: {}, DestinationStyle: {}, DestinationTrack: {},
	DestinationVideo: {}, DestinationWorker: {}, DestinationXSLT: {},
}

// DefaultCacheable lists the destinations stored opportunistically on a miss.
var DefaultCacheable = []Destination{
	DestinationScript,
	DestinationStyle,
	DestinationImage,
	DestinationManifest,
}

// ParseDestination normalises a destination token.
// Unknown or empty tokens map to DestinationEmpty.
func ParseDestination(s string) Destination {
	d := Destination(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := knownDestinations[d]; !ok {
		return DestinationEmpty
	}
	return d
}

// DestinationOf returns the destination a request declares.
func DestinationOf(req *http.Request) Destination {
	if req == nil {
		return DestinationEmpty
	}
	return ParseDestination(req.Header.Get(HeaderFetchDest))
}
