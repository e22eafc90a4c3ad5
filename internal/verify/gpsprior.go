package verify

import (
	"context"
	"fmt"

	"github.com/geomind-labs/geomind/internal/geoutil"
	"github.com/geomind-labs/geomind/internal/model"
)

// gpsAgreementRadiusMeters is how far a candidate may sit from the EXIF
// GPS fix and still count as agreeing with it. Phone GPS under tree cover
// or between buildings drifts far enough that a tight radius would punish
// correct candidates.
const gpsAgreementRadiusMeters = 50000.0

// GPSPrior checks candidates against the EXIF GPS fix when the image
// carries one. Agreement is the strongest evidence the pipeline can get;
// disagreement is equally damning.
type GPSPrior struct{}

// NewGPSPrior builds the GPS consistency verifier.
func NewGPSPrior() *GPSPrior {
	return &GPSPrior{}
}

func (v *GPSPrior) Name() string { return "gps_prior" }

// Verify measures the great-circle distance between the candidate and the
// EXIF GPS fix. Images without a fix yield no evidence.
func (v *GPSPrior) Verify(_ context.Context, cand model.Candidate, clues *model.Clues) (Finding, error) {
	if clues == nil || clues.Metadata.GPS == nil {
		return Finding{}, nil
	}
	gps := clues.Metadata.GPS

	distance := geoutil.Haversine(
		geoutil.Coord(gps.Lat, gps.Lon),
		geoutil.Coord(cand.Lat, cand.Lon),
	)

	ev := model.Evidence{
		Kind:   v.Name(),
		Detail: map[string]any{"distance_meters": distance},
	}
	if distance <= gpsAgreementRadiusMeters {
		ev.Result = model.EvidencePass
		// Closer fixes earn more confidence, down to 0.5 at the radius.
		ev.Confidence = 1.0 - 0.5*(distance/gpsAgreementRadiusMeters)
		ev.Value = fmt.Sprintf("candidate is %.1f km from the EXIF GPS fix", distance/1000)
	} else {
		ev.Result = model.EvidenceFail
		ev.Confidence = 0.1
		ev.Value = fmt.Sprintf("candidate is %.0f km from the EXIF GPS fix", distance/1000)
	}

	return Finding{Confidence: ev.Confidence, Evidence: []model.Evidence{ev}}, nil
}
