package geo

// Transportation modes reported alongside a location score.
const (
	ModeWalking       = "walking"
	ModeBiking        = "biking"
	ModeRideshare     = "rideshare"
	ModeDriving       = "driving"
	ModePublicTransit = "public_transit"
)

// Distance thresholds for transport classification (miles).
const (
	walkableMiles = 3.0
	bikeableMiles = 10.0
	transitMiles  = 25.0
)

// TransportOptions returns the practical ways to reach a facility at the
// given distance.
// Rules:
//   - <= 3mi: walking, biking, rideshare, driving
//   - <= 10mi: biking, rideshare, driving, public_transit
//   - <= 25mi: rideshare, driving, public_transit
//   - otherwise: driving, rideshare
func TransportOptions(distanceMiles float64) []string {
	switch {
	case distanceMiles <= walkableMiles:
		return []string{ModeWalking, ModeBiking, ModeRideshare, ModeDriving}
	case distanceMiles <= bikeableMiles:
		return []string{ModeBiking, ModeRideshare, ModeDriving, ModePublicTransit}
	case distanceMiles <= transitMiles:
		return []string{ModeRideshare, ModeDriving, ModePublicTransit}
	default:
		return []string{ModeDriving, ModeRideshare}
	}
}
