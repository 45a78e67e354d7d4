package config

import (
	"github.com/rs/zerolog/log"
)

// Endpoint configuration loaded from environment variables.
// These are populated at startup by the LoadConfig function.
var (
	// VenueWS is the websocket endpoint of the venue engine's notification feed.
	VenueWS string
	// VenueAPI is the HTTP endpoint of the venue engine's settlement API.
	VenueAPI string
)

// loadEndpointConfig loads endpoint configuration from environment variables.
// This function is called by LoadConfig() in General.go.
func loadEndpointConfig() error {
	log.Info().Msg("Loading endpoint configuration from environment variables...")

	var err error

	VenueWS, err = getEnv("VENUE_WS")
	if err != nil {
		return err
	}

	VenueAPI, err = getEnv("VENUE_API")
	if err != nil {
		return err
	}

	log.Debug().
		Str("VenueWS", VenueWS).
		Str("VenueAPI", VenueAPI).
		Msg("Endpoint configuration loaded successfully.")

	return nil
}
