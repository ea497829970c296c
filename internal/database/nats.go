package database

import (
	"fmt"

	"github.com/nats-io/nats.go"
)

// ConnectNATS dials the NATS broker used for domain events. An empty URL is
// not an error: event publishing is optional and a nil connection disables it.
func ConnectNATS(url string) (*nats.Conn, error) {
	if url == "" {
		return nil, nil
	}

	conn, err := nats.Connect(url, nats.Name("classdesk-api"))
	if err != nil {
		return nil, fmt.Errorf("unable to connect to nats: %w", err)
	}

	return conn, nil
}
