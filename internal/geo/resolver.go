package geo

import (
	"fmt"
	"net"
	"strings"

	"github.com/oschwald/geoip2-golang"
)

// Resolver maps a client IP to an ISO-2 country hint for submission metadata.
// An empty result means no hint is available.
type Resolver interface {
	CountryCode(clientIP string) string
}

// MaxMindResolver resolves country hints from a GeoLite2-Country database.
type MaxMindResolver struct {
	countryDB *geoip2.Reader
}

// NewMaxMindResolver opens the MaxMind country database at databasePath.
func NewMaxMindResolver(databasePath string) (*MaxMindResolver, error) {
	reader, openErr := geoip2.Open(databasePath)
	if openErr != nil {
		return nil, fmt.Errorf("geo: open country database: %w", openErr)
	}
	return &MaxMindResolver{countryDB: reader}, nil
}

// Close releases the underlying database reader.
func (resolver *MaxMindResolver) Close() error {
	if resolver == nil || resolver.countryDB == nil {
		return nil
	}
	return resolver.countryDB.Close()
}

// CountryCode returns the ISO-2 country code for the IP, or empty.
func (resolver *MaxMindResolver) CountryCode(clientIP string) string {
	if resolver == nil || resolver.countryDB == nil {
		return ""
	}
	parsedIP := net.ParseIP(strings.TrimSpace(clientIP))
	if parsedIP == nil {
		return ""
	}
	record, lookupErr := resolver.countryDB.Country(parsedIP)
	if lookupErr != nil || record == nil {
		return ""
	}
	return record.Country.IsoCode
}

// NoopResolver is used when no GeoIP database is configured.
type NoopResolver struct{}

// CountryCode always returns an empty hint.
func (NoopResolver) CountryCode(string) string {
	return ""
}
