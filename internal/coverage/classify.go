// Package coverage matches jobs to coverage regions: it classifies a
// manifest's coverage block into a region code and keeps the persistent
// index of regions ("maps") keyed by that code.
package coverage

import (
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"sort"
	"strings"

	"github.com/openaddresses/batch-sub000/internal/models"
	"github.com/paulmach/orb/geojson"
)

// Metadata keys describe a coverage rather than bound it. They are compared
// case-insensitively and never count as coverage dimensions.
const (
	keyISO      = "iso 3166"
	keyCensus   = "us census"
	keyGeometry = "geometry"
)

// Coverage is the classified form of a manifest coverage block. It is one of
// USCensusCounty, CustomGeometry, CountryOnly, CountryState or Unresolved.
type Coverage interface {
	// Code is the region code, empty for Unresolved.
	Code() string
	isCoverage()
}

// USCensusCounty is a US county identified by its 5-digit census GEOID.
type USCensusCounty struct {
	GEOID string
}

// CustomGeometry is an arbitrary area, identified by a hash of its coordinates.
type CustomGeometry struct {
	Hash     string
	Geometry models.GeoJSON
}

// CountryOnly is a whole country.
type CountryOnly struct {
	Country string
}

// CountryState is a first-level subdivision. ISO, when present, is the
// ISO 3166-2 code and wins over country-state.
type CountryState struct {
	Country string
	State   string
	ISO     string
}

// Unresolved is a key combination the classifier does not handle.
type Unresolved struct {
	Keys []string
}

func (c USCensusCounty) Code() string { return "us-" + c.GEOID }
func (c CustomGeometry) Code() string { return c.Hash }
func (c CountryOnly) Code() string    { return strings.ToLower(c.Country) }
func (c CountryState) Code() string {
	if c.ISO != "" {
		return strings.ToLower(c.ISO)
	}
	return strings.ToLower(c.Country + "-" + c.State)
}
func (Unresolved) Code() string { return "" }

func (USCensusCounty) isCoverage() {}
func (CustomGeometry) isCoverage() {}
func (CountryOnly) isCoverage()    {}
func (CountryState) isCoverage()   {}
func (Unresolved) isCoverage()     {}

// Classify resolves a coverage block. Rules, first match wins:
//  1. US Census entry with a 5 character geoid
//  2. a geometry
//  3. exactly {country}
//  4. exactly {country, state}
//
// Anything else is Unresolved. A nil or empty coverage yields nil.
func Classify(cov map[string]any) Coverage {
	if len(cov) == 0 {
		return nil
	}

	if census, ok := lookup(cov, keyCensus).(map[string]any); ok {
		if geoid, ok := census["geoid"].(string); ok && len(geoid) == 5 {
			return USCensusCounty{GEOID: geoid}
		}
	}

	if g := lookup(cov, keyGeometry); g != nil {
		if cg, ok := customGeometry(g); ok {
			return cg
		}
	}

	keys := Keys(cov)
	switch {
	case sameKeys(keys, "country"):
		if country, ok := cov[originalKey(cov, "country")].(string); ok && country != "" {
			return CountryOnly{Country: country}
		}
	case sameKeys(keys, "country", "state"):
		country, _ := cov[originalKey(cov, "country")].(string)
		state, _ := cov[originalKey(cov, "state")].(string)
		if country != "" && state != "" {
			cs := CountryState{Country: country, State: state}
			if iso, ok := lookup(cov, keyISO).(map[string]any); ok {
				cs.ISO, _ = iso["alpha2"].(string)
			}
			return cs
		}
	}
	return Unresolved{Keys: keys}
}

// Keys returns the sorted, lowercased coverage dimensions of cov, leaving out
// the metadata keys.
func Keys(cov map[string]any) []string {
	keys := make([]string, 0, len(cov))
	for k := range cov {
		lk := strings.ToLower(k)
		if lk == keyISO || lk == keyCensus {
			continue
		}
		keys = append(keys, lk)
	}
	sort.Strings(keys)
	return keys
}

// sameKeys reports whether the sorted key set equals want exactly.
func sameKeys(keys []string, want ...string) bool {
	if len(keys) != len(want) {
		return false
	}
	sorted := append([]string(nil), want...)
	sort.Strings(sorted)
	for i := range keys {
		if keys[i] != sorted[i] {
			return false
		}
	}
	return true
}

// lookup returns the value under a case-insensitive key.
func lookup(cov map[string]any, key string) any {
	if k := originalKey(cov, key); k != "" {
		return cov[k]
	}
	return nil
}

func originalKey(cov map[string]any, key string) string {
	for k := range cov {
		if strings.EqualFold(k, key) {
			return k
		}
	}
	return ""
}

// customGeometry validates a GeoJSON geometry and hashes its coordinates.
func customGeometry(g any) (CustomGeometry, bool) {
	raw, err := json.Marshal(g)
	if err != nil {
		return CustomGeometry{}, false
	}
	if _, err := geojson.UnmarshalGeometry(raw); err != nil {
		return CustomGeometry{}, false
	}
	m, ok := g.(map[string]any)
	if !ok || m["coordinates"] == nil {
		return CustomGeometry{}, false
	}
	hash, err := HashCoordinates(m["coordinates"])
	if err != nil {
		return CustomGeometry{}, false
	}
	return CustomGeometry{Hash: hash, Geometry: models.GeoJSON(raw)}, true
}

// HashCoordinates returns a stable hex digest of a coordinate array. Equal
// coordinates always produce the same digest.
func HashCoordinates(coords any) (string, error) {
	b, err := json.Marshal(coords)
	if err != nil {
		return "", err
	}
	sum := sha1.Sum(b)
	return hex.EncodeToString(sum[:]), nil
}
