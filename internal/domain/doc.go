// Package domain models USGS earthquake reports and the subscribers alerted about them.
//
// # Data Source
//
// Events come from the USGS FDSN event web service in GeoJSON form
// (https://earthquake.usgs.gov/fdsnws/event/1/). The service is queried for a
// rolling 24 hour window over the Indian subcontinent:
//
//	minlatitude=6.0  maxlatitude=37.6
//	minlongitude=68.0 maxlongitude=97.4
//	minmagnitude=4
//
// # Feed Conventions
//
// Feature shape:
//
//	{"id": "us7000pz55",
//	 "properties": {"place": "65km N of Lucknow, India", "mag": 6.0, "time": 1718000000000},
//	 "geometry":   {"coordinates": [80.9462, 26.8467, 10.0]}}
//
// Coordinates are GeoJSON order: longitude first, then latitude, then depth in
// kilometres. "time" is epoch milliseconds. USGS ids are stable across feed
// revisions, so the id is the deduplication key for the lifetime of the store.
//
// A feature missing its id, place, magnitude, or coordinates is an invalid
// candidate. It is dropped from the batch; the rest of the batch is kept.
//
// # Alerting Rules
//
//	Significant: magnitude >= 4 (re-checked in-process; seeded events bypass the feed filter)
//	Proximity:   haversine distance <= 10 km, Earth radius 6371 km
//
// A subscriber is deliverable when it has both a location and a delivery token.
// A token reported as invalid by the push service is cleared from the subscriber.
package domain
