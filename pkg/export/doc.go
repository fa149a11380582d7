// Package export packages reading history for download.
//
// # Overview
//
// An export is a metadata header plus either the raw readings of a window
// or their bucket means. The payload is serialized to JSON or CSV and then
// archived:
//   - Primary path: a single-entry zip, deflated at a moderate level
//     (6 by default).
//   - Fallback path: if compression fails, the uncompressed file is
//     delivered as <name>_fallback.json (or .csv) and the failure is logged.
//   - With the fallback disabled, a compression failure is reported as
//     EXPORT_UNSUPPORTED.
//
// Payloads larger than the configured ceiling (100 MB by default) are
// rejected with PAYLOAD_TOO_LARGE before any compression work starts.
//
// # HTTP API
//
// Export endpoint: GET /v1/readings/export
// Query parameters:
//   - sensorId: sensor to export (default: every sensor)
//   - class: sensor or diagnostic (default: sensor)
//   - from, to: RFC3339 bounds (default: the last 24 hours, at most 30 days)
//   - format: "json" or "csv" (default: json)
//   - aggregate: "true" to export bucket means
//
// Example:
//
//	curl -OJ "http://localhost:8080/v1/readings/export?sensorId=temperature&from=2024-01-01T00:00:00Z&to=2024-01-02T00:00:00Z"
//
// The response carries Content-Disposition: attachment with a file name of
// the form <sensor>_data_<yyyyMMdd_HHmmss>_<yyyyMMdd_HHmmss>.zip.
package export
