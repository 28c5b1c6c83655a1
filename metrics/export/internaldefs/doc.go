// Package internaldefs holds the metric names, help strings and bucket
// bounds shared by the exporters.
//
// Both the Prometheus and OTel exporters read these tables, so a change here
// renames the metric everywhere at once.
//
// # What this package must NOT do
//
//   - Import an exporter package.
//   - Perform I/O.
package internaldefs
