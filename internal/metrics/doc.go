/*
Package metrics exposes Prometheus instrumentation for the archive, fetch
and process pipelines.

All record methods are safe on a disabled collector so library callers can
pass one unconditionally; the nil-check keeps the archiver and fetcher free
of conditional instrumentation.
*/
package metrics
