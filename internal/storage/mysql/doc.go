// Package mysql provides repositories and data access helpers backed by
// MySQL. It encapsulates connection pooling, schema initialization, and
// strongly typed queries for persisting plugin lifecycle audit records
// and dead-lettered events that fell out of the processing pipeline.
package mysql
