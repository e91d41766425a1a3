// Package connectors holds document sources that feed the ingestion
// pipeline. Only the local filesystem watcher is built in; uploads from
// other systems arrive through blob storage.
package connectors
