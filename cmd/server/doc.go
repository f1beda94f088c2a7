// Command server runs the filesystem daemon: a durable local tree exposed
// over HTTP with optional background reconciliation against a remote store.
//
// Configuration comes from environment variables (see internal/config);
// REMOTE_ENABLED=true with REMOTE_ENDPOINT set switches on cloud sync.
package main
