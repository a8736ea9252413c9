// Package transport provides the collector-endpoint boundary. The upload
// engine treats every transport identically: it hands over a serialized
// batch and interprets only the three-way result status.
package transport

import "context"

// Status classifies the outcome of a batch submission. The upload engine
// treats any non-success, non-too-large outcome identically.
type Status int

const (
	// StatusSuccess means the collector accepted the batch.
	StatusSuccess Status = iota
	// StatusTooLarge means the collector rejected the payload as too large;
	// the upload engine responds by halving its batch limit.
	StatusTooLarge
	// StatusError covers network failures, malformed responses, and non-2xx
	// statuses; the batch is left untouched for the next trigger.
	StatusError
)

// Request carries one serialized batch and its authentication fields.
type Request struct {
	// APIKey authenticates the client.
	APIKey string
	// APIVersion is the collector wire protocol version.
	APIVersion int
	// Events is the serialized JSON batch.
	Events string
	// Count is the number of records in the batch.
	Count int
	// UploadTime is the client upload timestamp in milliseconds, as a string.
	UploadTime string
	// Checksum is the signature over (api_version, api_key, events,
	// upload_time) computed by the signer collaborator.
	Checksum string
}

// Result is the interpreted collector response.
type Result struct {
	Status Status
	// Added is the number of records the collector acknowledged. Meaningful
	// only when Status is StatusSuccess.
	Added int
	// Err carries the underlying cause for StatusError results.
	Err error
}

// Transport submits serialized batches to the remote collector.
type Transport interface {
	Post(ctx context.Context, req Request) Result
}
