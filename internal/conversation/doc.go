// Package conversation runs the historical extraction pipeline: it reads a
// channel timeline, decides which senders to analyze, recovers purchase
// requests from their messages, and files the records by month.
//
// The pipeline runs in a fixed order:
//
//  1. fetch the full timeline from a History (the chat API or an export)
//  2. classify senders and narrow to the working set
//  3. walk the working set in ascending timestamp order
//  4. parse each message with the recognizer chain
//  5. resolve the requester: a direct command is its own requester; other
//     formats go through the record linker, then fall back to the sender
//  6. bucket by calendar month of the message timestamp
//  7. persist every non-empty bucket through a BucketWriter
//
// A run never retries and never aborts on a single message. Lookups that
// fail leave the record with the best identity available.
//
//	svc := conversation.NewService(client, resolver, store, publisher, logger,
//	    conversation.DefaultServiceConfig())
//	result, err := svc.Extract(ctx, conversation.ExtractOptions{Channel: "#lab-orders"})
package conversation
