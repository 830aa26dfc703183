// Package subscriber connects the in-memory stores to the indexer's live
// entity stream.
//
// A Source opens a subscription: it returns an initial snapshot of entities
// and then calls back with every later batch. StreamSource fetches the
// snapshot over HTTP and reads updates from a pubsub.PubSub topic, so the same
// code runs against an SSE endpoint, a Redis channel or in-process channels.
//
// A Session owns one subscription at a time and feeds it into a lookup.Set and
// a storage.TokenStore:
//
//	source := subscriber.NewStreamSource(indexerURL, stream, "entities", nil)
//	session := subscriber.NewSession(source, lookups, tokens, nil)
//	if err := session.Start(ctx, &subscriber.Query{Namespace: "ns"}); err != nil {
//	    log.Fatal(err)
//	}
//	defer session.Stop()
//
// Every Start, Stop and Reconfigure advances the session's epoch. Snapshots
// and updates delivered for an older epoch are dropped, so a slow subscription
// can never overwrite the stores after they have been cleared.
package subscriber
