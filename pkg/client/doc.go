// Package client is the Go SDK for the star registry HTTP API.
//
// # Registering a star
//
// Ownership is proven by signing a challenge issued by the registry. The
// challenge is only valid for a few minutes, so sign it right away:
//
//	c, err := client.New("http://localhost:8000")
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	msg, err := c.RequestChallenge(ctx, address)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	sig := ownership.SignAccountMessage(priv, msg)
//
//	block, err := c.SubmitStar(ctx, client.Submission{
//	    Address:   address,
//	    Message:   msg,
//	    Signature: sig,
//	    Star:      map[string]any{"ra": "16h 29m 1.0s", "dec": "68° 52' 56.9", "story": "..."},
//	})
//
// block.Receipt holds a signed receipt for the new block when the registry
// issues them. VerifyReceipt checks it later.
//
// # Reading the chain
//
// BlockByHeight, BlockByHash and StarsByOwner read single blocks and an
// owner's stars. Validate asks the registry to audit the whole chain and
// returns every fault found.
//
// Blocks never change once appended, so WithCacheTTL can cache lookups by
// hash and height without risk of serving stale data.
package client
