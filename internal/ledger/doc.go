// Package ledger implements the star registry's append-only block chain.
//
// The chain begins with a genesis block (height 0, no previous hash) created
// when the Chain is constructed. Every later block records the hash of its
// predecessor and a SHA-256 content hash of its own fields, so tampering with
// any block is detectable by Audit.
//
// Blocks only enter the chain through SubmitRecord, which requires a fresh
// ownership proof for the submitting address. Appends are serialised by a
// single write lock; readers never observe a partially built block.
package ledger
