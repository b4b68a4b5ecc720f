// Package token is a software signing token: Ed25519 keys kept on the local
// filesystem, each with a self-signed certificate, that answer signing
// challenges the way a smart card would.
//
// It is meant for development and tests. Keys are stored as hex seeds with
// 0600 permissions and no further protection.
package token
