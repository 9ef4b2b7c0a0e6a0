// Package wire defines the Talk platform wire contract.
//
// This package is intentionally stable and dependency-light. It owns the
// XML stanza shapes, the JSON body envelope carried inside rich-message
// stanzas, and the address helpers shared between the protocol client and
// the policy layer. Nothing here touches the transport.
package wire
