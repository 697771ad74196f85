// Package certs manages TLS certificate material for the proxy.
//
// The Manager owns a certificate directory of PEM cert/key pairs and keeps
// them loaded for SNI selection during TLS handshakes. On startup it
// guarantees a default self-signed localhost pair exists, generating one if
// missing; failure there is fatal because the proxy must not serve HTTPS
// without a valid default certificate.
//
// The package also carries two pieces of ephemeral, in-memory state:
//
//   - the ACME HTTP-01 challenge registry, written by an external issuance
//     client and read by the proxy's challenge responder
//   - per-domain certificate request rate limits (5-minute cooldown, 5 per
//     rolling 7-day week), advisory gating for a future issuance flow
//
// The full ACME order/authorization/finalization protocol is deliberately
// out of scope: an external client registers challenges here and eventually
// drops issued certificates into the directory, where the Watcher picks
// them up without a restart.
package certs
