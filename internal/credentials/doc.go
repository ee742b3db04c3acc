// Package credentials stores the cloud-issued device certificate and keys and
// turns them into a mutual-TLS configuration for the broker session.
//
// Files live in the hub data directory:
//
//	certificate.pem.crt   client certificate issued at registration
//	private.pem.key       client private key
//	public.pem.key        client public key
//	root-ca.crt           pinned broker root CA
//
// Certificates are written once at registration and never rotated here.
// Access tokens are JWTs; AccessTokenValid checks their expiry claim.
package credentials
