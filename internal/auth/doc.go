// Package auth provides operator authentication for altair-gateway.
//
// Operator routes (plugin enable/disable, install, uninstall) accept an
// HS256-signed JWT in the Authorization header:
//
//	Authorization: Bearer <token>
//
// The token's "sub" claim names the operator and is attached to the request
// context as an *Operator. Tokens are minted with JWTVerifier.Generate, which
// the altair-gateway CLI exposes as `altair-gateway token --sub NAME`.
//
// When auth.jwt_secret is empty, RequireOperator is built with a nil verifier
// and lets every request through.
package auth
