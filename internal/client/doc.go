// Package client is a Go client for the altair-gateway HTTP API.
//
// It covers the catalog and operator routes used by altair-admin, and the
// session routes a live-model bridge needs: open a session, forward tool
// calls, and stream acknowledgement batches back.
//
//	c := client.New("http://localhost:8080", token)
//	s, err := c.CreateSession(ctx)
//	go c.StreamAcks(ctx, s.ID, client.AckHandler{OnBatch: func(b client.AckBatch) { ... }})
//	res, err := c.SendToolCall(ctx, s.ID, call)
//
// Non-2xx responses are returned as *APIError carrying the status and the
// gateway's error message.
package client
