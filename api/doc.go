// Package api exposes the fleet engine over HTTP. Requests carry an HS256
// bearer token whose sub and role claims become the engine principal;
// engine error kinds map onto HTTP statuses in one place (writeError).
package api
