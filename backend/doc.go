// Package backend is the client side of the remote authentication and profile
// service. Client implements campus.Backend over a Transport, persists the
// current session in a SessionStorage, refreshes it before it expires and
// pushes session changes to registered listeners.
//
// HTTPTransport talks to a Supabase compatible service: GoTrue under
// /auth/v1 for sessions and PostgREST under /rest/v1 for the profiles table.
package backend
