// Package upstream talks to the dashboard server's REST API.
//
// Session handles the password-grant login and keeps the bearer token fresh
// by reading the JWT exp claim (unverified; verification is the server's
// job). Client wraps the two data calls the engine needs: the roster listing
// and device control. A 401 anywhere invalidates the session, so the next
// call logs in again instead of retrying with a dead token.
package upstream
