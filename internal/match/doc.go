// Package match resolves a client identity into a connect token. The
// Matcher is the client side: it asks a matchd endpoint for a match, or
// mints the token locally for loopback runs. Service is the matchd side
// that issues tokens over HTTP.
//
// A match resolves to exactly one of three statuses: Pending while in
// flight, Found with a token attached, Failed with no token. Callers
// must treat Failed as fatal for the connect attempt; there is no retry
// here.
package match
