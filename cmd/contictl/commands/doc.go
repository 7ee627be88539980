// Package commands defines the contictl CLI.
//
// Commands
//
//   - compute   Reconcile a group snapshot read from a JSON file
//   - migrate   Bring the configured database schema up to date
//   - token     Issue an API bearer token for a member
//
// Configuration comes from the same environment variables (and .env file)
// as the server, so migrate and token act on the deployment they run in.
package commands
