// Package listener implements tone-listener: it keeps a session with the
// alert server alive and reports every tone pair the server distributes.
package listener
