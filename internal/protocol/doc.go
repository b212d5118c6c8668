// Package protocol encodes and decodes the alert datagrams.
//
// Every datagram is one JSON object whose "opcode" field selects the
// message. Peers send AUTH and PING; the server answers with AUTH_OK,
// AUTH_FAIL, AUTH_DUPE_NODE or PONG and pushes TONE_REPORT on every
// detected tone pair. Opcodes are matched case-sensitively.
package protocol
