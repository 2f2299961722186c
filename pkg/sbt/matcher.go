// Package sbt drives a persistent interactive sbt process through a
// pseudo-terminal. The only synchronization signal sbt offers over this
// channel is its textual prompt, so everything here is built around
// reading the output stream up to the next prompt match.
package sbt

import "regexp"

var (
	// PromptPattern matches sbt's standard ready prompt, e.g. "sbt:scala3> ".
	// The project name in the prompt depends on the build, so only the shape
	// is fixed.
	PromptPattern = regexp.MustCompile(`sbt:\w+>\s*`)

	// BarePromptPattern matches any line ending in a bare "> ". It is looser
	// than PromptPattern and can false-positive inside command output, so it
	// is only consulted during the startup handshake where no command output
	// is in flight.
	BarePromptPattern = regexp.MustCompile(`(?m)>\s*$`)
)

// Match finds the first prompt match in buf among the given patterns.
// The match starting earliest in the buffer wins; ties are broken by
// pattern list order. loc holds the start and end offsets of the match.
func Match(buf []byte, patterns []*regexp.Regexp) (idx int, loc [2]int, ok bool) {
	idx = -1
	for i, p := range patterns {
		m := p.FindIndex(buf)
		if m == nil {
			continue
		}
		if idx == -1 || m[0] < loc[0] {
			idx = i
			loc = [2]int{m[0], m[1]}
		}
	}
	return idx, loc, idx != -1
}
