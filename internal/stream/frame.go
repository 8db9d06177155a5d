// Package stream decodes the run endpoint's incremental "data: <json>\n\n"
// byte stream into StreamEvents.
package stream

import "bytes"

// Wire constants of the run stream.
var (
	blockSeparator = []byte("\n\n")
	dataPrefix     = []byte("data: ")
)

// Fragment is a piece of the byte stream after splitting on the block
// separator. A Complete fragment was terminated by a blank line and can be
// decoded; a partial one is still waiting for the rest of its bytes.
type Fragment struct {
	Data     []byte
	Complete bool
}

// Framer reassembles blocks from arbitrarily chunked reads. The zero value is
// ready to use.
type Framer struct {
	pending []byte
}

// Push appends chunk to the pending bytes and returns every block that is now
// terminated, in stream order. Bytes after the last separator stay pending.
func (f *Framer) Push(chunk []byte) []Fragment {
	if len(chunk) == 0 {
		return nil
	}
	f.pending = append(f.pending, chunk...)

	var out []Fragment
	for {
		idx := bytes.Index(f.pending, blockSeparator)
		if idx < 0 {
			break
		}
		block := make([]byte, idx)
		copy(block, f.pending[:idx])
		out = append(out, Fragment{Data: block, Complete: true})
		f.pending = f.pending[idx+len(blockSeparator):]
	}
	if len(f.pending) == 0 {
		f.pending = nil
	}
	return out
}

// Pending returns the unterminated tail as a partial fragment.
func (f *Framer) Pending() Fragment {
	return Fragment{Data: append([]byte(nil), f.pending...)}
}

// Reset drops any pending bytes.
func (f *Framer) Reset() {
	f.pending = nil
}
