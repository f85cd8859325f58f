// Package segment holds the on-disk rules for persisted MPEG-TS segments:
// how a segment file is named and when an existing one can be trusted.
package segment

import (
	"fmt"
	"hash/fnv"
	"io"
	"net/url"
	"os"
	"path"
	"strings"
)

const (
	// PacketSize is the length of one MPEG-TS packet.
	PacketSize = 188
	// SyncByte starts every MPEG-TS packet.
	SyncByte = 0x47
	// MinPackets is how many leading packets IsValid inspects.
	MinPackets = 2
)

// IsValid reports whether the file at p looks like an intact transport stream:
// at least MinPackets packets long with a sync byte at the start of each of them.
// Any error opening or reading the file makes it invalid.
func IsValid(p string) bool {
	f, err := os.Open(p)
	if err != nil {
		return false
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil || !info.Mode().IsRegular() || info.Size() < PacketSize*MinPackets {
		return false
	}

	buf := make([]byte, PacketSize*MinPackets)
	if _, err := io.ReadFull(f, buf); err != nil {
		return false
	}
	for i := 0; i < MinPackets; i++ {
		if buf[i*PacketSize] != SyncByte {
			return false
		}
	}
	return true
}

// Filename derives the local file name for the segment at position from its URI.
// The last element of the URI path is used. A query string is folded into the name
// as a short hash so that seg.ts?n=1 and seg.ts?n=2 stay distinct; fragments are ignored.
// When the URI has no usable name the positional fallback segment_000042.ts is returned.
func Filename(uri string, position int) string {
	p, query := uri, ""
	if u, err := url.Parse(uri); err == nil {
		p, query = u.Path, u.RawQuery
	}
	name := path.Base(p)
	if name == "" || name == "." || name == "/" || name == ".." || strings.ContainsAny(name, `/\`) {
		return fallback(position)
	}
	if query != "" {
		h := fnv.New32a()
		h.Write([]byte(query))
		ext := path.Ext(name)
		name = fmt.Sprintf("%s_%08x%s", strings.TrimSuffix(name, ext), h.Sum32(), ext)
	}
	return name
}

// Names returns the local file name of every URI in playlist order.
// Entries whose derived names collide all fall back to their positional name,
// so no two entries of one playlist ever share a file.
func Names(uris []string) []string {
	names := make([]string, len(uris))
	seen := make(map[string]int, len(uris))
	for i, uri := range uris {
		names[i] = Filename(uri, i)
		seen[names[i]]++
	}
	collided := false
	for i, name := range names {
		if seen[name] > 1 {
			names[i] = fallback(i)
			collided = true
		}
	}
	if !collided {
		return names
	}

	// a fallback may still clash with a literal segment_NNNNNN.ts URI
	taken := make(map[string]bool, len(names))
	for _, name := range names {
		if taken[name] {
			for i := range names {
				names[i] = fallback(i)
			}
			return names
		}
		taken[name] = true
	}
	return names
}

func fallback(position int) string {
	return fmt.Sprintf("segment_%06d.ts", position)
}
