// Package playlist turns an HLS manifest into the ordered entry list and key
// reference consumed by the download pipeline.
package playlist

import (
	"bytes"
	"fmt"
	"io"
	"net/url"
	"strings"

	"github.com/grafov/m3u8"
	"github.com/heyjunin/m3u8grab/pkg/errors"
	"github.com/heyjunin/m3u8grab/pkg/segment"
)

// Entry is one media segment, in manifest order.
type Entry struct {
	Index    int
	URI      string
	Duration float64
	// Filename is the local file name, unique within the playlist.
	Filename string
}

// LocalName returns the file the segment is persisted under.
func (e Entry) LocalName() string {
	if e.Filename != "" {
		return e.Filename
	}
	return segment.Filename(e.URI, e.Index)
}

// Key references the single AES-128 key of a playlist.
type Key struct {
	Method string
	URI    string
}

// Variant is one rendition listed by a master playlist.
type Variant struct {
	URI       string
	Bandwidth uint32
}

// Playlist is the decoded manifest. A master playlist has Variants and no Entries.
type Playlist struct {
	Entries  []Entry
	Key      *Key
	Variants []Variant
}

// IsMaster reports whether the manifest only lists variant streams.
func (p *Playlist) IsMaster() bool {
	return len(p.Variants) > 0
}

// BestVariant returns the variant with the highest bandwidth.
func (p *Playlist) BestVariant() (Variant, error) {
	if len(p.Variants) == 0 {
		return Variant{}, errors.New(errors.ParseError, "Master playlist has no variants", "", errors.ErrNoVariant)
	}
	best := p.Variants[0]
	for _, v := range p.Variants[1:] {
		if v.Bandwidth > best.Bandwidth {
			best = v
		}
	}
	return best, nil
}

// TotalDuration sums the entry durations in seconds.
func (p *Playlist) TotalDuration() float64 {
	var total float64
	for _, e := range p.Entries {
		total += e.Duration
	}
	return total
}

// Decode parses a media or master playlist.
func Decode(r io.Reader) (*Playlist, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, errors.Wrap(err, errors.ParseError, "Failed to read playlist", errors.ErrManifestDecode)
	}
	if !bytes.HasPrefix(bytes.TrimSpace(bytes.TrimPrefix(data, []byte("\xef\xbb\xbf"))), []byte("#EXTM3U")) {
		return nil, errors.New(errors.ParseError, "Not an M3U8 playlist", "missing #EXTM3U header", errors.ErrManifestDecode)
	}

	decoded, listType, err := m3u8.DecodeFrom(bytes.NewReader(data), false)
	if err != nil {
		return nil, errors.Wrap(err, errors.ParseError, "Failed to decode playlist", errors.ErrManifestDecode)
	}

	switch listType {
	case m3u8.MASTER:
		return fromMaster(decoded.(*m3u8.MasterPlaylist))
	case m3u8.MEDIA:
		return fromMedia(decoded.(*m3u8.MediaPlaylist))
	default:
		return nil, errors.New(errors.ParseError, "Unknown playlist type", "", errors.ErrManifestDecode)
	}
}

func fromMaster(mp *m3u8.MasterPlaylist) (*Playlist, error) {
	p := &Playlist{}
	for _, v := range mp.Variants {
		if v == nil || v.URI == "" {
			continue
		}
		p.Variants = append(p.Variants, Variant{URI: v.URI, Bandwidth: v.Bandwidth})
	}
	if len(p.Variants) == 0 {
		return nil, errors.New(errors.ParseError, "Master playlist has no variants", "", errors.ErrNoVariant)
	}
	return p, nil
}

func fromMedia(mp *m3u8.MediaPlaylist) (*Playlist, error) {
	p := &Playlist{}
	keys := map[string]*m3u8.Key{}

	addKey := func(k *m3u8.Key) {
		if k == nil || strings.EqualFold(k.Method, "NONE") || k.Method == "" {
			return
		}
		keys[k.URI] = k
	}
	addKey(mp.Key)

	for _, seg := range mp.Segments {
		if seg == nil {
			continue
		}
		addKey(seg.Key)
		p.Entries = append(p.Entries, Entry{
			Index:    len(p.Entries),
			URI:      strings.TrimSpace(seg.URI),
			Duration: seg.Duration,
		})
	}
	if len(p.Entries) == 0 {
		return nil, errors.New(errors.ParseError, "Playlist has no segments", "", errors.ErrManifestEmpty)
	}
	uris := make([]string, len(p.Entries))
	for i, e := range p.Entries {
		uris[i] = e.URI
	}
	for i, name := range segment.Names(uris) {
		p.Entries[i].Filename = name
	}

	if len(keys) > 1 {
		return nil, errors.New(errors.ParseError, "Key rotation is not supported",
			fmt.Sprintf("%d distinct keys", len(keys)), errors.ErrKeyRotation)
	}
	for uri, k := range keys {
		if !strings.EqualFold(k.Method, "AES-128") {
			return nil, errors.New(errors.ParseError, "Unsupported encryption method", k.Method, errors.ErrUnsupportedKeyMethod)
		}
		if uri == "" {
			return nil, errors.New(errors.ParseError, "Encryption key has no URI", "", errors.ErrKeyFetchFailed)
		}
		p.Key = &Key{Method: "AES-128", URI: uri}
	}
	return p, nil
}

// Resolve joins ref against base. Absolute http(s) references pass through unchanged.
func Resolve(base *url.URL, ref string) (string, error) {
	if strings.HasPrefix(ref, "http://") || strings.HasPrefix(ref, "https://") {
		return ref, nil
	}
	if base == nil {
		return "", errors.New(errors.ValidationError, "Relative URI without base", ref, errors.ErrInvalidURL)
	}
	u, err := base.Parse(ref)
	if err != nil {
		return "", errors.Wrap(err, errors.ValidationError, "Failed to resolve URI", errors.ErrInvalidURL)
	}
	return u.String(), nil
}
