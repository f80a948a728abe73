package archive

import (
	"bufio"
	"encoding/binary"
	"encoding/json"
	"io"
	"os"

	"github.com/klauspost/compress/zstd"

	"github.com/chefbuild/chef/internal/cheferr"
	"github.com/chefbuild/chef/internal/chefos"
)

// Writer composes a VaFs pack on disk, entry by entry, from a walked
// directory tree.
type Writer struct {
	f       *os.File
	bw      *bufio.Writer
	header  Header
	filter  *Filter
	enc     *zstd.Encoder
	counts  Overview
	entries []entryMeta // buffered until Close writes the final feature table
}

// entryMeta is one staged entry, held in memory until Close so the
// Overview feature can be computed before anything is written to disk.
type entryMeta struct {
	kind    entryKind
	path    string
	mode    uint32
	target  string // symlink only
	payload []byte // file only, already filtered if a codec is set
	rawSize uint64 // file only, size before filtering
}

// NewWriter creates a pack at path with the given package header. If
// filter is non-nil, every regular file's payload is run through its
// codec before being written.
func NewWriter(path string, header Header, filter *Filter) (*Writer, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, cheferr.Wrap(cheferr.ErrInternal, err)
	}

	w := &Writer{
		f:      f,
		bw:     bufio.NewWriter(f),
		header: header,
		filter: filter,
	}

	if filter != nil && filter.Codec == CodecZstd {
		enc, err := zstd.NewWriter(nil)
		if err != nil {
			f.Close()
			return nil, cheferr.Wrap(cheferr.ErrInternal, err)
		}
		w.enc = enc
	}

	return w, nil
}

// AddDir stages a directory entry at relPath with the given mode.
func (w *Writer) AddDir(relPath string, mode os.FileMode) {
	w.entries = append(w.entries, entryMeta{kind: entryDir, path: relPath, mode: uint32(mode)})
	w.counts.Dirs++
}

// AddSymlink stages a symlink entry at relPath pointing at target,
// written verbatim without resolution.
func (w *Writer) AddSymlink(relPath, target string) {
	w.entries = append(w.entries, entryMeta{kind: entrySymlink, path: relPath, target: target})
	w.counts.Symlinks++
}

// AddFile stages a regular file entry at relPath with the given mode,
// reading its content from r. The content is filtered (compressed) now
// if a codec was configured.
func (w *Writer) AddFile(relPath string, mode os.FileMode, r io.Reader) error {
	raw, err := io.ReadAll(r)
	if err != nil {
		return cheferr.Wrap(cheferr.ErrInternal, err)
	}

	payload := raw
	if w.enc != nil {
		payload = w.enc.EncodeAll(raw, nil)
	}

	w.entries = append(w.entries, entryMeta{
		kind:    entryFile,
		path:    relPath,
		mode:    uint32(mode),
		payload: payload,
		rawSize: uint64(len(raw)),
	})
	w.counts.Files++
	return nil
}

// PackDir walks root with [chefos.Walk] and stages every entry it finds,
// skipping the root itself.
func (w *Writer) PackDir(root string) error {
	return chefos.Walk(root, func(e chefos.Entry) error {
		if e.RelPath == "." {
			return nil
		}
		switch {
		case e.IsLink:
			target, err := os.Readlink(root + "/" + e.RelPath)
			if err != nil {
				return cheferr.Wrap(cheferr.ErrInternal, err)
			}
			w.AddSymlink(e.RelPath, target)
		case e.IsDir:
			w.AddDir(e.RelPath, e.Info.Mode().Perm())
		default:
			f, err := os.Open(root + "/" + e.RelPath)
			if err != nil {
				return cheferr.Wrap(cheferr.ErrInternal, err)
			}
			defer f.Close()
			if err := w.AddFile(e.RelPath, e.Info.Mode().Perm(), f); err != nil {
				return err
			}
		}
		return nil
	})
}

// Close writes the header, the feature table (with a now-final Overview),
// and every staged entry, then closes the backing file.
func (w *Writer) Close() error {
	defer w.f.Close()
	if w.enc != nil {
		defer w.enc.Close()
	}

	feat := features{Overview: w.counts, Header: w.header, Filter: w.filter}
	featBytes, err := json.Marshal(feat)
	if err != nil {
		return cheferr.Wrap(cheferr.ErrInternal, err)
	}

	if err := binary.Write(w.bw, binary.LittleEndian, magicValue); err != nil {
		return cheferr.Wrap(cheferr.ErrInternal, err)
	}
	if err := binary.Write(w.bw, binary.LittleEndian, formatVersion); err != nil {
		return cheferr.Wrap(cheferr.ErrInternal, err)
	}
	if err := binary.Write(w.bw, binary.LittleEndian, uint32(len(featBytes))); err != nil {
		return cheferr.Wrap(cheferr.ErrInternal, err)
	}
	if _, err := w.bw.Write(featBytes); err != nil {
		return cheferr.Wrap(cheferr.ErrInternal, err)
	}

	for _, e := range w.entries {
		if err := writeEntry(w.bw, e); err != nil {
			return err
		}
	}

	return cheferr.Wrap(cheferr.ErrInternal, w.bw.Flush())
}

func writeEntry(bw *bufio.Writer, e entryMeta) error {
	if err := binary.Write(bw, binary.LittleEndian, uint8(e.kind)); err != nil {
		return cheferr.Wrap(cheferr.ErrInternal, err)
	}
	if err := writeString(bw, e.path); err != nil {
		return err
	}

	switch e.kind {
	case entryDir:
		return cheferr.Wrap(cheferr.ErrInternal, binary.Write(bw, binary.LittleEndian, e.mode))
	case entrySymlink:
		return writeString(bw, e.target)
	case entryFile:
		if err := binary.Write(bw, binary.LittleEndian, e.mode); err != nil {
			return cheferr.Wrap(cheferr.ErrInternal, err)
		}
		if err := binary.Write(bw, binary.LittleEndian, e.rawSize); err != nil {
			return cheferr.Wrap(cheferr.ErrInternal, err)
		}
		if err := binary.Write(bw, binary.LittleEndian, uint64(len(e.payload))); err != nil {
			return cheferr.Wrap(cheferr.ErrInternal, err)
		}
		_, err := bw.Write(e.payload)
		return cheferr.Wrap(cheferr.ErrInternal, err)
	}
	return nil
}

func writeString(bw *bufio.Writer, s string) error {
	if err := binary.Write(bw, binary.LittleEndian, uint32(len(s))); err != nil {
		return cheferr.Wrap(cheferr.ErrInternal, err)
	}
	_, err := bw.WriteString(s)
	return cheferr.Wrap(cheferr.ErrInternal, err)
}
