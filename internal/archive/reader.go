package archive

import (
	"bufio"
	"encoding/binary"
	"encoding/json"
	"io"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/zstd"

	"github.com/chefbuild/chef/internal/cheferr"
	"github.com/chefbuild/chef/internal/chefos"
)

// Reader sequentially reads a VaFs pack's feature table and entry stream.
// A Reader owns its backing file exclusively until [Reader.Close].
type Reader struct {
	f    *os.File
	br   *bufio.Reader
	feat features
	dec  *zstd.Decoder
}

// Open reads a pack's header and feature table, leaving the entry stream
// positioned at the first entry. It rejects anything that is not a valid
// VaFs pack.
func Open(path string) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, cheferr.Wrap(cheferr.ErrNotFound, err)
	}

	br := bufio.NewReader(f)

	var magic, version, featLen uint32
	if err := binary.Read(br, binary.LittleEndian, &magic); err != nil {
		f.Close()
		return nil, cheferr.Wrap(cheferr.ErrInvalidArgument, ErrBadMagic)
	}
	if magic != magicValue {
		f.Close()
		return nil, cheferr.Wrap(cheferr.ErrInvalidArgument, ErrBadMagic)
	}
	if err := binary.Read(br, binary.LittleEndian, &version); err != nil {
		f.Close()
		return nil, cheferr.Wrap(cheferr.ErrInvalidArgument, err)
	}
	if version != formatVersion {
		f.Close()
		return nil, cheferr.Wrap(cheferr.ErrInvalidArgument, ErrUnsupportedVersion)
	}
	if err := binary.Read(br, binary.LittleEndian, &featLen); err != nil {
		f.Close()
		return nil, cheferr.Wrap(cheferr.ErrInvalidArgument, err)
	}

	featBytes := make([]byte, featLen)
	if _, err := io.ReadFull(br, featBytes); err != nil {
		f.Close()
		return nil, cheferr.Wrap(cheferr.ErrInvalidArgument, err)
	}

	var feat features
	if err := json.Unmarshal(featBytes, &feat); err != nil {
		f.Close()
		return nil, cheferr.Wrap(cheferr.ErrInvalidArgument, err)
	}

	r := &Reader{f: f, br: br, feat: feat}

	if feat.Filter != nil {
		switch feat.Filter.Codec {
		case CodecZstd:
			dec, err := zstd.NewReader(nil)
			if err != nil {
				f.Close()
				return nil, cheferr.Wrap(cheferr.ErrInternal, err)
			}
			r.dec = dec
		default:
			f.Close()
			return nil, cheferr.Wrap(cheferr.ErrInvalidArgument, ErrNoFilter)
		}
	}

	return r, nil
}

// Overview returns the pack's recorded entry counts.
func (r *Reader) Overview() Overview { return r.feat.Overview }

// Header returns the pack's package-type metadata.
func (r *Reader) Header() Header { return r.feat.Header }

// Close releases the reader's backing file.
func (r *Reader) Close() error {
	if r.dec != nil {
		r.dec.Close()
	}
	return cheferr.Wrap(cheferr.ErrInternal, r.f.Close())
}

// UnpackEntry is one decoded entry from [Reader.Walk].
type UnpackEntry struct {
	Kind    string // "file", "dir", or "symlink"
	Path    string
	Mode    os.FileMode
	Target  string // symlink only
	Content []byte // file only, already un-filtered
}

// Walk reads every remaining entry in the stream in order and invokes fn.
// Descending from the root handle is realized here as a flat, pre-ordered
// scan of the entry table the writer produced during packing.
func (r *Reader) Walk(fn func(UnpackEntry) error) error {
	remaining := int(r.feat.Overview.Files + r.feat.Overview.Dirs + r.feat.Overview.Symlinks)
	for i := 0; i < remaining; i++ {
		entry, err := r.readEntry()
		if err != nil {
			return err
		}
		if err := fn(entry); err != nil {
			return err
		}
	}
	return nil
}

func (r *Reader) readEntry() (UnpackEntry, error) {
	var kind uint8
	if err := binary.Read(r.br, binary.LittleEndian, &kind); err != nil {
		return UnpackEntry{}, cheferr.Wrap(cheferr.ErrInvalidArgument, err)
	}
	path, err := readString(r.br)
	if err != nil {
		return UnpackEntry{}, err
	}

	switch entryKind(kind) {
	case entryDir:
		var mode uint32
		if err := binary.Read(r.br, binary.LittleEndian, &mode); err != nil {
			return UnpackEntry{}, cheferr.Wrap(cheferr.ErrInvalidArgument, err)
		}
		return UnpackEntry{Kind: "dir", Path: path, Mode: os.FileMode(mode)}, nil

	case entrySymlink:
		target, err := readString(r.br)
		if err != nil {
			return UnpackEntry{}, err
		}
		return UnpackEntry{Kind: "symlink", Path: path, Target: target}, nil

	case entryFile:
		var mode uint32
		var rawSize, payloadSize uint64
		if err := binary.Read(r.br, binary.LittleEndian, &mode); err != nil {
			return UnpackEntry{}, cheferr.Wrap(cheferr.ErrInvalidArgument, err)
		}
		if err := binary.Read(r.br, binary.LittleEndian, &rawSize); err != nil {
			return UnpackEntry{}, cheferr.Wrap(cheferr.ErrInvalidArgument, err)
		}
		if err := binary.Read(r.br, binary.LittleEndian, &payloadSize); err != nil {
			return UnpackEntry{}, cheferr.Wrap(cheferr.ErrInvalidArgument, err)
		}
		payload := make([]byte, payloadSize)
		if _, err := io.ReadFull(r.br, payload); err != nil {
			return UnpackEntry{}, cheferr.Wrap(cheferr.ErrInvalidArgument, err)
		}

		content := payload
		if r.dec != nil {
			decoded, err := r.dec.DecodeAll(payload, make([]byte, 0, rawSize))
			if err != nil {
				return UnpackEntry{}, cheferr.Wrap(cheferr.ErrIntegrityFailure, err)
			}
			content = decoded
		}

		return UnpackEntry{Kind: "file", Path: path, Mode: os.FileMode(mode), Content: content}, nil
	}

	return UnpackEntry{}, cheferr.Wrapf(cheferr.ErrInvalidArgument, "unknown entry kind %d", kind)
}

func readString(br *bufio.Reader) (string, error) {
	var n uint32
	if err := binary.Read(br, binary.LittleEndian, &n); err != nil {
		return "", cheferr.Wrap(cheferr.ErrInvalidArgument, err)
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(br, buf); err != nil {
		return "", cheferr.Wrap(cheferr.ErrInvalidArgument, err)
	}
	return string(buf), nil
}

// Unpack reads every entry from path's pack and materializes it under
// destDir: directories are created, files are written with their
// recorded permissions, and symlinks are created pointing at their
// recorded target verbatim, without resolution.
func Unpack(path, destDir string) error {
	r, err := Open(path)
	if err != nil {
		return err
	}
	defer r.Close()

	return r.Walk(func(e UnpackEntry) error {
		target := filepath.Join(destDir, filepath.FromSlash(e.Path))
		switch e.Kind {
		case "dir":
			return cheferr.Wrap(cheferr.ErrInternal, os.MkdirAll(target, e.Mode.Perm()|0700))
		case "symlink":
			return chefos.Symlink(e.Target, target)
		case "file":
			if err := os.MkdirAll(filepath.Dir(target), chefos.DefaultDirMode); err != nil {
				return cheferr.Wrap(cheferr.ErrInternal, err)
			}
			return cheferr.Wrap(cheferr.ErrInternal, os.WriteFile(target, e.Content, e.Mode.Perm()))
		}
		return nil
	})
}
