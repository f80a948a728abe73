package policy

import (
	"bytes"
	"encoding/binary"

	"github.com/chefbuild/chef/internal/cheferr"
)

const (
	magicValue    uint32 = 0x43484546 // "CHEF"
	formatVersion uint32 = 1

	profileTypePath  uint32 = 1
	profileTypeMount uint32 = 2 // reserved: mount-rule profiles are not produced by this package today.
)

type wireHeader struct {
	Magic        uint32
	Version      uint32
	Flags        uint32
	ProfileType  uint32
	NodeCount    uint32
	EdgeCount    uint32
	NegatedCount uint32
	StringsSize  uint32
	RootIndex    uint32
}

type wireNode struct {
	Accept uint8
	Mask   uint8
	_      uint8
	_      uint8
}

type wireEdge struct {
	From        uint32
	To          uint32
	Kind        uint8
	Byte        uint8
	ClassNegate uint8
	_           uint8
	ClassOffset uint32
	ClassLen    uint32
}

type wireNegated struct {
	Start uint32
	Mask  uint8
	_     [3]uint8
}

// Export serializes the profile to the versioned binary blob format: a
// fixed header, a node table, an edge table, a negated-pattern table,
// and a packed strings region.
func (p *Profile) Export() ([]byte, error) {
	var buf bytes.Buffer

	hdr := wireHeader{
		Magic:        magicValue,
		Version:      formatVersion,
		Flags:        uint32(p.flags),
		ProfileType:  profileTypePath,
		NodeCount:    uint32(len(p.nodes)),
		EdgeCount:    uint32(len(p.edges)),
		NegatedCount: uint32(len(p.negated)),
		StringsSize:  uint32(len(p.strs)),
		RootIndex:    p.root,
	}
	if err := binary.Write(&buf, binary.LittleEndian, hdr); err != nil {
		return nil, cheferr.Wrap(cheferr.ErrInternal, err)
	}

	for _, n := range p.nodes {
		wn := wireNode{Mask: n.Mask}
		if n.Accept {
			wn.Accept = 1
		}
		if err := binary.Write(&buf, binary.LittleEndian, wn); err != nil {
			return nil, cheferr.Wrap(cheferr.ErrInternal, err)
		}
	}

	for _, e := range p.edges {
		we := wireEdge{From: e.From, To: e.To, Kind: uint8(e.Kind), Byte: e.Byte, ClassOffset: e.ClassOffset, ClassLen: e.ClassLen}
		if e.ClassNegate {
			we.ClassNegate = 1
		}
		if err := binary.Write(&buf, binary.LittleEndian, we); err != nil {
			return nil, cheferr.Wrap(cheferr.ErrInternal, err)
		}
	}

	for _, n := range p.negated {
		if err := binary.Write(&buf, binary.LittleEndian, wireNegated{Start: n.Start, Mask: n.Mask}); err != nil {
			return nil, cheferr.Wrap(cheferr.ErrInternal, err)
		}
	}

	buf.Write(p.strs)
	return buf.Bytes(), nil
}

// Import parses and validates a profile blob. Every structural invariant
// is checked before any field is trusted: magic, version, the
// profile-type flag, in-range node/edge indices, and string offsets
// inside the strings region. Any violation is [cheferr.ErrInvalidArgument].
func Import(blob []byte) (*Profile, error) {
	headerSize := binary.Size(wireHeader{})
	nodeSize := binary.Size(wireNode{})
	edgeSize := binary.Size(wireEdge{})
	negSize := binary.Size(wireNegated{})

	if len(blob) < headerSize {
		return nil, cheferr.Wrapf(cheferr.ErrInvalidArgument, "policy blob truncated: shorter than header")
	}

	var hdr wireHeader
	if err := binary.Read(bytes.NewReader(blob[:headerSize]), binary.LittleEndian, &hdr); err != nil {
		return nil, cheferr.Wrap(cheferr.ErrInvalidArgument, err)
	}

	if hdr.Magic != magicValue {
		return nil, cheferr.Wrapf(cheferr.ErrInvalidArgument, "policy blob has bad magic")
	}
	if hdr.Version != formatVersion {
		return nil, cheferr.Wrapf(cheferr.ErrInvalidArgument, "policy blob version %d unsupported", hdr.Version)
	}
	if hdr.ProfileType != profileTypePath && hdr.ProfileType != profileTypeMount {
		return nil, cheferr.Wrapf(cheferr.ErrInvalidArgument, "policy blob missing profile-type flag")
	}

	expected := headerSize +
		int(hdr.NodeCount)*nodeSize +
		int(hdr.EdgeCount)*edgeSize +
		int(hdr.NegatedCount)*negSize +
		int(hdr.StringsSize)
	if len(blob) != expected {
		return nil, cheferr.Wrapf(cheferr.ErrInvalidArgument, "policy blob size mismatch: got %d want %d", len(blob), expected)
	}
	if hdr.RootIndex >= hdr.NodeCount {
		return nil, cheferr.Wrapf(cheferr.ErrInvalidArgument, "policy blob root index out of range")
	}

	r := bytes.NewReader(blob[headerSize:])

	nodes := make([]node, hdr.NodeCount)
	for i := range nodes {
		var wn wireNode
		if err := binary.Read(r, binary.LittleEndian, &wn); err != nil {
			return nil, cheferr.Wrap(cheferr.ErrInvalidArgument, err)
		}
		nodes[i] = node{Accept: wn.Accept != 0, Mask: wn.Mask}
	}

	edges := make([]edge, hdr.EdgeCount)
	for i := range edges {
		var we wireEdge
		if err := binary.Read(r, binary.LittleEndian, &we); err != nil {
			return nil, cheferr.Wrap(cheferr.ErrInvalidArgument, err)
		}
		if we.From >= hdr.NodeCount || we.To >= hdr.NodeCount {
			return nil, cheferr.Wrapf(cheferr.ErrInvalidArgument, "policy blob edge targets outside node table")
		}
		if uint64(we.ClassOffset)+uint64(we.ClassLen) > uint64(hdr.StringsSize) {
			return nil, cheferr.Wrapf(cheferr.ErrInvalidArgument, "policy blob class range outside strings region")
		}
		edges[i] = edge{
			From: we.From, To: we.To, Kind: edgeKind(we.Kind), Byte: we.Byte,
			ClassNegate: we.ClassNegate != 0, ClassOffset: we.ClassOffset, ClassLen: we.ClassLen,
		}
	}

	negated := make([]negatedChain, hdr.NegatedCount)
	for i := range negated {
		var wng wireNegated
		if err := binary.Read(r, binary.LittleEndian, &wng); err != nil {
			return nil, cheferr.Wrap(cheferr.ErrInvalidArgument, err)
		}
		if wng.Start >= hdr.NodeCount {
			return nil, cheferr.Wrapf(cheferr.ErrInvalidArgument, "policy blob negated-chain start out of range")
		}
		negated[i] = negatedChain{Start: wng.Start, Mask: wng.Mask}
	}

	strs := make([]byte, hdr.StringsSize)
	if _, err := r.Read(strs); err != nil && hdr.StringsSize > 0 {
		return nil, cheferr.Wrap(cheferr.ErrInvalidArgument, err)
	}

	p := &Profile{
		flags:   Flags(hdr.Flags),
		nodes:   nodes,
		edges:   edges,
		strs:    strs,
		root:    hdr.RootIndex,
		negated: negated,
	}
	p.buildAdj()
	return p, nil
}
