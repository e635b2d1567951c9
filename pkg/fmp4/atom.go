package fmp4

import (
	"encoding/binary"

	"m7s.live/fmp4/pkg"
	"m7s.live/fmp4/pkg/box"
)

// leafAtom is a fully buffered leaf box.
type leafAtom struct {
	Type     [4]byte
	Position int64 // first header byte
	End      int64
	Payload  []byte
}

// containerAtom is an open or closed container box with the children read so far.
type containerAtom struct {
	Type       [4]byte
	Position   int64
	End        int64 // -1 while it extends to an unknown end of stream
	Leaves     []leafAtom
	Containers []*containerAtom
}

func (c *containerAtom) leaf(t [4]byte) *leafAtom {
	for i := range c.Leaves {
		if c.Leaves[i].Type == t {
			return &c.Leaves[i]
		}
	}
	return nil
}

func (c *containerAtom) container(t [4]byte) *containerAtom {
	for _, child := range c.Containers {
		if child.Type == t {
			return child
		}
	}
	return nil
}

// decodeLeaf runs a box decoder over the leaf of type t, returning false when
// the leaf is absent. Errors carry the leaf location.
func (c *containerAtom) decodeLeaf(t [4]byte, b interface{ Decode([]byte) error }) (bool, error) {
	leaf := c.leaf(t)
	if leaf == nil {
		return false, nil
	}
	return true, leaf.decode(b)
}

func (l *leafAtom) decode(b interface{ Decode([]byte) error }) error {
	return pkg.WithBox(b.Decode(l.Payload), l.Type, l.Position)
}

// schemeDataFromAtoms collects the pssh boxes among leaves.
func schemeDataFromAtoms(leaves []leafAtom) (data []SchemeData, err error) {
	for i := range leaves {
		l := &leaves[i]
		if l.Type != box.TypePSSH {
			continue
		}
		var pssh box.PsshBox
		if err = l.decode(&pssh); err != nil {
			return nil, err
		}
		size := box.BasicBoxLen + len(l.Payload)
		whole := binary.BigEndian.AppendUint32(make([]byte, 0, size), uint32(size))
		whole = append(whole, l.Type[:]...)
		whole = append(whole, l.Payload...)
		data = append(data, SchemeData{SystemID: pssh.SystemID, Data: whole})
	}
	return
}
