package fmp4

import (
	"encoding/binary"
	"errors"
	"io"
	"slices"

	"m7s.live/fmp4/pkg/box"
)

const sniffSearchLength = 4 * 1024

var compatibleBrands = [][4]byte{
	{'i', 's', 'o', 'm'}, {'i', 's', 'o', '2'}, {'i', 's', 'o', '3'}, {'i', 's', 'o', '4'},
	{'i', 's', 'o', '5'}, {'i', 's', 'o', '6'}, {'i', 's', 'o', '8'},
	{'a', 'v', 'c', '1'}, {'h', 'v', 'c', '1'}, {'h', 'e', 'v', '1'}, {'a', 'v', '0', '1'},
	{'m', 'p', '4', '1'}, {'m', 'p', '4', '2'},
	{'3', 'g', '2', 'a'}, {'3', 'g', '2', 'b'}, {'3', 'g', 'r', '6'}, {'3', 'g', 's', '6'},
	{'3', 'g', 'e', '6'}, {'3', 'g', 'g', '6'},
	{'M', '4', 'V', ' '}, {'M', '4', 'A', ' '}, {'f', '4', 'v', ' '}, {'k', 'd', 'd', 'i'},
	{'M', '4', 'V', 'P'}, {'q', 't', ' ', ' '}, {'M', 'S', 'N', 'V'}, {'d', 'b', 'y', '1'},
	{'i', 's', 'm', 'l'}, {'p', 'i', 'f', 'f'}, {'c', 'm', 'f', 'c'}, {'d', 'a', 's', 'h'},
}

func isCompatibleBrand(brand [4]byte) bool {
	// every 3GPP brand
	if brand[0] == '3' && brand[1] == 'g' && brand[2] == 'p' {
		return true
	}
	return slices.Contains(compatibleBrands, brand)
}

// Sniff peeks at the box headers of the first kilobytes of in and reports
// whether they start a fragmented ISO-BMFF stream: a known ftyp brand and an
// mvex or moof box. The peek position is reset before returning.
func Sniff(in Input) (bool, error) {
	defer in.ResetPeekPosition()
	length := in.Length()
	search := int64(sniffSearchLength)
	if length >= 0 {
		search = min(search, length-in.Position())
	}
	var header [box.LargeBoxLen]byte
	var peeked int64
	goodFileType := false
	for peeked < search {
		if err := peekFull(in, header[:box.BasicBoxLen]); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return false, err
		}
		headerLen := int64(box.BasicBoxLen)
		size := int64(binary.BigEndian.Uint32(header[:4]))
		t := [4]byte(header[4:8])
		switch size {
		case 1:
			if err := peekFull(in, header[box.BasicBoxLen:box.LargeBoxLen]); err != nil {
				if errors.Is(err, io.EOF) {
					return false, nil
				}
				return false, err
			}
			headerLen = box.LargeBoxLen
			size = int64(binary.BigEndian.Uint64(header[8:16]))
		case 0:
			if length >= 0 {
				size = length - in.Position() - peeked
			}
		}
		if size < headerLen {
			return false, nil
		}
		peeked += headerLen
		switch t {
		case box.TypeMOOV:
			// descend into the movie box
			search += size
			if length >= 0 {
				search = min(search, length-in.Position())
			}
			continue
		case box.TypeMOOF, box.TypeMVEX:
			return goodFileType, nil
		}
		payloadSize := size - headerLen
		if peeked+payloadSize >= search {
			break
		}
		peeked += payloadSize
		if t == box.TypeFTYP {
			if payloadSize < 8 {
				return false, nil
			}
			payload := make([]byte, payloadSize)
			if err := peekFull(in, payload); err != nil {
				return false, ignoreEOF(err)
			}
			var ftyp box.FileTypeBox
			if ftyp.Decode(payload) != nil {
				return false, nil
			}
			goodFileType = isCompatibleBrand(ftyp.Major_brand) || slices.ContainsFunc(ftyp.Compatible_brands, isCompatibleBrand)
			if !goodFileType {
				return false, nil
			}
		} else if err := peekSkip(in, payloadSize); err != nil {
			return false, ignoreEOF(err)
		}
	}
	return false, nil
}

func peekFull(in Input, p []byte) error {
	for done := 0; done < len(p); {
		n, err := in.Peek(p[done:])
		done += n
		if err != nil {
			if done == len(p) {
				return nil
			}
			return err
		}
		if n == 0 {
			return io.ErrNoProgress
		}
	}
	return nil
}

func peekSkip(in Input, n int64) error {
	var discard [512]byte
	for n > 0 {
		chunk := discard[:min(n, int64(len(discard)))]
		if err := peekFull(in, chunk); err != nil {
			return err
		}
		n -= int64(len(chunk))
	}
	return nil
}

func ignoreEOF(err error) error {
	if errors.Is(err, io.EOF) {
		return nil
	}
	return err
}
