package box

import (
	"encoding/binary"
)

const (
	BasicBoxLen = 8
	LargeBoxLen = 16
	FullBoxLen  = 12
	// MaxLeafSize bounds buffered leaf payloads.
	MaxLeafSize = 1<<31 - 1
	// MaxRunSamples bounds the sample tables allocated for one trun.
	MaxRunSamples = 1 << 22
	// MaxTableSamples bounds the samples of one moov sample table.
	MaxTableSamples = 1 << 22
)

func f(s string) [4]byte {
	return [4]byte([]byte(s))
}

var (
	TypeFTYP = f("ftyp")
	TypeSTYP = f("styp")
	TypeMOOV = f("moov")
	TypeMVHD = f("mvhd")
	TypeMEHD = f("mehd")
	TypeTRAK = f("trak")
	TypeTKHD = f("tkhd")
	TypeMDIA = f("mdia")
	TypeMDHD = f("mdhd")
	TypeHDLR = f("hdlr")
	TypeMINF = f("minf")
	TypeSTBL = f("stbl")
	TypeSTSD = f("stsd")
	TypeSTTS = f("stts")
	TypeSTSC = f("stsc")
	TypeSTSZ = f("stsz")
	TypeSTZ2 = f("stz2")
	TypeSTCO = f("stco")
	TypeCO64 = f("co64")
	TypeCTTS = f("ctts")
	TypeSTSS = f("stss")
	TypeMDAT = f("mdat")
	TypeFREE = f("free")
	TypeSKIP = f("skip")
	TypeUUID = f("uuid")
	TypeUDTA = f("udta")
	TypeMETA = f("meta")
	TypePSSH = f("pssh")
	TypeEMSG = f("emsg")

	TypeENCV = f("encv")
	TypeENCA = f("enca")
	TypeSINF = f("sinf")
	TypeFRMA = f("frma")
	TypeSCHM = f("schm")
	TypeSCHI = f("schi")
	TypeTENC = f("tenc")

	TypeAVC1 = f("avc1")
	TypeAVC3 = f("avc3")
	TypeHVC1 = f("hvc1")
	TypeHEV1 = f("hev1")
	TypeAVCC = f("avcC")
	TypeHVCC = f("hvcC")
	TypeMP4A = f("mp4a")
	TypeAC3  = f("ac-3")
	TypeEC3  = f("ec-3")
	TypeAC4  = f("ac-4")
	TypeOPUS = f("Opus")
	TypeFLAC = f("fLaC")
	TypeULAW = f("ulaw")
	TypeALAW = f("alaw")
	TypeESDS = f("esds")
	TypeWAVE = f("wave")
	TypePASP = f("pasp")
	TypeDOPS = f("dOps")
	TypeDFLA = f("dfLa")
	TypeWVTT = f("wvtt")
	TypeSTPP = f("stpp")
	TypeTX3G = f("tx3g")
	TypeC608 = f("c608")

	TypeEDTS = f("edts")
	TypeELST = f("elst")
	TypeMVEX = f("mvex")
	TypeTREX = f("trex")
	TypeMOOF = f("moof")
	TypeMFHD = f("mfhd")
	TypeTRAF = f("traf")
	TypeTFHD = f("tfhd")
	TypeTFDT = f("tfdt")
	TypeTRUN = f("trun")
	TypeSENC = f("senc")
	TypeSAIZ = f("saiz")
	TypeSAIO = f("saio")
	TypeSGPD = f("sgpd")
	TypeSBGP = f("sbgp")
	TypeSEIG = f("seig")
	TypeSIDX = f("sidx")
	TypeMFRA = f("mfra")

	TypeVIDE = f("vide")
	TypeSOUN = f("soun")
	TypeTEXT = f("text")
	TypeSBTL = f("sbtl")
	TypeSUBT = f("subt")
	TypeCLCP = f("clcp")

	TypeCENC = f("cenc")
	TypeCBCS = f("cbcs")
	TypeCBC1 = f("cbc1")
	TypeCENS = f("cens")
)

// PiffSampleEncryptionType is the extended type of the PIFF sample encryption uuid box.
var PiffSampleEncryptionType = [16]byte{0xA2, 0x39, 0x4F, 0x52, 0x5A, 0x9B, 0x4F, 0x14, 0xA2, 0x44, 0x6C, 0x42, 0x7C, 0x64, 0x8D, 0xF4}

var containerTypes = map[[4]byte]struct{}{
	TypeMOOV: {}, TypeTRAK: {}, TypeMDIA: {}, TypeMINF: {}, TypeSTBL: {},
	TypeMOOF: {}, TypeTRAF: {}, TypeMVEX: {}, TypeEDTS: {},
}

var leafTypes = map[[4]byte]struct{}{
	TypeHDLR: {}, TypeMDHD: {}, TypeMVHD: {}, TypeSIDX: {}, TypeSTSD: {},
	TypeSTTS: {}, TypeCTTS: {}, TypeSTSC: {}, TypeSTSZ: {}, TypeSTZ2: {},
	TypeSTCO: {}, TypeCO64: {}, TypeSTSS: {}, TypeTFDT: {}, TypeTFHD: {},
	TypeTKHD: {}, TypeTREX: {}, TypeTRUN: {}, TypePSSH: {}, TypeSAIZ: {},
	TypeSAIO: {}, TypeSENC: {}, TypeUUID: {}, TypeSBGP: {}, TypeSGPD: {},
	TypeELST: {}, TypeMEHD: {}, TypeEMSG: {}, TypeUDTA: {}, TypeMETA: {},
}

// IsContainer reports whether the driver recurses into boxes of type t.
func IsContainer(t [4]byte) bool {
	_, ok := containerTypes[t]
	return ok
}

// IsLeaf reports whether boxes of type t are buffered whole.
func IsLeaf(t [4]byte) bool {
	_, ok := leafTypes[t]
	return ok
}

func TypeString(t [4]byte) string {
	return string(t[:])
}

func TypeFromUint32(v uint32) (t [4]byte) {
	binary.BigEndian.PutUint32(t[:], v)
	return
}

// aligned(8) class FullBox(unsigned int(32) boxtype, unsigned int(8) v, bit(24) f) extends Box(boxtype) {
//     unsigned int(8) version = v;
//     bit(24) flags = f;
// }

type FullBox struct {
	Version uint8
	Flags   uint32
}

func (fb *FullBox) decode(r *Reader) {
	v := r.U32()
	fb.Version = uint8(v >> 24)
	fb.Flags = v & 0x00FFFFFF
}

func (fb *FullBox) Has(flag uint32) bool {
	return fb.Flags&flag != 0
}
