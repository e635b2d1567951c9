package box

// aligned(8) class SegmentIndexBox extends FullBox(‘sidx’, version, 0) {
//    unsigned int(32) reference_ID;
//    unsigned int(32) timescale;
//    if (version==0) {
//          unsigned int(32) earliest_presentation_time;
//          unsigned int(32) first_offset;
//    }
//    else {
//          unsigned int(64) earliest_presentation_time;
//          unsigned int(64) first_offset;
//    }
//    unsigned int(16) reserved = 0;
//    unsigned int(16) reference_count;
//    for(i=1; i <= reference_count; i++)
//    {
//       bit (1)           reference_type;
//       unsigned int(31)  referenced_size;
//       unsigned int(32)  subsegment_duration;
//       bit(1)            starts_with_SAP;
//       unsigned int(3)   SAP_type;
//       unsigned int(28)  SAP_delta_time;
//    }
// }

type SidxEntry struct {
	ReferenceType      uint8
	ReferencedSize     uint32
	SubsegmentDuration uint32
	StartsWithSAP      uint8
	SAPType            uint8
	SAPDeltaTime       uint32
}

type SegmentIndexBox struct {
	FullBox
	ReferenceID              uint32
	TimeScale                uint32
	EarliestPresentationTime uint64
	FirstOffset              uint64
	Entrys                   []SidxEntry
}

func (sidx *SegmentIndexBox) Decode(payload []byte) error {
	r := NewReader(payload)
	sidx.FullBox.decode(r)
	sidx.ReferenceID = r.U32()
	sidx.TimeScale = r.U32()
	if sidx.Version == 0 {
		sidx.EarliestPresentationTime = uint64(r.U32())
		sidx.FirstOffset = uint64(r.U32())
	} else {
		sidx.EarliestPresentationTime = r.U64()
		sidx.FirstOffset = r.U64()
	}
	r.Skip(2)
	count := r.U16()
	if err := r.Fits(TypeSIDX, uint64(count), 12); err != nil {
		return err
	}
	sidx.Entrys = make([]SidxEntry, count)
	for i := range sidx.Entrys {
		e := &sidx.Entrys[i]
		v := r.U32()
		e.ReferenceType = uint8(v >> 31)
		e.ReferencedSize = v & 0x7FFFFFFF
		e.SubsegmentDuration = r.U32()
		v = r.U32()
		e.StartsWithSAP = uint8(v >> 31)
		e.SAPType = uint8(v>>28) & 0x07
		e.SAPDeltaTime = v & 0x0FFFFFFF
	}
	return r.Err(TypeSIDX)
}

// aligned(8) class DASHEventMessageBox extends FullBox(‘emsg’, version, flags = 0) {
// 	if (version==0) {
// 		string scheme_id_uri;
// 		string value;
// 		unsigned int(32) timescale;
// 		unsigned int(32) presentation_time_delta;
// 		unsigned int(32) event_duration;
// 		unsigned int(32) id;
// 	} else if (version==1) {
// 		unsigned int(32) timescale;
// 		unsigned int(64) presentation_time;
// 		unsigned int(32) event_duration;
// 		unsigned int(32) id;
// 		string scheme_id_uri;
// 		string value;
// 	}
// 	unsigned int(8) message_data[];
// }

type EventMessageBox struct {
	FullBox
	SchemeIDURI           string
	Value                 string
	TimeScale             uint32
	PresentationTimeDelta uint32 // version 0
	PresentationTime      uint64 // version 1
	EventDuration         uint32
	ID                    uint32
	MessageData           []byte
}

func (emsg *EventMessageBox) Decode(payload []byte) error {
	r := NewReader(payload)
	emsg.FullBox.decode(r)
	switch emsg.Version {
	case 0:
		emsg.SchemeIDURI = r.CString()
		emsg.Value = r.CString()
		emsg.TimeScale = r.U32()
		emsg.PresentationTimeDelta = r.U32()
		emsg.EventDuration = r.U32()
		emsg.ID = r.U32()
	case 1:
		emsg.TimeScale = r.U32()
		emsg.PresentationTime = r.U64()
		emsg.EventDuration = r.U32()
		emsg.ID = r.U32()
		emsg.SchemeIDURI = r.CString()
		emsg.Value = r.CString()
	default:
		return nil
	}
	if err := r.Err(TypeEMSG); err != nil {
		return err
	}
	emsg.MessageData = r.Bytes(r.Left())
	return nil
}

type FileTypeBox struct {
	Major_brand       [4]byte
	Minor_version     uint32
	Compatible_brands [][4]byte
}

func (ftyp *FileTypeBox) Decode(payload []byte) error {
	r := NewReader(payload)
	if b := r.Bytes(4); b != nil {
		ftyp.Major_brand = [4]byte(b)
	}
	ftyp.Minor_version = r.U32()
	for r.Left() >= 4 {
		ftyp.Compatible_brands = append(ftyp.Compatible_brands, [4]byte(r.Bytes(4)))
	}
	return r.Err(TypeFTYP)
}
