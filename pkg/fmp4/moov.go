package fmp4

import (
	"math"

	"m7s.live/fmp4/pkg"
	"m7s.live/fmp4/pkg/box"
	"m7s.live/fmp4/pkg/util"
)

// onMoov builds the track bundles from the movie box. A repeated moov updates
// the existing bundles in place.
func (d *Demuxer) onMoov(moov *containerAtom) error {
	if d.sideloadedTrack != nil {
		return pkg.ErrUnexpectedMoov
	}
	drm, err := schemeDataFromAtoms(moov.Leaves)
	if err != nil {
		return err
	}
	var mvhd box.MovieHeaderBox
	if ok, err := moov.decodeLeaf(box.TypeMVHD, &mvhd); err != nil {
		return err
	} else if !ok {
		return pkg.Malformed("moov without mvhd").At(box.TypeMOOV, moov.Position)
	}

	defaults := make(map[uint32]DefaultSampleValues)
	fragmentDuration := TimeUnset
	if mvex := moov.container(box.TypeMVEX); mvex != nil {
		for i := range mvex.Leaves {
			leaf := &mvex.Leaves[i]
			switch leaf.Type {
			case box.TypeTREX:
				var trex box.TrackExtendsBox
				if err = leaf.decode(&trex); err != nil {
					return err
				}
				defaults[trex.TrackID] = DefaultSampleValues{
					SampleDescriptionIndex: int(trex.DefaultSampleDescriptionIndex) - 1,
					Duration:               trex.DefaultSampleDuration,
					Size:                   trex.DefaultSampleSize,
					Flags:                  trex.DefaultSampleFlags,
				}
			case box.TypeMEHD:
				var mehd box.MovieExtendsHeaderBox
				if err = leaf.decode(&mehd); err != nil {
					return err
				}
				if mehd.FragmentDuration <= math.MaxInt64 {
					fragmentDuration = int64(mehd.FragmentDuration)
				}
			}
		}
	}

	metadata := rawMetadata(moov.Leaves)
	var tables []*trackSampleTable
	for _, trak := range moov.Containers {
		if trak.Type != box.TypeTRAK {
			continue
		}
		table, err := d.parseTrak(trak, mvhd.Timescale, fragmentDuration, drm, metadata)
		if err != nil {
			return err
		}
		if table != nil {
			tables = append(tables, table)
		}
	}

	if d.trackBundles.Length == 0 {
		for i, table := range tables {
			track := table.Track
			bundle := newTrackBundle(d.out.Track(i, track.Type), table, defaultsFor(defaults, track.ID))
			d.trackBundles.Add(bundle)
			d.durationUs = max(d.durationUs, track.DurationUs)
			d.Debug("track", "id", track.ID, "type", track.Type, "format", track.Format, "samples", table.SampleCount())
		}
		d.out.EndTracks()
		return nil
	}
	if len(tables) != d.trackBundles.Length {
		return pkg.Malformed("moov has %d tracks, %d known", len(tables), d.trackBundles.Length).At(box.TypeMOOV, moov.Position)
	}
	for _, table := range tables {
		bundle, ok := d.trackBundles.Get(table.Track.ID)
		if !ok {
			return pkg.Malformed("moov introduces track %d", table.Track.ID).At(box.TypeMOOV, moov.Position)
		}
		bundle.reset(table, defaultsFor(defaults, table.Track.ID))
	}
	return nil
}

// defaultsFor picks the trex defaults of a track. A lone trex applies to
// every track.
func defaultsFor(defaults map[uint32]DefaultSampleValues, id uint32) DefaultSampleValues {
	if len(defaults) == 1 {
		for _, v := range defaults {
			return v
		}
	}
	return defaults[id]
}

func rawMetadata(leaves []leafAtom) (metadata [][]byte) {
	for i := range leaves {
		if leaves[i].Type == box.TypeUDTA || leaves[i].Type == box.TypeMETA {
			metadata = append(metadata, leaves[i].Payload)
		}
	}
	return
}

// parseTrak returns nil for tracks of a handler type that is not demuxed.
func (d *Demuxer) parseTrak(trak *containerAtom, movieTimescale uint32, fragmentDuration int64, drm []SchemeData, metadata [][]byte) (*trackSampleTable, error) {
	mdia := trak.container(box.TypeMDIA)
	if mdia == nil {
		return nil, pkg.Malformed("trak without mdia").At(box.TypeTRAK, trak.Position)
	}
	var hdlr box.HandlerBox
	if ok, err := mdia.decodeLeaf(box.TypeHDLR, &hdlr); err != nil {
		return nil, err
	} else if !ok {
		return nil, pkg.Malformed("mdia without hdlr").At(box.TypeMDIA, mdia.Position)
	}
	kind := trackTypeOf(hdlr.HandlerType)
	if kind == TrackTypeUnknown {
		d.Debug("skip track", "handler", box.TypeString(hdlr.HandlerType))
		return nil, nil
	}

	var tkhd box.TrackHeaderBox
	if ok, err := trak.decodeLeaf(box.TypeTKHD, &tkhd); err != nil {
		return nil, err
	} else if !ok {
		return nil, pkg.Malformed("trak without tkhd").At(box.TypeTRAK, trak.Position)
	}
	duration := fragmentDuration
	if duration == TimeUnset && tkhd.Duration != math.MaxUint32 && tkhd.Duration <= math.MaxInt64 {
		duration = int64(tkhd.Duration)
	}
	track := &Track{
		ID:             tkhd.TrackID,
		Type:           kind,
		MovieTimescale: movieTimescale,
		DurationUs:     TimeUnset,
	}
	if duration != TimeUnset && movieTimescale != 0 {
		track.DurationUs = util.ToMicros(duration, movieTimescale)
	}

	var mdhd box.MediaHeaderBox
	if ok, err := mdia.decodeLeaf(box.TypeMDHD, &mdhd); err != nil {
		return nil, err
	} else if !ok {
		return nil, pkg.Malformed("mdia without mdhd").At(box.TypeMDIA, mdia.Position)
	}
	if mdhd.Timescale == 0 {
		return nil, pkg.Malformed("mdhd timescale is zero").At(box.TypeMDHD, mdia.Position)
	}
	track.Timescale = mdhd.Timescale

	var stbl *containerAtom
	if minf := mdia.container(box.TypeMINF); minf != nil {
		stbl = minf.container(box.TypeSTBL)
	}
	if stbl == nil {
		return nil, pkg.Malformed("track %d without stbl", track.ID).At(box.TypeMDIA, mdia.Position)
	}
	leaf := stbl.leaf(box.TypeSTSD)
	if leaf == nil {
		return nil, pkg.Malformed("stbl without stsd").At(box.TypeSTBL, stbl.Position)
	}
	var stsd box.SampleDescriptionBox
	if err := pkg.WithBox(stsd.Decode(leaf.Payload, leaf.End-int64(len(leaf.Payload))), leaf.Type, leaf.Position); err != nil {
		return nil, err
	}
	if len(stsd.Entries) == 0 {
		return nil, pkg.Malformed("stsd without entries").At(leaf.Type, leaf.Position)
	}
	track.EncryptionBoxes = encryptionBoxes(&stsd)
	entry := stsd.Entries[0]
	if entry.Format() == box.TypeC608 {
		track.Transformation = TransformationCEA608CDAT
	}

	if !d.cfg.WorkaroundIgnoreEditLists {
		if edts := trak.container(box.TypeEDTS); edts != nil {
			var elst box.EditListBox
			if _, err := edts.decodeLeaf(box.TypeELST, &elst); err != nil {
				return nil, err
			}
			for _, e := range elst.Entries {
				track.EditListDurations = append(track.EditListDurations, e.SegmentDuration)
				track.EditListMediaTimes = append(track.EditListMediaTimes, e.MediaTime)
			}
		}
	}

	format, err := buildFormat(track, entry, mdhd.LanguageCode())
	if err != nil {
		return nil, pkg.WithBox(err, leaf.Type, leaf.Position)
	}
	format.Rotation = tkhd.Rotation()
	format.Metadata = append(append([][]byte(nil), metadata...), rawMetadata(trak.Leaves)...)
	if len(drm) > 0 {
		format.DRMInitData = drm
	}
	track.Format = format
	track.NALLengthSize = format.NALLengthSize
	return buildSampleTable(track, stbl)
}
