package fmp4

import (
	"bytes"
	"encoding/binary"
	"math"

	"m7s.live/fmp4/pkg"
	"m7s.live/fmp4/pkg/box"
	"m7s.live/fmp4/pkg/util"
)

func errAuxiliaryDataExhausted(sample int) error {
	return pkg.Malformed("auxiliary encryption data exhausted at sample %d", sample)
}

// onMoof parses a movie fragment into the track bundles, then applies a
// pending seek.
func (d *Demuxer) onMoof(moof *containerAtom) error {
	if d.trackBundles.Length == 0 {
		return pkg.WithBox(pkg.Malformed("moof before moov: %v", pkg.ErrNoTracks), box.TypeMOOF, moof.Position)
	}
	err := d.parseMoof(moof)
	if d.sideloadedTrack == nil {
		drm, perr := schemeDataFromAtoms(moof.Leaves)
		if perr != nil && err == nil {
			err = perr
		}
		if len(drm) > 0 {
			for _, b := range d.trackBundles.Items {
				b.updateDRMInitData(drm)
			}
		}
	}
	if d.pendingSeekTimeUs != TimeUnset {
		for _, b := range d.trackBundles.Items {
			b.seek(d.pendingSeekTimeUs)
		}
		d.pendingSeekTimeUs = TimeUnset
	}
	return err
}

// parseMoof parses every traf. A traf that fails leaves its track with an
// empty fragment; the first error is returned once all were processed.
func (d *Demuxer) parseMoof(moof *containerAtom) (err error) {
	for _, traf := range moof.Containers {
		if traf.Type != box.TypeTRAF {
			continue
		}
		bundle, terr := d.parseTraf(traf)
		if terr == nil {
			continue
		}
		d.Warn("drop track fragment", "position", traf.Position, "error", terr)
		if bundle != nil {
			bundle.dropFragment()
		}
		if err == nil {
			err = terr
		}
	}
	return
}

func (d *Demuxer) parseTraf(traf *containerAtom) (*trackBundle, error) {
	leaf := traf.leaf(box.TypeTFHD)
	if leaf == nil {
		return nil, pkg.Malformed("traf without tfhd").At(box.TypeTRAF, traf.Position)
	}
	var tfhd box.TrackFragmentHeaderBox
	if err := leaf.decode(&tfhd); err != nil {
		return nil, err
	}
	bundle := d.bundleFor(tfhd.TrackID)
	if bundle == nil {
		d.Debug("traf of unknown track", "track", tfhd.TrackID)
		return nil, nil
	}
	f := &bundle.fragment
	if tfhd.Has(box.TF_FLAG_BASE_DATA_OFFSET) {
		pos, ok := checkedPosition(tfhd.BaseDataOffset)
		if !ok {
			return bundle, pkg.Malformed("base data offset %d", tfhd.BaseDataOffset).At(leaf.Type, leaf.Position)
		}
		f.dataPosition = pos
		f.auxiliaryDataPosition = pos
	}
	header := bundle.defaults
	if tfhd.Has(box.TF_FLAG_SAMPLE_DESCRIPTION_INDEX_PRESENT) {
		header.SampleDescriptionIndex = int(tfhd.SampleDescriptionIndex) - 1
	}
	if tfhd.Has(box.TF_FLAG_DEFAULT_SAMPLE_DURATION_PRESENT) {
		header.Duration = tfhd.DefaultSampleDuration
	}
	if tfhd.Has(box.TF_FLAG_DEFAULT_SAMPLE_SIZE_PRESENT) {
		header.Size = tfhd.DefaultSampleSize
	}
	if tfhd.Has(box.TF_FLAG_DEFAULT_SAMPLE_FLAGS_PRESENT) {
		header.Flags = tfhd.DefaultSampleFlags
	}

	decodeTime := f.nextFragmentDecodeTime
	includesMoov := f.nextFragmentDecodeTimeIncludesMoov
	bundle.resetFragmentInfo()
	bundle.inFragment = true
	f.header = header
	f.nextFragmentDecodeTime = decodeTime
	f.nextFragmentDecodeTimeIncludesMoov = includesMoov
	if leaf = traf.leaf(box.TypeTFDT); leaf != nil && !d.cfg.WorkaroundIgnoreTfdt {
		var tfdt box.TrackFragmentBaseMediaDecodeTimeBox
		if err := leaf.decode(&tfdt); err != nil {
			return bundle, err
		}
		if tfdt.BaseMediaDecodeTime > math.MaxInt64 {
			return bundle, pkg.Malformed("tfdt %d", tfdt.BaseMediaDecodeTime).At(leaf.Type, leaf.Position)
		}
		f.nextFragmentDecodeTime = int64(tfdt.BaseMediaDecodeTime)
		f.nextFragmentDecodeTimeIncludesMoov = true
	}

	if err := d.parseTruns(traf, bundle); err != nil {
		return bundle, err
	}

	enc := bundle.track().SampleDescriptionEncryptionBox(header.SampleDescriptionIndex)
	if leaf = traf.leaf(box.TypeSAIZ); leaf != nil && enc != nil {
		if err := parseSaiz(enc, leaf, f); err != nil {
			return bundle, err
		}
	}
	if leaf = traf.leaf(box.TypeSAIO); leaf != nil {
		if err := parseSaio(leaf, f); err != nil {
			return bundle, err
		}
	}
	var schemeType [4]byte
	if enc != nil {
		schemeType = enc.SchemeType
	}
	if err := parseSampleGroups(traf, schemeType, f); err != nil {
		return bundle, err
	}
	if f.trackEncryptionBox != nil {
		enc = f.trackEncryptionBox
	}
	if leaf = traf.leaf(box.TypeSENC); leaf != nil {
		if err := parseSenc(leaf.Payload, enc, f); err != nil {
			return bundle, pkg.WithBox(err, leaf.Type, leaf.Position)
		}
	}
	for i := range traf.Leaves {
		if leaf = &traf.Leaves[i]; leaf.Type == box.TypeUUID {
			if err := parseUuid(leaf, enc, f); err != nil {
				return bundle, err
			}
		}
	}
	return bundle, nil
}

// bundleFor resolves the bundle of a tfhd track id. A sideloaded track takes
// every fragment whatever its id.
func (d *Demuxer) bundleFor(id uint32) *trackBundle {
	if d.sideloadedTrack != nil && d.trackBundles.Length == 1 {
		return d.trackBundles.Items[0]
	}
	b, _ := d.trackBundles.Get(id)
	return b
}

func checkedPosition(v uint64) (int64, bool) {
	if v > math.MaxInt64 {
		return 0, false
	}
	return int64(v), true
}

// parseTruns sizes the fragment tables from the sample counts of all runs,
// then fills them run by run.
func (d *Demuxer) parseTruns(traf *containerAtom, bundle *trackBundle) error {
	trunCount, sampleCount := 0, 0
	for i := range traf.Leaves {
		leaf := &traf.Leaves[i]
		if leaf.Type != box.TypeTRUN {
			continue
		}
		n, err := box.TrunSampleCount(leaf.Payload)
		if err != nil {
			return pkg.WithBox(err, leaf.Type, leaf.Position)
		}
		if n > box.MaxRunSamples || sampleCount+int(n) > box.MaxRunSamples {
			return pkg.Unsupported("%d samples in one fragment", sampleCount+int(n)).At(leaf.Type, leaf.Position)
		}
		if n > 0 {
			sampleCount += int(n)
			trunCount++
		}
	}
	bundle.runIndex = 0
	bundle.sampleInRun = 0
	bundle.sampleIndex = 0
	bundle.fragment.initTables(trunCount, sampleCount)

	run, start := 0, 0
	for i := range traf.Leaves {
		leaf := &traf.Leaves[i]
		if leaf.Type != box.TypeTRUN {
			continue
		}
		var trun box.TrackRunBox
		if err := leaf.decode(&trun); err != nil {
			return err
		}
		if trun.SampleCount == 0 {
			continue
		}
		var err error
		if start, err = d.parseTrun(bundle, run, start, &trun); err != nil {
			return pkg.WithBox(err, leaf.Type, leaf.Position)
		}
		run++
	}
	return nil
}

// parseTrun fills the samples of run index, which start at table index start,
// and returns the index following the run.
func (d *Demuxer) parseTrun(bundle *trackBundle, index, start int, trun *box.TrackRunBox) (int, error) {
	track := bundle.track()
	f := &bundle.fragment
	defaults := f.header
	f.trunLength[index] = int(trun.SampleCount)
	switch {
	case trun.Has(box.TR_FLAG_DATA_OFFSET):
		f.trunDataPosition[index] = f.dataPosition + int64(trun.DataOffset)
	case index > 0:
		// contiguous with the previous run
		f.trunDataPosition[index] = f.trunDataPosition[index-1]
		for i := start - f.trunLength[index-1]; i < start; i++ {
			f.trunDataPosition[index] += int64(f.sampleSizeTable[i])
		}
	default:
		f.trunDataPosition[index] = f.dataPosition
	}

	firstSampleFlagsPresent := trun.Has(box.TR_FLAG_DATA_FIRST_SAMPLE_FLAGS)
	durationsPresent := trun.Has(box.TR_FLAG_DATA_SAMPLE_DURATION)
	sizesPresent := trun.Has(box.TR_FLAG_DATA_SAMPLE_SIZE)
	flagsPresent := trun.Has(box.TR_FLAG_DATA_SAMPLE_FLAGS)
	ctsPresent := trun.Has(box.TR_FLAG_DATA_SAMPLE_COMPOSITION_TIME)
	everyFrameIsSync := track.Type == TrackTypeVideo && d.cfg.WorkaroundEveryVideoFrameIsSync
	edtsOffset := track.editListOffset()
	timescale := int64(track.Timescale)
	cumulativeTime := f.nextFragmentDecodeTime

	end := start + f.trunLength[index]
	for i := start; i < end; i++ {
		e := &trun.EntryList[i-start]
		duration := defaults.Duration
		if durationsPresent {
			duration = e.SampleDuration
		}
		size := defaults.Size
		if sizesPresent {
			size = e.SampleSize
		}
		if duration > math.MaxInt32 || size > math.MaxInt32 {
			return start, pkg.Malformed("sample %d duration %d size %d", i, duration, size)
		}
		flags := defaults.Flags
		switch {
		case flagsPresent:
			flags = e.SampleFlags
		case i == start && firstSampleFlagsPresent:
			flags = trun.FirstSampleFlags
		}
		var cts int64
		if ctsPresent {
			cts = int64(e.SampleCompositionTimeOffset)
		}
		timeUs := util.ScaleTimestamp(cumulativeTime+cts-edtsOffset, util.MicrosPerSecond, timescale)
		if !f.nextFragmentDecodeTimeIncludesMoov {
			timeUs += bundle.table.DurationUs
		}
		f.sampleTimesUs[i] = timeUs
		f.sampleSizeTable[i] = int(size)
		f.sampleIsSyncFrame[i] = box.IsSyncSampleFlags(flags) && (!everyFrameIsSync || i == 0)
		cumulativeTime += int64(duration)
	}
	f.nextFragmentDecodeTime = cumulativeTime
	return end, nil
}

func parseSaiz(enc *box.TrackEncryptionBox, leaf *leafAtom, f *trackFragment) error {
	var saiz box.SaizBox
	if err := leaf.decode(&saiz); err != nil {
		return err
	}
	count := int(saiz.SampleCount)
	if count > f.sampleCount {
		return pkg.Malformed("saiz sample count %d exceeds fragment sample count %d", count, f.sampleCount).At(leaf.Type, leaf.Position)
	}
	ivSize := int(enc.PerSampleIVSize)
	if saiz.DefaultSampleInfoSize == 0 {
		for i, size := range saiz.SampleInfo {
			f.sampleHasSubsampleEncryptionTable[i] = int(size) > ivSize
		}
	} else {
		subsamples := int(saiz.DefaultSampleInfoSize) > ivSize
		for i := 0; i < count; i++ {
			f.sampleHasSubsampleEncryptionTable[i] = subsamples
		}
	}
	clear(f.sampleHasSubsampleEncryptionTable[count:])
	if total := saiz.TotalSize(); total > 0 {
		f.initEncryptionData(total)
	}
	return nil
}

func parseSaio(leaf *leafAtom, f *trackFragment) error {
	var saio box.SaioBox
	if err := leaf.decode(&saio); err != nil {
		return err
	}
	if len(saio.Offset) != 1 {
		return pkg.Unsupported("saio entry count %d", len(saio.Offset)).At(leaf.Type, leaf.Position)
	}
	offset, ok := checkedPosition(saio.Offset[0])
	if !ok {
		return pkg.Malformed("saio offset %d", saio.Offset[0]).At(leaf.Type, leaf.Position)
	}
	f.auxiliaryDataPosition += offset
	return nil
}

// parseSenc takes the per-sample IVs and subsample tables from a senc
// payload, or from the body of a PIFF sample encryption box. With enc known
// the records are checked to cover every sample.
func parseSenc(payload []byte, enc *box.TrackEncryptionBox, f *trackFragment) error {
	var senc box.SampleEncryptionBox
	if err := senc.Decode(payload); err != nil {
		return err
	}
	if senc.SampleCount == 0 {
		// the whole fragment is clear
		f.encryptionDisabled = true
		clear(f.sampleHasSubsampleEncryptionTable)
		return nil
	}
	if int(senc.SampleCount) != f.sampleCount {
		return pkg.Malformed("senc sample count %d differs from fragment sample count %d", senc.SampleCount, f.sampleCount)
	}
	if enc != nil && enc.IsEncrypted {
		if _, err := senc.Entries(int(enc.PerSampleIVSize)); err != nil {
			return err
		}
	}
	subsamples := senc.SubsampleEncryption()
	for i := range f.sampleHasSubsampleEncryptionTable {
		f.sampleHasSubsampleEncryptionTable[i] = subsamples
	}
	f.fillEncryptionDataFrom(senc.Data)
	return nil
}

// parseSampleGroups applies a seig sample group, which carries the
// encryption parameters of the fragment.
func parseSampleGroups(traf *containerAtom, schemeType [4]byte, f *trackFragment) error {
	var sbgp *box.SbgpBox
	var sgpd *box.SgpdBox
	for i := range traf.Leaves {
		leaf := &traf.Leaves[i]
		switch leaf.Type {
		case box.TypeSBGP:
			var b box.SbgpBox
			if err := leaf.decode(&b); err != nil {
				return err
			}
			if b.GroupingType == box.TypeSEIG {
				if b.EntryCount != 1 {
					return pkg.Unsupported("sbgp entry count %d", b.EntryCount).At(leaf.Type, leaf.Position)
				}
				sbgp = &b
			}
		case box.TypeSGPD:
			var b box.SgpdBox
			if len(leaf.Payload) >= 8 && box.TypeFromUint32(binary.BigEndian.Uint32(leaf.Payload[4:])) != box.TypeSEIG {
				continue
			}
			if err := leaf.decode(&b); err != nil {
				return err
			}
			sgpd = &b
		}
	}
	if sbgp == nil || sgpd == nil || sgpd.Seig == nil || sgpd.Seig.IsProtected != 1 {
		return nil
	}
	f.definesEncryptionData = true
	f.trackEncryptionBox = sgpd.Seig.TrackEncryption(schemeType)
	return nil
}

func parseUuid(leaf *leafAtom, enc *box.TrackEncryptionBox, f *trackFragment) error {
	if len(leaf.Payload) < 16 || !bytes.Equal(leaf.Payload[:16], box.PiffSampleEncryptionType[:]) {
		return nil
	}
	return pkg.WithBox(parseSenc(leaf.Payload[16:], enc, f), leaf.Type, leaf.Position)
}
